// Package contentstore keeps message payloads and archived documents under
// write-once references.
package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edihub/internal/domain"
)

// ErrConflict is returned when a reference already holds content.
var ErrConflict = errors.New("content reference already written")

var ErrNotFound = errors.New("content not found")

type Store interface {
	PutOnce(ctx context.Context, reference string, content []byte) error
	Get(ctx context.Context, reference string) ([]byte, error)
}

// TxStore writes content in the caller's database transaction so the blob
// and the row referencing it commit together.
type TxStore interface {
	Store
	PutOnceTx(ctx context.Context, tx *sql.Tx, reference string, content []byte) error
}

// MessageReference is where a message payload lives:
// {receiverNumber}/{yyyy-mm-dd}/{messageId}.
func MessageReference(receiver domain.ActorNumber, created time.Time, id domain.OutgoingMessageID) string {
	return fmt.Sprintf("%s/%s/%s", receiver, created.UTC().Format("2006-01-02"), id)
}

// ArchiveReference is where the rendering of a bundle in a format lives.
func ArchiveReference(bundleID domain.BundleID, format domain.DocumentFormat) string {
	return fmt.Sprintf("archive/%s/%s", bundleID, format)
}
