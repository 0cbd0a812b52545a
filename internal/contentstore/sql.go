package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edihub/internal/clock"
	"edihub/internal/db"
)

// SQLStore keeps content in the content_blobs table of the mailbox database.
type SQLStore struct {
	DB    *sql.DB
	Clock clock.Clock
}

func NewSQLStore(conn *sql.DB, clk clock.Clock) *SQLStore {
	return &SQLStore{DB: conn, Clock: clock.OrSystem(clk)}
}

func (s *SQLStore) PutOnce(ctx context.Context, reference string, content []byte) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.PutOnceTx(ctx, tx, reference, content); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) PutOnceTx(ctx context.Context, tx *sql.Tx, reference string, content []byte) error {
	if reference == "" {
		return errors.New("contentstore: empty reference")
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO content_blobs(reference, content, created_at) VALUES (?,?,?)`,
		reference, content, clock.OrSystem(s.Clock).Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if db.IsConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrConflict, reference)
		}
		return fmt.Errorf("put content %s: %w", reference, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, reference string) ([]byte, error) {
	var content []byte
	err := s.DB.QueryRowContext(ctx, `SELECT content FROM content_blobs WHERE reference=?`, reference).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", reference, err)
	}
	return content, nil
}
