// Package bundling places outgoing messages into bundles, keeping at most one
// open bundle per queue, document type, business reason and relation.
package bundling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"edihub/internal/clock"
	"edihub/internal/db"
	"edihub/internal/domain"
	"edihub/internal/events"
	"edihub/internal/repo"
)

// ErrConflict means a concurrent writer changed the open bundle for the key.
// Retrying the surrounding transaction resolves it.
var ErrConflict = errors.New("bundle assignment conflict")

// Key identifies the bundle a message joins.
type Key struct {
	Queue          domain.Actor
	DocumentType   domain.DocumentType
	BusinessReason domain.BusinessReason
	RelatedTo      domain.RelatedTo
}

type Assignment struct {
	BundleID domain.BundleID
	QueueID  string
	// Opened is set when this call created the bundle.
	Opened bool
	// ClosedBundles counts bundles this call closed: the one it filled and a
	// full one it found before opening a successor.
	ClosedBundles int
}

type Assigner struct {
	Repo   repo.Repo
	Events events.Writer
	Clock  clock.Clock
	NewID  func() string
}

func NewAssigner(r repo.Repo, clk clock.Clock) Assigner {
	clk = clock.OrSystem(clk)
	return Assigner{Repo: r, Events: events.Writer{Clock: clk}, Clock: clk}
}

func (a Assigner) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.NewString()
}

// AssignBundle reserves one slot for a message in tx. It returns ErrConflict
// when a concurrent writer won the race for the key.
func (a Assigner) AssignBundle(ctx context.Context, tx *sql.Tx, key Key, maxCount int) (Assignment, error) {
	if maxCount <= 0 {
		return Assignment{}, fmt.Errorf("%w: bundle capacity must be positive", domain.ErrValidation)
	}
	if !key.DocumentType.Valid() {
		return Assignment{}, fmt.Errorf("%w: unknown document type %q", domain.ErrValidation, key.DocumentType)
	}
	now := clock.OrSystem(a.Clock).Now().UTC()
	queue, err := a.Repo.EnsureQueue(ctx, tx, key.Queue, a.newID(), now)
	if err != nil {
		return Assignment{}, conflictOr(err)
	}
	res := Assignment{QueueID: queue.ID}

	open, err := a.Repo.FindOpenBundle(ctx, tx, queue.ID, key.DocumentType, key.BusinessReason, key.RelatedTo)
	switch {
	case errors.Is(err, repo.ErrNotFound):
	case err != nil:
		return Assignment{}, conflictOr(err)
	case open.MessageCount < maxCount:
		res.BundleID = open.ID
	default:
		closed, err := a.Repo.CloseBundle(ctx, tx, open.ID, now)
		if err != nil {
			return Assignment{}, conflictOr(err)
		}
		if closed {
			res.ClosedBundles++
			if err := a.Events.Append(ctx, tx, events.TypeBundleClosed, events.KindBundle, string(open.ID), key.Queue,
				events.EventPayload{"reason": "capacity", "message_count": open.MessageCount}); err != nil {
				return Assignment{}, err
			}
		}
	}

	if res.BundleID == "" {
		b := domain.Bundle{
			ID:              domain.BundleID(a.newID()),
			QueueID:         queue.ID,
			DocumentType:    key.DocumentType,
			BusinessReason:  key.BusinessReason,
			RelatedTo:       key.RelatedTo,
			MaxMessageCount: maxCount,
			Created:         now,
		}
		if err := a.Repo.InsertBundle(ctx, tx, b); err != nil {
			return Assignment{}, conflictOr(err)
		}
		if err := a.Events.Append(ctx, tx, events.TypeBundleCreated, events.KindBundle, string(b.ID), key.Queue,
			events.EventPayload{"document_type": b.DocumentType, "business_reason": b.BusinessReason, "related_to": b.RelatedTo.String()}); err != nil {
			return Assignment{}, err
		}
		res.BundleID = b.ID
		res.Opened = true
	}

	b, err := a.Repo.IncrementBundle(ctx, tx, res.BundleID, now)
	if err != nil {
		return Assignment{}, conflictOr(err)
	}
	if b.IsClosed {
		res.ClosedBundles++
		if err := a.Events.Append(ctx, tx, events.TypeBundleClosed, events.KindBundle, string(b.ID), key.Queue,
			events.EventPayload{"reason": "capacity", "message_count": b.MessageCount}); err != nil {
			return Assignment{}, err
		}
	}
	return res, nil
}

// conflictOr maps races on the open-bundle key and lock contention to
// ErrConflict.
func conflictOr(err error) error {
	if errors.Is(err, repo.ErrBundleNotOpen) || db.IsConstraintViolation(err) || db.IsBusy(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
