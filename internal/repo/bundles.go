package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"edihub/internal/domain"
)

// EnsureQueue returns the queue owned by owner, creating it with newID when
// absent. Concurrent creators converge on the same row.
func (r Repo) EnsureQueue(ctx context.Context, tx *sql.Tx, owner domain.Actor, newID string, now time.Time) (domain.ActorMessageQueue, error) {
	q := r.on(tx)
	_, err := q.ExecContext(ctx, `INSERT INTO actor_message_queues(id, actor_number, actor_role, created_at)
VALUES (?,?,?,?)
ON CONFLICT(actor_number, actor_role) DO NOTHING`,
		newID, string(owner.Number), string(owner.Role), formatTime(now))
	if err != nil {
		return domain.ActorMessageQueue{}, fmt.Errorf("ensure queue %s: %w", owner, err)
	}
	return r.getQueue(ctx, q, owner)
}

// GetQueue returns ErrNotFound when owner never received a message.
func (r Repo) GetQueue(ctx context.Context, owner domain.Actor) (domain.ActorMessageQueue, error) {
	return r.getQueue(ctx, r.DB, owner)
}

func (r Repo) getQueue(ctx context.Context, q queryer, owner domain.Actor) (domain.ActorMessageQueue, error) {
	var queue domain.ActorMessageQueue
	var number, role string
	err := q.QueryRowContext(ctx, `SELECT id, actor_number, actor_role FROM actor_message_queues WHERE actor_number=? AND actor_role=?`,
		string(owner.Number), string(owner.Role)).Scan(&queue.ID, &number, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return queue, ErrNotFound
	}
	if err != nil {
		return queue, err
	}
	queue.Owner = domain.NewActor(number, domain.ActorRole(role))
	return queue, nil
}

const bundleColumns = `id, queue_id, document_type, business_reason, related_to_key, message_count, max_message_count, is_closed, is_dequeued, created, closed_at, dequeued_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBundle(row rowScanner) (domain.Bundle, error) {
	var (
		b                   domain.Bundle
		id, docType, reason string
		relatedKey, created string
		closed, dequeued    int
		closedAt, dequeAt   sql.NullString
	)
	if err := row.Scan(&id, &b.QueueID, &docType, &reason, &relatedKey, &b.MessageCount, &b.MaxMessageCount,
		&closed, &dequeued, &created, &closedAt, &dequeAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, ErrNotFound
		}
		return b, err
	}
	b.ID = domain.BundleID(id)
	b.DocumentType = domain.DocumentType(docType)
	b.BusinessReason = domain.BusinessReason(reason)
	b.IsClosed = closed != 0
	b.IsDequeued = dequeued != 0
	var err error
	if b.RelatedTo, err = parseRelated(relatedKey); err != nil {
		return b, err
	}
	if b.Created, err = parseTime(created); err != nil {
		return b, fmt.Errorf("scan bundle created: %w", err)
	}
	if b.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return b, fmt.Errorf("scan bundle closed_at: %w", err)
	}
	if b.DequeuedAt, err = parseNullTime(dequeAt); err != nil {
		return b, fmt.Errorf("scan bundle dequeued_at: %w", err)
	}
	return b, nil
}

// FindOpenBundle looks up the single open bundle for a grouping key.
func (r Repo) FindOpenBundle(ctx context.Context, tx *sql.Tx, queueID string, docType domain.DocumentType, reason domain.BusinessReason, related domain.RelatedTo) (domain.Bundle, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+bundleColumns+` FROM bundles
WHERE queue_id=? AND document_type=? AND business_reason=? AND related_to_key=? AND is_closed=0 AND is_dequeued=0`,
		queueID, string(docType), string(reason), related.Key())
	return scanBundle(row)
}

func (r Repo) GetBundle(ctx context.Context, tx *sql.Tx, id domain.BundleID) (domain.Bundle, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE id=?`, string(id))
	return scanBundle(row)
}

// InsertBundle fails with a constraint violation when another open bundle
// already holds the grouping key.
func (r Repo) InsertBundle(ctx context.Context, tx *sql.Tx, b domain.Bundle) error {
	relatedKey, relatedID := relatedToColumns(b.RelatedTo)
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO bundles(`+bundleColumns+`, related_to_message_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(b.ID), b.QueueID, string(b.DocumentType), string(b.BusinessReason), relatedKey,
		b.MessageCount, b.MaxMessageCount, boolInt(b.IsClosed), boolInt(b.IsDequeued),
		formatTime(b.Created), nullableTime(b.ClosedAt), nullableTime(b.DequeuedAt), relatedID)
	return err
}

// IncrementBundle adds one message to an open bundle and closes it when the
// count reaches the maximum. It returns ErrBundleNotOpen when the bundle was
// closed, dequeued or filled in the meantime.
func (r Repo) IncrementBundle(ctx context.Context, tx *sql.Tx, id domain.BundleID, now time.Time) (domain.Bundle, error) {
	q := r.on(tx)
	res, err := q.ExecContext(ctx, `UPDATE bundles SET
    message_count = message_count + 1,
    is_closed = CASE WHEN message_count + 1 >= max_message_count THEN 1 ELSE 0 END,
    closed_at = CASE WHEN message_count + 1 >= max_message_count THEN ? ELSE closed_at END
WHERE id=? AND is_closed=0 AND is_dequeued=0 AND message_count < max_message_count`,
		formatTime(now), string(id))
	if err != nil {
		return domain.Bundle{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Bundle{}, err
	}
	if n == 0 {
		return domain.Bundle{}, ErrBundleNotOpen
	}
	return scanBundle(q.QueryRowContext(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE id=?`, string(id)))
}

// CloseBundle freezes an open bundle. It reports false when the bundle was
// not open.
func (r Repo) CloseBundle(ctx context.Context, tx *sql.Tx, id domain.BundleID, now time.Time) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE bundles SET is_closed=1, closed_at=? WHERE id=? AND is_closed=0 AND is_dequeued=0`,
		formatTime(now), string(id))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkDequeued is the only transition into the dequeued state. It matches on
// the owning queue so a foreign id never leaks whether it exists.
func (r Repo) MarkDequeued(ctx context.Context, tx *sql.Tx, id domain.BundleID, queueID string, now time.Time) (bool, error) {
	stamp := formatTime(now)
	res, err := r.on(tx).ExecContext(ctx, `UPDATE bundles SET is_dequeued=1, dequeued_at=?, is_closed=1, closed_at=COALESCE(closed_at, ?)
WHERE id=? AND queue_id=? AND is_dequeued=0`,
		stamp, stamp, string(id), queueID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// OldestPeekableBundle returns the oldest not-dequeued bundle of the queue
// among docTypes. Ties on created are broken by insertion order.
func (r Repo) OldestPeekableBundle(ctx context.Context, queueID string, docTypes []domain.DocumentType) (domain.Bundle, error) {
	if len(docTypes) == 0 {
		return domain.Bundle{}, ErrNotFound
	}
	args := []any{queueID}
	marks := make([]string, 0, len(docTypes))
	for _, d := range docTypes {
		marks = append(marks, "?")
		args = append(args, string(d))
	}
	query := `SELECT ` + bundleColumns + ` FROM bundles
WHERE queue_id=? AND is_dequeued=0 AND document_type IN (` + strings.Join(marks, ",") + `)
ORDER BY created ASC, rowid ASC LIMIT 1`
	return scanBundle(r.DB.QueryRowContext(ctx, query, args...))
}

// QueueStatus counts bundles per state and messages waiting in the queue.
func (r Repo) QueueStatus(ctx context.Context, queue domain.ActorMessageQueue) (domain.QueueStatus, error) {
	st := domain.QueueStatus{Owner: queue.Owner}
	var open, closed, dequeued, messages sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT
    SUM(CASE WHEN is_closed=0 AND is_dequeued=0 THEN 1 ELSE 0 END),
    SUM(CASE WHEN is_closed=1 AND is_dequeued=0 THEN 1 ELSE 0 END),
    SUM(CASE WHEN is_dequeued=1 THEN 1 ELSE 0 END),
    SUM(CASE WHEN is_dequeued=0 THEN message_count ELSE 0 END)
FROM bundles WHERE queue_id=?`, queue.ID).Scan(&open, &closed, &dequeued, &messages)
	if err != nil {
		return st, err
	}
	st.Open = int(open.Int64)
	st.Closed = int(closed.Int64)
	st.Dequeued = int(dequeued.Int64)
	st.Messages = int(messages.Int64)
	return st, nil
}
