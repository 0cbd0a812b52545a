package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edihub/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound      = errors.New("not found")
	ErrBundleNotOpen = errors.New("bundle no longer open")
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on runs statements inside tx when one is given, otherwise on the pool.
func (r Repo) on(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func relatedToColumns(r domain.RelatedTo) (string, any) {
	id, _ := r.MessageID()
	return r.Key(), nullable(id)
}

func parseRelated(key string) (domain.RelatedTo, error) {
	rel, err := domain.ParseRelatedToKey(key)
	if err != nil {
		return domain.NoRelation, fmt.Errorf("scan related_to_key: %w", err)
	}
	return rel, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
