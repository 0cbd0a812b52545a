package repo

import (
	"context"
	"database/sql"
	"errors"

	"edihub/internal/domain"
)

func (r Repo) GetArchivedDocument(ctx context.Context, tx *sql.Tx, bundleID domain.BundleID, format domain.DocumentFormat) (domain.ArchivedDocument, error) {
	a := domain.ArchivedDocument{BundleID: bundleID, Format: format}
	var created string
	err := r.on(tx).QueryRowContext(ctx, `SELECT content_reference, created FROM archived_documents WHERE bundle_id=? AND format=?`,
		string(bundleID), string(format)).Scan(&a.ContentReference, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Created, err = parseTime(created)
	return a, err
}

// InsertArchivedDocument records the first rendering of a bundle in a format.
// It reports false when another peek archived it first.
func (r Repo) InsertArchivedDocument(ctx context.Context, tx *sql.Tx, a domain.ArchivedDocument) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO archived_documents(bundle_id, format, content_reference, created)
VALUES (?,?,?,?) ON CONFLICT(bundle_id, format) DO NOTHING`,
		string(a.BundleID), string(a.Format), a.ContentReference, formatTime(a.Created))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
