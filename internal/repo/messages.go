package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"edihub/internal/domain"
)

const messageColumns = `id, assigned_bundle_id, document_type, queue_receiver_number, queue_receiver_role,
document_receiver_number, document_receiver_role, sender_id, sender_role, business_reason, process_type,
grid_area_code, content_reference, related_to_key, period_start, period_end, calculated_quality, created`

func (r Repo) InsertOutgoingMessage(ctx context.Context, tx *sql.Tx, m domain.OutgoingMessage) error {
	relatedKey, relatedID := relatedToColumns(m.RelatedTo)
	var start, end any
	if m.Period != nil {
		start, end = formatTime(m.Period.Start), formatTime(m.Period.End)
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO outgoing_messages(`+messageColumns+`, related_to_message_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(m.ID), string(m.AssignedBundleID), string(m.DocumentType),
		string(m.QueueReceiver.Number), string(m.QueueReceiver.Role),
		string(m.DocumentReceiver.Number), string(m.DocumentReceiver.Role),
		string(m.Sender.Number), string(m.Sender.Role),
		string(m.BusinessReason), string(m.ProcessType), nullable(m.GridAreaCode), m.ContentReference,
		relatedKey, start, end, nullable(string(m.CalculatedQuality)), formatTime(m.Created), relatedID)
	if err != nil {
		return fmt.Errorf("insert outgoing message %s: %w", m.ID, err)
	}
	return nil
}

func (r Repo) OutgoingMessageExists(ctx context.Context, tx *sql.Tx, id domain.OutgoingMessageID) (bool, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM outgoing_messages WHERE id=?`, string(id)).Scan(&n)
	return n > 0, err
}

func scanMessage(row rowScanner) (domain.OutgoingMessage, error) {
	var (
		m                                     domain.OutgoingMessage
		id, bundleID, docType                 string
		qNum, qRole, dNum, dRole, sNum, sRole string
		reason, process, relatedKey, created  string
		gridArea, start, end, quality         sql.NullString
	)
	if err := row.Scan(&id, &bundleID, &docType, &qNum, &qRole, &dNum, &dRole, &sNum, &sRole, &reason, &process,
		&gridArea, &m.ContentReference, &relatedKey, &start, &end, &quality, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, ErrNotFound
		}
		return m, err
	}
	m.ID = domain.OutgoingMessageID(id)
	m.AssignedBundleID = domain.BundleID(bundleID)
	m.DocumentType = domain.DocumentType(docType)
	m.QueueReceiver = domain.NewActor(qNum, domain.ActorRole(qRole))
	m.DocumentReceiver = domain.NewActor(dNum, domain.ActorRole(dRole))
	m.Sender = domain.NewActor(sNum, domain.ActorRole(sRole))
	m.BusinessReason = domain.BusinessReason(reason)
	m.ProcessType = domain.ProcessType(process)
	m.GridAreaCode = gridArea.String
	m.CalculatedQuality = domain.CalculatedQuality(quality.String)
	var err error
	if m.RelatedTo, err = parseRelated(relatedKey); err != nil {
		return m, err
	}
	if m.Created, err = parseTime(created); err != nil {
		return m, fmt.Errorf("scan message created: %w", err)
	}
	ps, err := parseNullTime(start)
	if err != nil {
		return m, err
	}
	pe, err := parseNullTime(end)
	if err != nil {
		return m, err
	}
	if ps != nil && pe != nil {
		m.Period = &domain.Period{Start: *ps, End: *pe}
	}
	return m, nil
}

func (r Repo) GetOutgoingMessage(ctx context.Context, tx *sql.Tx, id domain.OutgoingMessageID) (domain.OutgoingMessage, error) {
	return scanMessage(r.on(tx).QueryRowContext(ctx, `SELECT `+messageColumns+` FROM outgoing_messages WHERE id=?`, string(id)))
}

// ListBundleMessages returns messages in the order they were assigned.
func (r Repo) ListBundleMessages(ctx context.Context, tx *sql.Tx, bundleID domain.BundleID) ([]domain.OutgoingMessage, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT `+messageColumns+` FROM outgoing_messages WHERE assigned_bundle_id=? ORDER BY rowid ASC`, string(bundleID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OutgoingMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
