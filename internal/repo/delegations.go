package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edihub/internal/domain"
)

func (r Repo) InsertDelegation(ctx context.Context, tx *sql.Tx, d domain.Delegation) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO delegations(delegated_by_number, delegated_by_role, delegated_to_number, delegated_to_role,
process_type, grid_area, starts_at, stops_at, sequence_number) VALUES (?,?,?,?,?,?,?,?,?)`,
		string(d.DelegatedBy.Number), string(d.DelegatedBy.Role), string(d.DelegatedTo.Number), string(d.DelegatedTo.Role),
		string(d.ProcessType), d.GridArea, formatTime(d.StartsAt), formatTime(d.StopsAt), d.SequenceNumber)
	if err != nil {
		return fmt.Errorf("insert delegation %s -> %s: %w", d.DelegatedBy, d.DelegatedTo, err)
	}
	return nil
}

// GetActiveDelegations returns every delegation registered for the key,
// highest sequence number first. Window filtering is left to the caller.
func (r Repo) GetActiveDelegations(ctx context.Context, delegatedBy domain.Actor, process domain.ProcessType, gridArea string) ([]domain.Delegation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT delegated_by_number, delegated_by_role, delegated_to_number, delegated_to_role,
process_type, grid_area, starts_at, stops_at, sequence_number
FROM delegations
WHERE delegated_by_number=? AND delegated_by_role=? AND process_type=? AND grid_area=?
ORDER BY sequence_number DESC, id ASC`,
		string(delegatedBy.Number), string(delegatedBy.Role), string(process), gridArea)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Delegation
	for rows.Next() {
		var (
			d                            domain.Delegation
			byNum, byRole, toNum, toRole string
			proc, starts, stops          string
		)
		if err := rows.Scan(&byNum, &byRole, &toNum, &toRole, &proc, &d.GridArea, &starts, &stops, &d.SequenceNumber); err != nil {
			return nil, err
		}
		d.DelegatedBy = domain.NewActor(byNum, domain.ActorRole(byRole))
		d.DelegatedTo = domain.NewActor(toNum, domain.ActorRole(toRole))
		d.ProcessType = domain.ProcessType(proc)
		if d.StartsAt, err = parseTime(starts); err != nil {
			return nil, err
		}
		if d.StopsAt, err = parseTime(stops); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ReplaceDelegations swaps the whole delegation table for ds.
func (r Repo) ReplaceDelegations(ctx context.Context, tx *sql.Tx, ds []domain.Delegation) error {
	if _, err := r.on(tx).ExecContext(ctx, `DELETE FROM delegations`); err != nil {
		return err
	}
	for _, d := range ds {
		if err := r.InsertDelegation(ctx, tx, d); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpsertGridAreaOwner(ctx context.Context, tx *sql.Tx, o domain.GridAreaOwner) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO grid_area_owners(grid_area, owner_number, valid_from, sequence_number)
VALUES (?,?,?,?)
ON CONFLICT(grid_area, sequence_number) DO UPDATE SET owner_number=excluded.owner_number, valid_from=excluded.valid_from`,
		o.GridArea, string(o.Owner), formatTime(o.ValidFrom), o.SequenceNumber)
	return err
}

// GridAreaOwner returns the owner in effect at instant: the latest ValidFrom
// not after instant, the highest sequence number among equals.
func (r Repo) GridAreaOwner(ctx context.Context, gridArea string, instant time.Time) (domain.GridAreaOwner, error) {
	o := domain.GridAreaOwner{GridArea: gridArea}
	var owner, validFrom string
	err := r.DB.QueryRowContext(ctx, `SELECT owner_number, valid_from, sequence_number FROM grid_area_owners
WHERE grid_area=? AND valid_from<=?
ORDER BY valid_from DESC, sequence_number DESC LIMIT 1`,
		gridArea, formatTime(instant)).Scan(&owner, &validFrom, &o.SequenceNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Owner = domain.ActorNumber(owner)
	if o.ValidFrom, err = parseTime(validFrom); err != nil {
		return o, err
	}
	return o, nil
}
