package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edihub/internal/domain"
	"edihub/internal/repo"
)

var ErrNoGridAreaOwner = fmt.Errorf("%w: no grid area owner", domain.ErrValidation)

type OwnerLookup interface {
	GridAreaOwner(ctx context.Context, gridArea string, instant time.Time) (domain.GridAreaOwner, error)
}

// Recipients selects who receives an energy result: the energy supplier
// (and its balance responsible party) for supplier series, the balance
// responsible party alone for its own series, and the grid operator owning
// the grid area for grid area totals.
func Recipients(ctx context.Context, owners OwnerLookup, gridArea string, energySupplier, balanceResponsible domain.ActorNumber, instant time.Time) ([]domain.Actor, error) {
	switch {
	case energySupplier != "":
		res := []domain.Actor{{Number: energySupplier, Role: domain.RoleEnergySupplier}}
		if balanceResponsible != "" {
			res = append(res, domain.Actor{Number: balanceResponsible, Role: domain.RoleBalanceResponsibleParty})
		}
		return res, nil
	case balanceResponsible != "":
		return []domain.Actor{{Number: balanceResponsible, Role: domain.RoleBalanceResponsibleParty}}, nil
	}
	if owners == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoGridAreaOwner, gridArea)
	}
	o, err := owners.GridAreaOwner(ctx, gridArea, instant)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w for %s at %s", ErrNoGridAreaOwner, gridArea, instant.Format(time.RFC3339))
	}
	if err != nil {
		return nil, err
	}
	return []domain.Actor{{Number: o.Owner, Role: domain.RoleGridOperator}}, nil
}
