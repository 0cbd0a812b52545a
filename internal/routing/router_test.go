package routing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/delegation"
	"edihub/internal/domain"
	"edihub/internal/routing"
)

type rows []domain.Delegation

func (r rows) GetActiveDelegations(_ context.Context, by domain.Actor, process domain.ProcessType, gridArea string) ([]domain.Delegation, error) {
	var out []domain.Delegation
	for _, d := range r {
		if d.DelegatedBy == by && d.ProcessType == process && d.GridArea == gridArea {
			out = append(out, d)
		}
	}
	return out, nil
}

var (
	t0       = time.Date(2024, 6, 3, 22, 0, 0, 0, time.UTC)
	mdr      = domain.NewActor("5790000000010", domain.RoleMeteredDataResponsible)
	gridOp   = domain.NewActor("5790000000010", domain.RoleGridOperator)
	delegate = domain.NewActor("5790000000020", domain.RoleGridOperator)
)

func TestRouteWithoutDelegation(t *testing.T) {
	r := routing.NewRouter(delegation.NewResolver(rows{}, nil))
	route, err := r.Route(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805", t0)
	require.NoError(t, err)
	assert.Equal(t, gridOp, route.Queue)
	assert.Equal(t, gridOp, route.DocumentReceiver)
	assert.False(t, route.Delegated)
}

func TestRouteAliasesMeteredDataResponsible(t *testing.T) {
	r := routing.NewRouter(delegation.NewResolver(rows{}, nil))
	route, err := r.Route(context.Background(), mdr, domain.ProcessReceiveEnergyResults, "805", t0)
	require.NoError(t, err)
	assert.Equal(t, gridOp, route.Queue)
	assert.Equal(t, mdr, route.DocumentReceiver)
}

func TestRouteDelegationBoundary(t *testing.T) {
	d := domain.Delegation{
		DelegatedBy:    gridOp,
		DelegatedTo:    delegate,
		ProcessType:    domain.ProcessReceiveEnergyResults,
		GridArea:       "805",
		StartsAt:       t0,
		StopsAt:        t0.AddDate(0, 0, 5),
		SequenceNumber: 1,
	}
	r := routing.NewRouter(delegation.NewResolver(rows{d}, nil))
	ctx := context.Background()

	atStart, err := r.Route(ctx, gridOp, domain.ProcessReceiveEnergyResults, "805", t0)
	require.NoError(t, err)
	assert.Equal(t, delegate, atStart.Queue)
	assert.Equal(t, gridOp, atStart.DocumentReceiver)
	assert.True(t, atStart.Delegated)

	atStop, err := r.Route(ctx, gridOp, domain.ProcessReceiveEnergyResults, "805", t0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, gridOp, atStop.Queue)
	assert.False(t, atStop.Delegated)
}

func TestRouteDelegationLooksUpAliasedIdentity(t *testing.T) {
	// delegations are registered by the grid operator identity; an MDR
	// receiver follows them and the document still names the MDR role
	d := domain.Delegation{
		DelegatedBy:    gridOp,
		DelegatedTo:    delegate,
		ProcessType:    domain.ProcessReceiveEnergyResults,
		GridArea:       "805",
		StartsAt:       t0,
		StopsAt:        t0.AddDate(0, 1, 0),
		SequenceNumber: 1,
	}
	r := routing.NewRouter(delegation.NewResolver(rows{d}, nil))
	route, err := r.Route(context.Background(), mdr, domain.ProcessReceiveEnergyResults, "805", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, delegate, route.Queue)
	assert.Equal(t, mdr, route.DocumentReceiver)
}

func TestRoutePropagatesAmbiguity(t *testing.T) {
	base := domain.Delegation{
		DelegatedBy:    gridOp,
		ProcessType:    domain.ProcessReceiveEnergyResults,
		GridArea:       "805",
		StartsAt:       t0,
		StopsAt:        t0.AddDate(0, 1, 0),
		SequenceNumber: 7,
	}
	a, b := base, base
	a.DelegatedTo = delegate
	b.DelegatedTo = domain.NewActor("5790000000030", domain.RoleGridOperator)
	r := routing.NewRouter(delegation.NewResolver(rows{a, b}, nil))
	_, err := r.Route(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805", t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, delegation.ErrRoutingAmbiguity))
}

func TestRouteRejectsInvalidReceiver(t *testing.T) {
	r := routing.NewRouter(nil)
	_, err := r.Route(context.Background(), domain.Actor{Number: "", Role: domain.RoleGridOperator}, domain.ProcessReceiveEnergyResults, "805", t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestMailboxOwner(t *testing.T) {
	assert.Equal(t, gridOp, routing.MailboxOwner(mdr))
	es := domain.NewActor("5790000000040", domain.RoleEnergySupplier)
	assert.Equal(t, es, routing.MailboxOwner(es))
}
