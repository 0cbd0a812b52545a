package delegation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/clock"
	"edihub/internal/delegation"
	"edihub/internal/domain"
)

type staticSource []domain.Delegation

func (s staticSource) GetActiveDelegations(_ context.Context, by domain.Actor, process domain.ProcessType, gridArea string) ([]domain.Delegation, error) {
	var out []domain.Delegation
	for _, d := range s {
		if d.DelegatedBy == by && d.ProcessType == process && d.GridArea == gridArea {
			out = append(out, d)
		}
	}
	return out, nil
}

type failingSource struct{}

func (failingSource) GetActiveDelegations(context.Context, domain.Actor, domain.ProcessType, string) ([]domain.Delegation, error) {
	return nil, errors.New("db down")
}

var (
	start     = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	gridOp    = domain.NewActor("5790000000001", domain.RoleGridOperator)
	delegateA = domain.NewActor("5790000000002", domain.RoleGridOperator)
	delegateB = domain.NewActor("5790000000003", domain.RoleGridOperator)
)

func delegationTo(to domain.Actor, from, until time.Time, seq int64) domain.Delegation {
	return domain.Delegation{
		DelegatedBy:    gridOp,
		DelegatedTo:    to,
		ProcessType:    domain.ProcessReceiveEnergyResults,
		GridArea:       "805",
		StartsAt:       from,
		StopsAt:        until,
		SequenceNumber: seq,
	}
}

func TestResolveDelegateBoundaries(t *testing.T) {
	r := delegation.NewResolver(staticSource{delegationTo(delegateA, start, start.AddDate(0, 0, 5), 1)}, nil)
	ctx := context.Background()

	got, err := r.ResolveDelegate(ctx, gridOp, domain.ProcessReceiveEnergyResults, "805", start)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, delegateA, *got)

	got, err = r.ResolveDelegate(ctx, gridOp, domain.ProcessReceiveEnergyResults, "805", start.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.ResolveDelegate(ctx, gridOp, domain.ProcessReceiveEnergyResults, "805", start.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveDelegateHighestSequenceWins(t *testing.T) {
	r := delegation.NewResolver(staticSource{
		delegationTo(delegateA, start, start.AddDate(0, 1, 0), 1),
		delegationTo(delegateB, start.AddDate(0, 0, 10), start.AddDate(0, 0, 20), 2),
	}, nil)
	ctx := context.Background()

	got, err := r.ResolveDelegate(ctx, gridOp, domain.ProcessReceiveEnergyResults, "805", start.AddDate(0, 0, 12))
	require.NoError(t, err)
	assert.Equal(t, delegateB, *got)

	got, err = r.ResolveDelegate(ctx, gridOp, domain.ProcessReceiveEnergyResults, "805", start.AddDate(0, 0, 25))
	require.NoError(t, err)
	assert.Equal(t, delegateA, *got)
}

func TestResolveDelegateCancelledByNewerEmptyWindow(t *testing.T) {
	// a stop-at-start row with a higher sequence does not cover any instant
	r := delegation.NewResolver(staticSource{
		delegationTo(delegateA, start, start.AddDate(0, 1, 0), 1),
		delegationTo(delegateA, start, start, 2),
	}, nil)
	got, err := r.ResolveDelegate(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805", start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, delegateA, *got)
}

func TestResolveDelegateNoFallbackAcrossKeys(t *testing.T) {
	r := delegation.NewResolver(staticSource{delegationTo(delegateA, start, start.AddDate(0, 1, 0), 1)}, nil)
	ctx := context.Background()

	got, err := r.ResolveDelegate(ctx, gridOp, domain.ProcessReceiveEnergyResults, "806", start)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.ResolveDelegate(ctx, gridOp, domain.ProcessReceiveWholesaleResults, "805", start)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveDelegateTieIsAmbiguous(t *testing.T) {
	r := delegation.NewResolver(staticSource{
		delegationTo(delegateA, start, start.AddDate(0, 1, 0), 3),
		delegationTo(delegateB, start.AddDate(0, 0, 2), start.AddDate(0, 0, 4), 3),
	}, nil)
	_, err := r.ResolveDelegate(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805", start.AddDate(0, 0, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, delegation.ErrRoutingAmbiguity))
	var amb *delegation.RoutingAmbiguity
	require.True(t, errors.As(err, &amb))
	assert.EqualValues(t, 3, amb.SequenceNumber)

	// outside the overlap only one row is effective
	got, err := r.ResolveDelegate(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805", start.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, delegateA, *got)
}

func TestResolveNowUsesClock(t *testing.T) {
	clk := clock.NewManual(start.Add(-time.Hour))
	r := delegation.NewResolver(staticSource{delegationTo(delegateA, start, start.AddDate(0, 0, 1), 1)}, clk)
	got, err := r.ResolveNow(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805")
	require.NoError(t, err)
	assert.Nil(t, got)

	clk.Advance(time.Hour)
	got, err = r.ResolveNow(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805")
	require.NoError(t, err)
	assert.Equal(t, delegateA, *got)
}

func TestResolveDelegateSourceError(t *testing.T) {
	r := delegation.NewResolver(failingSource{}, nil)
	_, err := r.ResolveDelegate(context.Background(), gridOp, domain.ProcessReceiveEnergyResults, "805", start)
	require.Error(t, err)
}
