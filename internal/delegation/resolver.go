// Package delegation answers which actor serves another actor's mailbox for a
// process and grid area at a given instant.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edihub/internal/clock"
	"edihub/internal/domain"
)

var ErrRoutingAmbiguity = errors.New("routing ambiguity")

// RoutingAmbiguity is returned when two delegations with the same sequence
// number are effective at the same instant.
type RoutingAmbiguity struct {
	DelegatedBy    domain.Actor
	ProcessType    domain.ProcessType
	GridArea       string
	SequenceNumber int64
	Instant        time.Time
}

func (e *RoutingAmbiguity) Error() string {
	return fmt.Sprintf("ambiguous delegation for %s %s grid area %s at %s: sequence number %d used by overlapping delegations",
		e.DelegatedBy, e.ProcessType, e.GridArea, e.Instant.UTC().Format(time.RFC3339), e.SequenceNumber)
}

func (e *RoutingAmbiguity) Unwrap() error { return ErrRoutingAmbiguity }

// Source returns the delegation rows registered for one exact key. It is
// read-only from this package's point of view.
type Source interface {
	GetActiveDelegations(ctx context.Context, delegatedBy domain.Actor, process domain.ProcessType, gridArea string) ([]domain.Delegation, error)
}

type Resolver struct {
	Source Source
	Clock  clock.Clock
}

func NewResolver(src Source, clk clock.Clock) Resolver {
	return Resolver{Source: src, Clock: clock.OrSystem(clk)}
}

// ResolveDelegate returns the delegate effective at instant, or nil when the
// actor serves its own mailbox. The newest delegation (highest sequence
// number) whose [StartsAt, StopsAt) covers instant wins; there is no
// fallback to other grid areas or processes.
func (r Resolver) ResolveDelegate(ctx context.Context, delegatedBy domain.Actor, process domain.ProcessType, gridArea string, instant time.Time) (*domain.Actor, error) {
	if r.Source == nil {
		return nil, nil
	}
	rows, err := r.Source.GetActiveDelegations(ctx, delegatedBy, process, gridArea)
	if err != nil {
		return nil, fmt.Errorf("load delegations for %s: %w", delegatedBy, err)
	}
	var (
		best *domain.Delegation
		tied bool
	)
	for i := range rows {
		d := rows[i]
		if d.DelegatedBy != delegatedBy || d.ProcessType != process || d.GridArea != gridArea {
			continue
		}
		if !d.ActiveAt(instant) {
			continue
		}
		switch {
		case best == nil || d.SequenceNumber > best.SequenceNumber:
			best = &rows[i]
			tied = false
		case d.SequenceNumber == best.SequenceNumber:
			tied = true
		}
	}
	if best == nil {
		return nil, nil
	}
	if tied {
		return nil, &RoutingAmbiguity{
			DelegatedBy:    delegatedBy,
			ProcessType:    process,
			GridArea:       gridArea,
			SequenceNumber: best.SequenceNumber,
			Instant:        instant,
		}
	}
	to := best.DelegatedTo
	return &to, nil
}

// ResolveNow resolves against the resolver's clock.
func (r Resolver) ResolveNow(ctx context.Context, delegatedBy domain.Actor, process domain.ProcessType, gridArea string) (*domain.Actor, error) {
	return r.ResolveDelegate(ctx, delegatedBy, process, gridArea, clock.OrSystem(r.Clock).Now())
}
