// Package routing picks the physical mailbox a document is queued in. The
// document keeps stating the receiver it was produced for.
package routing

import (
	"context"
	"fmt"
	"time"

	"edihub/internal/domain"
)

// mailboxRoles holds the legacy role aliases: a metered data responsible
// reads and writes under its grid operator mailbox. This table is the only
// place the rule lives.
var mailboxRoles = map[domain.ActorRole]domain.ActorRole{
	domain.RoleMeteredDataResponsible: domain.RoleGridOperator,
}

// MailboxOwner returns the queue identity an actor's messages are stored
// under, before any delegation is applied.
func MailboxOwner(a domain.Actor) domain.Actor {
	if role, ok := mailboxRoles[a.Role]; ok {
		return domain.Actor{Number: a.Number, Role: role}
	}
	return a
}

type DelegateResolver interface {
	ResolveDelegate(ctx context.Context, delegatedBy domain.Actor, process domain.ProcessType, gridArea string, instant time.Time) (*domain.Actor, error)
}

type Route struct {
	Queue            domain.Actor
	DocumentReceiver domain.Actor
	Delegated        bool
}

type Router struct {
	Delegations DelegateResolver
}

func NewRouter(delegations DelegateResolver) Router {
	return Router{Delegations: delegations}
}

// Route applies the role alias and then delegation. The delegation lookup
// uses the aliased identity; DocumentReceiver is always the intended receiver.
func (r Router) Route(ctx context.Context, intended domain.Actor, process domain.ProcessType, gridArea string, instant time.Time) (Route, error) {
	if err := intended.Validate(); err != nil {
		return Route{}, err
	}
	owner := MailboxOwner(intended)
	route := Route{Queue: owner, DocumentReceiver: intended}
	if r.Delegations == nil {
		return route, nil
	}
	delegate, err := r.Delegations.ResolveDelegate(ctx, owner, process, gridArea, instant)
	if err != nil {
		return Route{}, fmt.Errorf("route %s: %w", intended, err)
	}
	if delegate != nil {
		route.Queue = *delegate
		route.Delegated = true
	}
	return route, nil
}
