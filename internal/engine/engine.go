package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edihub/internal/bundling"
	"edihub/internal/clock"
	"edihub/internal/config"
	"edihub/internal/contentstore"
	"edihub/internal/delegation"
	"edihub/internal/document"
	"edihub/internal/domain"
	"edihub/internal/events"
	"edihub/internal/logging"
	"edihub/internal/metrics"
	"edihub/internal/repo"
	"edihub/internal/routing"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Clock     clock.Clock
	Content   contentstore.Store
	Documents document.Writer
	Log       logging.Logger
	Metrics   *metrics.Recorder
	// Sender is stated on documents whose draft names no sender.
	Sender domain.Actor
}

// New wires an engine on conn. A nil content store keeps content in the
// mailbox database.
func New(conn *sql.DB, cfg *config.Config, content contentstore.Store) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if content == nil {
		content = contentstore.NewSQLStore(conn, nil)
	}
	sender, _ := cfg.SenderActor()
	return Engine{
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Config:    cfg,
		Clock:     clock.System{},
		Content:   content,
		Documents: document.NewRegistry(),
		Log:       logging.Nop{},
		Sender:    sender,
	}
}

func (e Engine) now() time.Time {
	return clock.OrSystem(e.Clock).Now().UTC()
}

func (e Engine) log() logging.Logger {
	return logging.OrNop(e.Log)
}

func (e Engine) events() events.Writer {
	return events.Writer{Clock: clock.OrSystem(e.Clock)}
}

func (e Engine) router() routing.Router {
	return routing.NewRouter(delegation.NewResolver(e.Repo, e.Clock))
}

func (e Engine) assigner() bundling.Assigner {
	return bundling.NewAssigner(e.Repo, e.Clock)
}

// ReplaceRegistry swaps the delegation rows and upserts the grid area owners
// in one transaction.
func (e Engine) ReplaceRegistry(ctx context.Context, delegations []domain.Delegation, owners []domain.GridAreaOwner) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceDelegations(ctx, tx, delegations); err != nil {
		return fmt.Errorf("replace delegations: %w", err)
	}
	for _, o := range owners {
		if err := e.Repo.UpsertGridAreaOwner(ctx, tx, o); err != nil {
			return fmt.Errorf("upsert grid area owner %s: %w", o.GridArea, err)
		}
	}
	return tx.Commit()
}

// RegisterDelegation adds one delegation row.
func (e Engine) RegisterDelegation(ctx context.Context, d domain.Delegation) error {
	if err := d.DelegatedBy.Validate(); err != nil {
		return err
	}
	if err := d.DelegatedTo.Validate(); err != nil {
		return err
	}
	if !d.StopsAt.After(d.StartsAt) {
		return fmt.Errorf("%w: delegation stops before it starts", domain.ErrValidation)
	}
	return e.Repo.InsertDelegation(ctx, nil, d)
}

func (e Engine) RegisterGridAreaOwner(ctx context.Context, o domain.GridAreaOwner) error {
	return e.Repo.UpsertGridAreaOwner(ctx, nil, o)
}

// QueueStatus reports the bundles waiting in the mailbox actor reads from.
func (e Engine) QueueStatus(ctx context.Context, actor domain.Actor) (domain.QueueStatus, error) {
	if err := actor.Validate(); err != nil {
		return domain.QueueStatus{}, err
	}
	owner := routing.MailboxOwner(actor)
	queue, err := e.Repo.GetQueue(ctx, owner)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.QueueStatus{Owner: owner}, nil
	}
	if err != nil {
		return domain.QueueStatus{}, err
	}
	return e.Repo.QueueStatus(ctx, queue)
}
