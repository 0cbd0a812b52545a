package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"edihub/internal/contentstore"
	"edihub/internal/document"
	"edihub/internal/domain"
	"edihub/internal/events"
	"edihub/internal/repo"
	"edihub/internal/routing"
)

// contentFetchLimit bounds concurrent payload reads while rendering.
const contentFetchLimit = 8

type PeekResult struct {
	// MessageID is the id to dequeue with; it is the bundle id.
	MessageID    domain.BundleID       `json:"message_id"`
	DocumentType domain.DocumentType   `json:"document_type"`
	Format       domain.DocumentFormat `json:"format"`
	Content      []byte                `json:"content"`
}

// Peek returns the oldest bundle of the actor's mailbox that is not yet
// dequeued, rendered in format. It returns nil when nothing is waiting.
// Peeking the same bundle again returns the same bytes.
func (e Engine) Peek(ctx context.Context, actor domain.Actor, category domain.MessageCategory, format domain.DocumentFormat) (*PeekResult, error) {
	res, err := e.peek(ctx, actor, category, format)
	switch {
	case err != nil:
		e.Metrics.Peek(string(category), "error")
	case res == nil:
		e.Metrics.Peek(string(category), "empty")
	default:
		e.Metrics.Peek(string(category), "hit")
	}
	return res, err
}

func (e Engine) peek(ctx context.Context, actor domain.Actor, category domain.MessageCategory, format domain.DocumentFormat) (*PeekResult, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := domain.ParseDocumentFormat(string(format)); err != nil {
		return nil, err
	}
	queue, err := e.Repo.GetQueue(ctx, routing.MailboxOwner(actor))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b, err := e.Repo.OldestPeekableBundle(ctx, queue.ID, domain.DocumentTypesIn(category))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	content, err := e.archived(ctx, b.ID, format)
	if errors.Is(err, repo.ErrNotFound) {
		content, err = e.archive(ctx, b, format, queue.Owner)
	}
	if err != nil {
		return nil, err
	}
	e.log().Debugf("peeked bundle %s for %s", b.ID, actor)
	return &PeekResult{MessageID: b.ID, DocumentType: b.DocumentType, Format: format, Content: content}, nil
}

func (e Engine) archived(ctx context.Context, bundleID domain.BundleID, format domain.DocumentFormat) ([]byte, error) {
	a, err := e.Repo.GetArchivedDocument(ctx, nil, bundleID, format)
	if err != nil {
		return nil, err
	}
	return e.Content.Get(ctx, a.ContentReference)
}

// archive renders a bundle once per format. The bundle is closed first so
// the archived rendering covers every message it will ever hold. When two
// peeks race, the first archived rendering wins and the other returns it.
func (e Engine) archive(ctx context.Context, b domain.Bundle, format domain.DocumentFormat, owner domain.Actor) ([]byte, error) {
	if err := e.freeze(ctx, b.ID, owner); err != nil {
		return nil, err
	}
	msgs, err := e.Repo.ListBundleMessages(ctx, nil, b.ID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("bundle %s has no messages", b.ID)
	}
	parts, err := e.loadMessages(ctx, msgs)
	if err != nil {
		return nil, err
	}

	header := document.Header{
		DocumentID:     b.ID,
		DocumentType:   b.DocumentType,
		BusinessReason: b.BusinessReason,
		Sender:         msgs[0].Sender,
		Receiver:       msgs[0].DocumentReceiver,
		Created:        e.now(),
	}
	started := time.Now()
	content, err := e.Documents.Render(ctx, format, header, parts)
	if err != nil {
		return nil, fmt.Errorf("render bundle %s as %s: %w", b.ID, format, err)
	}
	e.Metrics.ObserveRender(string(format), time.Since(started))

	ref := contentstore.ArchiveReference(b.ID, format)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if txStore, ok := e.Content.(contentstore.TxStore); ok {
		err = txStore.PutOnceTx(ctx, tx, ref, content)
	} else {
		err = e.Content.PutOnce(ctx, ref, content)
	}
	if errors.Is(err, contentstore.ErrConflict) {
		tx.Rollback()
		e.log().Debugf("bundle %s already archived as %s", b.ID, format)
		return e.Content.Get(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("archive bundle %s: %w", b.ID, err)
	}
	inserted, err := e.Repo.InsertArchivedDocument(ctx, tx, domain.ArchivedDocument{
		BundleID:         b.ID,
		Format:           format,
		ContentReference: ref,
		Created:          e.now(),
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		if err := e.events().Append(ctx, tx, events.TypeBundleArchived, events.KindBundle, string(b.ID), owner,
			events.EventPayload{"format": format, "messages": len(msgs)}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return content, nil
}

// freeze closes an open bundle so no message joins it after rendering.
func (e Engine) freeze(ctx context.Context, id domain.BundleID, owner domain.Actor) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	closed, err := e.Repo.CloseBundle(ctx, tx, id, e.now())
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	if err := e.events().Append(ctx, tx, events.TypeBundleClosed, events.KindBundle, string(id), owner,
		events.EventPayload{"reason": "peek"}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Metrics.BundleClosed()
	return nil
}

// loadMessages reads the stored payloads of msgs, keeping their order.
func (e Engine) loadMessages(ctx context.Context, msgs []domain.OutgoingMessage) ([]document.Message, error) {
	out := make([]document.Message, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(contentFetchLimit)
	for i, m := range msgs {
		g.Go(func() error {
			raw, err := e.Content.Get(gctx, m.ContentReference)
			if err != nil {
				return fmt.Errorf("load message %s: %w", m.ID, err)
			}
			series, err := document.UnmarshalSeries(raw)
			if err != nil {
				return fmt.Errorf("load message %s: %w", m.ID, err)
			}
			out[i] = document.Message{ID: m.ID, RelatedTo: m.RelatedTo, Series: series}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dequeue acknowledges a peeked bundle. It reports false for unknown,
// malformed or foreign ids and for bundles already dequeued.
func (e Engine) Dequeue(ctx context.Context, messageID string, actor domain.Actor) (bool, error) {
	ok, err := e.dequeue(ctx, messageID, actor)
	switch {
	case err != nil:
		e.Metrics.Dequeue("error")
	case ok:
		e.Metrics.Dequeue("ok")
	default:
		e.Metrics.Dequeue("rejected")
	}
	return ok, err
}

func (e Engine) dequeue(ctx context.Context, messageID string, actor domain.Actor) (bool, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return false, nil
	}
	if actor.Validate() != nil {
		return false, nil
	}
	owner := routing.MailboxOwner(actor)
	queue, err := e.Repo.GetQueue(ctx, owner)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.MarkDequeued(ctx, tx, domain.BundleID(messageID), queue.ID, e.now())
	if err != nil || !ok {
		return false, err
	}
	if err := e.events().Append(ctx, tx, events.TypeBundleDequeued, events.KindBundle, messageID, owner, nil); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	e.log().Debugf("dequeued bundle %s for %s", messageID, actor)
	return true, nil
}
