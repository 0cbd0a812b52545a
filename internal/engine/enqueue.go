package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"edihub/internal/bundling"
	"edihub/internal/contentstore"
	"edihub/internal/db"
	"edihub/internal/document"
	"edihub/internal/domain"
	"edihub/internal/events"
	"edihub/internal/ingest"
	"edihub/internal/quality"
	"edihub/internal/routing"
	"edihub/internal/timeseries"
)

var messageNamespace = uuid.MustParse("6f1c2a52-0d5e-5b8a-9c3e-4e0b7d2f9a11")

// MessageID derives the id of the message a draft yields for the segment
// starting at instant, or for a draft without a time series when instant is
// zero. Replaying a draft yields the same ids.
func MessageID(draftID string, docType domain.DocumentType, instant time.Time) domain.OutgoingMessageID {
	name := draftID + "|" + string(docType) + "|" + instant.UTC().Format(time.RFC3339Nano)
	return domain.OutgoingMessageID(uuid.NewSHA1(messageNamespace, []byte(name)).String())
}

// part is one message worth of a draft.
type part struct {
	index int
	// identity keys the message id; zero for drafts without a time series.
	identity time.Time
	instant  time.Time
	period   *domain.Period
	series   document.Series
	quality  domain.CalculatedQuality
}

// Enqueue turns a draft into committed outgoing messages, one per segment of
// a time series draft and one for any other draft. Each message commits on
// its own; on error the ids committed so far are returned with it.
func (e Engine) Enqueue(ctx context.Context, d ingest.Draft) ([]domain.OutgoingMessageID, error) {
	if err := d.Validate(); err != nil {
		return nil, &ValidationDefect{MessageIndex: 0, Err: err}
	}
	if !d.IsTimeSeries() {
		p := part{instant: e.now(), series: d.Series}
		id, err := e.enqueuePart(ctx, d, p)
		if err != nil {
			return nil, err
		}
		return []domain.OutgoingMessageID{id}, nil
	}

	var ids []domain.OutgoingMessageID
	index := 0
	for seg, err := range timeseries.Segments(d.TimeSeries.Points, d.TimeSeries.Resolution) {
		if err != nil {
			return ids, &ValidationDefect{MessageIndex: index, Err: err}
		}
		p, err := segmentPart(d, seg, index)
		if err != nil {
			return ids, &ValidationDefect{MessageIndex: index, Err: err}
		}
		id, err := e.enqueuePart(ctx, d, p)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
		index++
	}
	return ids, nil
}

func segmentPart(d ingest.Draft, seg timeseries.Segment, index int) (part, error) {
	qualities, err := quality.ReduceSeries(seg.Points)
	if err != nil {
		return part{}, err
	}
	period := seg.Period
	series := d.Series
	series.Resolution = d.TimeSeries.Resolution
	series.Period = &period
	series.Points = make([]document.SeriesPoint, len(seg.Points))
	for i, pt := range seg.Points {
		series.Points[i] = document.SeriesPoint{
			Position: i + 1,
			Quantity: pt.Quantity,
			Price:    pt.Price,
			Amount:   pt.Amount,
			Quality:  qualities[i],
		}
	}
	worst := quality.Worst(qualities)
	series.CalculatedQuality = worst
	return part{index: index, identity: period.Start, instant: period.Start, period: &period, series: series, quality: worst}, nil
}

// enqueuePart routes one message and commits it, retrying the transaction
// while bundle assignment loses races.
func (e Engine) enqueuePart(ctx context.Context, d ingest.Draft, p part) (domain.OutgoingMessageID, error) {
	route, err := e.router().Route(ctx, d.Receiver, d.ProcessType, d.GridArea, p.instant)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return "", &ValidationDefect{MessageIndex: p.index, Err: err}
		}
		return "", err
	}

	op := func() (domain.OutgoingMessageID, error) {
		id, err := e.commitMessage(ctx, d, p, route)
		var perm *backoff.PermanentError
		switch {
		case err == nil:
			return id, nil
		case errors.As(err, &perm), retryable(err):
			return "", err
		}
		return "", backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		e.Metrics.AssignRetry()
		e.log().Debugf("retrying enqueue of %s in %s: %v", d.ID, wait, err)
	}
	id, err := backoff.RetryNotifyWithData(op, e.retryPolicy(ctx), notify)
	if err != nil {
		if retryable(err) {
			e.log().Warnf("enqueue of %s gave up after %d retries: %v", d.ID, e.Config.Bundling.MaxRetries, err)
			return "", fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		return "", err
	}
	return id, nil
}

func (e Engine) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if e.Config.Bundling.RetryInitialInterval > 0 {
		exp.InitialInterval = e.Config.Bundling.RetryInitialInterval
	}
	exp.MaxElapsedTime = 0
	retries := e.Config.Bundling.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

func retryable(err error) bool {
	return errors.Is(err, bundling.ErrConflict) || db.IsBusy(err)
}

// commitMessage runs one enqueue transaction: bundle slot, message row,
// audit event and content. An id that already exists is returned as is.
func (e Engine) commitMessage(ctx context.Context, d ingest.Draft, p part, route routing.Route) (domain.OutgoingMessageID, error) {
	id := MessageID(d.ID, d.DocumentType, p.identity)
	now := e.now()
	sender := e.Sender
	if d.Sender != nil {
		sender = *d.Sender
	}
	ref := contentstore.MessageReference(route.DocumentReceiver.Number, p.instant, id)

	series := p.series
	series.TransactionID = string(id)
	payload, err := series.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode payload for %s: %w", id, err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	exists, err := e.Repo.OutgoingMessageExists(ctx, tx, id)
	if err != nil {
		return "", err
	}
	if exists {
		e.log().Debugf("message %s already enqueued", id)
		return id, nil
	}

	assignment, err := e.assigner().AssignBundle(ctx, tx, bundling.Key{
		Queue:          route.Queue,
		DocumentType:   d.DocumentType,
		BusinessReason: d.BusinessReason,
		RelatedTo:      d.RelatedTo,
	}, e.Config.MaxFor(d.DocumentType))
	if err != nil {
		return "", err
	}

	msg := domain.OutgoingMessage{
		ID:                id,
		AssignedBundleID:  assignment.BundleID,
		DocumentType:      d.DocumentType,
		QueueReceiver:     route.Queue,
		DocumentReceiver:  route.DocumentReceiver,
		Sender:            sender,
		BusinessReason:    d.BusinessReason,
		ProcessType:       d.ProcessType,
		GridAreaCode:      d.GridArea,
		ContentReference:  ref,
		RelatedTo:         d.RelatedTo,
		Period:            p.period,
		CalculatedQuality: p.quality,
		Created:           now,
	}
	if err := e.Repo.InsertOutgoingMessage(ctx, tx, msg); err != nil {
		return "", err
	}
	if err := e.events().Append(ctx, tx, events.TypeMessageEnqueued, events.KindMessage, string(id), route.Queue, events.EventPayload{
		"bundle_id":         assignment.BundleID,
		"document_receiver": route.DocumentReceiver.String(),
		"delegated":         route.Delegated,
	}); err != nil {
		return "", err
	}

	external := false
	if txStore, ok := e.Content.(contentstore.TxStore); ok {
		err = txStore.PutOnceTx(ctx, tx, ref, payload)
	} else {
		err = e.Content.PutOnce(ctx, ref, payload)
		external = true
	}
	if err != nil {
		if errors.Is(err, contentstore.ErrConflict) {
			return "", &ContentStoreConflict{Reference: ref}
		}
		return "", fmt.Errorf("store content %s: %w", ref, err)
	}

	if err := tx.Commit(); err != nil {
		if external {
			e.Metrics.OrphanedContent()
			e.log().Errorf("message %s not committed, content %s is orphaned: %v", id, ref, err)
			e.recordOrphan(ctx, id, ref, route.Queue)
			return "", backoff.Permanent(fmt.Errorf("commit message %s: %w", id, err))
		}
		return "", err
	}

	e.Metrics.MessageEnqueued(string(d.DocumentType))
	if assignment.Opened {
		e.Metrics.BundleCreated()
	}
	for i := 0; i < assignment.ClosedBundles; i++ {
		e.Metrics.BundleClosed()
	}
	e.log().Debugw("message enqueued", map[string]any{
		"message_id": id,
		"bundle_id":  assignment.BundleID,
		"queue":      route.Queue.String(),
	})
	return id, nil
}

// recordOrphan journals content that was written for a message whose row
// never committed, so it can be found and removed later.
func (e Engine) recordOrphan(ctx context.Context, id domain.OutgoingMessageID, ref string, queue domain.Actor) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.log().Warnf("journal orphaned content %s: %v", ref, err)
		return
	}
	defer tx.Rollback()
	err = e.events().Append(ctx, tx, events.TypeContentOrphaned, events.KindMessage, string(id), queue,
		events.EventPayload{"content_reference": ref})
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		e.log().Warnf("journal orphaned content %s: %v", ref, err)
	}
}
