// Package ingest turns calculation-result events into the canonical drafts
// the engine enqueues.
package ingest

import (
	"fmt"
	"strings"

	"edihub/internal/document"
	"edihub/internal/domain"
)

type TimeSeries struct {
	Resolution domain.Resolution
	Points     []domain.Point
}

// Draft is one document-to-be for one intended receiver. A time-series draft
// may split into several messages, one per gap-free segment.
type Draft struct {
	// ID identifies the upstream event and recipient. Message ids are derived
	// from it, so replaying the same event yields the same ids.
	ID             string
	DocumentType   domain.DocumentType
	BusinessReason domain.BusinessReason
	ProcessType    domain.ProcessType
	Receiver       domain.Actor
	// Sender overrides the configured sender when set.
	Sender     *domain.Actor
	GridArea   string
	RelatedTo  domain.RelatedTo
	TimeSeries *TimeSeries
	// Series holds the series fields that do not vary per segment.
	Series document.Series
}

func (d Draft) IsTimeSeries() bool { return d.TimeSeries != nil }

func (d Draft) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: draft id is required", domain.ErrValidation)
	}
	if !d.DocumentType.Valid() {
		return fmt.Errorf("%w: unknown document type %q", domain.ErrValidation, d.DocumentType)
	}
	if !d.BusinessReason.Valid() {
		return fmt.Errorf("%w: unknown business reason %q", domain.ErrValidation, d.BusinessReason)
	}
	if !d.ProcessType.Valid() {
		return fmt.Errorf("%w: unknown process type %q", domain.ErrValidation, d.ProcessType)
	}
	if err := d.Receiver.Validate(); err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	if d.Sender != nil {
		if err := d.Sender.Validate(); err != nil {
			return fmt.Errorf("sender: %w", err)
		}
	}
	if d.TimeSeries != nil && !d.TimeSeries.Resolution.Valid() {
		return fmt.Errorf("%w: unknown resolution %q", domain.ErrValidation, d.TimeSeries.Resolution)
	}
	return nil
}

func draftID(parts ...string) string {
	return strings.Join(parts, "/")
}
