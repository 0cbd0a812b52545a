package engine

import (
	"errors"
	"fmt"

	"edihub/internal/contentstore"
	"edihub/internal/delegation"
)

// ErrConcurrencyConflict is returned when bundle assignment kept losing races
// after the configured number of retries.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrRoutingAmbiguity matches *delegation.RoutingAmbiguity via errors.Is.
var ErrRoutingAmbiguity = delegation.ErrRoutingAmbiguity

// ValidationDefect reports bad input in the message at MessageIndex of a
// draft. Messages before it may already be committed.
type ValidationDefect struct {
	MessageIndex int
	Err          error
}

func (e *ValidationDefect) Error() string {
	return fmt.Sprintf("validation defect at message %d: %v", e.MessageIndex, e.Err)
}

func (e *ValidationDefect) Unwrap() error { return e.Err }

// ContentStoreConflict means the content reference of a message already held
// content. It is never retried.
type ContentStoreConflict struct {
	Reference string
}

func (e *ContentStoreConflict) Error() string {
	return fmt.Sprintf("content reference %s already written", e.Reference)
}

func (e *ContentStoreConflict) Unwrap() error { return contentstore.ErrConflict }
