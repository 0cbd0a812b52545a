package domain

import "time"

type BundleID string

type OutgoingMessageID string

type ActorMessageQueue struct {
	ID    string `json:"id"`
	Owner Actor  `json:"owner"`
}

type BundleState string

const (
	BundleOpen     BundleState = "open"
	BundleClosed   BundleState = "closed"
	BundleDequeued BundleState = "dequeued"
)

type Bundle struct {
	ID              BundleID       `json:"id"`
	QueueID         string         `json:"queue_id"`
	DocumentType    DocumentType   `json:"document_type"`
	BusinessReason  BusinessReason `json:"business_reason"`
	RelatedTo       RelatedTo      `json:"-"`
	MessageCount    int            `json:"message_count"`
	MaxMessageCount int            `json:"max_message_count"`
	IsClosed        bool           `json:"is_closed"`
	IsDequeued      bool           `json:"is_dequeued"`
	Created         time.Time      `json:"created" format:"date-time"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty" format:"date-time"`
	DequeuedAt      *time.Time     `json:"dequeued_at,omitempty" format:"date-time"`
}

func (b Bundle) State() BundleState {
	switch {
	case b.IsDequeued:
		return BundleDequeued
	case b.IsClosed:
		return BundleClosed
	default:
		return BundleOpen
	}
}

func (b Bundle) Peekable() bool { return !b.IsDequeued }

type OutgoingMessage struct {
	ID                OutgoingMessageID `json:"id"`
	AssignedBundleID  BundleID          `json:"assigned_bundle_id"`
	DocumentType      DocumentType      `json:"document_type"`
	QueueReceiver     Actor             `json:"queue_receiver"`
	DocumentReceiver  Actor             `json:"document_receiver"`
	Sender            Actor             `json:"sender"`
	BusinessReason    BusinessReason    `json:"business_reason"`
	ProcessType       ProcessType       `json:"process_type"`
	GridAreaCode      string            `json:"grid_area_code,omitempty"`
	ContentReference  string            `json:"content_reference"`
	RelatedTo         RelatedTo         `json:"-"`
	Period            *Period           `json:"period,omitempty"`
	CalculatedQuality CalculatedQuality `json:"calculated_quality,omitempty"`
	Created           time.Time         `json:"created" format:"date-time"`
}

// Delegation lets DelegatedTo serve DelegatedBy's mailbox for one process
// and grid area during [StartsAt, StopsAt).
type Delegation struct {
	DelegatedBy    Actor       `json:"delegated_by"`
	DelegatedTo    Actor       `json:"delegated_to"`
	ProcessType    ProcessType `json:"process_type"`
	GridArea       string      `json:"grid_area"`
	StartsAt       time.Time   `json:"starts_at" format:"date-time"`
	StopsAt        time.Time   `json:"stops_at" format:"date-time"`
	SequenceNumber int64       `json:"sequence_number"`
}

func (d Delegation) ActiveAt(t time.Time) bool {
	return !t.Before(d.StartsAt) && t.Before(d.StopsAt)
}

// GridAreaOwner records which grid operator owns a grid area from ValidFrom on.
type GridAreaOwner struct {
	GridArea       string      `json:"grid_area"`
	Owner          ActorNumber `json:"owner"`
	ValidFrom      time.Time   `json:"valid_from" format:"date-time"`
	SequenceNumber int64       `json:"sequence_number"`
}

// ArchivedDocument remembers the first rendering of a bundle in a format.
type ArchivedDocument struct {
	BundleID         BundleID       `json:"bundle_id"`
	Format           DocumentFormat `json:"format"`
	ContentReference string         `json:"content_reference"`
	Created          time.Time      `json:"created" format:"date-time"`
}

type QueueStatus struct {
	Owner    Actor `json:"owner"`
	Open     int   `json:"open"`
	Closed   int   `json:"closed"`
	Dequeued int   `json:"dequeued"`
	Messages int   `json:"messages"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor"`
	Payload    string `json:"payload_json"`
}
