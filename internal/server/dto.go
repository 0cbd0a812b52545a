package server

import (
	"encoding/json"

	"edihub/internal/domain"
)

// Response payloads

type QueueStatusResponse struct {
	Owner    string `json:"owner" example:"5790000000010/GridOperator"`
	Open     int    `json:"open"`
	Closed   int    `json:"closed"`
	Dequeued int    `json:"dequeued"`
	Messages int    `json:"messages"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload"`
}

type eventList struct {
	Items []EventResponse `json:"items"`
}

// Conversion helpers

func queueStatusResponse(s domain.QueueStatus) QueueStatusResponse {
	return QueueStatusResponse{
		Owner:    s.Owner.String(),
		Open:     s.Open,
		Closed:   s.Closed,
		Dequeued: s.Dequeued,
		Messages: s.Messages,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Payload:    payloadMap(e.Payload),
	}
}

func payloadMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func contentType(format domain.DocumentFormat) string {
	if format == domain.FormatJSON {
		return "application/json"
	}
	return "application/xml"
}
