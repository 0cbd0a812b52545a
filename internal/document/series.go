// Package document renders bundles into the market document formats
// delivered to actors.
package document

import (
	"encoding/json"
	"fmt"
	"time"

	"edihub/internal/domain"
)

// Series is the per-message payload kept in the content store. A bundle
// renders as one document holding one series per message.
type Series struct {
	TransactionID         string                   `json:"transaction_id"`
	OriginalTransactionID string                   `json:"original_transaction_id,omitempty"`
	GridArea              string                   `json:"grid_area,omitempty"`
	MeteringPointType     string                   `json:"metering_point_type,omitempty"`
	SettlementMethod      string                   `json:"settlement_method,omitempty"`
	EnergySupplier        domain.ActorNumber       `json:"energy_supplier,omitempty"`
	BalanceResponsible    domain.ActorNumber       `json:"balance_responsible,omitempty"`
	ChargeCode            string                   `json:"charge_code,omitempty"`
	ChargeOwner           domain.ActorNumber       `json:"charge_owner,omitempty"`
	Unit                  string                   `json:"unit,omitempty"`
	Currency              string                   `json:"currency,omitempty"`
	Resolution            domain.Resolution        `json:"resolution,omitempty"`
	Period                *domain.Period           `json:"period,omitempty"`
	CalculatedQuality     domain.CalculatedQuality `json:"calculated_quality,omitempty"`
	Points                []SeriesPoint            `json:"points,omitempty"`
	Reasons               []RejectReason           `json:"reasons,omitempty"`
}

type SeriesPoint struct {
	Position int                      `json:"position"`
	Quantity *float64                 `json:"quantity,omitempty"`
	Price    *float64                 `json:"price,omitempty"`
	Amount   *float64                 `json:"amount,omitempty"`
	Quality  domain.CalculatedQuality `json:"quality,omitempty"`
}

type RejectReason struct {
	Code string `json:"code"`
	Text string `json:"text,omitempty"`
}

func (s Series) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalSeries(b []byte) (Series, error) {
	var s Series
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("decode series payload: %w", err)
	}
	return s, nil
}

// Header carries the document-level fields shared by every series.
type Header struct {
	DocumentID     domain.BundleID
	DocumentType   domain.DocumentType
	BusinessReason domain.BusinessReason
	Sender         domain.Actor
	Receiver       domain.Actor
	Created        time.Time
}

// Message is one bundled message as handed to a renderer.
type Message struct {
	ID        domain.OutgoingMessageID
	RelatedTo domain.RelatedTo
	Series    Series
}
