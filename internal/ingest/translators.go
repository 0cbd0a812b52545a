package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"edihub/internal/document"
	"edihub/internal/domain"
)

// Translator converts one event shape into drafts.
type Translator interface {
	Drafts(ctx context.Context, owners OwnerLookup) ([]Draft, error)
}

var calculationTypes = map[string]domain.BusinessReason{
	"aggregation":                domain.ReasonPreliminaryAggregation,
	"balancefixing":              domain.ReasonBalanceFixing,
	"wholesalefixing":            domain.ReasonWholesaleFixing,
	"firstcorrectionsettlement":  domain.ReasonCorrection,
	"secondcorrectionsettlement": domain.ReasonCorrection,
	"thirdcorrectionsettlement":  domain.ReasonCorrection,
}

func businessReasonOf(calculationType string) (domain.BusinessReason, error) {
	key := strings.ToLower(strings.TrimSpace(calculationType))
	if r, ok := calculationTypes[key]; ok {
		return r, nil
	}
	for _, r := range []domain.BusinessReason{domain.ReasonPreliminaryAggregation, domain.ReasonBalanceFixing,
		domain.ReasonWholesaleFixing, domain.ReasonCorrection, domain.ReasonMoveIn} {
		if strings.EqualFold(string(r), key) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown calculation type %q", domain.ErrValidation, calculationType)
}

type meteringPoint struct {
	Type             string
	SettlementMethod string
}

var timeSeriesTypes = map[string]meteringPoint{
	"production":             {Type: "E18"},
	"nonprofiledconsumption": {Type: "E17", SettlementMethod: "E02"},
	"flexconsumption":        {Type: "E17", SettlementMethod: "D01"},
	"totalconsumption":       {Type: "E17"},
	"netexchangeperga":       {Type: "E20"},
}

func meteringPointOf(timeSeriesType string) (meteringPoint, error) {
	mp, ok := timeSeriesTypes[strings.ToLower(strings.TrimSpace(timeSeriesType))]
	if !ok {
		return mp, fmt.Errorf("%w: unknown time series type %q", domain.ErrValidation, timeSeriesType)
	}
	return mp, nil
}

func qualitiesOf(raw []string) []domain.Quality {
	res := make([]domain.Quality, 0, len(raw))
	for _, q := range raw {
		res = append(res, domain.Quality(q))
	}
	return res
}

func firstInstant(times []time.Time) time.Time {
	if len(times) == 0 {
		return time.Time{}
	}
	return times[0]
}

// EnergyResultV1 is the original energy result contract: one quality flag
// per point and no explicit period.
type EnergyResultV1 struct {
	CalculationID      string          `json:"calculation_id"`
	CalculationType    string          `json:"calculation_type"`
	GridArea           string          `json:"grid_area"`
	TimeSeriesType     string          `json:"time_series_type"`
	EnergySupplier     string          `json:"energy_supplier,omitempty"`
	BalanceResponsible string          `json:"balance_responsible,omitempty"`
	Resolution         string          `json:"resolution"`
	Points             []EnergyPointV1 `json:"points"`
}

type EnergyPointV1 struct {
	Time     time.Time `json:"time"`
	Quantity *float64  `json:"quantity"`
	Quality  string    `json:"quality"`
}

func (e EnergyResultV1) Drafts(ctx context.Context, owners OwnerLookup) ([]Draft, error) {
	points := make([]domain.Point, 0, len(e.Points))
	times := make([]time.Time, 0, len(e.Points))
	for _, p := range e.Points {
		points = append(points, domain.Point{Time: p.Time.UTC(), Quantity: p.Quantity, Qualities: qualitiesOf([]string{p.Quality})})
		times = append(times, p.Time.UTC())
	}
	return energyDrafts(ctx, owners, energyResult{
		calculationID:      e.CalculationID,
		calculationType:    e.CalculationType,
		gridArea:           e.GridArea,
		timeSeriesType:     e.TimeSeriesType,
		energySupplier:     e.EnergySupplier,
		balanceResponsible: e.BalanceResponsible,
		resolution:         domain.Resolution(e.Resolution),
		points:             points,
		instant:            firstInstant(times),
	})
}

// EnergyResultV2 carries a quality list per point and the calculated period.
type EnergyResultV2 struct {
	CalculationID      string          `json:"calculation_id"`
	CalculationType    string          `json:"calculation_type"`
	GridArea           string          `json:"grid_area"`
	TimeSeriesType     string          `json:"time_series_type"`
	EnergySupplier     string          `json:"energy_supplier,omitempty"`
	BalanceResponsible string          `json:"balance_responsible,omitempty"`
	Resolution         string          `json:"resolution"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	Points             []EnergyPointV2 `json:"points"`
}

type EnergyPointV2 struct {
	Time      time.Time `json:"time"`
	Quantity  *float64  `json:"quantity"`
	Qualities []string  `json:"qualities"`
}

func (e EnergyResultV2) Drafts(ctx context.Context, owners OwnerLookup) ([]Draft, error) {
	period := domain.Period{Start: e.PeriodStart.UTC(), End: e.PeriodEnd.UTC()}
	if !period.End.After(period.Start) {
		return nil, fmt.Errorf("%w: period end must be after start", domain.ErrValidation)
	}
	points := make([]domain.Point, 0, len(e.Points))
	for i, p := range e.Points {
		if !period.Contains(p.Time) {
			return nil, fmt.Errorf("%w: point %d at %s outside period", domain.ErrValidation, i+1, p.Time.Format(time.RFC3339))
		}
		points = append(points, domain.Point{Time: p.Time.UTC(), Quantity: p.Quantity, Qualities: qualitiesOf(p.Qualities)})
	}
	return energyDrafts(ctx, owners, energyResult{
		calculationID:      e.CalculationID,
		calculationType:    e.CalculationType,
		gridArea:           e.GridArea,
		timeSeriesType:     e.TimeSeriesType,
		energySupplier:     e.EnergySupplier,
		balanceResponsible: e.BalanceResponsible,
		resolution:         domain.Resolution(e.Resolution),
		points:             points,
		instant:            period.Start,
	})
}

type energyResult struct {
	calculationID      string
	calculationType    string
	gridArea           string
	timeSeriesType     string
	energySupplier     string
	balanceResponsible string
	resolution         domain.Resolution
	points             []domain.Point
	instant            time.Time
}

func energyDrafts(ctx context.Context, owners OwnerLookup, e energyResult) ([]Draft, error) {
	if e.calculationID == "" || e.gridArea == "" {
		return nil, fmt.Errorf("%w: calculation id and grid area are required", domain.ErrValidation)
	}
	reason, err := businessReasonOf(e.calculationType)
	if err != nil {
		return nil, err
	}
	mp, err := meteringPointOf(e.timeSeriesType)
	if err != nil {
		return nil, err
	}
	receivers, err := Recipients(ctx, owners, e.gridArea, domain.ActorNumber(e.energySupplier), domain.ActorNumber(e.balanceResponsible), e.instant)
	if err != nil {
		return nil, err
	}
	drafts := make([]Draft, 0, len(receivers))
	for _, r := range receivers {
		drafts = append(drafts, Draft{
			ID:             draftID(e.calculationID, e.gridArea, e.timeSeriesType, e.energySupplier, e.balanceResponsible, r.String()),
			DocumentType:   domain.DocumentNotifyAggregatedMeasureData,
			BusinessReason: reason,
			ProcessType:    domain.ProcessReceiveEnergyResults,
			Receiver:       r,
			GridArea:       e.gridArea,
			RelatedTo:      domain.NoRelation,
			TimeSeries:     &TimeSeries{Resolution: e.resolution, Points: e.points},
			Series: document.Series{
				GridArea:           e.gridArea,
				MeteringPointType:  mp.Type,
				SettlementMethod:   mp.SettlementMethod,
				EnergySupplier:     domain.ActorNumber(e.energySupplier),
				BalanceResponsible: domain.ActorNumber(e.balanceResponsible),
				Unit:               "KWH",
			},
		})
	}
	return drafts, nil
}

// WholesaleResult is a per-charge settlement result for one energy supplier.
type WholesaleResult struct {
	CalculationID   string           `json:"calculation_id"`
	CalculationType string           `json:"calculation_type"`
	GridArea        string           `json:"grid_area"`
	EnergySupplier  string           `json:"energy_supplier"`
	ChargeCode      string           `json:"charge_code"`
	ChargeOwner     string           `json:"charge_owner"`
	ChargeOwnerRole string           `json:"charge_owner_role,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	Resolution      string           `json:"resolution"`
	Points          []WholesalePoint `json:"points"`
}

type WholesalePoint struct {
	Time      time.Time `json:"time"`
	Quantity  *float64  `json:"quantity,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	Amount    *float64  `json:"amount,omitempty"`
	Qualities []string  `json:"qualities"`
}

// Drafts addresses the energy supplier and the charge owner. The charge owner
// receives the result as grid operator unless another role is given.
func (w WholesaleResult) Drafts(_ context.Context, _ OwnerLookup) ([]Draft, error) {
	if w.CalculationID == "" || w.GridArea == "" || w.EnergySupplier == "" {
		return nil, fmt.Errorf("%w: calculation id, grid area and energy supplier are required", domain.ErrValidation)
	}
	reason, err := businessReasonOf(w.CalculationType)
	if err != nil {
		return nil, err
	}
	receivers := []domain.Actor{domain.NewActor(w.EnergySupplier, domain.RoleEnergySupplier)}
	if w.ChargeOwner != "" {
		role := domain.RoleGridOperator
		if w.ChargeOwnerRole != "" {
			if role, err = domain.ParseActorRole(w.ChargeOwnerRole); err != nil {
				return nil, err
			}
		}
		receivers = append(receivers, domain.NewActor(w.ChargeOwner, role))
	}
	currency := w.Currency
	if currency == "" {
		currency = "DKK"
	}
	points := make([]domain.Point, 0, len(w.Points))
	for _, p := range w.Points {
		points = append(points, domain.Point{Time: p.Time.UTC(), Quantity: p.Quantity, Price: p.Price, Amount: p.Amount, Qualities: qualitiesOf(p.Qualities)})
	}
	drafts := make([]Draft, 0, len(receivers))
	for _, r := range receivers {
		drafts = append(drafts, Draft{
			ID:             draftID(w.CalculationID, w.GridArea, w.EnergySupplier, w.ChargeOwner, w.ChargeCode, r.String()),
			DocumentType:   domain.DocumentNotifyWholesaleServices,
			BusinessReason: reason,
			ProcessType:    domain.ProcessReceiveWholesaleResults,
			Receiver:       r,
			GridArea:       w.GridArea,
			RelatedTo:      domain.NoRelation,
			TimeSeries:     &TimeSeries{Resolution: domain.Resolution(w.Resolution), Points: points},
			Series: document.Series{
				GridArea:       w.GridArea,
				EnergySupplier: domain.ActorNumber(w.EnergySupplier),
				ChargeCode:     w.ChargeCode,
				ChargeOwner:    domain.ActorNumber(w.ChargeOwner),
				Unit:           "KWH",
				Currency:       currency,
			},
		})
	}
	return drafts, nil
}

// RejectedRequest answers an actor's request for results with reasons.
// Rejections for the same request share RequestMessageID and are bundled
// together.
type RejectedRequest struct {
	RequestMessageID      string                  `json:"request_message_id"`
	OriginalTransactionID string                  `json:"original_transaction_id"`
	RequesterNumber       string                  `json:"requester_number"`
	RequesterRole         string                  `json:"requester_role"`
	Wholesale             bool                    `json:"wholesale"`
	BusinessReason        string                  `json:"business_reason"`
	GridArea              string                  `json:"grid_area,omitempty"`
	Reasons               []document.RejectReason `json:"reasons"`
}

func (r RejectedRequest) Drafts(_ context.Context, _ OwnerLookup) ([]Draft, error) {
	if r.RequestMessageID == "" || r.OriginalTransactionID == "" {
		return nil, fmt.Errorf("%w: request message id and original transaction id are required", domain.ErrValidation)
	}
	if len(r.Reasons) == 0 {
		return nil, fmt.Errorf("%w: a rejection needs at least one reason", domain.ErrValidation)
	}
	role, err := domain.ParseActorRole(r.RequesterRole)
	if err != nil {
		return nil, err
	}
	reason, err := businessReasonOf(r.BusinessReason)
	if err != nil {
		return nil, err
	}
	docType, process := domain.DocumentRejectRequestAggregatedMeasureData, domain.ProcessRequestEnergyResults
	if r.Wholesale {
		docType, process = domain.DocumentRejectRequestWholesaleSettlement, domain.ProcessRequestWholesaleResults
	}
	return []Draft{{
		ID:             draftID("reject", r.RequestMessageID, r.OriginalTransactionID),
		DocumentType:   docType,
		BusinessReason: reason,
		ProcessType:    process,
		Receiver:       domain.NewActor(r.RequesterNumber, role),
		GridArea:       r.GridArea,
		RelatedTo:      domain.RelatedToMessage(r.RequestMessageID),
		Series: document.Series{
			OriginalTransactionID: r.OriginalTransactionID,
			GridArea:              r.GridArea,
			Reasons:               r.Reasons,
		},
	}}, nil
}

// Decode reads an event by kind: energy_result_v1, energy_result_v2,
// wholesale_result or rejected_request.
func Decode(kind string, data []byte) (Translator, error) {
	switch kind {
	case "energy_result_v1":
		return decode[EnergyResultV1](kind, data)
	case "energy_result_v2":
		return decode[EnergyResultV2](kind, data)
	case "wholesale_result":
		return decode[WholesaleResult](kind, data)
	case "rejected_request":
		return decode[RejectedRequest](kind, data)
	}
	return nil, fmt.Errorf("%w: unknown event kind %q", domain.ErrValidation, kind)
}

func decode[T Translator](kind string, data []byte) (Translator, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrValidation, kind, err)
	}
	return v, nil
}
