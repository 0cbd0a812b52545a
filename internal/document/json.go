package document

import (
	"encoding/json"

	"edihub/internal/domain"
)

type cimValue struct {
	Value string `json:"value"`
}

type cimCoded struct {
	CodingScheme string `json:"codingScheme"`
	Value        string `json:"value"`
}

type cimPosition struct {
	Value int `json:"value"`
}

type jsonDocument struct {
	MRID           string       `json:"mRID"`
	Type           cimValue     `json:"type"`
	ProcessType    cimValue     `json:"process.processType"`
	BusinessSector cimValue     `json:"businessSector.type"`
	SenderID       cimCoded     `json:"sender_MarketParticipant.mRID"`
	SenderRole     cimValue     `json:"sender_MarketParticipant.marketRole.type"`
	ReceiverID     cimCoded     `json:"receiver_MarketParticipant.mRID"`
	ReceiverRole   cimValue     `json:"receiver_MarketParticipant.marketRole.type"`
	Created        string       `json:"createdDateTime"`
	Series         []jsonSeries `json:"Series"`
}

type jsonSeries struct {
	MRID                  string       `json:"mRID"`
	OriginalTransactionID string       `json:"originalTransactionIDReference_Series.mRID,omitempty"`
	GridArea              *cimCoded    `json:"meteringGridArea_Domain.mRID,omitempty"`
	MeteringPointType     *cimValue    `json:"marketEvaluationPoint.type,omitempty"`
	SettlementMethod      *cimValue    `json:"marketEvaluationPoint.settlementMethod,omitempty"`
	EnergySupplier        *cimCoded    `json:"energySupplier_MarketParticipant.mRID,omitempty"`
	BalanceResponsible    *cimCoded    `json:"balanceResponsibleParty_MarketParticipant.mRID,omitempty"`
	ChargeCode            string       `json:"chargeType.mRID,omitempty"`
	ChargeOwner           *cimCoded    `json:"chargeType.chargeTypeOwner_MarketParticipant.mRID,omitempty"`
	Unit                  *cimValue    `json:"quantity_Measure_Unit.name,omitempty"`
	Currency              *cimValue    `json:"currency_Unit.name,omitempty"`
	Period                *jsonPeriod  `json:"Period,omitempty"`
	Reasons               []jsonReason `json:"Reason,omitempty"`
}

type jsonPeriod struct {
	Resolution   string           `json:"resolution"`
	TimeInterval jsonTimeInterval `json:"timeInterval"`
	Points       []jsonPoint      `json:"Point"`
}

type jsonTimeInterval struct {
	Start cimValue `json:"start"`
	End   cimValue `json:"end"`
}

type jsonPoint struct {
	Position cimPosition `json:"position"`
	Quantity *float64    `json:"quantity,omitempty"`
	Price    *float64    `json:"price.amount,omitempty"`
	Amount   *float64    `json:"amount,omitempty"`
	Quality  *cimValue   `json:"quality,omitempty"`
}

type jsonReason struct {
	Code cimValue `json:"code"`
	Text string   `json:"text,omitempty"`
}

func renderJSON(h Header, messages []Message) ([]byte, error) {
	doc := jsonDocument{
		MRID:           string(h.DocumentID),
		Type:           cimValue{documentTypeCodes[h.DocumentType]},
		ProcessType:    cimValue{businessReasonCodes[h.BusinessReason]},
		BusinessSector: cimValue{businessSectorEl},
		SenderID:       cimCoded{codingSchemeGLN, string(h.Sender.Number)},
		SenderRole:     cimValue{roleCodes[h.Sender.Role]},
		ReceiverID:     cimCoded{codingSchemeGLN, string(h.Receiver.Number)},
		ReceiverRole:   cimValue{roleCodes[h.Receiver.Role]},
		Created:        h.Created.UTC().Format(cimTimeLayout),
	}
	for _, m := range messages {
		doc.Series = append(doc.Series, jsonSeriesOf(m))
	}
	return json.Marshal(map[string]jsonDocument{rootName(h.DocumentType): doc})
}

func jsonSeriesOf(m Message) jsonSeries {
	s := m.Series
	out := jsonSeries{
		MRID:                  s.TransactionID,
		OriginalTransactionID: s.OriginalTransactionID,
		ChargeCode:            s.ChargeCode,
	}
	if out.MRID == "" {
		out.MRID = string(m.ID)
	}
	if s.GridArea != "" {
		out.GridArea = &cimCoded{"NDK", s.GridArea}
	}
	out.MeteringPointType = optValue(s.MeteringPointType)
	out.SettlementMethod = optValue(s.SettlementMethod)
	out.Unit = optValue(s.Unit)
	out.Currency = optValue(s.Currency)
	out.EnergySupplier = optActor(s.EnergySupplier)
	out.BalanceResponsible = optActor(s.BalanceResponsible)
	out.ChargeOwner = optActor(s.ChargeOwner)
	if s.Period != nil {
		p := &jsonPeriod{
			Resolution: string(s.Resolution),
			TimeInterval: jsonTimeInterval{
				Start: cimValue{s.Period.Start.UTC().Format(periodTimeLayout)},
				End:   cimValue{s.Period.End.UTC().Format(periodTimeLayout)},
			},
		}
		for _, pt := range s.Points {
			jp := jsonPoint{Position: cimPosition{pt.Position}, Quantity: pt.Quantity, Price: pt.Price, Amount: pt.Amount}
			if code := cimQualityCodes[pt.Quality]; code != "" {
				jp.Quality = &cimValue{code}
			}
			p.Points = append(p.Points, jp)
		}
		out.Period = p
	}
	for _, r := range s.Reasons {
		out.Reasons = append(out.Reasons, jsonReason{Code: cimValue{r.Code}, Text: r.Text})
	}
	return out
}

func optValue(v string) *cimValue {
	if v == "" {
		return nil
	}
	return &cimValue{v}
}

func optActor(n domain.ActorNumber) *cimCoded {
	if n == "" {
		return nil
	}
	return &cimCoded{codingSchemeGLN, string(n)}
}
