package document

import (
	"encoding/xml"
	"strings"
)

type xmlCoded struct {
	CodingScheme string `xml:"codingScheme,attr"`
	Value        string `xml:",chardata"`
}

type xmlDocument struct {
	XMLName        xml.Name
	MRID           string      `xml:"mRID"`
	Type           string      `xml:"type"`
	ProcessType    string      `xml:"process.processType"`
	BusinessSector string      `xml:"businessSector.type"`
	SenderID       xmlCoded    `xml:"sender_MarketParticipant.mRID"`
	SenderRole     string      `xml:"sender_MarketParticipant.marketRole.type"`
	ReceiverID     xmlCoded    `xml:"receiver_MarketParticipant.mRID"`
	ReceiverRole   string      `xml:"receiver_MarketParticipant.marketRole.type"`
	Created        string      `xml:"createdDateTime"`
	Series         []xmlSeries `xml:"Series"`
}

type xmlSeries struct {
	MRID                  string      `xml:"mRID"`
	OriginalTransactionID string      `xml:"originalTransactionIDReference_Series.mRID,omitempty"`
	MeteringPointType     string      `xml:"marketEvaluationPoint.type,omitempty"`
	SettlementMethod      string      `xml:"marketEvaluationPoint.settlementMethod,omitempty"`
	GridArea              *xmlCoded   `xml:"meteringGridArea_Domain.mRID,omitempty"`
	EnergySupplier        *xmlCoded   `xml:"energySupplier_MarketParticipant.mRID,omitempty"`
	BalanceResponsible    *xmlCoded   `xml:"balanceResponsibleParty_MarketParticipant.mRID,omitempty"`
	ChargeCode            string      `xml:"chargeType.mRID,omitempty"`
	ChargeOwner           *xmlCoded   `xml:"chargeType.chargeTypeOwner_MarketParticipant.mRID,omitempty"`
	Unit                  string      `xml:"quantity_Measure_Unit.name,omitempty"`
	Currency              string      `xml:"currency_Unit.name,omitempty"`
	Period                *xmlPeriod  `xml:"Period,omitempty"`
	Reasons               []xmlReason `xml:"Reason,omitempty"`
}

type xmlPeriod struct {
	Resolution string     `xml:"resolution"`
	Start      string     `xml:"timeInterval>start"`
	End        string     `xml:"timeInterval>end"`
	Points     []xmlPoint `xml:"Point"`
}

type xmlPoint struct {
	Position int      `xml:"position"`
	Quantity *float64 `xml:"quantity,omitempty"`
	Price    *float64 `xml:"price.amount,omitempty"`
	Amount   *float64 `xml:"amount,omitempty"`
	Quality  string   `xml:"quality,omitempty"`
}

type xmlReason struct {
	Code string `xml:"code"`
	Text string `xml:"text,omitempty"`
}

func cimNamespace(root string) string {
	return "urn:ediel.org:measure:" + strings.ToLower(strings.TrimSuffix(root, "_MarketDocument")) + ":0:1"
}

func renderXML(h Header, messages []Message) ([]byte, error) {
	root := rootName(h.DocumentType)
	doc := xmlDocument{
		XMLName:        xml.Name{Space: cimNamespace(root), Local: root},
		MRID:           string(h.DocumentID),
		Type:           documentTypeCodes[h.DocumentType],
		ProcessType:    businessReasonCodes[h.BusinessReason],
		BusinessSector: businessSectorEl,
		SenderID:       xmlCoded{codingSchemeGLN, string(h.Sender.Number)},
		SenderRole:     roleCodes[h.Sender.Role],
		ReceiverID:     xmlCoded{codingSchemeGLN, string(h.Receiver.Number)},
		ReceiverRole:   roleCodes[h.Receiver.Role],
		Created:        h.Created.UTC().Format(cimTimeLayout),
	}
	for _, m := range messages {
		doc.Series = append(doc.Series, xmlSeriesOf(m))
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func xmlSeriesOf(m Message) xmlSeries {
	s := m.Series
	out := xmlSeries{
		MRID:                  s.TransactionID,
		OriginalTransactionID: s.OriginalTransactionID,
		MeteringPointType:     s.MeteringPointType,
		SettlementMethod:      s.SettlementMethod,
		ChargeCode:            s.ChargeCode,
		Unit:                  s.Unit,
		Currency:              s.Currency,
		GridArea:              optCoded("NDK", s.GridArea),
		EnergySupplier:        optCoded(codingSchemeGLN, string(s.EnergySupplier)),
		BalanceResponsible:    optCoded(codingSchemeGLN, string(s.BalanceResponsible)),
		ChargeOwner:           optCoded(codingSchemeGLN, string(s.ChargeOwner)),
	}
	if out.MRID == "" {
		out.MRID = string(m.ID)
	}
	if s.Period != nil {
		p := &xmlPeriod{
			Resolution: string(s.Resolution),
			Start:      s.Period.Start.UTC().Format(periodTimeLayout),
			End:        s.Period.End.UTC().Format(periodTimeLayout),
		}
		for _, pt := range s.Points {
			p.Points = append(p.Points, xmlPoint{
				Position: pt.Position,
				Quantity: pt.Quantity,
				Price:    pt.Price,
				Amount:   pt.Amount,
				Quality:  cimQualityCodes[pt.Quality],
			})
		}
		out.Period = p
	}
	for _, r := range s.Reasons {
		out.Reasons = append(out.Reasons, xmlReason{Code: r.Code, Text: r.Text})
	}
	return out
}

func optCoded(scheme, v string) *xmlCoded {
	if v == "" {
		return nil
	}
	return &xmlCoded{CodingScheme: scheme, Value: v}
}
