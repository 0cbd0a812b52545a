package document

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"edihub/internal/domain"
)

const ebixNamespace = "un:unece:260:data:EEM"

var ebixRoots = map[domain.DocumentType]string{
	domain.DocumentNotifyAggregatedMeasureData:        "DK_AggregatedMeteredDataTimeSeries",
	domain.DocumentNotifyWholesaleServices:            "DK_WholesaleServices",
	domain.DocumentRejectRequestAggregatedMeasureData: "DK_RejectRequestAggregatedMeteredData",
	domain.DocumentRejectRequestWholesaleSettlement:   "DK_RejectRequestWholesaleSettlement",
	domain.DocumentAcknowledgement:                    "DK_Acknowledgement",
}

type ebixCode struct {
	ListAgency string `xml:"listAgencyIdentifier,attr,omitempty"`
	Value      string `xml:",chardata"`
}

type ebixID struct {
	SchemeAgency string `xml:"schemeAgencyIdentifier,attr"`
	SchemeID     string `xml:"schemeIdentifier,attr,omitempty"`
	Value        string `xml:",chardata"`
}

type ebixDocument struct {
	XMLName xml.Name
	Header  ebixHeader   `xml:"HeaderEnergyDocument"`
	Context ebixContext  `xml:"ProcessEnergyContext"`
	Series  []ebixSeries `xml:"PayloadEnergyTimeSeries"`
}

type ebixHeader struct {
	Identification string   `xml:"Identification"`
	DocumentType   ebixCode `xml:"DocumentType"`
	Creation       string   `xml:"Creation"`
	Sender         ebixID   `xml:"SenderEnergyParty>Identification"`
	Recipient      ebixID   `xml:"RecipientEnergyParty>Identification"`
}

type ebixContext struct {
	Process        ebixCode `xml:"EnergyBusinessProcess"`
	ProcessRole    ebixCode `xml:"EnergyBusinessProcessRole"`
	Classification string   `xml:"EnergyIndustryClassification"`
}

type ebixSeries struct {
	Identification        string            `xml:"Identification"`
	OriginalTransactionID string            `xml:"OriginalBusinessDocument,omitempty"`
	Period                *ebixPeriod       `xml:"ObservationTimeSeriesPeriod,omitempty"`
	GridArea              *ebixID           `xml:"MeteringGridAreaUsedDomainLocation>Identification,omitempty"`
	BalanceSupplier       *ebixID           `xml:"BalanceSupplierEnergyParty>Identification,omitempty"`
	BalanceResponsible    *ebixID           `xml:"BalanceResponsibleEnergyParty>Identification,omitempty"`
	Unit                  string            `xml:"IncludedProductCharacteristic>UnitType,omitempty"`
	Observations          []ebixObservation `xml:"IntervalEnergyObservation"`
	Reasons               []ebixCode        `xml:"ResponseReasonType"`
}

type ebixPeriod struct {
	Resolution string `xml:"ResolutionDuration"`
	Start      string `xml:"Start"`
	End        string `xml:"End"`
}

type ebixObservation struct {
	Position int    `xml:"Position"`
	Quantity string `xml:"EnergyQuantity,omitempty"`
	Quality  string `xml:"QuantityQuality,omitempty"`
}

func renderEbix(h Header, messages []Message) ([]byte, error) {
	root, ok := ebixRoots[h.DocumentType]
	if !ok {
		return nil, fmt.Errorf("%w: ebix has no document for %s", ErrUnsupportedFormat, h.DocumentType)
	}
	doc := ebixDocument{
		XMLName: xml.Name{Space: ebixNamespace, Local: root},
		Header: ebixHeader{
			Identification: string(h.DocumentID),
			DocumentType:   ebixCode{"260", documentTypeCodes[h.DocumentType]},
			Creation:       h.Created.UTC().Format(cimTimeLayout),
			Sender:         ebixID{SchemeAgency: "9", Value: string(h.Sender.Number)},
			Recipient:      ebixID{SchemeAgency: "9", Value: string(h.Receiver.Number)},
		},
		Context: ebixContext{
			Process:        ebixCode{"260", businessReasonCodes[h.BusinessReason]},
			ProcessRole:    ebixCode{"260", roleCodes[h.Receiver.Role]},
			Classification: businessSectorEl,
		},
	}
	for _, m := range messages {
		doc.Series = append(doc.Series, ebixSeriesOf(m))
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func ebixSeriesOf(m Message) ebixSeries {
	s := m.Series
	out := ebixSeries{
		Identification:        s.TransactionID,
		OriginalTransactionID: s.OriginalTransactionID,
		Unit:                  s.Unit,
		GridArea:              optEbixID("260", "DK", s.GridArea),
		BalanceSupplier:       optEbixID("9", "", string(s.EnergySupplier)),
		BalanceResponsible:    optEbixID("9", "", string(s.BalanceResponsible)),
	}
	if out.Identification == "" {
		out.Identification = string(m.ID)
	}
	if s.Period != nil {
		out.Period = &ebixPeriod{
			Resolution: string(s.Resolution),
			Start:      s.Period.Start.UTC().Format(cimTimeLayout),
			End:        s.Period.End.UTC().Format(cimTimeLayout),
		}
	}
	for _, pt := range s.Points {
		obs := ebixObservation{Position: pt.Position, Quality: ebixQualityCodes[pt.Quality]}
		if v := firstValue(pt); v != nil {
			obs.Quantity = strconv.FormatFloat(*v, 'f', 3, 64)
		}
		out.Observations = append(out.Observations, obs)
	}
	for _, r := range s.Reasons {
		out.Reasons = append(out.Reasons, ebixCode{"260", r.Code})
	}
	return out
}

// firstValue picks the value ebIX carries for a point: quantity for energy
// results, amount for wholesale results.
func firstValue(p SeriesPoint) *float64 {
	if p.Quantity != nil {
		return p.Quantity
	}
	return p.Amount
}

func optEbixID(agency, scheme, v string) *ebixID {
	if v == "" {
		return nil
	}
	return &ebixID{SchemeAgency: agency, SchemeID: scheme, Value: v}
}
