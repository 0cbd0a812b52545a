package domain

import (
	"fmt"
	"strings"
	"time"
)

type ActorNumber string

type ActorRole string

const (
	RoleEnergySupplier          ActorRole = "EnergySupplier"
	RoleGridOperator            ActorRole = "GridOperator"
	RoleBalanceResponsibleParty ActorRole = "BalanceResponsibleParty"
	RoleMeteredDataResponsible  ActorRole = "MeteredDataResponsible"
	RoleSystemOperator          ActorRole = "SystemOperator"
	RoleDataHubAdministrator    ActorRole = "DataHubAdministrator"
)

var actorRoles = []ActorRole{
	RoleEnergySupplier,
	RoleGridOperator,
	RoleBalanceResponsibleParty,
	RoleMeteredDataResponsible,
	RoleSystemOperator,
	RoleDataHubAdministrator,
}

func (r ActorRole) Valid() bool {
	for _, known := range actorRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseActorRole accepts role names case-insensitively.
func ParseActorRole(s string) (ActorRole, error) {
	for _, known := range actorRoles {
		if strings.EqualFold(string(known), strings.TrimSpace(s)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown actor role %q", ErrValidation, s)
}

// Actor identifies a market participant acting in a specific role.
type Actor struct {
	Number ActorNumber `json:"number"`
	Role   ActorRole   `json:"role"`
}

func NewActor(number string, role ActorRole) Actor {
	return Actor{Number: ActorNumber(number), Role: role}
}

func (a Actor) String() string {
	return string(a.Number) + "/" + string(a.Role)
}

func (a Actor) Validate() error {
	if strings.TrimSpace(string(a.Number)) == "" {
		return fmt.Errorf("%w: actor number is required", ErrValidation)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("%w: unknown actor role %q", ErrValidation, a.Role)
	}
	return nil
}

type DocumentType string

const (
	DocumentNotifyAggregatedMeasureData        DocumentType = "NotifyAggregatedMeasureData"
	DocumentNotifyWholesaleServices            DocumentType = "NotifyWholesaleServices"
	DocumentRejectRequestAggregatedMeasureData DocumentType = "RejectRequestAggregatedMeasureData"
	DocumentRejectRequestWholesaleSettlement   DocumentType = "RejectRequestWholesaleSettlement"
	DocumentAcknowledgement                    DocumentType = "Acknowledgement"
)

var documentTypes = []DocumentType{
	DocumentNotifyAggregatedMeasureData,
	DocumentNotifyWholesaleServices,
	DocumentRejectRequestAggregatedMeasureData,
	DocumentRejectRequestWholesaleSettlement,
	DocumentAcknowledgement,
}

func (d DocumentType) Valid() bool {
	for _, known := range documentTypes {
		if d == known {
			return true
		}
	}
	return false
}

func DocumentTypes() []DocumentType {
	return append([]DocumentType(nil), documentTypes...)
}

type BusinessReason string

const (
	ReasonBalanceFixing          BusinessReason = "BalanceFixing"
	ReasonPreliminaryAggregation BusinessReason = "PreliminaryAggregation"
	ReasonWholesaleFixing        BusinessReason = "WholesaleFixing"
	ReasonCorrection             BusinessReason = "Correction"
	ReasonMoveIn                 BusinessReason = "MoveIn"
)

func (b BusinessReason) Valid() bool {
	switch b {
	case ReasonBalanceFixing, ReasonPreliminaryAggregation, ReasonWholesaleFixing, ReasonCorrection, ReasonMoveIn:
		return true
	}
	return false
}

// ProcessType is the process a delegation grants mailbox duties for.
type ProcessType string

const (
	ProcessReceiveEnergyResults    ProcessType = "ReceiveEnergyResults"
	ProcessReceiveWholesaleResults ProcessType = "ReceiveWholesaleResults"
	ProcessRequestEnergyResults    ProcessType = "RequestEnergyResults"
	ProcessRequestWholesaleResults ProcessType = "RequestWholesaleResults"
)

func (p ProcessType) Valid() bool {
	switch p {
	case ProcessReceiveEnergyResults, ProcessReceiveWholesaleResults, ProcessRequestEnergyResults, ProcessRequestWholesaleResults:
		return true
	}
	return false
}

type MessageCategory string

const (
	CategoryNone              MessageCategory = "None"
	CategoryAggregations      MessageCategory = "Aggregations"
	CategoryWholesaleServices MessageCategory = "WholesaleServices"
)

// ParseMessageCategory maps an empty string to CategoryNone.
func ParseMessageCategory(s string) (MessageCategory, error) {
	if strings.TrimSpace(s) == "" {
		return CategoryNone, nil
	}
	for _, c := range []MessageCategory{CategoryNone, CategoryAggregations, CategoryWholesaleServices} {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown message category %q", ErrValidation, s)
}

var categoryByDocument = map[DocumentType]MessageCategory{
	DocumentNotifyAggregatedMeasureData:        CategoryAggregations,
	DocumentRejectRequestAggregatedMeasureData: CategoryAggregations,
	DocumentNotifyWholesaleServices:            CategoryWholesaleServices,
	DocumentRejectRequestWholesaleSettlement:   CategoryWholesaleServices,
}

// Includes reports whether documents of type d are delivered under category c.
// CategoryNone includes every document type.
func (c MessageCategory) Includes(d DocumentType) bool {
	if c == CategoryNone || c == "" {
		return true
	}
	return categoryByDocument[d] == c
}

// DocumentTypesIn lists the document types peekable under c.
func DocumentTypesIn(c MessageCategory) []DocumentType {
	var res []DocumentType
	for _, d := range documentTypes {
		if c.Includes(d) {
			res = append(res, d)
		}
	}
	return res
}

type DocumentFormat string

const (
	FormatXML  DocumentFormat = "Xml"
	FormatJSON DocumentFormat = "Json"
	FormatEbix DocumentFormat = "Ebix"
)

func ParseDocumentFormat(s string) (DocumentFormat, error) {
	for _, f := range []DocumentFormat{FormatXML, FormatJSON, FormatEbix} {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown document format %q", ErrValidation, s)
}

// Quality is a raw per-point quality flag as delivered by the calculation.
type Quality string

const (
	QualityUnspecified Quality = "Unspecified"
	QualityMissing     Quality = "Missing"
	QualityEstimated   Quality = "Estimated"
	QualityMeasured    Quality = "Measured"
	QualityCalculated  Quality = "Calculated"
)

func Qualities() []Quality {
	return []Quality{QualityUnspecified, QualityMissing, QualityEstimated, QualityMeasured, QualityCalculated}
}

func (q Quality) Valid() bool {
	for _, known := range Qualities() {
		if q == known {
			return true
		}
	}
	return false
}

type CalculatedQuality string

const (
	CalculatedNotAvailable CalculatedQuality = "NotAvailable"
	CalculatedMissing      CalculatedQuality = "Missing"
	CalculatedIncomplete   CalculatedQuality = "Incomplete"
	CalculatedEstimated    CalculatedQuality = "Estimated"
	CalculatedMeasured     CalculatedQuality = "Measured"
	CalculatedCalculated   CalculatedQuality = "Calculated"
)

// Resolution is an ISO-8601 duration used by calculation time series.
type Resolution string

const (
	ResolutionQuarterHour Resolution = "PT15M"
	ResolutionHour        Resolution = "PT1H"
	ResolutionDay         Resolution = "P1D"
	ResolutionMonth       Resolution = "P1M"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionQuarterHour, ResolutionHour, ResolutionDay, ResolutionMonth:
		return true
	}
	return false
}

// Next returns the start of the position following t. Monthly resolution
// advances by calendar month in t's location.
func (r Resolution) Next(t time.Time) time.Time {
	switch r {
	case ResolutionQuarterHour:
		return t.Add(15 * time.Minute)
	case ResolutionHour:
		return t.Add(time.Hour)
	case ResolutionDay:
		return t.AddDate(0, 0, 1)
	case ResolutionMonth:
		return t.AddDate(0, 1, 0)
	}
	return t
}

// Period is a half-open interval [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Point is one position of a calculation time series.
type Point struct {
	Time      time.Time `json:"time"`
	Quantity  *float64  `json:"quantity,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	Amount    *float64  `json:"amount,omitempty"`
	Qualities []Quality `json:"qualities"`
}
