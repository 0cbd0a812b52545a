package document

import "edihub/internal/domain"

var documentTypeCodes = map[domain.DocumentType]string{
	domain.DocumentNotifyAggregatedMeasureData:        "E31",
	domain.DocumentNotifyWholesaleServices:            "E31",
	domain.DocumentRejectRequestAggregatedMeasureData: "A02",
	domain.DocumentRejectRequestWholesaleSettlement:   "A02",
	domain.DocumentAcknowledgement:                    "A01",
}

var businessReasonCodes = map[domain.BusinessReason]string{
	domain.ReasonPreliminaryAggregation: "D03",
	domain.ReasonBalanceFixing:          "D04",
	domain.ReasonWholesaleFixing:        "D05",
	domain.ReasonCorrection:             "D32",
	domain.ReasonMoveIn:                 "E65",
}

var roleCodes = map[domain.ActorRole]string{
	domain.RoleEnergySupplier:          "DDQ",
	domain.RoleGridOperator:            "DDM",
	domain.RoleBalanceResponsibleParty: "DDK",
	domain.RoleMeteredDataResponsible:  "MDR",
	domain.RoleSystemOperator:          "EZ",
	domain.RoleDataHubAdministrator:    "DGL",
}

// NotAvailable has no code and is left out of rendered documents.
var cimQualityCodes = map[domain.CalculatedQuality]string{
	domain.CalculatedMissing:    "A02",
	domain.CalculatedEstimated:  "A03",
	domain.CalculatedMeasured:   "A04",
	domain.CalculatedIncomplete: "A05",
	domain.CalculatedCalculated: "A06",
}

var ebixQualityCodes = map[domain.CalculatedQuality]string{
	domain.CalculatedMissing:    "36",
	domain.CalculatedEstimated:  "56",
	domain.CalculatedMeasured:   "E01",
	domain.CalculatedIncomplete: "56",
	domain.CalculatedCalculated: "D01",
}

const (
	codingSchemeGLN  = "A10"
	businessSectorEl = "23"
	cimTimeLayout    = "2006-01-02T15:04:05Z"
	periodTimeLayout = "2006-01-02T15:04Z"
)
