package domain

import "strings"

// ReportType identifies one kind of due-diligence report.
type ReportType string

const (
	RegistryCurrent        ReportType = "registry-current"
	RegistryHistorical     ReportType = "registry-historical"
	DirectorCheck          ReportType = "director-check"
	CourtCivil             ReportType = "court-civil"
	CourtCriminal          ReportType = "court-criminal"
	TaxDebt                ReportType = "tax-debt"
	Bankruptcy             ReportType = "bankruptcy"
	SecuredInterest        ReportType = "secured-interest"
	VehicleSecuredInterest ReportType = "vehicle-secured-interest"
	LandTitleByReference   ReportType = "land-title-by-reference"
	LandTitleByAddress     ReportType = "land-title-by-address"
	LandTitleByOrg         ReportType = "land-title-by-organisation"
	LandTitleByIndividual  ReportType = "land-title-by-individual"
	PropertyWithValuation  ReportType = "property-with-valuation"
	Trademark              ReportType = "trademark"
	SoleTraderCheck        ReportType = "sole-trader-check"
	UnclaimedMoney         ReportType = "unclaimed-money"
	BusinessNameSearch     ReportType = "business-name-search"
)

var allReportTypes = map[ReportType]struct{}{
	RegistryCurrent:        {},
	RegistryHistorical:     {},
	DirectorCheck:          {},
	CourtCivil:             {},
	CourtCriminal:          {},
	TaxDebt:                {},
	Bankruptcy:             {},
	SecuredInterest:        {},
	VehicleSecuredInterest: {},
	LandTitleByReference:   {},
	LandTitleByAddress:     {},
	LandTitleByOrg:         {},
	LandTitleByIndividual:  {},
	PropertyWithValuation:  {},
	Trademark:              {},
	SoleTraderCheck:        {},
	UnclaimedMoney:         {},
	BusinessNameSearch:     {},
}

func ParseReportType(raw string) (ReportType, bool) {
	rt := ReportType(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := allReportTypes[rt]
	return rt, ok
}

func (rt ReportType) String() string {
	return string(rt)
}

// CacheFamily maps a report type to the type whose snapshot backs it.
// The current company extract carries the court-action and tax-debt
// sections, so those three report types consult one snapshot.
func (rt ReportType) CacheFamily() ReportType {
	switch rt {
	case RegistryCurrent, CourtCivil, TaxDebt:
		return RegistryCurrent
	default:
		return rt
	}
}

// PerUnit reports accumulate one snapshot row per sub-unit (one per land
// title reference) instead of one row per subject.
func (rt ReportType) PerUnit() bool {
	switch rt {
	case LandTitleByReference, LandTitleByAddress, LandTitleByOrg, LandTitleByIndividual:
		return true
	default:
		return false
	}
}
