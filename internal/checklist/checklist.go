// Package checklist validates document completeness per program type.
package checklist

import (
	"math"

	"caseos/internal/store"
)

// requirements holds the per-program document rules. The any-of set counts as
// a single point: at least one of its members must be present.
type requirements struct {
	required []store.DocumentKind
	anyOf    []store.DocumentKind
	optional []store.DocumentKind
}

var programRequirements = map[store.ProgramType]requirements{
	store.ProgramBanking: {
		required: []store.DocumentKind{
			store.DocBankStatement,
			store.DocAadhaar,
			store.DocGSTCertificate,
			store.DocCIBILReport,
		},
		anyOf: []store.DocumentKind{store.DocPANPersonal, store.DocPANBusiness},
		optional: []store.DocumentKind{
			store.DocUdyamShopLicense,
			store.DocPropertyDocuments,
			store.DocGSTReturns,
		},
	},
	store.ProgramIncome: {
		required: []store.DocumentKind{
			store.DocITR,
			store.DocFinancialStatements,
			store.DocAadhaar,
			store.DocCIBILReport,
		},
		anyOf: []store.DocumentKind{store.DocPANPersonal, store.DocPANBusiness},
		optional: []store.DocumentKind{
			store.DocUdyamShopLicense,
			store.DocPropertyDocuments,
			store.DocGSTCertificate,
			store.DocGSTReturns,
		},
	},
	store.ProgramHybrid: {
		required: []store.DocumentKind{
			store.DocBankStatement,
			store.DocITR,
			store.DocGSTCertificate,
			store.DocCIBILReport,
			store.DocAadhaar,
		},
		anyOf: []store.DocumentKind{store.DocPANPersonal, store.DocPANBusiness},
		optional: []store.DocumentKind{
			store.DocUdyamShopLicense,
			store.DocPropertyDocuments,
			store.DocGSTReturns,
			store.DocFinancialStatements,
		},
	},
}

// Checklist is the completeness view of a case's documents.
type Checklist struct {
	ProgramType       store.ProgramType    `json:"program_type"`
	Available         []store.DocumentKind `json:"available"`
	Missing           []store.DocumentKind `json:"missing"`
	Unreadable        []string             `json:"unreadable"`
	OptionalPresent   []store.DocumentKind `json:"optional_present"`
	CompletenessScore float64              `json:"completeness_score"`
}

// Build computes the checklist for a case. Manual overrides on the case count
// as virtual documents: a manual CIBIL score covers the CIBIL report, a manual
// vintage covers the GST certificate, a manual monthly turnover covers GST
// returns.
func Build(c *store.Case, docs []store.Document) *Checklist {
	program := store.ProgramHybrid
	if c.ProgramType != nil && c.ProgramType.Valid() {
		program = *c.ProgramType
	}
	reqs := programRequirements[program]

	available := map[store.DocumentKind]struct{}{}
	var unreadable []string
	for _, d := range docs {
		if d.DocType == nil || *d.DocType == store.DocUnknown {
			unreadable = append(unreadable, d.OriginalFilename)
			continue
		}
		available[*d.DocType] = struct{}{}
	}

	if c.CIBILScoreManual != nil && *c.CIBILScoreManual > 0 {
		available[store.DocCIBILReport] = struct{}{}
	}
	if c.BusinessVintageYears != nil && *c.BusinessVintageYears > 0 {
		available[store.DocGSTCertificate] = struct{}{}
	}
	if c.MonthlyTurnoverMan != nil && *c.MonthlyTurnoverMan > 0 {
		available[store.DocGSTReturns] = struct{}{}
	}

	var missing []store.DocumentKind
	for _, kind := range reqs.required {
		if _, ok := available[kind]; !ok {
			missing = append(missing, kind)
		}
	}

	anyOfSatisfied := false
	for _, kind := range reqs.anyOf {
		if _, ok := available[kind]; ok {
			anyOfSatisfied = true
			break
		}
	}
	if len(reqs.anyOf) > 0 && !anyOfSatisfied {
		missing = append(missing, reqs.anyOf...)
	}

	var optionalPresent []store.DocumentKind
	for _, kind := range reqs.optional {
		if _, ok := available[kind]; ok {
			optionalPresent = append(optionalPresent, kind)
		}
	}

	availableList := make([]store.DocumentKind, 0, len(available))
	for kind := range available {
		availableList = append(availableList, kind)
	}

	return &Checklist{
		ProgramType:       program,
		Available:         availableList,
		Missing:           missing,
		Unreadable:        unreadable,
		OptionalPresent:   optionalPresent,
		CompletenessScore: completeness(available, reqs),
	}
}

// completeness: each required doc is one point, the any-of set is one point.
func completeness(available map[store.DocumentKind]struct{}, reqs requirements) float64 {
	total := len(reqs.required)
	earned := 0

	for _, kind := range reqs.required {
		if _, ok := available[kind]; ok {
			earned++
		}
	}

	if len(reqs.anyOf) > 0 {
		total++
		for _, kind := range reqs.anyOf {
			if _, ok := available[kind]; ok {
				earned++
				break
			}
		}
	}

	if total == 0 {
		return 0
	}
	return math.Round(float64(earned)/float64(total)*100*100) / 100
}

// RequiredDocuments lists the required set (incl. the any-of options) for a
// program, used by the report assembler.
func RequiredDocuments(program store.ProgramType) []store.DocumentKind {
	reqs := programRequirements[program]
	out := append([]store.DocumentKind{}, reqs.required...)
	return append(out, reqs.anyOf...)
}
