// Package features merges extracted evidence and manual overrides into the
// canonical borrower feature vector.
package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"caseos/internal/store"
)

// TotalFeatureSlots is the number of typed slots in the vector.
const TotalFeatureSlots = 21

// featureSlots maps extracted field names to vector slots, grouped as
// identity / business / financial / credit.
var featureSlots = []string{
	"full_name", "pan_number", "aadhaar_number", "dob",
	"entity_type", "business_vintage_years", "gstin", "industry_type", "pincode",
	"annual_turnover", "avg_monthly_balance", "monthly_credit_avg", "monthly_turnover",
	"emi_outflow_monthly", "bounce_count_12m", "cash_deposit_ratio", "itr_total_income",
	"cibil_score", "active_loan_count", "overdue_count", "enquiry_count_6m",
}

// entityAliases normalizes free-text entity descriptions.
var entityAliases = map[string]string{
	"proprietorship":                "proprietorship",
	"proprietor":                    "proprietorship",
	"sole proprietorship":           "proprietorship",
	"sole_proprietorship":           "proprietorship",
	"individual":                    "proprietorship",
	"partnership":                   "partnership",
	"partnership firm":              "partnership",
	"firm":                          "partnership",
	"llp":                           "llp",
	"limited liability partnership": "llp",
	"pvt ltd":                       "pvt_ltd",
	"pvt_ltd":                       "pvt_ltd",
	"pvt. ltd":                      "pvt_ltd",
	"private limited":               "pvt_ltd",
	"private_limited":               "pvt_ltd",
	"opc":                           "pvt_ltd",
	"company":                       "pvt_ltd",
	"public ltd":                    "public_ltd",
	"public limited":                "public_ltd",
	"trust":                         "trust",
	"society":                       "society",
	"huf":                           "huf",
}

// Assembler builds feature vectors with a confidence threshold.
type Assembler struct {
	threshold float64
}

// NewAssembler builds an Assembler; threshold <= 0 uses the 0.5 default.
func NewAssembler(threshold float64) *Assembler {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Assembler{threshold: threshold}
}

// Assemble merges per-slot values. Priority, in order:
//  1. extracted value with confidence >= threshold
//  2. manual override from the case row (incl. GST-cache values)
//  3. any extracted value
//  4. unset
//
// It is a pure function of its inputs so re-running on an unchanged case
// yields an identical vector.
func (a *Assembler) Assemble(c *store.Case, extracted []store.ExtractedField) *store.BorrowerFeatures {
	// Latest row wins per field name; the store returns rows newest first
	// with confidence as a tiebreaker.
	byName := map[string]store.ExtractedField{}
	for _, f := range extracted {
		if _, ok := byName[f.FieldName]; !ok {
			byName[f.FieldName] = f
		}
	}

	manual := manualOverrides(c)

	resolved := map[string]string{}
	for _, slot := range featureSlots {
		ext, hasExt := byName[slot]
		man, hasMan := manual[slot]

		switch {
		case hasExt && ext.Confidence >= a.threshold:
			resolved[slot] = ext.FieldValue
		case hasMan:
			resolved[slot] = man
		case hasExt:
			resolved[slot] = ext.FieldValue
		}
	}

	vec := &store.BorrowerFeatures{CaseID: c.ID}
	filled := 0
	for _, slot := range featureSlots {
		raw, ok := resolved[slot]
		if !ok {
			continue
		}
		if setSlot(vec, slot, raw) {
			filled++
		}
	}

	// Bank credits define monthly turnover when present.
	if vec.MonthlyCreditAvg != nil {
		if vec.MonthlyTurnover == nil {
			filled++
		}
		v := *vec.MonthlyCreditAvg
		vec.MonthlyTurnover = &v
	}

	// Derive annual turnover in lakhs from monthly bank credits when explicit
	// turnover is missing.
	if vec.AnnualTurnover == nil && vec.MonthlyTurnover != nil && *vec.MonthlyTurnover > 0 {
		annual := math.Round(*vec.MonthlyTurnover*12/100000*100) / 100
		vec.AnnualTurnover = &annual
		filled++
	}

	vec.FeatureCompleteness = math.Round(float64(filled)/TotalFeatureSlots*100*100) / 100
	return vec
}

func manualOverrides(c *store.Case) map[string]string {
	manual := map[string]string{}
	put := func(key string, v *string) {
		if v != nil && *v != "" {
			manual[key] = *v
		}
	}
	put("full_name", c.BorrowerName)
	put("entity_type", c.EntityType)
	put("gstin", c.GSTIN)
	put("industry_type", c.IndustryType)
	put("pincode", c.Pincode)

	if c.BusinessVintageYears != nil {
		manual["business_vintage_years"] = strconv.FormatFloat(*c.BusinessVintageYears, 'f', -1, 64)
	}
	if c.CIBILScoreManual != nil {
		manual["cibil_score"] = strconv.Itoa(*c.CIBILScoreManual)
	}
	if c.MonthlyTurnoverMan != nil {
		manual["monthly_turnover"] = strconv.FormatFloat(*c.MonthlyTurnoverMan, 'f', -1, 64)
	}

	// GST authority data fills gaps the operator left blank.
	if len(c.GSTData) > 0 {
		var payload struct {
			BorrowerName         string   `json:"borrower_name"`
			EntityType           string   `json:"entity_type"`
			BusinessVintageYears *float64 `json:"business_vintage_years"`
			Pincode              string   `json:"pincode"`
			IndustryType         string   `json:"industry_type"`
		}
		if err := json.Unmarshal(c.GSTData, &payload); err == nil {
			if payload.BorrowerName != "" && manual["full_name"] == "" {
				manual["full_name"] = payload.BorrowerName
			}
			if payload.EntityType != "" && manual["entity_type"] == "" {
				manual["entity_type"] = payload.EntityType
			}
			if payload.BusinessVintageYears != nil && manual["business_vintage_years"] == "" {
				manual["business_vintage_years"] = strconv.FormatFloat(*payload.BusinessVintageYears, 'f', -1, 64)
			}
			if payload.Pincode != "" && manual["pincode"] == "" {
				manual["pincode"] = payload.Pincode
			}
			if payload.IndustryType != "" && manual["industry_type"] == "" {
				manual["industry_type"] = payload.IndustryType
			}
		}
	}

	return manual
}

// setSlot coerces raw into the slot's type. Returns false when coercion fails,
// leaving the slot unset.
func setSlot(vec *store.BorrowerFeatures, slot, raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	switch slot {
	case "full_name":
		vec.FullName = &raw
	case "pan_number":
		vec.PANNumber = &raw
	case "aadhaar_number":
		vec.AadhaarNumber = &raw
	case "gstin":
		vec.GSTIN = &raw
	case "industry_type":
		vec.IndustryType = &raw
	case "pincode":
		vec.Pincode = &raw
	case "entity_type":
		normalized, ok := normalizeEntityType(raw)
		if !ok {
			return false
		}
		vec.EntityType = &normalized
	case "dob":
		t, ok := parseDate(raw)
		if !ok {
			return false
		}
		vec.DOB = &t
	case "business_vintage_years":
		return setFloat(&vec.BusinessVintageYears, raw)
	case "annual_turnover":
		return setFloat(&vec.AnnualTurnover, raw)
	case "avg_monthly_balance":
		return setFloat(&vec.AvgMonthlyBalance, raw)
	case "monthly_credit_avg":
		return setFloat(&vec.MonthlyCreditAvg, raw)
	case "monthly_turnover":
		return setFloat(&vec.MonthlyTurnover, raw)
	case "emi_outflow_monthly":
		return setFloat(&vec.EMIOutflowMonthly, raw)
	case "cash_deposit_ratio":
		return setFloat(&vec.CashDepositRatio, raw)
	case "itr_total_income":
		return setFloat(&vec.ITRTotalIncome, raw)
	case "cibil_score":
		return setInt(&vec.CIBILScore, raw)
	case "active_loan_count":
		return setInt(&vec.ActiveLoanCount, raw)
	case "overdue_count":
		return setInt(&vec.OverdueCount, raw)
	case "enquiry_count_6m":
		return setInt(&vec.EnquiryCount6M, raw)
	case "bounce_count_12m":
		return setInt(&vec.BounceCount12M, raw)
	default:
		return false
	}
	return true
}

func parseDate(raw string) (time.Time, bool) {
	normalized := strings.ReplaceAll(raw, "-", "/")
	t, err := time.Parse("02/01/2006", normalized)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func setFloat(dst **float64, raw string) bool {
	clean := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return false
	}
	*dst = &v
	return true
}

// setInt tolerates trailing ".0" by parsing through float.
func setInt(dst **int, raw string) bool {
	clean := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return false
	}
	v := int(f)
	*dst = &v
	return true
}

func normalizeEntityType(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := entityAliases[key]; ok {
		return canonical, true
	}
	key = strings.ReplaceAll(key, "_", " ")
	if canonical, ok := entityAliases[key]; ok {
		return canonical, true
	}
	return "", false
}
