package eligibility

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"caseos/internal/store"
)

// Recommendation is one priority-ranked improvement derived from failure
// reason aggregation.
type Recommendation struct {
	Priority        int      `json:"priority"`
	PriorityRank    int      `json:"priority_rank"`
	Issue           string   `json:"issue"`
	Current         string   `json:"current"`
	Target          string   `json:"target"`
	Impact          string   `json:"impact"`
	Action          string   `json:"action"`
	LendersAffected []string `json:"lenders_affected"`
}

var numberInText = regexp.MustCompile(`(\d+\.?\d*)`)

// extractTargetNumber pulls the required value out of a failure string like
// "CIBIL 620 < required 700": the second number is the target.
func extractTargetNumber(text string) (float64, bool) {
	matches := numberInText.FindAllString(text, -1)
	if len(matches) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type reasonGroup struct {
	key     string
	count   int
	detail  string
	lenders []string
	targets []float64
}

func groupFailures(failing []Result) []reasonGroup {
	byKey := map[string]*reasonGroup{}
	order := []string{}

	for _, r := range failing {
		for key, detail := range r.FailureReasons {
			g, ok := byKey[key]
			if !ok {
				g = &reasonGroup{key: key, detail: detail}
				byKey[key] = g
				order = append(order, key)
			}
			g.count++
			g.lenders = append(g.lenders, r.LenderName)
			if target, ok := extractTargetNumber(detail); ok {
				g.targets = append(g.targets, target)
			}
		}
	}

	groups := make([]reasonGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].count > groups[j].count })
	return groups
}

// rejectionAnalysis renders human-readable reason lines and suggested actions
// when zero products pass.
func rejectionAnalysis(b *store.BorrowerFeatures, failing []Result, now time.Time) ([]string, []string) {
	groups := groupFailures(failing)

	var reasons []string
	actionSet := map[string]struct{}{}
	addAction := func(s string) { actionSet[s] = struct{}{} }

	for _, g := range groups {
		if g.count == len(failing) {
			reasons = append(reasons, fmt.Sprintf("%s (All lenders)", g.detail))
		} else {
			shown := g.lenders
			if len(shown) > 3 {
				shown = shown[:3]
			}
			lenderStr := strings.Join(shown, ", ")
			if g.count > 3 {
				lenderStr += fmt.Sprintf(" and %d more", g.count-3)
			}
			reasons = append(reasons, fmt.Sprintf("%s (%s)", g.detail, lenderStr))
		}

		switch g.key {
		case "cibil_score":
			if b.CIBILScore != nil {
				if target, ok := extractTargetNumber(g.detail); ok && target > float64(*b.CIBILScore) {
					addAction(fmt.Sprintf("Improve CIBIL score to %.0f+ (currently %d)", target, *b.CIBILScore))
				} else {
					addAction("Improve CIBIL score above 700")
				}
			} else {
				addAction("Get CIBIL report and work on improving credit score")
			}
		case "vintage":
			if b.BusinessVintageYears != nil {
				if target, ok := extractTargetNumber(g.detail); ok && target > *b.BusinessVintageYears {
					gap := target - *b.BusinessVintageYears
					addAction(fmt.Sprintf("Business needs %.1f more years of operation (currently %.1fy)", gap, *b.BusinessVintageYears))
				}
			} else {
				addAction("Establish business for minimum 2-3 years before applying")
			}
		case "turnover":
			if b.AnnualTurnover != nil {
				if target, ok := extractTargetNumber(g.detail); ok && target > *b.AnnualTurnover {
					addAction(fmt.Sprintf("Increase annual turnover to ₹%gL+ (currently ₹%gL)", target, *b.AnnualTurnover))
				}
			} else {
				addAction("Work on increasing business revenue/turnover")
			}
		case "entity_type":
			addAction("Consider changing entity structure or target lenders accepting your entity type")
		case "pincode":
			addAction("Expand business to serviceable locations or check with local lenders")
		case "age":
			addAction("Wait until you meet the age requirement for lenders")
		}
	}

	if b.FeatureCompleteness < 80 {
		addAction("Upload missing documents (CIBIL, bank statements, GST) for better matching")
	}
	if b.CIBILScore == nil {
		addAction("Get CIBIL report - this is critical for eligibility")
	}
	if b.BusinessVintageYears == nil {
		addAction("Provide GST certificate or business registration proof")
	}

	actions := make([]string, 0, len(actionSet))
	for a := range actionSet {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return reasons, actions
}

// dynamicRecommendations aggregates failure families across ALL results and
// ranks improvements by how many lenders each would unlock.
func dynamicRecommendations(b *store.BorrowerFeatures, all []Result, now time.Time) []Recommendation {
	var failing []Result
	for _, r := range all {
		if r.Status == store.FilterFail {
			failing = append(failing, r)
		}
	}
	if len(failing) == 0 {
		return nil
	}

	groups := groupFailures(failing)
	recommendations := make([]Recommendation, 0, len(groups))

	for _, g := range groups {
		lenders := g.lenders
		if len(lenders) > 5 {
			lenders = lenders[:5]
		}

		plural := ""
		if g.count > 1 {
			plural = "s"
		}
		rec := Recommendation{
			Priority:        g.count,
			Impact:          fmt.Sprintf("Would unlock %d more lender%s", g.count, plural),
			LendersAffected: lenders,
		}

		maxTarget := 0.0
		for _, t := range g.targets {
			if t > maxTarget {
				maxTarget = t
			}
		}

		switch g.key {
		case "cibil_score":
			rec.Issue = "CIBIL Score Too Low"
			rec.Current = intOrMissing(b.CIBILScore)
			if maxTarget > 0 {
				rec.Target = fmt.Sprintf("%.0f", maxTarget)
			} else {
				rec.Target = "700"
			}
			rec.Action = "Pay off existing dues, reduce credit utilization, dispute errors on credit report"
		case "vintage":
			rec.Issue = "Business Vintage Below Requirement"
			if b.BusinessVintageYears != nil {
				rec.Current = fmt.Sprintf("%.1f years", *b.BusinessVintageYears)
			} else {
				rec.Current = "Not available"
			}
			if maxTarget > 0 {
				rec.Target = fmt.Sprintf("%.1f years", maxTarget)
			} else {
				rec.Target = "3 years"
			}
			rec.Action = "Wait for business to reach minimum vintage or provide older business registration documents"
		case "turnover":
			rec.Issue = "Annual Turnover Below Requirement"
			if b.AnnualTurnover != nil {
				rec.Current = fmt.Sprintf("₹%gL", *b.AnnualTurnover)
			} else {
				rec.Current = "Not available"
			}
			if maxTarget > 0 {
				rec.Target = fmt.Sprintf("₹%gL", maxTarget)
			} else {
				rec.Target = "₹15L"
			}
			rec.Action = "Grow business revenue, consolidate turnover from multiple entities, or provide ITR showing higher income"
		case "abb":
			rec.Issue = "Average Bank Balance Too Low"
			if b.AvgMonthlyBalance != nil {
				rec.Current = fmt.Sprintf("₹%.0f", *b.AvgMonthlyBalance)
			} else {
				rec.Current = "Not available"
			}
			if maxTarget > 0 {
				rec.Target = fmt.Sprintf("₹%.0f", maxTarget)
			} else {
				rec.Target = "₹100,000"
			}
			rec.Action = "Maintain higher minimum balance, reduce unnecessary outflows, consolidate funds from multiple accounts"
		case "entity_type":
			rec.Issue = "Entity Type Not Accepted"
			rec.Current = strOrMissing(b.EntityType)
			rec.Target = "Proprietorship, Partnership, or Pvt Ltd"
			rec.Action = "Consider restructuring business entity or target lenders that accept your entity type"
		case "pincode":
			rec.Issue = "Location Not Serviceable"
			rec.Current = strOrMissing(b.Pincode)
			rec.Target = "Serviceable location"
			rec.Action = "Expand business to metro cities, register office in serviceable pincode, or check regional lenders"
		case "age":
			rec.Issue = "Age Outside Accepted Range"
			if b.DOB != nil {
				rec.Current = fmt.Sprintf("%d years", ageAt(*b.DOB, now))
			} else {
				rec.Current = "Not available"
			}
			rec.Target = "21-65 years"
			rec.Action = "Wait until you meet age requirement or apply through co-applicant/guarantor"
		default:
			rec.Issue = titleize(g.key)
			rec.Action = fmt.Sprintf("Address: %s", g.detail)
		}

		recommendations = append(recommendations, rec)
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Priority > recommendations[j].Priority
	})
	for i := range recommendations {
		recommendations[i].PriorityRank = i + 1
	}
	return recommendations
}

func intOrMissing(v *int) string {
	if v == nil {
		return "Not available"
	}
	return strconv.Itoa(*v)
}

func strOrMissing(v *string) string {
	if v == nil || *v == "" {
		return "Not available"
	}
	return *v
}

func titleize(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// productTermsFallbacks fill lender terms when policy columns are sparse,
// keyed by product bucket.
var productTermsFallbacks = map[string]map[string]any{
	"bl":      {"interest_rate_range": "14% - 30%", "processing_fee_pct": 2.0, "expected_tat_days": 5, "tenor_min_months": 12, "tenor_max_months": 48},
	"stbl":    {"interest_rate_range": "13% - 26%", "processing_fee_pct": 1.5, "expected_tat_days": 4, "tenor_min_months": 12, "tenor_max_months": 60},
	"sbl":     {"interest_rate_range": "15% - 28%", "processing_fee_pct": 2.0, "expected_tat_days": 4, "tenor_min_months": 12, "tenor_max_months": 60},
	"mtbl":    {"interest_rate_range": "15% - 30%", "processing_fee_pct": 2.5, "expected_tat_days": 5, "tenor_min_months": 12, "tenor_max_months": 60},
	"htbl":    {"interest_rate_range": "10% - 16%", "processing_fee_pct": 1.0, "expected_tat_days": 7, "tenor_min_months": 60, "tenor_max_months": 300},
	"pl":      {"interest_rate_range": "11% - 28%", "processing_fee_pct": 2.0, "expected_tat_days": 3, "tenor_min_months": 12, "tenor_max_months": 60},
	"hl":      {"interest_rate_range": "8.5% - 11.5%", "processing_fee_pct": 0.5, "expected_tat_days": 10, "tenor_min_months": 60, "tenor_max_months": 360},
	"lap":     {"interest_rate_range": "10.5% - 16%", "processing_fee_pct": 1.0, "expected_tat_days": 8, "tenor_min_months": 36, "tenor_max_months": 180},
	"od":      {"interest_rate_range": "11% - 18%", "processing_fee_pct": 1.0, "expected_tat_days": 3, "tenor_min_months": 12, "tenor_max_months": 36},
	"cc":      {"interest_rate_range": "11% - 17%", "processing_fee_pct": 1.0, "expected_tat_days": 3, "tenor_min_months": 12, "tenor_max_months": 36},
	"digital": {"interest_rate_range": "16% - 36%", "processing_fee_pct": 2.5, "expected_tat_days": 2, "tenor_min_months": 3, "tenor_max_months": 36},
	"default": {"interest_rate_range": "12% - 24%", "processing_fee_pct": 1.5, "expected_tat_days": 5, "tenor_min_months": 12, "tenor_max_months": 60},
}

var lenderTermsOverrides = map[string]map[string]any{
	"arthmate":      {"interest_rate_range": "18% - 30%", "processing_fee_pct": 2.5, "expected_tat_days": 3},
	"abfl":          {"interest_rate_range": "14% - 26%", "processing_fee_pct": 2.0, "expected_tat_days": 5},
	"bajaj":         {"interest_rate_range": "13% - 30%", "processing_fee_pct": 2.0, "expected_tat_days": 3},
	"clix":          {"interest_rate_range": "14% - 30%", "processing_fee_pct": 2.5, "expected_tat_days": 4},
	"credit saison": {"interest_rate_range": "16% - 28%", "processing_fee_pct": 2.0, "expected_tat_days": 5},
	"godrej":        {"interest_rate_range": "13% - 24%", "processing_fee_pct": 1.5, "expected_tat_days": 4},
	"iifl":          {"interest_rate_range": "14% - 28%", "processing_fee_pct": 2.0, "expected_tat_days": 4},
	"indifi":        {"interest_rate_range": "16% - 30%", "processing_fee_pct": 2.5, "expected_tat_days": 3},
	"lendingkart":   {"interest_rate_range": "18% - 36%", "processing_fee_pct": 2.5, "expected_tat_days": 2},
	"neogrowth":     {"interest_rate_range": "16% - 30%", "processing_fee_pct": 2.5, "expected_tat_days": 2},
	"protium":       {"interest_rate_range": "14% - 28%", "processing_fee_pct": 2.0, "expected_tat_days": 4},
	"tata":          {"interest_rate_range": "12% - 28%", "processing_fee_pct": 2.0, "expected_tat_days": 3},
	"ambit":         {"interest_rate_range": "14% - 26%", "processing_fee_pct": 2.0, "expected_tat_days": 5},
	"flexiloans":    {"interest_rate_range": "18% - 34%", "processing_fee_pct": 2.5, "expected_tat_days": 2},
}

func resolveProductBucket(productName string) string {
	normalized := strings.ToLower(strings.TrimSpace(productName))
	for _, key := range []string{"stbl", "htbl", "mtbl", "sbl", "bl", "pl", "hl", "lap", "od", "cc", "digital"} {
		if strings.Contains(normalized, key) {
			return key
		}
	}
	return "default"
}

// buildLenderTerms fills sparse policy terms from product-bucket defaults and
// per-lender overrides.
func buildLenderTerms(lenderName, productName string, existing map[string]any) map[string]any {
	terms := map[string]any{}
	for k, v := range existing {
		terms[k] = v
	}

	productTerms := productTermsFallbacks[resolveProductBucket(productName)]

	lenderKey := strings.ToLower(strings.TrimSpace(lenderName))
	var overrides map[string]any
	for token, value := range lenderTermsOverrides {
		if strings.Contains(lenderKey, token) {
			overrides = value
			break
		}
	}

	fill := func(key string) {
		if _, ok := terms[key]; ok {
			return
		}
		if overrides != nil {
			if v, ok := overrides[key]; ok {
				terms[key] = v
				return
			}
		}
		terms[key] = productTerms[key]
	}
	fill("interest_rate_range")
	fill("processing_fee_pct")
	fill("expected_tat_days")
	fill("tenor_min_months")
	fill("tenor_max_months")

	// Swap inverted tenor bounds.
	minT, minOK := asInt(terms["tenor_min_months"])
	maxT, maxOK := asInt(terms["tenor_max_months"])
	if minOK && maxOK && minT > maxT {
		terms["tenor_min_months"], terms["tenor_max_months"] = maxT, minT
	}

	return terms
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
