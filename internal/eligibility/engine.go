// Package eligibility scores borrower feature vectors against lender policy
// rules: hard filters, weighted scoring, ranking, and rejection analysis.
package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"caseos/internal/store"
)

// entityEquivalence groups interchangeable entity-type spellings.
var entityEquivalence = map[string][]string{
	"proprietorship": {"proprietorship", "proprietor", "sole_proprietorship", "individual", "self_employed", "self_employed_non_professional"},
	"partnership":    {"partnership", "partnership_firm", "firm"},
	"llp":            {"llp", "limited_liability_partnership"},
	"pvt_ltd":        {"pvt_ltd", "private_limited", "private_limited_company", "opc", "one_person_company", "company"},
	"public_ltd":     {"public_ltd", "public_limited", "public_limited_company"},
	"trust":          {"trust"},
	"society":        {"society", "ngo"},
	"huf":            {"huf"},
}

// Result is the scoring outcome for one lender product.
type Result struct {
	LenderProductID   string                     `json:"lender_product_id"`
	LenderName        string                     `json:"lender_name"`
	ProductName       string                     `json:"product_name"`
	Status            store.FilterStatus         `json:"hard_filter_status"`
	FailureReasons    map[string]string          `json:"failure_reasons,omitempty"`
	Explain           *Explainability            `json:"explain,omitempty"`
	Score             *float64                   `json:"eligibility_score"`
	Probability       *store.ApprovalProbability `json:"approval_probability"`
	ExpectedTicketMin *float64                   `json:"expected_ticket_min"`
	ExpectedTicketMax *float64                   `json:"expected_ticket_max"`
	Confidence        float64                    `json:"confidence"`
	MissingForImprove []string                   `json:"missing_for_improvement"`
	Rank              *int                       `json:"rank"`
}

// Explainability is the structured payload kept for passing products.
type Explainability struct {
	ScoreBreakdown   []ScoreComponent  `json:"score_breakdown"`
	MatchedSignals   []string          `json:"matched_signals"`
	LenderThresholds map[string]any    `json:"lender_thresholds"`
	LenderTerms      map[string]any    `json:"lender_terms"`
}

// Response is the full scoring output for a case.
type Response struct {
	CaseID                 string           `json:"case_id"`
	TotalLendersEvaluated  int              `json:"total_lenders_evaluated"`
	LendersPassed          int              `json:"lenders_passed"`
	Results                []Result         `json:"results"`
	RejectionReasons       []string         `json:"rejection_reasons"`
	SuggestedActions       []string         `json:"suggested_actions"`
	DynamicRecommendations []Recommendation `json:"dynamic_recommendations"`
}

// PincodeChecker answers lender pincode coverage queries.
type PincodeChecker interface {
	PincodeServiceable(ctx context.Context, lenderID, pincode string) (bool, error)
}

// Engine runs the three scoring layers.
type Engine struct {
	pincodes PincodeChecker
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine builds an Engine on the wall clock (time.Now); WithClock swaps it.
func NewEngine(pincodes PincodeChecker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{pincodes: pincodes, logger: logger, now: time.Now}
}

// WithClock returns a copy of the engine using a fixed clock. For tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	clone := *e
	clone.now = now
	return &clone
}

// Score evaluates the borrower against every product and ranks the passes.
func (e *Engine) Score(ctx context.Context, borrower *store.BorrowerFeatures, products []store.ProductRule) (*Response, error) {
	results := make([]Result, 0, len(products))
	passed := 0

	for _, product := range products {
		failures, err := e.hardFilters(ctx, borrower, &product)
		if err != nil {
			return nil, err
		}

		r := Result{
			LenderProductID: product.ID,
			LenderName:      product.LenderName,
			ProductName:     product.ProductName,
			Confidence:      borrower.FeatureCompleteness / 100.0,
		}

		if len(failures) == 0 {
			passed++
			r.Status = store.FilterPass

			score, breakdown := scoreWithBreakdown(borrower, &product)
			prob := approvalProbability(score)
			minTicket, maxTicket := ticketRange(borrower, &product, score)

			r.Score = &score
			r.Probability = &prob
			r.ExpectedTicketMin = minTicket
			r.ExpectedTicketMax = maxTicket
			r.MissingForImprove = improvements(borrower, score)
			r.Explain = &Explainability{
				ScoreBreakdown:   breakdown,
				MatchedSignals:   matchedSignals(borrower, score),
				LenderThresholds: thresholds(&product),
				LenderTerms:      buildLenderTerms(product.LenderName, product.ProductName, existingTerms(&product)),
			}
		} else {
			r.Status = store.FilterFail
			r.FailureReasons = failures
		}

		results = append(results, r)
	}

	// Rank passing products by score descending; failures stay unranked.
	passing := lo.Filter(results, func(r Result, _ int) bool { return r.Status == store.FilterPass })
	failing := lo.Filter(results, func(r Result, _ int) bool { return r.Status == store.FilterFail })

	sort.SliceStable(passing, func(i, j int) bool {
		return derefScore(passing[i].Score) > derefScore(passing[j].Score)
	})
	for i := range passing {
		rank := i + 1
		passing[i].Rank = &rank
	}

	final := append(passing, failing...)

	resp := &Response{
		TotalLendersEvaluated: len(products),
		LendersPassed:         passed,
		Results:               final,
	}

	if passed == 0 {
		resp.RejectionReasons, resp.SuggestedActions = rejectionAnalysis(borrower, failing, e.now())
	}
	resp.DynamicRecommendations = dynamicRecommendations(borrower, final, e.now())

	e.logger.Info("eligibility scoring complete",
		zap.Int("evaluated", len(products)),
		zap.Int("passed", passed))

	return resp, nil
}

// hardFilters accumulates failure reasons; an empty map means pass.
func (e *Engine) hardFilters(ctx context.Context, b *store.BorrowerFeatures, p *store.ProductRule) (map[string]string, error) {
	failures := map[string]string{}

	if !p.PolicyAvailable {
		failures["policy_available"] = "Policy not available"
		return failures, nil
	}

	if b.Pincode != nil && *b.Pincode != "" && e.pincodes != nil {
		serviceable, err := e.pincodes.PincodeServiceable(ctx, p.LenderID, *b.Pincode)
		if err != nil {
			return nil, fmt.Errorf("pincode check for %s: %w", p.LenderName, err)
		}
		if !serviceable {
			failures["pincode"] = fmt.Sprintf("Pincode %s not serviceable", *b.Pincode)
		}
	}

	if p.MinCIBILScore != nil && b.CIBILScore != nil && *b.CIBILScore < *p.MinCIBILScore {
		failures["cibil_score"] = fmt.Sprintf("CIBIL %d < required %d", *b.CIBILScore, *p.MinCIBILScore)
	}

	if len(p.EligibleEntityTypes) > 0 && b.EntityType != nil && *b.EntityType != "" {
		if !entityMatches(*b.EntityType, p.EligibleEntityTypes) {
			failures["entity_type"] = fmt.Sprintf("%s not in eligible types: %s",
				*b.EntityType, strings.Join(p.EligibleEntityTypes, ", "))
		}
	}

	if p.MinVintageYears != nil && b.BusinessVintageYears != nil && *b.BusinessVintageYears < *p.MinVintageYears {
		failures["vintage"] = fmt.Sprintf("%gy < required %gy", *b.BusinessVintageYears, *p.MinVintageYears)
	}

	if p.MinTurnoverAnnual != nil && b.AnnualTurnover != nil && *b.AnnualTurnover < *p.MinTurnoverAnnual {
		failures["turnover"] = fmt.Sprintf("₹%gL < required ₹%gL", *b.AnnualTurnover, *p.MinTurnoverAnnual)
	}

	ageMin, ageMax := normalizeAgeBounds(p.AgeMin, p.AgeMax)
	if b.DOB != nil && (ageMin != nil || ageMax != nil) {
		age := ageAt(*b.DOB, e.now())
		if ageMin != nil && age < *ageMin {
			failures["age"] = fmt.Sprintf("Age %d outside minimum %d", age, *ageMin)
		} else if ageMax != nil && age > *ageMax {
			failures["age"] = fmt.Sprintf("Age %d outside maximum %d", age, *ageMax)
		}
	}

	if p.MinABB != nil && b.AvgMonthlyBalance != nil && *b.AvgMonthlyBalance < *p.MinABB {
		failures["abb"] = fmt.Sprintf("Avg balance ₹%.0f < required ₹%.0f", *b.AvgMonthlyBalance, *p.MinABB)
	}

	return failures, nil
}

// normalizeAgeBounds swaps inverted bounds and defuses degenerate X-X rows:
// a single value ≥45 is treated as an upper bound only, below that as a
// lower bound only.
func normalizeAgeBounds(ageMin, ageMax *int) (*int, *int) {
	if ageMin == nil || ageMax == nil {
		return ageMin, ageMax
	}
	low, high := *ageMin, *ageMax
	if low > high {
		low, high = high, low
	}
	if low == high {
		if low >= 45 {
			return nil, &high
		}
		return &low, nil
	}
	return &low, &high
}

func ageAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

func entityMatches(borrowerEntity string, eligible []string) bool {
	borrowerSet := entityVariants(borrowerEntity)
	for _, raw := range eligible {
		for variant := range entityVariants(raw) {
			if _, ok := borrowerSet[variant]; ok {
				return true
			}
		}
	}
	return false
}

func entityVariants(value string) map[string]struct{} {
	normalized := normalizeEntityValue(value)
	variants := map[string]struct{}{}
	if normalized == "" {
		return variants
	}
	variants[normalized] = struct{}{}
	for canonical, aliases := range entityEquivalence {
		matched := normalized == canonical
		for _, alias := range aliases {
			if normalized == alias {
				matched = true
				break
			}
		}
		if matched {
			variants[canonical] = struct{}{}
			for _, alias := range aliases {
				variants[alias] = struct{}{}
			}
		}
	}
	return variants
}

func normalizeEntityValue(value string) string {
	out := make([]byte, 0, len(value))
	lastUnderscore := true
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
			fallthrough
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
			lastUnderscore = false
		case c == '&':
			if !lastUnderscore {
				out = append(out, '_')
			}
			out = append(out, 'a', 'n', 'd')
			lastUnderscore = false
		default:
			if !lastUnderscore {
				out = append(out, '_')
				lastUnderscore = true
			}
		}
	}
	// Trim a trailing separator.
	for len(out) > 0 && out[len(out)-1] == '_' {
		out = out[:len(out)-1]
	}
	return string(out)
}

func derefScore(score *float64) float64 {
	if score == nil {
		return -1
	}
	return *score
}

func matchedSignals(b *store.BorrowerFeatures, score float64) []string {
	signals := []string{}
	if b.EntityType != nil {
		signals = append(signals, fmt.Sprintf("Entity type: %s", *b.EntityType))
	}
	if b.CIBILScore != nil {
		signals = append(signals, fmt.Sprintf("CIBIL: %d", *b.CIBILScore))
	}
	if b.BusinessVintageYears != nil {
		signals = append(signals, fmt.Sprintf("Business vintage: %g years", *b.BusinessVintageYears))
	}
	if b.Pincode != nil {
		signals = append(signals, fmt.Sprintf("Pincode: %s", *b.Pincode))
	}
	signals = append(signals, fmt.Sprintf("Composite eligibility score: %.0f/100", score))
	return signals
}

func thresholds(p *store.ProductRule) map[string]any {
	return map[string]any{
		"min_cibil_score":     p.MinCIBILScore,
		"min_vintage_years":   p.MinVintageYears,
		"min_turnover_annual": p.MinTurnoverAnnual,
		"max_ticket_size":     p.MaxTicketSize,
		"min_abb":             p.MinABB,
	}
}

func existingTerms(p *store.ProductRule) map[string]any {
	terms := map[string]any{}
	if p.InterestRateRange != nil {
		terms["interest_rate_range"] = *p.InterestRateRange
	}
	if p.ProcessingFeePct != nil {
		terms["processing_fee_pct"] = *p.ProcessingFeePct
	}
	if p.ExpectedTATDays != nil {
		terms["expected_tat_days"] = *p.ExpectedTATDays
	}
	if p.TenorMinMonths != nil {
		terms["tenor_min_months"] = *p.TenorMinMonths
	}
	if p.TenorMaxMonths != nil {
		terms["tenor_max_months"] = *p.TenorMaxMonths
	}
	return terms
}

// ToRows converts a response into persistable eligibility rows.
func (resp *Response) ToRows() ([]store.EligibilityRow, error) {
	rows := make([]store.EligibilityRow, 0, len(resp.Results))
	for _, r := range resp.Results {
		row := store.EligibilityRow{
			LenderProductID:   r.LenderProductID,
			HardFilterStatus:  r.Status,
			EligibilityScore:  r.Score,
			ExpectedTicketMin: r.ExpectedTicketMin,
			ExpectedTicketMax: r.ExpectedTicketMax,
			Confidence:        r.Confidence,
			MissingForImprove: r.MissingForImprove,
			Rank:              r.Rank,
		}
		if r.Probability != nil {
			prob := string(*r.Probability)
			row.ApprovalProb = &prob
		}

		var details any
		if r.Status == store.FilterPass {
			details = r.Explain
		} else {
			details = r.FailureReasons
		}
		payload, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal details for %s: %w", r.LenderName, err)
		}
		row.HardFilterDetails = payload
		rows = append(rows, row)
	}
	return rows, nil
}

// FromRows reconstructs a Response from persisted rows, recomputing the
// advisory blocks so stale rows still explain themselves.
func (e *Engine) FromRows(borrower *store.BorrowerFeatures, rows []store.EligibilityRow) *Response {
	results := make([]Result, 0, len(rows))
	passed := 0

	for _, row := range rows {
		r := Result{
			LenderProductID:   row.LenderProductID,
			LenderName:        row.LenderName,
			ProductName:       row.ProductName,
			Status:            row.HardFilterStatus,
			Score:             row.EligibilityScore,
			ExpectedTicketMin: row.ExpectedTicketMin,
			ExpectedTicketMax: row.ExpectedTicketMax,
			Confidence:        row.Confidence,
			MissingForImprove: row.MissingForImprove,
			Rank:              row.Rank,
		}
		if row.ApprovalProb != nil {
			prob := store.ApprovalProbability(*row.ApprovalProb)
			r.Probability = &prob
		}

		if row.HardFilterStatus == store.FilterPass {
			passed++
			var explain Explainability
			if len(row.HardFilterDetails) > 0 {
				_ = json.Unmarshal(row.HardFilterDetails, &explain)
			}
			if len(explain.MatchedSignals) == 0 && borrower != nil {
				explain.MatchedSignals = matchedSignals(borrower, derefScore(row.EligibilityScore))
			}
			explain.LenderTerms = buildLenderTerms(row.LenderName, row.ProductName, explain.LenderTerms)
			r.Explain = &explain
		} else if len(row.HardFilterDetails) > 0 {
			_ = json.Unmarshal(row.HardFilterDetails, &r.FailureReasons)
		}

		results = append(results, r)
	}

	resp := &Response{
		TotalLendersEvaluated: len(rows),
		LendersPassed:         passed,
		Results:               results,
	}

	if borrower != nil {
		failing := lo.Filter(results, func(r Result, _ int) bool { return r.Status == store.FilterFail })
		if passed == 0 && len(failing) > 0 {
			resp.RejectionReasons, resp.SuggestedActions = rejectionAnalysis(borrower, failing, e.now())
		}
		resp.DynamicRecommendations = dynamicRecommendations(borrower, results, e.now())
	}

	return resp
}
