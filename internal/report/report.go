// Package report assembles the final case artifact: strengths, risks,
// submission strategy, the report data payload, and its PDF rendering.
package report

import (
	"fmt"

	"github.com/samber/lo"

	"caseos/internal/checklist"
	"caseos/internal/eligibility"
	"caseos/internal/store"
)

// BorrowerProfile is the report view of the feature vector.
type BorrowerProfile struct {
	FullName             string   `json:"full_name,omitempty"`
	EntityType           string   `json:"entity_type,omitempty"`
	IndustryType         string   `json:"industry_type,omitempty"`
	Pincode              string   `json:"pincode,omitempty"`
	BusinessVintageYears *float64 `json:"business_vintage_years,omitempty"`
	AnnualTurnover       *float64 `json:"annual_turnover,omitempty"`
	CIBILScore           *int     `json:"cibil_score,omitempty"`
	AvgMonthlyBalance    *float64 `json:"avg_monthly_balance,omitempty"`
	GSTIN                string   `json:"gstin,omitempty"`
	FeatureCompleteness  float64  `json:"feature_completeness"`
}

// ExpectedLoanRange is the headline ticket estimate from the top match.
type ExpectedLoanRange struct {
	MinLakhs *float64 `json:"min_lakhs"`
	MaxLakhs *float64 `json:"max_lakhs"`
}

// CaseReportData is the JSON-serializable report artifact.
type CaseReportData struct {
	CaseID             string                   `json:"case_id"`
	BorrowerProfile    BorrowerProfile          `json:"borrower_profile"`
	Checklist          *checklist.Checklist     `json:"checklist"`
	Strengths          []string                 `json:"strengths"`
	RiskFlags          []string                 `json:"risk_flags"`
	LenderMatches      []eligibility.Result     `json:"lender_matches"`
	SubmissionStrategy string                   `json:"submission_strategy"`
	MissingDataAdvisory []string                `json:"missing_data_advisory"`
	ExpectedLoanRange  ExpectedLoanRange        `json:"expected_loan_range"`
}

// ComputeStrengths detects and lists borrower strengths.
func ComputeStrengths(b *store.BorrowerFeatures, matches []eligibility.Result) []string {
	strengths := []string{}

	if b.CIBILScore != nil {
		if *b.CIBILScore >= 750 {
			strengths = append(strengths, fmt.Sprintf("Excellent credit score (%d)", *b.CIBILScore))
		} else if *b.CIBILScore >= 700 {
			strengths = append(strengths, fmt.Sprintf("Good credit score (%d)", *b.CIBILScore))
		}
	}

	if b.AnnualTurnover != nil && *b.AnnualTurnover > 50 {
		strengths = append(strengths, fmt.Sprintf("Strong annual turnover (₹%.1fL)", *b.AnnualTurnover))
	}

	if b.BusinessVintageYears != nil && *b.BusinessVintageYears > 5 {
		strengths = append(strengths, fmt.Sprintf("Well-established business (%.1f years)", *b.BusinessVintageYears))
	}

	if b.BounceCount12M != nil && *b.BounceCount12M == 0 {
		strengths = append(strengths, "Clean banking — zero bounces in 12 months")
	}

	if b.CashDepositRatio != nil && *b.CashDepositRatio < 0.20 {
		strengths = append(strengths, "Healthy banking — low cash deposit ratio")
	}

	if foir, ok := foirPercent(b); ok && foir < 40 {
		strengths = append(strengths, "Low existing obligations")
	}

	highProb := lo.CountBy(matches, func(m eligibility.Result) bool {
		return m.Probability != nil && *m.Probability == store.ProbabilityHigh
	})
	if highProb >= 3 {
		strengths = append(strengths, fmt.Sprintf("Strong profile — %d lenders matched with high probability", highProb))
	}

	return strengths
}

// ComputeRiskFlags detects and lists risk flags.
func ComputeRiskFlags(b *store.BorrowerFeatures, cl *checklist.Checklist, matches []eligibility.Result) []string {
	risks := []string{}

	if b.CIBILScore != nil && *b.CIBILScore < 650 {
		risks = append(risks, fmt.Sprintf("Low credit score (%d) — limits lender options", *b.CIBILScore))
	}

	if b.BusinessVintageYears != nil && *b.BusinessVintageYears < 2 {
		risks = append(risks, fmt.Sprintf("Low business vintage (%.1f years)", *b.BusinessVintageYears))
	}

	if b.BounceCount12M != nil && *b.BounceCount12M > 3 {
		risks = append(risks, fmt.Sprintf("Banking concern — %d bounced cheques in 12 months", *b.BounceCount12M))
	}

	if b.CashDepositRatio != nil && *b.CashDepositRatio > 0.40 {
		risks = append(risks, fmt.Sprintf("High cash deposit ratio (%d%%) — some lenders may flag this", int(*b.CashDepositRatio*100)))
	}

	if foir, ok := foirPercent(b); ok && foir > 55 {
		risks = append(risks, fmt.Sprintf("High existing debt obligations (FOIR: %.0f%%)", foir))
	}

	if cl != nil && len(cl.Missing) > 0 {
		risks = append(risks, fmt.Sprintf("Incomplete documentation — %d required docs missing", len(cl.Missing)))
	}

	passed := lo.CountBy(matches, func(m eligibility.Result) bool {
		return m.Status == store.FilterPass
	})
	if passed == 0 {
		risks = append(risks, fmt.Sprintf("No eligible lenders found — consider improving %s", suggestImprovements(b)))
	}

	return risks
}

func suggestImprovements(b *store.BorrowerFeatures) string {
	var suggestions []string
	if b.CIBILScore != nil && *b.CIBILScore < 675 {
		suggestions = append(suggestions, "credit score")
	}
	if b.BusinessVintageYears != nil && *b.BusinessVintageYears < 2 {
		suggestions = append(suggestions, "business vintage")
	}
	if b.GSTIN == nil || *b.GSTIN == "" {
		suggestions = append(suggestions, "GST registration")
	}
	if b.BounceCount12M != nil && *b.BounceCount12M > 2 {
		suggestions = append(suggestions, "banking behavior")
	}
	if len(suggestions) == 0 {
		return "overall profile"
	}
	out := suggestions[0]
	for _, s := range suggestions[1:] {
		out += ", " + s
	}
	return out
}

func foirPercent(b *store.BorrowerFeatures) (float64, bool) {
	if b.EMIOutflowMonthly == nil || b.MonthlyCreditAvg == nil || *b.MonthlyCreditAvg == 0 {
		return 0, false
	}
	return *b.EMIOutflowMonthly / *b.MonthlyCreditAvg * 100, true
}

// Profile builds the report view of the feature vector.
func Profile(b *store.BorrowerFeatures) BorrowerProfile {
	p := BorrowerProfile{
		BusinessVintageYears: b.BusinessVintageYears,
		AnnualTurnover:       b.AnnualTurnover,
		CIBILScore:           b.CIBILScore,
		AvgMonthlyBalance:    b.AvgMonthlyBalance,
		FeatureCompleteness:  b.FeatureCompleteness,
	}
	if b.FullName != nil {
		p.FullName = *b.FullName
	}
	if b.EntityType != nil {
		p.EntityType = *b.EntityType
	}
	if b.IndustryType != nil {
		p.IndustryType = *b.IndustryType
	}
	if b.Pincode != nil {
		p.Pincode = *b.Pincode
	}
	if b.GSTIN != nil {
		p.GSTIN = *b.GSTIN
	}
	return p
}

// MissingDataAdvisory names vector slots that are still empty and matter.
func MissingDataAdvisory(b *store.BorrowerFeatures) []string {
	advisory := []string{}
	if b.CIBILScore == nil {
		advisory = append(advisory, "CIBIL score unavailable — upload a CIBIL report or enter it manually")
	}
	if b.AvgMonthlyBalance == nil {
		advisory = append(advisory, "No bank statement analysis — upload 12 months of statements")
	}
	if b.AnnualTurnover == nil {
		advisory = append(advisory, "Annual turnover unknown — upload financials, GST returns, or statements")
	}
	if b.GSTIN == nil || *b.GSTIN == "" {
		advisory = append(advisory, "No GST registration on file")
	}
	return advisory
}

// ExpectedRange takes the headline ticket estimate from the top-ranked match.
func ExpectedRange(matches []eligibility.Result) ExpectedLoanRange {
	for _, m := range matches {
		if m.Status == store.FilterPass {
			return ExpectedLoanRange{MinLakhs: m.ExpectedTicketMin, MaxLakhs: m.ExpectedTicketMax}
		}
	}
	return ExpectedLoanRange{}
}

// Assemble composes the full report artifact. strategy has been generated
// beforehand (LLM or fallback).
func Assemble(caseID string, b *store.BorrowerFeatures, cl *checklist.Checklist, matches []eligibility.Result, strategy string) *CaseReportData {
	return &CaseReportData{
		CaseID:              caseID,
		BorrowerProfile:     Profile(b),
		Checklist:           cl,
		Strengths:           ComputeStrengths(b, matches),
		RiskFlags:           ComputeRiskFlags(b, cl, matches),
		LenderMatches:       matches,
		SubmissionStrategy:  strategy,
		MissingDataAdvisory: MissingDataAdvisory(b),
		ExpectedLoanRange:   ExpectedRange(matches),
	}
}
