package eligibility

import (
	"fmt"
	"math"
	"strings"

	"caseos/internal/store"
)

// ScoreComponent is one weighted sub-score in the composite.
type ScoreComponent struct {
	Component            string  `json:"component"`
	Label                string  `json:"label"`
	Weight               int     `json:"weight"`
	Score                float64 `json:"score"`
	WeightedContribution float64 `json:"weighted_contribution"`
	Note                 string  `json:"note"`
}

// scoreWithBreakdown computes the composite 0-100 score. Components with
// missing data drop out and the remaining weights renormalize.
func scoreWithBreakdown(b *store.BorrowerFeatures, p *store.ProductRule) (float64, []ScoreComponent) {
	var components []ScoreComponent

	add := func(key, label string, weight int, raw *float64, note string) {
		if raw == nil {
			return
		}
		score := math.Round(*raw*100) / 100
		components = append(components, ScoreComponent{
			Component:            key,
			Label:                label,
			Weight:               weight,
			Score:                score,
			WeightedContribution: math.Round(score*float64(weight)) / 100,
			Note:                 note,
		})
	}

	add("cibil_band", "CIBIL Band", 25, scoreCIBILBand(b.CIBILScore),
		fmt.Sprintf("CIBIL considered: %s", intOrNA(b.CIBILScore)))
	add("turnover_band", "Turnover Band", 20, scoreTurnoverBand(b.AnnualTurnover, p.MinTurnoverAnnual),
		fmt.Sprintf("Annual turnover: %s", floatOrNA(b.AnnualTurnover)))
	add("business_vintage", "Business Vintage", 15, scoreBusinessVintage(b.BusinessVintageYears),
		fmt.Sprintf("Vintage (years): %s", floatOrNA(b.BusinessVintageYears)))
	add("banking_strength", "Banking Strength", 20,
		scoreBankingStrength(b.AvgMonthlyBalance, b.BounceCount12M, b.CashDepositRatio, p.MinABB),
		"Based on average balance, bounce count, and cash deposit ratio")
	add("foir", "FOIR", 10, scoreFOIR(b.EMIOutflowMonthly, b.MonthlyCreditAvg),
		"Fixed obligations vs monthly inflow")
	add("documentation", "Documentation", 10, scoreDocumentation(b, p),
		"Required document coverage for this lender")

	if len(components) == 0 {
		return 0, nil
	}

	totalWeight := 0
	weightedSum := 0.0
	for _, c := range components {
		totalWeight += c.Weight
		weightedSum += c.Score * float64(c.Weight)
	}
	final := math.Round(weightedSum/float64(totalWeight)*100) / 100
	return final, components
}

// scoreCIBILBand: 750+ = 100, 725-749 = 90, 700-724 = 75,
// 675-699 = 60, 650-674 = 40, below = 20.
func scoreCIBILBand(cibil *int) *float64 {
	if cibil == nil {
		return nil
	}
	var score float64
	switch {
	case *cibil >= 750:
		score = 100
	case *cibil >= 725:
		score = 90
	case *cibil >= 700:
		score = 75
	case *cibil >= 675:
		score = 60
	case *cibil >= 650:
		score = 40
	default:
		score = 20
	}
	return &score
}

// scoreTurnoverBand scores the ratio of turnover to the product minimum.
func scoreTurnoverBand(annualTurnover, minTurnover *float64) *float64 {
	if annualTurnover == nil || minTurnover == nil || *minTurnover == 0 {
		return nil
	}
	ratio := *annualTurnover / *minTurnover
	var score float64
	switch {
	case ratio >= 3.0:
		score = 100
	case ratio >= 2.0:
		score = 80
	case ratio >= 1.5:
		score = 60
	case ratio >= 1.0:
		score = 40
	default:
		score = 20
	}
	return &score
}

func scoreBusinessVintage(vintageYears *float64) *float64 {
	if vintageYears == nil {
		return nil
	}
	var score float64
	switch {
	case *vintageYears >= 5.0:
		score = 100
	case *vintageYears >= 3.0:
		score = 80
	case *vintageYears >= 2.0:
		score = 60
	case *vintageYears >= 1.0:
		score = 40
	default:
		score = 20
	}
	return &score
}

// scoreBankingStrength averages up to three sub-scores: balance vs ABB,
// bounce-count tier, cash-deposit-ratio tier.
func scoreBankingStrength(avgBalance *float64, bounceCount *int, cashRatio, minABB *float64) *float64 {
	var subScores []float64

	if avgBalance != nil && minABB != nil && *minABB > 0 {
		ratio := *avgBalance / *minABB
		switch {
		case ratio >= 2.0:
			subScores = append(subScores, 100)
		case ratio >= 1.5:
			subScores = append(subScores, 80)
		case ratio >= 1.0:
			subScores = append(subScores, 60)
		default:
			subScores = append(subScores, 30)
		}
	}

	if bounceCount != nil {
		switch {
		case *bounceCount == 0:
			subScores = append(subScores, 100)
		case *bounceCount <= 2:
			subScores = append(subScores, 70)
		default:
			subScores = append(subScores, 30)
		}
	}

	if cashRatio != nil {
		switch {
		case *cashRatio < 0.20:
			subScores = append(subScores, 100)
		case *cashRatio < 0.40:
			subScores = append(subScores, 60)
		default:
			subScores = append(subScores, 30)
		}
	}

	if len(subScores) == 0 {
		return nil
	}
	var total float64
	for _, s := range subScores {
		total += s
	}
	avg := total / float64(len(subScores))
	return &avg
}

// scoreFOIR: <30% = 100, 30-45% = 75, 45-55% = 50, 55-65% = 30, above = 0.
func scoreFOIR(emiOutflow, monthlyCredit *float64) *float64 {
	if emiOutflow == nil || monthlyCredit == nil || *monthlyCredit == 0 {
		return nil
	}
	foir := *emiOutflow / *monthlyCredit
	var score float64
	switch {
	case foir < 0.30:
		score = 100
	case foir < 0.45:
		score = 75
	case foir < 0.55:
		score = 50
	case foir < 0.65:
		score = 30
	default:
		score = 0
	}
	return &score
}

// scoreDocumentation returns the share of the lender's required docs present.
func scoreDocumentation(b *store.BorrowerFeatures, p *store.ProductRule) *float64 {
	required := 0
	available := 0

	if p.GSTRequired {
		required++
		if b.GSTIN != nil && *b.GSTIN != "" {
			available++
		}
	}

	if p.OwnershipProofReq {
		// Ownership proof is not captured in the feature vector.
		required++
	}

	if p.KYCDocuments != nil {
		kyc := strings.ToUpper(*p.KYCDocuments)
		if strings.Contains(kyc, "PAN") {
			required++
			if b.PANNumber != nil && *b.PANNumber != "" {
				available++
			}
		}
		if strings.Contains(kyc, "AADHAAR") || strings.Contains(kyc, "AADHAR") {
			required++
			if b.AadhaarNumber != nil && *b.AadhaarNumber != "" {
				available++
			}
		}
	}

	var score float64
	if required == 0 {
		score = 100
	} else {
		score = math.Round(float64(available)/float64(required)*100*100) / 100
	}
	return &score
}

// approvalProbability: ≥75 high, ≥50 medium, else low.
func approvalProbability(score float64) store.ApprovalProbability {
	switch {
	case score >= 75:
		return store.ProbabilityHigh
	case score >= 50:
		return store.ProbabilityMedium
	}
	return store.ProbabilityLow
}

// ticketRange estimates the expected ticket in lakhs. The upper bound is the
// lender cap bounded by a turnover multiple keyed to the score tier; the
// lower bound is 15% of the upper.
func ticketRange(b *store.BorrowerFeatures, p *store.ProductRule, score float64) (*float64, *float64) {
	var maxTicket *float64

	if b.AnnualTurnover != nil {
		var multiple float64
		switch {
		case score >= 75:
			multiple = 0.25
		case score >= 50:
			multiple = 0.15
		default:
			multiple = 0.10
		}
		v := *b.AnnualTurnover * multiple
		maxTicket = &v
	}

	if p.MaxTicketSize != nil && (maxTicket == nil || *p.MaxTicketSize < *maxTicket) {
		v := *p.MaxTicketSize
		maxTicket = &v
	}

	if maxTicket == nil {
		return nil, nil
	}
	minTicket := *maxTicket * 0.15
	return &minTicket, maxTicket
}

// improvements lists the weak signals of a passing but sub-75 profile.
func improvements(b *store.BorrowerFeatures, score float64) []string {
	missing := []string{}
	if score >= 75 {
		return missing
	}

	if b.CIBILScore != nil && *b.CIBILScore < 725 {
		missing = append(missing, fmt.Sprintf("Improve CIBIL score (currently %d)", *b.CIBILScore))
	}
	if b.BusinessVintageYears != nil && *b.BusinessVintageYears < 3 {
		missing = append(missing, "Business vintage < 3 years")
	}
	if b.BounceCount12M != nil && *b.BounceCount12M > 2 {
		missing = append(missing, fmt.Sprintf("Reduce EMI bounces (currently %d)", *b.BounceCount12M))
	}
	if b.GSTIN == nil || *b.GSTIN == "" {
		missing = append(missing, "Add GST registration")
	}
	if b.CashDepositRatio != nil && *b.CashDepositRatio > 0.40 {
		missing = append(missing, "High cash deposit ratio (>40%)")
	}
	return missing
}

func intOrNA(v *int) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *v)
}

func floatOrNA(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%g", *v)
}
