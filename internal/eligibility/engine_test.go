package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/store"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

// allowAll answers every pincode check positively except the listed blocked
// lender ids.
type allowAll struct {
	blocked map[string]bool
}

func (a allowAll) PincodeServiceable(_ context.Context, lenderID, _ string) (bool, error) {
	return !a.blocked[lenderID], nil
}

func strongBorrower() *store.BorrowerFeatures {
	dob := time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC)
	return &store.BorrowerFeatures{
		FullName:             strPtr("Rajesh Sharma"),
		PANNumber:            strPtr("ABCPE1234F"),
		AadhaarNumber:        strPtr("123456789012"),
		DOB:                  &dob,
		EntityType:           strPtr("proprietorship"),
		BusinessVintageYears: floatPtr(8),
		GSTIN:                strPtr("27AABCU9603R1ZM"),
		Pincode:              strPtr("400001"),
		AnnualTurnover:       floatPtr(120),
		AvgMonthlyBalance:    floatPtr(250000),
		MonthlyCreditAvg:     floatPtr(900000),
		MonthlyTurnover:      floatPtr(900000),
		EMIOutflowMonthly:    floatPtr(50000),
		BounceCount12M:       intPtr(0),
		CashDepositRatio:     floatPtr(0.15),
		CIBILScore:           intPtr(780),
		FeatureCompleteness:  90,
	}
}

func product(id, lender string) store.ProductRule {
	return store.ProductRule{
		LenderProduct: store.LenderProduct{
			ID:                  id,
			LenderID:            "lid-" + id,
			ProductName:         "BL",
			ProgramType:         store.ProgramBanking,
			PolicyAvailable:     true,
			MinVintageYears:     floatPtr(2),
			MinCIBILScore:       intPtr(700),
			MinTurnoverAnnual:   floatPtr(30),
			MaxTicketSize:       floatPtr(50),
			MinABB:              floatPtr(100000),
			EligibleEntityTypes: []string{"proprietorship", "pvt_ltd"},
			AgeMin:              intPtr(22),
			AgeMax:              intPtr(65),
			GSTRequired:         true,
			KYCDocuments:        strPtr("PAN, Aadhaar"),
		},
		LenderName: lender,
	}
}

func fixedClock() time.Time {
	return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
}

func newTestEngine(blocked map[string]bool) *Engine {
	return NewEngine(allowAll{blocked: blocked}, nil).WithClock(fixedClock)
}

func TestStrongBorrowerPassesMultipleLenders(t *testing.T) {
	e := newTestEngine(nil)

	products := []store.ProductRule{
		product("p1", "Godrej"),
		product("p2", "Tata Capital"),
		product("p3", "IIFL"),
	}

	resp, err := e.Score(context.Background(), strongBorrower(), products)
	require.NoError(t, err)

	assert.Equal(t, 3, resp.TotalLendersEvaluated)
	assert.Equal(t, 3, resp.LendersPassed)
	assert.Empty(t, resp.RejectionReasons)

	for i, r := range resp.Results {
		require.Equal(t, store.FilterPass, r.Status)
		require.NotNil(t, r.Score)
		assert.GreaterOrEqual(t, *r.Score, 0.0)
		assert.LessOrEqual(t, *r.Score, 100.0)
		require.NotNil(t, r.Probability)
		assert.Equal(t, store.ProbabilityHigh, *r.Probability)
		require.NotNil(t, r.Rank)
		assert.Equal(t, i+1, *r.Rank)
		require.NotNil(t, r.Explain)
		assert.NotEmpty(t, r.Explain.ScoreBreakdown)
		assert.NotEmpty(t, r.Explain.LenderTerms)

		// Expected ticket never exceeds the product cap.
		require.NotNil(t, r.ExpectedTicketMax)
		assert.LessOrEqual(t, *r.ExpectedTicketMax, 50.0)
	}
}

func TestCIBILBandBoundaries(t *testing.T) {
	tests := []struct {
		cibil int
		want  float64
	}{
		{750, 100}, {749, 90}, {725, 90}, {724, 75}, {700, 75},
		{699, 60}, {675, 60}, {674, 40}, {650, 40}, {649, 20},
	}
	for _, tt := range tests {
		got := scoreCIBILBand(intPtr(tt.cibil))
		require.NotNil(t, got, "cibil %d", tt.cibil)
		assert.Equal(t, tt.want, *got, "cibil %d", tt.cibil)
	}
	assert.Nil(t, scoreCIBILBand(nil))
}

func TestApprovalProbabilityThresholds(t *testing.T) {
	assert.Equal(t, store.ProbabilityHigh, approvalProbability(75))
	assert.Equal(t, store.ProbabilityMedium, approvalProbability(74.99))
	assert.Equal(t, store.ProbabilityMedium, approvalProbability(50))
	assert.Equal(t, store.ProbabilityLow, approvalProbability(49.99))
}

func TestHardFilterFailuresAccumulate(t *testing.T) {
	e := newTestEngine(nil)

	weak := strongBorrower()
	weak.CIBILScore = intPtr(620)
	weak.BusinessVintageYears = floatPtr(1.5)
	weak.AnnualTurnover = floatPtr(15)

	resp, err := e.Score(context.Background(), weak, []store.ProductRule{product("p1", "Godrej")})
	require.NoError(t, err)

	require.Equal(t, 0, resp.LendersPassed)
	r := resp.Results[0]
	assert.Equal(t, store.FilterFail, r.Status)
	assert.Contains(t, r.FailureReasons, "cibil_score")
	assert.Contains(t, r.FailureReasons, "vintage")
	assert.Contains(t, r.FailureReasons, "turnover")
	assert.Nil(t, r.Score)
	assert.Nil(t, r.Rank)

	assert.NotEmpty(t, resp.RejectionReasons)
	assert.NotEmpty(t, resp.SuggestedActions)

	require.NotEmpty(t, resp.DynamicRecommendations)
	assert.Equal(t, 1, resp.DynamicRecommendations[0].PriorityRank)
}

func TestPincodeNotServiceableFailsEverywhere(t *testing.T) {
	e := newTestEngine(map[string]bool{"lid-p1": true, "lid-p2": true})

	b := strongBorrower()
	b.Pincode = strPtr("999999")

	resp, err := e.Score(context.Background(), b, []store.ProductRule{
		product("p1", "Godrej"),
		product("p2", "IIFL"),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, resp.LendersPassed)
	for _, r := range resp.Results {
		assert.Contains(t, r.FailureReasons, "pincode")
	}

	var found bool
	for _, rec := range resp.DynamicRecommendations {
		if rec.Issue == "Location Not Serviceable" {
			found = true
			assert.Equal(t, "999999", rec.Current)
		}
	}
	assert.True(t, found, "expected a Location Not Serviceable recommendation")
}

func TestWeakBorrowerCIBILPriorityRecommendation(t *testing.T) {
	e := newTestEngine(nil)

	weak := strongBorrower()
	weak.CIBILScore = intPtr(620)
	weak.BusinessVintageYears = floatPtr(1.5)

	// CIBIL fails on both products, vintage only on the stricter one.
	relaxed := product("p2", "IIFL")
	relaxed.MinVintageYears = floatPtr(1)

	resp, err := e.Score(context.Background(), weak, []store.ProductRule{
		product("p1", "Godrej"),
		relaxed,
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.DynamicRecommendations)
	top := resp.DynamicRecommendations[0]
	assert.Equal(t, "CIBIL Score Too Low", top.Issue)
	assert.Equal(t, 1, top.PriorityRank)
	assert.Equal(t, "620", top.Current)
	assert.Equal(t, "700", top.Target)
}

func TestPolicyUnavailableFailsFast(t *testing.T) {
	e := newTestEngine(nil)

	p := product("p1", "Godrej")
	p.PolicyAvailable = false
	// A CIBIL minimum the borrower would fail is not reached either.
	p.MinCIBILScore = intPtr(900)

	resp, err := e.Score(context.Background(), strongBorrower(), []store.ProductRule{p})
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Equal(t, store.FilterFail, r.Status)
	assert.Len(t, r.FailureReasons, 1)
	assert.Contains(t, r.FailureReasons, "policy_available")
}

func TestDegenerateAgeBoundsNormalized(t *testing.T) {
	// 60-60 is treated as an upper bound only.
	lo, hi := normalizeAgeBounds(intPtr(60), intPtr(60))
	assert.Nil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, 60, *hi)

	// 25-25 is treated as a lower bound only.
	lo, hi = normalizeAgeBounds(intPtr(25), intPtr(25))
	require.NotNil(t, lo)
	assert.Equal(t, 25, *lo)
	assert.Nil(t, hi)

	// Inverted bounds swap.
	lo, hi = normalizeAgeBounds(intPtr(65), intPtr(22))
	assert.Equal(t, 22, *lo)
	assert.Equal(t, 65, *hi)
}

func TestEntityEquivalence(t *testing.T) {
	assert.True(t, entityMatches("Individual", []string{"proprietorship"}))
	assert.True(t, entityMatches("Private Limited", []string{"pvt_ltd"}))
	assert.True(t, entityMatches("pvt_ltd", []string{"company"}))
	assert.False(t, entityMatches("trust", []string{"pvt_ltd", "proprietorship"}))
}

func TestMissingComponentsRenormalizeWeights(t *testing.T) {
	// Only CIBIL and documentation data exist; the final score is the
	// weighted mean over present components, not dragged down by absences.
	b := &store.BorrowerFeatures{CIBILScore: intPtr(780), PANNumber: strPtr("ABCPE1234F")}
	p := product("p1", "Godrej")
	p.MinTurnoverAnnual = nil
	p.MinABB = nil
	p.GSTRequired = false
	p.KYCDocuments = strPtr("PAN")

	score, breakdown := scoreWithBreakdown(b, &p)
	require.Len(t, breakdown, 2)
	// CIBIL 100 at weight 25 + documentation 100 at weight 10 → 100.
	assert.Equal(t, 100.0, score)
}

func TestScoreIdempotent(t *testing.T) {
	e := newTestEngine(nil)
	products := []store.ProductRule{product("p1", "Godrej"), product("p2", "IIFL")}

	first, err := e.Score(context.Background(), strongBorrower(), products)
	require.NoError(t, err)
	second, err := e.Score(context.Background(), strongBorrower(), products)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
}

func TestTicketRangeBounds(t *testing.T) {
	b := strongBorrower()
	p := product("p1", "Godrej")

	minTicket, maxTicket := ticketRange(b, &p, 80)
	require.NotNil(t, maxTicket)
	require.NotNil(t, minTicket)
	// Turnover 120L at 25% = 30L, below the 50L cap.
	assert.InDelta(t, 30.0, *maxTicket, 0.001)
	assert.InDelta(t, 4.5, *minTicket, 0.001)

	// Without a product cap, the score tier picks the multiple.
	p.MaxTicketSize = nil
	_, maxTicket = ticketRange(b, &p, 60)
	require.NotNil(t, maxTicket)
	assert.InDelta(t, 18.0, *maxTicket, 0.001)
}

func TestFromRowsRecomputesAdvisory(t *testing.T) {
	e := newTestEngine(nil)

	weak := strongBorrower()
	weak.CIBILScore = intPtr(620)

	rows := []store.EligibilityRow{
		{
			LenderProductID:   "p1",
			LenderName:        "Godrej",
			ProductName:       "BL",
			HardFilterStatus:  store.FilterFail,
			HardFilterDetails: []byte(`{"cibil_score":"CIBIL 620 < required 700"}`),
		},
	}

	resp := e.FromRows(weak, rows)
	assert.Equal(t, 0, resp.LendersPassed)
	assert.NotEmpty(t, resp.RejectionReasons)
	assert.NotEmpty(t, resp.DynamicRecommendations)
	assert.Equal(t, "CIBIL Score Too Low", resp.DynamicRecommendations[0].Issue)
}
