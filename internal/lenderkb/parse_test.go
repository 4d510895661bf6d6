package lenderkb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/store"
)

func TestParseFloatValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30L", 30},
		{"3.5L", 3.5},
		{">=25K", 0.25}, // thousands converted to lakhs
		{"15K", 0.15},
		{"2.5", 2.5},
		{">= 40", 40},
		{"25L or 10% of EMI", 25},
	}
	for _, tt := range tests {
		got := parseFloatValue(tt.in)
		require.NotNil(t, got, "input %q", tt.in)
		assert.InDelta(t, tt.want, *got, 0.001, "input %q", tt.in)
	}

	assert.Nil(t, parseFloatValue(""))
	assert.Nil(t, parseFloatValue("NA"))
	assert.Nil(t, parseFloatValue("-"))
}

func TestParseIntegerValue(t *testing.T) {
	got := parseIntegerValue(">=700")
	require.NotNil(t, got)
	assert.Equal(t, 700, *got)

	assert.Nil(t, parseIntegerValue("N/A"))
}

func TestParseMonths(t *testing.T) {
	got := parseMonths("6 months")
	require.NotNil(t, got)
	assert.Equal(t, 6, *got)

	got = parseMonths("2 years")
	require.NotNil(t, got)
	assert.Equal(t, 24, *got)

	got = parseMonths("12")
	require.NotNil(t, got)
	assert.Equal(t, 12, *got)
}

func TestParseAgeRange(t *testing.T) {
	lo, hi := parseAgeRange("22-65")
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, 22, *lo)
	assert.Equal(t, 65, *hi)

	lo, hi = parseAgeRange("60")
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, *lo, *hi)

	lo, hi = parseAgeRange("NA")
	assert.Nil(t, lo)
	assert.Nil(t, hi)
}

func TestParseEntityTypes(t *testing.T) {
	assert.Equal(t, []string{"pvt_ltd", "llp"}, parseEntityTypes("Pvt Ltd, LLP"))
	assert.Equal(t, []string{"proprietorship", "partnership"}, parseEntityTypes("Proprietorship, Partnership"))
	assert.Nil(t, parseEntityTypes("NA"))
}

func TestNormalizeLenderName(t *testing.T) {
	assert.Equal(t, "Tata Capital", normalizeLenderName("TATA PL"))
	assert.Equal(t, "Tata Capital", normalizeLenderName("tata bl"))
	assert.Equal(t, "Unity Small Finance Bank", normalizeLenderName("USFB PL"))
	// Unknown lenders are title-cased.
	assert.Equal(t, "New Lender Co", normalizeLenderName("NEW LENDER CO"))
}

func TestPolicyAvailableSentinel(t *testing.T) {
	assert.False(t, policyAvailable(map[string]string{
		"Lender": "Godrej", "Min. Score": "Policy not available",
	}))
	assert.True(t, policyAvailable(map[string]string{
		"Lender": "Godrej", "Min. Score": "700",
	}))
}

func TestInferProgramType(t *testing.T) {
	assert.Equal(t, store.ProgramBanking, inferProgramType("Digital BL"))
	assert.Equal(t, store.ProgramBanking, inferProgramType("Banking Surrogate"))
	assert.Equal(t, store.ProgramIncome, inferProgramType("Income ITR Program"))
	assert.Equal(t, store.ProgramHybrid, inferProgramType("STBL"))
}

func TestParsePolicyRow(t *testing.T) {
	row := map[string]string{
		"Lender":            "TATA BL",
		"Product Program":   "Digital BL",
		"Min. Vintage":      "3",
		"Min. Score":        ">=700",
		"Min. Turnover":     "30L",
		"Max Ticket size":   "50L",
		"ABB":               "25K or 1.5x EMI",
		"Entity":            "Pvt Ltd, Proprietorship",
		"Age":               "22-65",
		"No 30+":            "6 months",
		"Banking Statement": "12 months",
		"GST":               "Mandatory",
		"Video KYC":         "Yes",
		"FI":                "No",
		"KYC Doc":           "PAN, Aadhaar",
		"Tenor Min":         "12",
		"Tenor Max":         "48",
	}

	p := parsePolicyRow(row, "lender-1")

	assert.Equal(t, "Digital BL", p.ProductName)
	assert.Equal(t, store.ProgramBanking, p.ProgramType)
	assert.True(t, p.PolicyAvailable)
	assert.Equal(t, 3.0, *p.MinVintageYears)
	assert.Equal(t, 700, *p.MinCIBILScore)
	assert.Equal(t, 30.0, *p.MinTurnoverAnnual)
	assert.Equal(t, 50.0, *p.MaxTicketSize)
	assert.InDelta(t, 0.25, *p.MinABB, 0.001)
	require.NotNil(t, p.ABBToEMIRatio)
	assert.Equal(t, []string{"pvt_ltd", "proprietorship"}, []string(p.EligibleEntityTypes))
	assert.Equal(t, 22, *p.AgeMin)
	assert.Equal(t, 65, *p.AgeMax)
	assert.Equal(t, 6, *p.No30PlusDPDMonths)
	assert.Equal(t, 12, *p.BankingMonthsReq)
	assert.True(t, p.GSTRequired)
	assert.True(t, p.VideoKYCRequired)
	assert.False(t, p.FIRequired)
	assert.Equal(t, 12, *p.TenorMinMonths)
	assert.Equal(t, 48, *p.TenorMaxMonths)
}
