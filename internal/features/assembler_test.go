package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/store"
)

func strPtr(s string) *string     { return &s }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func field(name, value string, conf float64) store.ExtractedField {
	return store.ExtractedField{FieldName: name, FieldValue: value, Confidence: conf, Source: store.SourceExtraction}
}

func TestAssembleHighConfidenceExtractionWins(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1", CIBILScoreManual: intPtr(650)}

	vec := a.Assemble(c, []store.ExtractedField{field("cibil_score", "742", 0.85)})

	require.NotNil(t, vec.CIBILScore)
	assert.Equal(t, 742, *vec.CIBILScore)
}

func TestAssembleManualBeatsLowConfidence(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1", CIBILScoreManual: intPtr(650)}

	vec := a.Assemble(c, []store.ExtractedField{field("cibil_score", "742", 0.3)})

	require.NotNil(t, vec.CIBILScore)
	assert.Equal(t, 650, *vec.CIBILScore)
}

func TestAssembleLowConfidenceBeatsNothing(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1"}

	vec := a.Assemble(c, []store.ExtractedField{field("cibil_score", "742", 0.3)})

	require.NotNil(t, vec.CIBILScore)
	assert.Equal(t, 742, *vec.CIBILScore)
}

func TestAssembleDerivations(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1"}

	vec := a.Assemble(c, []store.ExtractedField{
		field("monthly_credit_avg", "850000", 0.8),
	})

	require.NotNil(t, vec.MonthlyTurnover)
	assert.Equal(t, 850000.0, *vec.MonthlyTurnover)

	// annual_turnover = monthly_turnover × 12 / 100000 (lakhs)
	require.NotNil(t, vec.AnnualTurnover)
	assert.InDelta(t, 102.0, *vec.AnnualTurnover, 0.001)
}

func TestAssembleCoercions(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1"}

	vec := a.Assemble(c, []store.ExtractedField{
		field("dob", "15-06-1985", 0.8),
		field("annual_turnover", "1,20,00,000", 0.8),
		field("active_loan_count", "3.0", 0.8),
		field("entity_type", "Pvt. Ltd", 0.8),
	})

	require.NotNil(t, vec.DOB)
	assert.Equal(t, time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC), *vec.DOB)

	require.NotNil(t, vec.AnnualTurnover)
	assert.Equal(t, 12000000.0, *vec.AnnualTurnover)

	require.NotNil(t, vec.ActiveLoanCount)
	assert.Equal(t, 3, *vec.ActiveLoanCount)

	require.NotNil(t, vec.EntityType)
	assert.Equal(t, "pvt_ltd", *vec.EntityType)
}

func TestAssembleGSTDataFillsGaps(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{
		ID:      "uuid-1",
		GSTData: []byte(`{"borrower_name":"Urban Traders","entity_type":"pvt_ltd","business_vintage_years":6.5,"pincode":"400001","industry_type":"trading"}`),
	}

	vec := a.Assemble(c, nil)

	require.NotNil(t, vec.FullName)
	assert.Equal(t, "Urban Traders", *vec.FullName)
	require.NotNil(t, vec.BusinessVintageYears)
	assert.Equal(t, 6.5, *vec.BusinessVintageYears)
	require.NotNil(t, vec.Pincode)
	assert.Equal(t, "400001", *vec.Pincode)
}

func TestAssembleCompleteness(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1"}

	vec := a.Assemble(c, []store.ExtractedField{
		field("full_name", "Rajesh Sharma", 0.8),
		field("cibil_score", "742", 0.85),
		field("pincode", "400001", 0.9),
	})

	// 3 of 21 slots filled.
	assert.InDelta(t, 14.29, vec.FeatureCompleteness, 0.01)
}

func TestAssembleIsDeterministic(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{
		ID:               "uuid-1",
		BorrowerName:     strPtr("Manual Name"),
		CIBILScoreManual: intPtr(700),
	}
	fields := []store.ExtractedField{
		field("cibil_score", "742", 0.85),
		field("monthly_credit_avg", "500000", 0.8),
		field("pincode", "400001", 0.9),
	}

	first := a.Assemble(c, fields)
	second := a.Assemble(c, fields)
	assert.Equal(t, first, second)
}

func TestAssembleLatestRowWins(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1"}

	// The store returns newest rows first; the first row per field wins.
	vec := a.Assemble(c, []store.ExtractedField{
		field("cibil_score", "760", 0.85),
		field("cibil_score", "650", 0.9),
	})

	require.NotNil(t, vec.CIBILScore)
	assert.Equal(t, 760, *vec.CIBILScore)
}

func TestAssembleUnparseableValueLeavesSlotUnset(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1"}

	vec := a.Assemble(c, []store.ExtractedField{
		field("dob", "not-a-date", 0.9),
		field("entity_type", "martian collective", 0.9),
	})

	assert.Nil(t, vec.DOB)
	assert.Nil(t, vec.EntityType)
	assert.Equal(t, 0.0, vec.FeatureCompleteness)
}

func TestAssembleManualTurnoverUsedWithoutBankData(t *testing.T) {
	a := NewAssembler(0.5)
	c := &store.Case{ID: "uuid-1", MonthlyTurnoverMan: floatPtr(600000)}

	vec := a.Assemble(c, nil)

	require.NotNil(t, vec.MonthlyTurnover)
	assert.Equal(t, 600000.0, *vec.MonthlyTurnover)
	require.NotNil(t, vec.AnnualTurnover)
	assert.InDelta(t, 72.0, *vec.AnnualTurnover, 0.001)
}
