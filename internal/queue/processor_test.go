package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/bankstmt"
	"caseos/internal/store"
)

func floatPtr(v float64) *float64 { return &v }

func TestStatementFields(t *testing.T) {
	res := &bankstmt.Result{
		TransactionCount:  240,
		AvgMonthlyBalance: floatPtr(185000),
		MonthlyCreditAvg:  floatPtr(850000),
		EMIOutflowMonthly: floatPtr(15000),
		BounceCount12M:    2,
		CashDepositRatio:  floatPtr(0.22),
		Confidence:        0.92,
		MonthlySummaries: []bankstmt.MonthlySummary{
			{Month: "2024-01", Credits: 850000, Debits: 640000},
		},
	}

	fields := StatementFields(res)

	byName := map[string]store.ExtractedField{}
	for _, f := range fields {
		byName[f.FieldName] = f
		assert.Equal(t, store.SourceBankAnalysis, f.Source)
		assert.Equal(t, 0.92, f.Confidence)
	}

	assert.Equal(t, "185000", byName["avg_monthly_balance"].FieldValue)
	assert.Equal(t, "850000", byName["monthly_credit_avg"].FieldValue)
	assert.Equal(t, "850000", byName["monthly_turnover"].FieldValue)
	// 850000 × 12 / 100000 = 102 lakhs
	assert.Equal(t, "102", byName["annual_turnover"].FieldValue)
	assert.Equal(t, "15000", byName["emi_outflow_monthly"].FieldValue)
	assert.Equal(t, "2", byName["bounce_count_12m"].FieldValue)
	assert.Equal(t, "0.22", byName["cash_deposit_ratio"].FieldValue)

	require.Contains(t, byName, "bank_monthly_summary")
	assert.Contains(t, byName["bank_monthly_summary"].FieldValue, "2024-01")
}

func TestStatementFieldsWithoutCredits(t *testing.T) {
	res := &bankstmt.Result{TransactionCount: 3, BounceCount12M: 0, Confidence: 0.1}
	fields := StatementFields(res)

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FieldName)
	}
	assert.NotContains(t, names, "annual_turnover")
	assert.Contains(t, names, "bounce_count_12m")
}
