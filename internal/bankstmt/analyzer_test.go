package bankstmt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txn(day string, narration string, withdrawal, deposit float64, closing float64) Transaction {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	c := closing
	return Transaction{
		Date:           d,
		ValueDate:      d,
		Narration:      narration,
		WithdrawalAmt:  withdrawal,
		DepositAmt:     deposit,
		ClosingBalance: &c,
	}
}

func TestStatementPeriodMonths(t *testing.T) {
	res := AnalyzeTransactions([]Transaction{
		txn("2024-01-10", "NEFT CR", 0, 1000, 5000),
		txn("2024-12-20", "NEFT CR", 0, 1000, 6000),
	})
	assert.Equal(t, 12, res.StatementPeriodMonths)

	res = AnalyzeTransactions([]Transaction{
		txn("2024-03-05", "NEFT CR", 0, 1000, 5000),
		txn("2024-03-28", "NEFT CR", 0, 1000, 6000),
	})
	assert.Equal(t, 1, res.StatementPeriodMonths)
}

func TestAvgMonthlyBalanceCheckpoints(t *testing.T) {
	// One month with balances landing before each checkpoint day:
	// day 3 → 1000 (checkpoint 5), day 12 → 2000 (checkpoint 15),
	// day 22 → 3000 (checkpoint 25). Monthly average = 2000.
	res := AnalyzeTransactions([]Transaction{
		txn("2024-06-03", "NEFT CR", 0, 500, 1000),
		txn("2024-06-12", "NEFT CR", 0, 500, 2000),
		txn("2024-06-22", "NEFT CR", 0, 500, 3000),
	})
	require.NotNil(t, res.AvgMonthlyBalance)
	assert.InDelta(t, 2000, *res.AvgMonthlyBalance, 0.01)
}

func TestAvgMonthlyBalanceUsesFirstWhenNoneBeforeCheckpoint(t *testing.T) {
	// All transactions after day 5: checkpoint 5 falls back to the month's
	// first known balance.
	res := AnalyzeTransactions([]Transaction{
		txn("2024-06-10", "NEFT CR", 0, 500, 900),
		txn("2024-06-20", "NEFT CR", 0, 500, 1200),
	})
	require.NotNil(t, res.AvgMonthlyBalance)
	// Checkpoints: 5 → 900 (first), 15 → 900 (day 10), 25 → 1200 (day 20).
	assert.InDelta(t, 1000, *res.AvgMonthlyBalance, 0.01)
}

func TestEMIOutflowUsesLatestMonth(t *testing.T) {
	// EMI debits in November sum 15000, December 18000. The latest month is
	// the current obligation, not the average.
	res := AnalyzeTransactions([]Transaction{
		txn("2024-11-05", "NACH BAJAJ EMI", 15000, 0, 50000),
		txn("2024-12-05", "NACH BAJAJ EMI", 15000, 0, 35000),
		txn("2024-12-12", "HDFC LOAN EMI", 3000, 0, 32000),
		txn("2024-12-20", "POS GROCERY", 2000, 0, 30000),
	})
	require.NotNil(t, res.EMIOutflowMonthly)
	assert.InDelta(t, 18000, *res.EMIOutflowMonthly, 0.01)
}

func TestEMIOutflowZeroWhenNoEMIDebits(t *testing.T) {
	res := AnalyzeTransactions([]Transaction{
		txn("2024-12-05", "POS GROCERY", 2000, 0, 30000),
	})
	require.NotNil(t, res.EMIOutflowMonthly)
	assert.Equal(t, 0.0, *res.EMIOutflowMonthly)
}

func TestBounceCount(t *testing.T) {
	res := AnalyzeTransactions([]Transaction{
		txn("2024-05-03", "CHQ RETURN INSUFFICIENT FUNDS", 500, 0, 10000),
		txn("2024-08-17", "NACH RETURN CHARGES", 590, 0, 9000),
		txn("2024-09-01", "NEFT CR SALARY", 0, 50000, 59000),
	})
	assert.Equal(t, 2, res.BounceCount12M)
}

func TestCashDepositRatio(t *testing.T) {
	res := AnalyzeTransactions([]Transaction{
		txn("2024-04-02", "CASH DEPOSIT BRANCH", 0, 22000, 30000),
		txn("2024-04-10", "NEFT CR CUSTOMER", 0, 78000, 108000),
	})
	require.NotNil(t, res.CashDepositRatio)
	assert.InDelta(t, 0.22, *res.CashDepositRatio, 0.0001)
}

func TestCashDepositRatioExcludesCashCreditAccount(t *testing.T) {
	res := AnalyzeTransactions([]Transaction{
		txn("2024-04-02", "TRF FROM CASH CREDIT A/C", 0, 50000, 60000),
		txn("2024-04-10", "NEFT CR CUSTOMER", 0, 50000, 110000),
	})
	require.NotNil(t, res.CashDepositRatio)
	assert.Equal(t, 0.0, *res.CashDepositRatio)
}

func TestMonthlySummaryAndTotals(t *testing.T) {
	res := AnalyzeTransactions([]Transaction{
		txn("2024-01-05", "NEFT CR", 0, 10000, 15000),
		txn("2024-01-20", "CHQ RETURN", 500, 0, 14500),
		txn("2024-02-03", "NEFT CR", 0, 20000, 34500),
	})

	require.Len(t, res.MonthlySummaries, 2)
	jan := res.MonthlySummaries[0]
	assert.Equal(t, "2024-01", jan.Month)
	assert.Equal(t, 10000.0, jan.Credits)
	assert.Equal(t, 500.0, jan.Debits)
	assert.Equal(t, 1, jan.BounceCount)
	require.NotNil(t, jan.ClosingBalance)
	assert.Equal(t, 14500.0, *jan.ClosingBalance)

	assert.Equal(t, 30000.0, *res.TotalCredits12M)
	assert.Equal(t, 500.0, *res.TotalDebits12M)
	assert.Equal(t, 34500.0, *res.PeakBalance)
	assert.Equal(t, 14500.0, *res.MinBalance)
}

func TestConfidenceBlend(t *testing.T) {
	// 12 distinct months, complete rows: period factor maxes at 30,
	// completeness at 40, volume contributes 12/100*30.
	var txns []Transaction
	for month := 1; month <= 12; month++ {
		txns = append(txns, txn(
			time.Date(2024, time.Month(month), 10, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			"NEFT CR", 0, 1000, 5000))
	}
	res := AnalyzeTransactions(txns)
	assert.InDelta(t, (12.0/100*30+30+40)/100, res.Confidence, 0.011)
}

func TestAnalyzeEmpty(t *testing.T) {
	res := AnalyzeTransactions(nil)
	assert.Equal(t, 0, res.TransactionCount)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestNormalizeCoercesDatesAndAmounts(t *testing.T) {
	raw := []RawTransaction{
		{
			TransactionDate: json.RawMessage(`1704067200000`), // 2024-01-01 UTC, epoch millis
			Narration:       "NEFT CR",
			DepositAmt:      json.RawMessage(`"1,50,000"`),
			ClosingBalance:  json.RawMessage(`"2,00,000.50"`),
		},
		{
			TransactionDate: json.RawMessage(`"15/02/2024"`),
			Narration:       "ATM WDL",
			WithdrawalAmt:   json.RawMessage(`5000`),
		},
		{
			// No usable date: dropped.
			Narration:  "JUNK",
			DepositAmt: json.RawMessage(`100`),
		},
	}

	txns := Normalize(raw)
	require.Len(t, txns, 2)

	assert.Equal(t, 2024, txns[0].Date.Year())
	assert.Equal(t, time.January, txns[0].Date.Month())
	assert.Equal(t, 150000.0, txns[0].DepositAmt)
	require.NotNil(t, txns[0].ClosingBalance)
	assert.Equal(t, 200000.50, *txns[0].ClosingBalance)

	assert.Equal(t, time.February, txns[1].Date.Month())
	assert.Equal(t, 15, txns[1].Date.Day())
	assert.Equal(t, 5000.0, txns[1].WithdrawalAmt)
	assert.Nil(t, txns[1].ClosingBalance)
}
