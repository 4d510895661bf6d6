package bankstmt

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// emiKeywords flag debit narrations that look like loan obligations.
var emiKeywords = []string{
	"EMI", "LOAN", "NACH", "ECS", "SI-", "MANDATE",
	"BAJAJ", "HDFC LOAN", "TATA CAPITAL", "ICICI LOAN",
	"HOME LOAN", "CAR LOAN", "PERSONAL LOAN",
	"AUTO DEBIT", "STANDING INSTRUCTION",
}

var bounceKeywords = []string{
	"BOUNCE", "RETURN", "DISHON", "INSUFFICIENT",
	"UNPAID", "REJECT", "INWARD RETURN", "CHQ RETURN",
	"ECS RETURN", "NACH RETURN", "FAILED", "REVERSED",
}

var cashDepositKeywords = []string{
	"CASH DEP", "BY CASH", "CASH DEPOSIT",
	"CASH CR", "CASH CREDIT",
}

// cashDepositExclude filters out "cash credit account" narrations, which name
// an account type rather than a deposit.
var cashDepositExclude = []string{"CASH CREDIT A/C", "CC A/C", "CC ACCOUNT"}

// MonthlySummary is the per-month breakdown.
type MonthlySummary struct {
	Month          string   `json:"month"`
	Credits        float64  `json:"credits"`
	Debits         float64  `json:"debits"`
	ClosingBalance *float64 `json:"closing_balance"`
	BounceCount    int      `json:"bounce_count"`
}

// Result holds the computed cash-flow metrics for a case's statements.
type Result struct {
	BankDetected          string           `json:"bank_detected,omitempty"`
	AccountNumber         string           `json:"account_number,omitempty"`
	TransactionCount      int              `json:"transaction_count"`
	StatementPeriodMonths int              `json:"statement_period_months"`
	AvgMonthlyBalance     *float64         `json:"avg_monthly_balance"`
	MonthlyCreditAvg      *float64         `json:"monthly_credit_avg"`
	MonthlyDebitAvg       *float64         `json:"monthly_debit_avg"`
	EMIOutflowMonthly     *float64         `json:"emi_outflow_monthly"`
	BounceCount12M        int              `json:"bounce_count_12m"`
	CashDepositRatio      *float64         `json:"cash_deposit_ratio"`
	PeakBalance           *float64         `json:"peak_balance"`
	MinBalance            *float64         `json:"min_balance"`
	TotalCredits12M       *float64         `json:"total_credits_12m"`
	TotalDebits12M        *float64         `json:"total_debits_12m"`
	MonthlySummaries      []MonthlySummary `json:"monthly_summary"`
	Confidence            float64          `json:"confidence"`
	Source                string           `json:"source"`
	TimedOut              bool             `json:"timed_out,omitempty"`
	ParserSummary         map[string]any   `json:"parser_summary,omitempty"`
}

// Analyzer wraps the statement parser and the metric computation layer.
type Analyzer struct {
	remote  *RemoteParser
	local   Parser
	caps    Caps
	timeout time.Duration
	logger  *zap.Logger
}

// Caps bound analyzer input per case.
type Caps struct {
	MaxBytesPerPDF int64
	MaxStatements  int
}

// NewAnalyzer builds an Analyzer. local may be nil to disable the fallback.
func NewAnalyzer(remote *RemoteParser, local Parser, caps Caps, timeout time.Duration, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{remote: remote, local: local, caps: caps, timeout: timeout, logger: logger}
}

// Analyze parses the statement PDFs and computes metrics. The whole run is
// bounded by the configured timeout; exceeding it yields a structured result
// with TimedOut set rather than an error.
func (a *Analyzer) Analyze(ctx context.Context, pdfs [][]byte) *Result {
	pdfs = a.applyCaps(pdfs)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resultCh := make(chan *Result, 1)

	// Parsing is offloaded so the timeout stays enforceable over slow PDFs.
	var g errgroup.Group
	g.Go(func() error {
		resultCh <- a.analyzeOnce(ctx, pdfs)
		return nil
	})

	select {
	case res := <-resultCh:
		_ = g.Wait()
		return res
	case <-ctx.Done():
		a.logger.Warn("bank statement analysis timed out", zap.Duration("timeout", a.timeout))
		return &Result{Confidence: 0, Source: "timeout", TimedOut: true}
	}
}

func (a *Analyzer) applyCaps(pdfs [][]byte) [][]byte {
	kept := make([][]byte, 0, len(pdfs))
	for _, pdf := range pdfs {
		if a.caps.MaxBytesPerPDF > 0 && int64(len(pdf)) > a.caps.MaxBytesPerPDF {
			a.logger.Warn("dropping oversized statement PDF", zap.Int("bytes", len(pdf)))
			continue
		}
		kept = append(kept, pdf)
	}

	if a.caps.MaxStatements > 0 && len(kept) > a.caps.MaxStatements {
		// Keep the largest files; they carry the most transaction history.
		sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
		kept = kept[:a.caps.MaxStatements]
	}
	return kept
}

func (a *Analyzer) analyzeOnce(ctx context.Context, pdfs [][]byte) *Result {
	if a.remote != nil && a.remote.Configured() {
		payload, err := a.remote.Parse(ctx, pdfs)
		if err == nil {
			if res := a.fromPayload(payload, "remote"); res.TransactionCount > 0 {
				return res
			}
		} else {
			a.logger.Warn("remote statement parser failed, trying local fallback", zap.Error(err))
		}
	}

	if a.local != nil {
		payload, err := a.local.Parse(ctx, pdfs)
		if err != nil {
			a.logger.Warn("local statement parser failed", zap.Error(err))
			return &Result{Confidence: 0, Source: "local_parser"}
		}
		return a.fromPayload(payload, "local_parser")
	}

	return &Result{Confidence: 0, Source: "unconfigured"}
}

func (a *Analyzer) fromPayload(payload *ParsePayload, source string) *Result {
	var all []RawTransaction
	bank, account := "", ""
	for _, st := range payload.Statements {
		all = append(all, st.Transactions...)
		if bank == "" {
			bank = st.Bank
			if bank == "" {
				bank, _ = st.BasicInfo["bankName"].(string)
			}
		}
		if account == "" {
			account = st.AccountNumber
			if account == "" {
				account, _ = st.BasicInfo["accountNumber"].(string)
			}
		}
	}

	res := AnalyzeTransactions(Normalize(all))
	res.BankDetected = bank
	res.AccountNumber = account
	res.Source = source
	res.ParserSummary = summarizePayload(payload, len(all))
	return res
}

func summarizePayload(payload *ParsePayload, txCount int) map[string]any {
	summary := map[string]any{
		"statement_count":    len(payload.Statements),
		"total_input_files":  payload.TotalInputFiles,
		"total_transactions": payload.TotalTransactions,
	}
	if payload.TotalTransactions == 0 {
		summary["total_transactions"] = txCount
	}
	if len(payload.Statements) > 0 {
		grand := payload.Statements[0].GrandTotal
		for _, key := range []string{
			"creditTransactionsAmount", "debitTransactionsAmount",
			"noOfEMI", "totalEMIAmount", "noOfEMIBounce",
		} {
			if v, ok := grand[key]; ok {
				summary[key] = v
			}
		}
	}
	return summary
}

// AnalyzeTransactions computes all metrics from normalized transactions.
// Exposed separately so pre-parsed transactions can be analyzed directly, as
// the tests do.
func AnalyzeTransactions(txns []Transaction) *Result {
	if len(txns) == 0 {
		return &Result{Confidence: 0}
	}

	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Date.Before(txns[j].Date) })

	periodMonths := monthsBetween(txns[0].Date, txns[len(txns)-1].Date)

	res := &Result{
		TransactionCount:      len(txns),
		StatementPeriodMonths: periodMonths,
		AvgMonthlyBalance:     avgMonthlyBalance(txns),
		MonthlyCreditAvg:      monthlyAvg(txns, func(t Transaction) float64 { return t.DepositAmt }),
		MonthlyDebitAvg:       monthlyAvg(txns, func(t Transaction) float64 { return t.WithdrawalAmt }),
		EMIOutflowMonthly:     emiOutflow(txns),
		BounceCount12M:        bounceCount(txns),
		CashDepositRatio:      cashDepositRatio(txns),
		MonthlySummaries:      monthlySummaries(txns),
	}

	res.PeakBalance, res.MinBalance = balanceExtremes(txns)
	res.TotalCredits12M = roundPtr(sumBy(txns, func(t Transaction) float64 { return t.DepositAmt }))
	res.TotalDebits12M = roundPtr(sumBy(txns, func(t Transaction) float64 { return t.WithdrawalAmt }))
	res.Confidence = confidence(txns, periodMonths)

	return res
}

func monthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

func monthsBetween(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if months+1 < 1 {
		return 1
	}
	return months + 1
}

// avgMonthlyBalance uses the 5/15/25 checkpoint method: for each month, the
// closing balance of the latest transaction on or before each checkpoint day
// (or the month's first known balance when none precedes it), averaged per
// month and then across months.
func avgMonthlyBalance(txns []Transaction) *float64 {
	type entry struct {
		day     int
		balance float64
	}
	byMonth := map[string][]entry{}
	for _, t := range txns {
		if t.ClosingBalance == nil {
			continue
		}
		key := monthKey(t.Date)
		byMonth[key] = append(byMonth[key], entry{day: t.Date.Day(), balance: *t.ClosingBalance})
	}
	if len(byMonth) == 0 {
		return nil
	}

	checkpoints := []int{5, 15, 25}
	var monthlyAverages []float64

	for _, entries := range byMonth {
		var values []float64
		for _, day := range checkpoints {
			picked := entries[0].balance
			found := false
			for _, e := range entries {
				if e.day <= day {
					picked = e.balance
					found = true
				}
			}
			if !found {
				picked = entries[0].balance
			}
			values = append(values, picked)
		}
		monthlyAverages = append(monthlyAverages, mean(values))
	}

	avg := round2(mean(monthlyAverages))
	return &avg
}

func monthlyAvg(txns []Transaction, amount func(Transaction) float64) *float64 {
	byMonth := map[string]float64{}
	for _, t := range txns {
		byMonth[monthKey(t.Date)] += amount(t)
	}
	if len(byMonth) == 0 {
		return nil
	}
	var total float64
	for _, v := range byMonth {
		total += v
	}
	avg := round2(total / float64(len(byMonth)))
	return &avg
}

// emiOutflow sums EMI-flagged debits per month and returns the LATEST month's
// sum, not the average: the latest month reflects the current obligation.
func emiOutflow(txns []Transaction) *float64 {
	byMonth := map[string]float64{}
	for _, t := range txns {
		if t.WithdrawalAmt <= 0 {
			continue
		}
		narration := strings.ToUpper(t.Narration)
		if containsAny(narration, emiKeywords) {
			byMonth[monthKey(t.Date)] += t.WithdrawalAmt
		}
	}
	if len(byMonth) == 0 {
		zero := 0.0
		return &zero
	}

	var latest string
	for key := range byMonth {
		if key > latest {
			latest = key
		}
	}
	v := round2(byMonth[latest])
	return &v
}

func bounceCount(txns []Transaction) int {
	count := 0
	for _, t := range txns {
		narration := strings.ToUpper(t.Narration)
		if !containsAny(narration, bounceKeywords) {
			continue
		}
		// Count debits (return charges) or rows with explicit bounce text.
		if t.WithdrawalAmt > 0 || strings.Contains(narration, "RETURN") || strings.Contains(narration, "BOUNCE") {
			count++
		}
	}
	return count
}

func cashDepositRatio(txns []Transaction) *float64 {
	var totalCredits, cashDeposits float64
	for _, t := range txns {
		if t.DepositAmt <= 0 {
			continue
		}
		totalCredits += t.DepositAmt

		narration := strings.ToUpper(t.Narration)
		if containsAny(narration, cashDepositKeywords) && !containsAny(narration, cashDepositExclude) {
			cashDeposits += t.DepositAmt
		}
	}
	if totalCredits == 0 {
		return nil
	}
	ratio := math.Round(cashDeposits/totalCredits*10000) / 10000
	return &ratio
}

func balanceExtremes(txns []Transaction) (peak, min *float64) {
	for _, t := range txns {
		if t.ClosingBalance == nil {
			continue
		}
		b := *t.ClosingBalance
		if peak == nil || b > *peak {
			v := b
			peak = &v
		}
		if min == nil || b < *min {
			v := b
			min = &v
		}
	}
	return peak, min
}

func monthlySummaries(txns []Transaction) []MonthlySummary {
	byMonth := map[string]*MonthlySummary{}
	for _, t := range txns {
		key := monthKey(t.Date)
		ms, ok := byMonth[key]
		if !ok {
			ms = &MonthlySummary{Month: key}
			byMonth[key] = ms
		}
		ms.Credits += t.DepositAmt
		ms.Debits += t.WithdrawalAmt
		if t.ClosingBalance != nil {
			v := *t.ClosingBalance
			ms.ClosingBalance = &v
		}
		if containsAny(strings.ToUpper(t.Narration), bounceKeywords) {
			ms.BounceCount++
		}
	}

	keys := make([]string, 0, len(byMonth))
	for key := range byMonth {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]MonthlySummary, 0, len(keys))
	for _, key := range keys {
		ms := byMonth[key]
		ms.Credits = round2(ms.Credits)
		ms.Debits = round2(ms.Debits)
		out = append(out, *ms)
	}
	return out
}

// confidence blends transaction volume (30), period vs the 12-month ideal
// (30), and field completeness (40), scaled to [0,1].
func confidence(txns []Transaction, periodMonths int) float64 {
	score := math.Min(float64(len(txns))/100*30, 30)
	score += math.Min(float64(periodMonths)/12*30, 30)

	complete := 0
	for _, t := range txns {
		if t.ClosingBalance != nil && (t.DepositAmt != 0 || t.WithdrawalAmt != 0) {
			complete++
		}
	}
	score += float64(complete) / float64(len(txns)) * 40

	return math.Round(score) / 100
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func sumBy(txns []Transaction, amount func(Transaction) float64) float64 {
	var total float64
	for _, t := range txns {
		total += amount(t)
	}
	return total
}

func mean(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundPtr(v float64) *float64 {
	r := round2(v)
	return &r
}
