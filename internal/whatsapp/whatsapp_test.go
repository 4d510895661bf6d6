package whatsapp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"caseos/internal/checklist"
	"caseos/internal/eligibility"
	"caseos/internal/report"
	"caseos/internal/store"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in     string
		action string
		caseID string
	}{
		{"status CASE-20250701-0001", "status", "CASE-20250701-0001"},
		{"report case-20250701-0002", "report", "CASE-20250701-0002"},
		{"STATUS CASE-20250701-0001", "status", "CASE-20250701-0001"},
		{"help", "help", ""},
		{"hi", "help", ""},
		{"", "help", ""},
		{"frobnicate", "unknown", ""},
	}
	for _, tt := range tests {
		cmd := ParseCommand(tt.in)
		assert.Equal(t, tt.action, cmd.Action, "input %q", tt.in)
		assert.Equal(t, tt.caseID, cmd.CaseID, "input %q", tt.in)
	}
}

func TestStatusSummary(t *testing.T) {
	c := &store.Case{CaseID: "CASE-20250701-0001", Status: store.CaseProcessing, CompletenessScore: 60}
	jobs := store.JobCounts{Queued: 1, Done: 3, Failed: 1}

	out := StatusSummary(c, jobs)
	assert.Contains(t, out, "CASE-20250701-0001")
	assert.Contains(t, out, "processing")
	assert.Contains(t, out, "3 done")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "60%")
}

func TestReportSummary(t *testing.T) {
	score := 92.0
	prob := store.ProbabilityHigh
	rank := 1
	maxTicket := 30.0
	minTicket := 4.5

	data := &report.CaseReportData{
		CaseID: "CASE-20250701-0001",
		BorrowerProfile: report.BorrowerProfile{
			FullName: "Rajesh Sharma",
		},
		Strengths: []string{"Excellent credit score (780)"},
		RiskFlags: []string{"Incomplete documentation — 1 required docs missing"},
		LenderMatches: []eligibility.Result{
			{LenderName: "Godrej", ProductName: "BL", Status: store.FilterPass, Score: &score, Probability: &prob, Rank: &rank},
			{LenderName: "StrictCo", ProductName: "BL", Status: store.FilterFail},
		},
		Checklist: &checklist.Checklist{
			Missing: []store.DocumentKind{store.DocCIBILReport},
		},
		ExpectedLoanRange: report.ExpectedLoanRange{MinLakhs: &minTicket, MaxLakhs: &maxTicket},
	}

	out := ReportSummary(data)

	assert.Contains(t, out, "CASE-20250701-0001")
	assert.Contains(t, out, "Rajesh Sharma")
	assert.Contains(t, out, "STRENGTHS")
	assert.Contains(t, out, "RISK FLAGS")
	assert.Contains(t, out, "MATCHED LENDERS (1)")
	assert.Contains(t, out, "Godrej - BL (92/100)")
	assert.False(t, strings.Contains(out, "StrictCo"), "failed lenders stay out of the summary")
	assert.Contains(t, out, "cibil report")
	assert.Contains(t, out, "₹4.5L – ₹30.0L")
}
