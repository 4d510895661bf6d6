// Package whatsapp implements the command-dispatch contract for inbound
// messages and the plaintext report summary. Transport is out of scope.
package whatsapp

import (
	"fmt"
	"strings"

	"caseos/internal/report"
	"caseos/internal/store"
)

// Command is a parsed inbound instruction.
type Command struct {
	Action string // "status", "report", "help", "unknown"
	CaseID string
}

// ParseCommand interprets an inbound message text.
// Supported: "status <case-id>", "report <case-id>", "help".
func ParseCommand(text string) Command {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Command{Action: "help"}
	}

	action := strings.ToLower(fields[0])
	switch action {
	case "help", "hi", "hello":
		return Command{Action: "help"}
	case "status", "report":
		if len(fields) >= 2 {
			return Command{Action: action, CaseID: strings.ToUpper(fields[1])}
		}
		return Command{Action: action}
	}
	return Command{Action: "unknown"}
}

// HelpText is the reply for help and unknown commands.
const HelpText = `Available commands:
status CASE-YYYYMMDD-NNNN - case processing status
report CASE-YYYYMMDD-NNNN - eligibility summary
help - this message`

// StatusSummary renders the case status line with document failure counts.
func StatusSummary(c *store.Case, jobs store.JobCounts) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n", c.CaseID)
	fmt.Fprintf(&sb, "Status: %s\n", c.Status)
	fmt.Fprintf(&sb, "Docs: %d done, %d queued, %d processing, %d failed\n",
		jobs.Done, jobs.Queued, jobs.Processing, jobs.Failed)
	fmt.Fprintf(&sb, "Completeness: %.0f%%", c.CompletenessScore)
	return sb.String()
}

// ReportSummary derives the WhatsApp-friendly plaintext summary from the
// report artifact.
func ReportSummary(data *report.CaseReportData) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("*Loan Eligibility Report — %s*", data.CaseID))
	if data.BorrowerProfile.FullName != "" {
		lines = append(lines, data.BorrowerProfile.FullName)
	}
	lines = append(lines, "")

	if len(data.Strengths) > 0 {
		lines = append(lines, "💪 *STRENGTHS*")
		for _, s := range data.Strengths {
			lines = append(lines, "• "+s)
		}
		lines = append(lines, "")
	}

	if len(data.RiskFlags) > 0 {
		lines = append(lines, "⚠️ *RISK FLAGS*")
		for _, r := range data.RiskFlags {
			lines = append(lines, "• "+r)
		}
		lines = append(lines, "")
	}

	var passed []string
	for _, m := range data.LenderMatches {
		if m.Status != store.FilterPass {
			continue
		}
		entry := fmt.Sprintf("%s - %s", m.LenderName, m.ProductName)
		if m.Score != nil {
			entry += fmt.Sprintf(" (%.0f/100)", *m.Score)
		}
		passed = append(passed, entry)
	}

	if len(passed) > 0 {
		lines = append(lines, fmt.Sprintf("✅ *MATCHED LENDERS (%d)*", len(passed)))
		limit := len(passed)
		if limit > 5 {
			limit = 5
		}
		for _, entry := range passed[:limit] {
			lines = append(lines, "• "+entry)
		}
		if len(passed) > 5 {
			lines = append(lines, fmt.Sprintf("…and %d more", len(passed)-5))
		}
	} else {
		lines = append(lines, "❌ No lenders matched this profile yet.")
	}

	if data.Checklist != nil && len(data.Checklist.Missing) > 0 {
		lines = append(lines, "")
		lines = append(lines, "📄 *MISSING DOCUMENTS*")
		missing := data.Checklist.Missing
		limit := len(missing)
		if limit > 5 {
			limit = 5
		}
		for _, kind := range missing[:limit] {
			lines = append(lines, "• "+strings.ReplaceAll(string(kind), "_", " "))
		}
		if len(missing) > 5 {
			lines = append(lines, fmt.Sprintf("…and %d more", len(missing)-5))
		}
	}

	if data.ExpectedLoanRange.MaxLakhs != nil {
		lines = append(lines, "")
		if data.ExpectedLoanRange.MinLakhs != nil {
			lines = append(lines, fmt.Sprintf("Expected range: ₹%.1fL – ₹%.1fL",
				*data.ExpectedLoanRange.MinLakhs, *data.ExpectedLoanRange.MaxLakhs))
		} else {
			lines = append(lines, fmt.Sprintf("Expected up to ₹%.1fL", *data.ExpectedLoanRange.MaxLakhs))
		}
	}

	return strings.Join(lines, "\n")
}
