package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"caseos/internal/store"
)

// RenderPDF draws the report artifact: cover page, borrower profile, document
// status, strengths and risks, the lender match table color-banded by approval
// probability, and recommendations.
func RenderPDF(data *CaseReportData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)

	renderCover(pdf, data)
	renderProfile(pdf, data)
	renderChecklist(pdf, data)
	renderStrengthsRisks(pdf, data)
	renderLenderTable(pdf, data)
	renderStrategy(pdf, data)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func renderCover(pdf *gofpdf.Fpdf, data *CaseReportData) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 26)
	pdf.SetY(80)
	pdf.CellFormat(0, 14, "Loan Eligibility Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 10, data.CaseID, "", 1, "C", false, 0, "")

	if data.BorrowerProfile.FullName != "" {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 10, data.BorrowerProfile.FullName, "", 1, "C", false, 0, "")
	}
}

func renderProfile(pdf *gofpdf.Fpdf, data *CaseReportData) {
	pdf.AddPage()
	sectionTitle(pdf, "Borrower Profile")

	p := data.BorrowerProfile
	rows := [][2]string{
		{"Name", orDash(p.FullName)},
		{"Entity Type", orDash(p.EntityType)},
		{"Industry", orDash(p.IndustryType)},
		{"Pincode", orDash(p.Pincode)},
		{"GSTIN", orDash(p.GSTIN)},
	}
	if p.BusinessVintageYears != nil {
		rows = append(rows, [2]string{"Business Vintage", fmt.Sprintf("%.1f years", *p.BusinessVintageYears)})
	}
	if p.AnnualTurnover != nil {
		rows = append(rows, [2]string{"Annual Turnover", fmt.Sprintf("Rs %.1fL", *p.AnnualTurnover)})
	}
	if p.CIBILScore != nil {
		rows = append(rows, [2]string{"CIBIL Score", fmt.Sprintf("%d", *p.CIBILScore)})
	}
	if p.AvgMonthlyBalance != nil {
		rows = append(rows, [2]string{"Avg Monthly Balance", fmt.Sprintf("Rs %.0f", *p.AvgMonthlyBalance)})
	}
	rows = append(rows, [2]string{"Profile Completeness", fmt.Sprintf("%.0f%%", p.FeatureCompleteness)})

	pdf.SetFont("Helvetica", "", 11)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(60, 8, row[0], "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, row[1], "B", 1, "L", false, 0, "")
	}
}

func renderChecklist(pdf *gofpdf.Fpdf, data *CaseReportData) {
	if data.Checklist == nil {
		return
	}
	pdf.Ln(8)
	sectionTitle(pdf, "Document Status")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Program: %s | Completeness: %.0f%%",
		data.Checklist.ProgramType, data.Checklist.CompletenessScore), "", 1, "L", false, 0, "")

	for _, kind := range data.Checklist.Available {
		pdf.CellFormat(0, 7, "  [x] "+prettyKind(kind), "", 1, "L", false, 0, "")
	}
	for _, kind := range data.Checklist.Missing {
		pdf.SetTextColor(180, 40, 40)
		pdf.CellFormat(0, 7, "  [ ] "+prettyKind(kind)+" (missing)", "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
}

func renderStrengthsRisks(pdf *gofpdf.Fpdf, data *CaseReportData) {
	pdf.AddPage()
	sectionTitle(pdf, "Strengths")
	pdf.SetFont("Helvetica", "", 11)
	if len(data.Strengths) == 0 {
		pdf.CellFormat(0, 7, "None detected", "", 1, "L", false, 0, "")
	}
	for _, s := range data.Strengths {
		pdf.MultiCell(0, 7, "+ "+latinize(s), "", "L", false)
	}

	pdf.Ln(6)
	sectionTitle(pdf, "Risk Flags")
	pdf.SetFont("Helvetica", "", 11)
	if len(data.RiskFlags) == 0 {
		pdf.CellFormat(0, 7, "None detected", "", 1, "L", false, 0, "")
	}
	for _, r := range data.RiskFlags {
		pdf.MultiCell(0, 7, "! "+latinize(r), "", "L", false)
	}
}

func renderLenderTable(pdf *gofpdf.Fpdf, data *CaseReportData) {
	pdf.AddPage()
	sectionTitle(pdf, "Lender Matches")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(12, 8, "Rank", "1", 0, "C", true, 0, "")
	pdf.CellFormat(55, 8, "Lender", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 8, "Product", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, "Score", "1", 0, "C", true, 0, "")
	pdf.CellFormat(28, 8, "Probability", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 8, "Ticket", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, m := range data.LenderMatches {
		if m.Status != store.FilterPass {
			continue
		}

		// Color band by approval probability.
		switch {
		case m.Probability != nil && *m.Probability == store.ProbabilityHigh:
			pdf.SetFillColor(214, 240, 214)
		case m.Probability != nil && *m.Probability == store.ProbabilityMedium:
			pdf.SetFillColor(252, 243, 207)
		default:
			pdf.SetFillColor(249, 220, 220)
		}

		rank := "-"
		if m.Rank != nil {
			rank = fmt.Sprintf("%d", *m.Rank)
		}
		pdf.CellFormat(12, 8, rank, "1", 0, "C", true, 0, "")
		pdf.CellFormat(55, 8, clip(m.LenderName, 32), "1", 0, "L", true, 0, "")
		pdf.CellFormat(35, 8, clip(m.ProductName, 20), "1", 0, "L", true, 0, "")
		pdf.CellFormat(20, 8, scoreText(m), "1", 0, "C", true, 0, "")
		pdf.CellFormat(28, 8, probabilityText(m), "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 8, latinize(ticketText(m)), "1", 1, "C", true, 0, "")
	}

	failed := 0
	for _, m := range data.LenderMatches {
		if m.Status == store.FilterFail {
			failed++
		}
	}
	if failed > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 7, fmt.Sprintf("%d lender products did not pass hard filters.", failed), "", 1, "L", false, 0, "")
	}
}

func renderStrategy(pdf *gofpdf.Fpdf, data *CaseReportData) {
	pdf.AddPage()
	sectionTitle(pdf, "Submission Strategy")
	pdf.SetFont("Helvetica", "", 11)
	strategy := latinize(strings.ReplaceAll(data.SubmissionStrategy, "**", ""))
	pdf.MultiCell(0, 7, strategy, "", "L", false)

	if len(data.MissingDataAdvisory) > 0 {
		pdf.Ln(6)
		sectionTitle(pdf, "Missing Data Advisory")
		pdf.SetFont("Helvetica", "", 11)
		for _, a := range data.MissingDataAdvisory {
			pdf.MultiCell(0, 7, "- "+latinize(a), "", "L", false)
		}
	}
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func prettyKind(kind store.DocumentKind) string {
	return strings.ReplaceAll(string(kind), "_", " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// latinize rewrites runes the core PDF fonts cannot encode.
func latinize(s string) string {
	replacer := strings.NewReplacer("₹", "Rs ", "—", "-", "–", "-", "…", "...")
	return replacer.Replace(s)
}

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "."
}
