// Package extract pulls structured fields out of OCR text with anchored
// regex patterns, one extractor per document kind.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"caseos/internal/gst"
	"caseos/internal/store"
)

// Field is one extracted value with its confidence.
type Field struct {
	Name       string
	Value      string
	Confidence float64
	Source     string
}

// Extractor applies kind-specific patterns and validation rules.
type Extractor struct{}

// New returns a stateless Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract routes to the kind-specific extractor and validates each field.
// Failed validation halves confidence but keeps the field; downstream
// prefers some evidence over none.
func (e *Extractor) Extract(ocrText string, kind store.DocumentKind) []Field {
	if strings.TrimSpace(ocrText) == "" {
		return nil
	}

	var fields []Field
	switch kind {
	case store.DocPANPersonal, store.DocPANBusiness:
		fields = extractPANCard(ocrText)
	case store.DocAadhaar:
		fields = extractAadhaar(ocrText)
	case store.DocGSTCertificate:
		fields = extractGSTCertificate(ocrText)
	case store.DocGSTReturns:
		fields = extractGSTReturns(ocrText)
	case store.DocCIBILReport:
		fields = extractCIBILReport(ocrText)
	case store.DocITR:
		fields = extractITR(ocrText)
	case store.DocFinancialStatements:
		fields = extractFinancialStatements(ocrText)
	default:
		return nil
	}

	for i := range fields {
		fields[i].Source = store.SourceExtraction
		if !validateField(fields[i]) {
			fields[i].Confidence *= 0.5
		}
	}
	return fields
}

var (
	panNumberRe = regexp.MustCompile(`\b([A-Z]{5}[0-9]{4}[A-Z])\b`)
	nameRe      = regexp.MustCompile(`(?:Name|NAME|name)\s*[:\-]?\s*([A-Z][A-Za-z\s]{2,50})`)
	dobRe       = regexp.MustCompile(`(?i)(?:Date of Birth|DOB|Birth|dob)\s*[:\-]?\s*(\d{2}[/-]\d{2}[/-]\d{4})`)
)

func extractPANCard(text string) []Field {
	var fields []Field

	if m := panNumberRe.FindStringSubmatch(text); m != nil {
		conf := 0.6
		if gst.ValidPAN(m[1]) {
			conf = 0.9
		}
		fields = append(fields, Field{Name: "pan_number", Value: m[1], Confidence: conf})
	}

	if m := nameRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "full_name", Value: strings.TrimSpace(m[1]), Confidence: 0.75})
	}

	if m := dobRe.FindStringSubmatch(text); m != nil {
		dob := strings.ReplaceAll(m[1], "-", "/")
		fields = append(fields, Field{Name: "dob", Value: dob, Confidence: 0.8})
	}

	return fields
}

var (
	aadhaarRe         = regexp.MustCompile(`\b(\d{4} ?\d{4} ?\d{4})\b`)
	aadhaarDOBRe      = regexp.MustCompile(`(?i)(?:DOB|Birth|dob|Year of Birth)\s*[:\-]?\s*(\d{2}[/-]\d{2}[/-]\d{4})`)
	fallbackNameRe    = regexp.MustCompile(`\b([A-Z][a-z]+ [A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\b`)
	aadhaarAddressRe  = regexp.MustCompile(`(?:Address|ADDRESS|address)\s*[:\-]?\s*([A-Za-z0-9\s,\.\-/]+(?:\n[A-Za-z0-9\s,\.\-/]+){0,3})`)
)

func extractAadhaar(text string) []Field {
	var fields []Field

	if m := aadhaarRe.FindStringSubmatch(text); m != nil {
		number := strings.ReplaceAll(m[1], " ", "")
		if len(number) == 12 {
			fields = append(fields, Field{Name: "aadhaar_number", Value: number, Confidence: 0.85})
		}
	}

	if m := nameRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "full_name", Value: strings.TrimSpace(m[1]), Confidence: 0.75})
	} else if m := fallbackNameRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "full_name", Value: m[1], Confidence: 0.55})
	}

	if m := aadhaarDOBRe.FindStringSubmatch(text); m != nil {
		dob := strings.ReplaceAll(m[1], "-", "/")
		fields = append(fields, Field{Name: "dob", Value: dob, Confidence: 0.8})
	}

	if m := aadhaarAddressRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "address", Value: strings.TrimSpace(m[1]), Confidence: 0.65})
	}

	return fields
}

var (
	gstinRe        = regexp.MustCompile(`\b(\d{2}[A-Z]{5}\d{4}[A-Z]\d[A-Z][0-9A-Z])\b`)
	businessNameRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Legal Name|Trade Name|Business Name)\s*[:\-]?\s*([A-Z][A-Za-z0-9\s&\.\-]{2,100})`),
		regexp.MustCompile(`(?i)(?:Taxpayer Name|Name of Business)\s*[:\-]?\s*([A-Z][A-Za-z0-9\s&\.\-]{2,100})`),
	}
	regDateRe = regexp.MustCompile(`(?i)(?:Date of Registration|Registration Date)\s*[:\-]?\s*(\d{2}[/-]\d{2}[/-]\d{4})`)
)

func extractGSTCertificate(text string) []Field {
	var fields []Field

	if m := gstinRe.FindStringSubmatch(text); m != nil {
		gstin := m[1]
		conf := 0.6
		if gst.ValidGSTIN(gstin) {
			conf = 0.9
		}
		fields = append(fields, Field{Name: "gstin", Value: gstin, Confidence: conf})

		if state := gst.StateFromGSTIN(gstin); state != "" {
			fields = append(fields, Field{Name: "state", Value: state, Confidence: 0.95})
		}
	}

	for _, re := range businessNameRe {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "business_name", Value: strings.TrimSpace(m[1]), Confidence: 0.8})
			break
		}
	}

	if m := regDateRe.FindStringSubmatch(text); m != nil {
		date := strings.ReplaceAll(m[1], "-", "/")
		fields = append(fields, Field{Name: "gst_registration_date", Value: date, Confidence: 0.8})
	}

	return fields
}

var (
	taxableRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Total Taxable Value|Taxable Value)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
		regexp.MustCompile(`(?i)(?:Total Invoice Value|Invoice Value)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
	}
	cgstRe   = regexp.MustCompile(`(?i)(?:CGST|Central GST)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`)
	sgstRe   = regexp.MustCompile(`(?i)(?:SGST|State GST)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`)
	periodRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Period|Tax Period|Return Period)\s*[:\-]?\s*(\d{2}[/-]\d{4})`),
		regexp.MustCompile(`(?i)(?:Month|Filing Month)\s*[:\-]?\s*([A-Za-z]+\s*\d{4})`),
	}
)

func extractGSTReturns(text string) []Field {
	var fields []Field

	for _, re := range taxableRes {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "gst_taxable_value", Value: stripCommas(m[1]), Confidence: 0.75})
			break
		}
	}

	if m := cgstRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "gst_cgst_amount", Value: stripCommas(m[1]), Confidence: 0.75})
	}
	if m := sgstRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "gst_sgst_amount", Value: stripCommas(m[1]), Confidence: 0.75})
	}

	for _, re := range periodRes {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "gst_filing_period", Value: m[1], Confidence: 0.7})
			break
		}
	}

	return fields
}

var (
	scoreRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Score|CIBIL Score|Credit Score)\s*[:\-]?\s*(\d{3})`),
		regexp.MustCompile(`\b([3-9]\d{2})\b`),
	}
	activeLoanRe = regexp.MustCompile(`(?i)(?:Active Accounts|Active Loans)\s*[:\-]?\s*(\d+)`)
	overdueRe    = regexp.MustCompile(`(?i)(?:Overdue|Delinquent|DPD)\s*[:\-]?\s*(\d+)`)
	enquiryRe    = regexp.MustCompile(`(?i)(?:Enquiry|Enquiries|Credit Enquiries|Recent Enquiries)\s*[:\-]?\s*(\d+)`)
)

func extractCIBILReport(text string) []Field {
	var fields []Field

	for _, re := range scoreRes {
		if m := re.FindStringSubmatch(text); m != nil {
			score, err := strconv.Atoi(m[1])
			if err == nil && score >= 300 && score <= 900 {
				fields = append(fields, Field{Name: "cibil_score", Value: strconv.Itoa(score), Confidence: 0.85})
				break
			}
		}
	}

	if m := activeLoanRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "active_loan_count", Value: m[1], Confidence: 0.75})
	}
	if m := overdueRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "overdue_count", Value: m[1], Confidence: 0.75})
	}
	if m := enquiryRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "enquiry_count_6m", Value: m[1], Confidence: 0.7})
	}

	return fields
}

var (
	incomeRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Total Income|Gross Total Income)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
		regexp.MustCompile(`(?i)(?:Gross Total Income|GTI)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
	}
	assessYearRe = regexp.MustCompile(`(?i)(?:Assessment Year|AY|A\.Y\.)\s*[:\-]?\s*(20\d{2}-\d{2})`)
	taxPaidRes   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Tax Paid|Total Tax Paid|Tax Payment)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
		regexp.MustCompile(`(?i)(?:Self Assessment Tax|Advance Tax)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
	}
	businessIncomeRe = regexp.MustCompile(`(?i)(?:Income from Business|Business Income|Profits and Gains)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`)
)

func extractITR(text string) []Field {
	var fields []Field

	for _, re := range incomeRes {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "itr_total_income", Value: stripCommas(m[1]), Confidence: 0.8})
			break
		}
	}

	if m := assessYearRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "itr_assessment_year", Value: m[1], Confidence: 0.85})
	}

	for _, re := range taxPaidRes {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "itr_tax_paid", Value: stripCommas(m[1]), Confidence: 0.75})
			break
		}
	}

	if m := businessIncomeRe.FindStringSubmatch(text); m != nil {
		fields = append(fields, Field{Name: "itr_business_income", Value: stripCommas(m[1]), Confidence: 0.75})
	}

	return fields
}

var (
	revenueRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Revenue|Total Revenue|Sales|Net Sales|Turnover)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
		regexp.MustCompile(`(?i)(?:Total Income|Gross Revenue)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
	}
	profitRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Net Profit|Profit After Tax|PAT|Net Income)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
		regexp.MustCompile(`(?i)(?:Profit for the year|Net Earnings)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
	}
	netWorthRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Net Worth|Shareholders Fund|Shareholders Equity|Total Equity)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
		regexp.MustCompile(`(?i)(?:Owner's Equity|Capital and Reserves)\s*[:\-]?\s*(?:Rs\.?|INR)?\s*([0-9,]+\.?\d*)`),
	}
)

func extractFinancialStatements(text string) []Field {
	var fields []Field

	for _, re := range revenueRes {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "annual_turnover", Value: stripCommas(m[1]), Confidence: 0.8})
			break
		}
	}
	for _, re := range profitRes {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "net_profit", Value: stripCommas(m[1]), Confidence: 0.75})
			break
		}
	}
	for _, re := range netWorthRes {
		if m := re.FindStringSubmatch(text); m != nil {
			fields = append(fields, Field{Name: "net_worth", Value: stripCommas(m[1]), Confidence: 0.75})
			break
		}
	}

	return fields
}

func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}

var numericFieldNames = map[string]bool{
	"annual_turnover":   true,
	"itr_total_income":  true,
	"gst_taxable_value": true,
	"active_loan_count": true,
	"overdue_count":     true,
	"enquiry_count_6m":  true,
}

func validateField(f Field) bool {
	if f.Value == "" {
		return false
	}

	switch f.Name {
	case "pan_number":
		return gst.ValidPAN(f.Value)
	case "gstin":
		return gst.ValidGSTIN(f.Value)
	case "aadhaar_number":
		v := strings.ReplaceAll(f.Value, " ", "")
		if len(v) != 12 {
			return false
		}
		_, err := strconv.Atoi(v)
		return err == nil
	case "cibil_score":
		score, err := strconv.Atoi(f.Value)
		return err == nil && score >= 300 && score <= 900
	case "dob", "gst_registration_date":
		_, err := time.Parse("02/01/2006", strings.ReplaceAll(f.Value, "-", "/"))
		return err == nil
	}

	if numericFieldNames[f.Name] {
		v, err := strconv.ParseFloat(stripCommas(f.Value), 64)
		return err == nil && v >= 0
	}

	return true
}
