package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/store"
)

func TestClassifyEmptyTextIsUnknown(t *testing.T) {
	c := New(nil)

	result := c.Classify("", "")
	assert.Equal(t, store.DocUnknown, result.Kind)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, "empty_input", result.Method)
}

func TestClassifyFromFilename(t *testing.T) {
	c := New(nil)

	tests := []struct {
		filename string
		want     store.DocumentKind
	}{
		{"gstr-3b-march.pdf", store.DocGSTReturns},
		{"GST.pdf", store.DocGSTCertificate},
		{"hdfc_statement_2024.pdf", store.DocBankStatement},
		{"aadhaar_card.pdf", store.DocAadhaar},
		{"pan_card.jpg", store.DocPANPersonal},
		{"cibil_report.pdf", store.DocCIBILReport},
		{"ITR-3_FY24.pdf", store.DocITR},
		{"udyam_certificate.pdf", store.DocUdyamShopLicense},
	}
	for _, tt := range tests {
		result := c.Classify("", tt.filename)
		assert.Equal(t, tt.want, result.Kind, "filename %s", tt.filename)
		assert.InDelta(t, 0.90, result.Confidence, 0.001, "filename %s", tt.filename)
		assert.Equal(t, "filename", result.Method)
	}
}

func TestClassifyFromKeywords(t *testing.T) {
	c := New(nil)

	text := `HDFC Bank Statement of Account
	Account Number: 50100123456
	IFSC: HDFC0001234  Branch: Andheri West
	Opening Balance  Closing Balance  Transaction
	withdrawal deposit debit credit Balance`

	result := c.Classify(text, "")
	require.Equal(t, store.DocBankStatement, result.Kind)
	assert.Equal(t, "keyword", result.Method)
	assert.GreaterOrEqual(t, result.Confidence, 0.35)
	assert.NotEmpty(t, result.Scores)
}

func TestClassifyFilenameWinsOverText(t *testing.T) {
	c := New(nil)

	// A matching filename is a 0.90 signal and short-circuits content rules.
	text := `Income Tax Department
	Permanent Account Number Card
	NSDL  Father's Name  Signature  Date of Birth
	ABCPE1234F`

	result := c.Classify(text, "pan_card_scan.pdf")
	require.Equal(t, store.DocPANPersonal, result.Kind)
	assert.Equal(t, "filename", result.Method)
	assert.InDelta(t, 0.90, result.Confidence, 0.001)
}

func TestClassifyPANBusinessDisambiguation(t *testing.T) {
	c := New(nil)

	text := `Income Tax Department
	Permanent Account Number
	NSDL
	AAACM1234C
	M/S ACME TRADING PRIVATE LIMITED
	Company`

	result := c.Classify(text, "")
	assert.Equal(t, store.DocPANBusiness, result.Kind)
}

func TestClassifyShortTextFallsBackToFilename(t *testing.T) {
	c := New(nil)

	result := c.Classify("   ", "cibil_report_march.pdf")
	assert.Equal(t, store.DocCIBILReport, result.Kind)
}

type fixedModel struct {
	kind store.DocumentKind
	conf float64
}

func (m fixedModel) Score(string) (store.DocumentKind, float64, map[store.DocumentKind]float64, bool) {
	return m.kind, m.conf, map[store.DocumentKind]float64{m.kind: m.conf}, true
}

func TestClassifyModelAcceptedAtThreshold(t *testing.T) {
	c := New(fixedModel{kind: store.DocITR, conf: 0.80})

	result := c.Classify("some document text long enough to classify", "")
	assert.Equal(t, store.DocITR, result.Kind)
	assert.Equal(t, "ml", result.Method)
}

func TestClassifyLowModelScoreLosesToKeywords(t *testing.T) {
	c := New(fixedModel{kind: store.DocITR, conf: 0.10})

	text := `TransUnion CIBIL Credit Score Credit Information
	Account Summary Enquiries Credit History Bureau`

	result := c.Classify(text, "")
	assert.Equal(t, store.DocCIBILReport, result.Kind)
	assert.Equal(t, "keyword", result.Method)
}
