package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/store"
)

func findField(fields []Field, name string) *Field {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
}

func TestExtractPANCard(t *testing.T) {
	e := New()

	text := `Income Tax Department
Permanent Account Number Card
ABCPE1234F
Name: RAJESH KUMAR SHARMA
Date of Birth: 15/06/1985`

	fields := e.Extract(text, store.DocPANPersonal)

	pan := findField(fields, "pan_number")
	require.NotNil(t, pan)
	assert.Equal(t, "ABCPE1234F", pan.Value)
	assert.InDelta(t, 0.9, pan.Confidence, 0.001)
	assert.Equal(t, store.SourceExtraction, pan.Source)

	name := findField(fields, "full_name")
	require.NotNil(t, name)
	assert.Contains(t, name.Value, "RAJESH")

	dob := findField(fields, "dob")
	require.NotNil(t, dob)
	assert.Equal(t, "15/06/1985", dob.Value)
}

func TestExtractPANInvalidFourthCharHalvesConfidence(t *testing.T) {
	e := New()

	// X is not a valid PAN entity-type character; the value is kept with
	// reduced confidence.
	fields := e.Extract("PAN: ABCXE1234F", store.DocPANPersonal)

	pan := findField(fields, "pan_number")
	require.NotNil(t, pan)
	assert.Equal(t, "ABCXE1234F", pan.Value)
	assert.InDelta(t, 0.3, pan.Confidence, 0.001)
}

func TestExtractGSTCertificate(t *testing.T) {
	e := New()

	text := `Goods and Services Tax
Certificate of Registration
GSTIN 27AABCU9603R1ZM
Legal Name: URBAN TRADERS PVT LTD
Date of Registration: 01/04/2019`

	fields := e.Extract(text, store.DocGSTCertificate)

	gstin := findField(fields, "gstin")
	require.NotNil(t, gstin)
	assert.Equal(t, "27AABCU9603R1ZM", gstin.Value)
	assert.InDelta(t, 0.9, gstin.Confidence, 0.001)

	state := findField(fields, "state")
	require.NotNil(t, state)
	assert.Equal(t, "Maharashtra", state.Value)

	regDate := findField(fields, "gst_registration_date")
	require.NotNil(t, regDate)
	assert.Equal(t, "01/04/2019", regDate.Value)
}

func TestExtractGSTINBadStateCodeLowConfidence(t *testing.T) {
	e := New()

	// State code 99 fails structural validation.
	fields := e.Extract("GSTIN 99AABCU9603R1ZM", store.DocGSTCertificate)

	gstin := findField(fields, "gstin")
	require.NotNil(t, gstin)
	// 0.6 base for a pattern match that fails validation, halved again by the
	// field validator.
	assert.InDelta(t, 0.3, gstin.Confidence, 0.001)

	assert.Nil(t, findField(fields, "state"))
}

func TestExtractCIBILReport(t *testing.T) {
	e := New()

	text := `TransUnion CIBIL
CIBIL Score: 742
Active Accounts: 3
Overdue: 1
Enquiries: 4`

	fields := e.Extract(text, store.DocCIBILReport)

	score := findField(fields, "cibil_score")
	require.NotNil(t, score)
	assert.Equal(t, "742", score.Value)

	assert.Equal(t, "3", findField(fields, "active_loan_count").Value)
	assert.Equal(t, "1", findField(fields, "overdue_count").Value)
	assert.Equal(t, "4", findField(fields, "enquiry_count_6m").Value)
}

func TestExtractCIBILScoreOutOfRangeIgnored(t *testing.T) {
	e := New()

	fields := e.Extract("Credit Score: 295", store.DocCIBILReport)
	assert.Nil(t, findField(fields, "cibil_score"))
}

func TestExtractITR(t *testing.T) {
	e := New()

	text := `Income Tax Return ITR-3
Assessment Year: 2023-24
Gross Total Income: Rs 24,50,000
Tax Paid: 3,20,000
Income from Business: 21,00,000`

	fields := e.Extract(text, store.DocITR)

	assert.Equal(t, "2450000", findField(fields, "itr_total_income").Value)
	assert.Equal(t, "2023-24", findField(fields, "itr_assessment_year").Value)
	assert.Equal(t, "320000", findField(fields, "itr_tax_paid").Value)
	assert.Equal(t, "2100000", findField(fields, "itr_business_income").Value)
}

func TestExtractAadhaar(t *testing.T) {
	e := New()

	text := `Government of India
Name: Sunita Devi
DOB: 02-11-1990
1234 5678 9012`

	fields := e.Extract(text, store.DocAadhaar)

	aadhaar := findField(fields, "aadhaar_number")
	require.NotNil(t, aadhaar)
	assert.Equal(t, "123456789012", aadhaar.Value)

	dob := findField(fields, "dob")
	require.NotNil(t, dob)
	assert.Equal(t, "02/11/1990", dob.Value)
}

func TestExtractFinancialStatements(t *testing.T) {
	e := New()

	text := `Audited Financials FY 2023-24
Total Revenue: 1,20,00,000
Net Profit: 9,50,000
Net Worth: 55,00,000`

	fields := e.Extract(text, store.DocFinancialStatements)

	assert.Equal(t, "12000000", findField(fields, "annual_turnover").Value)
	assert.Equal(t, "950000", findField(fields, "net_profit").Value)
	assert.Equal(t, "5500000", findField(fields, "net_worth").Value)
}

func TestExtractEmptyTextAndUnknownKind(t *testing.T) {
	e := New()

	assert.Nil(t, e.Extract("   ", store.DocPANPersonal))
	assert.Nil(t, e.Extract("some text", store.DocUnknown))
	assert.Nil(t, e.Extract("some text", store.DocBankStatement))
}
