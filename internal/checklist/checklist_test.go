package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/store"
)

func docOf(kind store.DocumentKind, filename string) store.Document {
	k := kind
	return store.Document{OriginalFilename: filename, DocType: &k, Status: store.DocStatusClassified}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func bankingCase() *store.Case {
	pt := store.ProgramBanking
	return &store.Case{ProgramType: &pt}
}

func TestChecklistAllDocsPresent(t *testing.T) {
	docs := []store.Document{
		docOf(store.DocBankStatement, "stmt.pdf"),
		docOf(store.DocAadhaar, "aadhaar.pdf"),
		docOf(store.DocGSTCertificate, "gst.pdf"),
		docOf(store.DocCIBILReport, "cibil.pdf"),
		docOf(store.DocPANPersonal, "pan.pdf"),
	}

	cl := Build(bankingCase(), docs)
	assert.Empty(t, cl.Missing)
	assert.Equal(t, 100.0, cl.CompletenessScore)
}

func TestChecklistMissingDocs(t *testing.T) {
	docs := []store.Document{
		docOf(store.DocPANPersonal, "pan.pdf"),
		docOf(store.DocAadhaar, "aadhaar.pdf"),
	}

	cl := Build(bankingCase(), docs)

	// Banking: 4 required + 1 any-of = 5 points; aadhaar + PAN earn 2.
	assert.InDelta(t, 40.0, cl.CompletenessScore, 0.001)
	assert.Contains(t, cl.Missing, store.DocBankStatement)
	assert.Contains(t, cl.Missing, store.DocGSTCertificate)
	assert.Contains(t, cl.Missing, store.DocCIBILReport)
}

func TestChecklistManualOverridesCoverDocs(t *testing.T) {
	c := bankingCase()
	c.CIBILScoreManual = intPtr(720)
	c.BusinessVintageYears = floatPtr(4)

	docs := []store.Document{
		docOf(store.DocBankStatement, "stmt.pdf"),
		docOf(store.DocAadhaar, "aadhaar.pdf"),
		docOf(store.DocPANBusiness, "pan.pdf"),
	}

	cl := Build(c, docs)
	// Manual CIBIL covers the report, manual vintage covers the certificate.
	assert.Empty(t, cl.Missing)
	assert.Equal(t, 100.0, cl.CompletenessScore)
}

func TestChecklistUnknownDocsAreUnreadable(t *testing.T) {
	unknown := store.DocUnknown
	docs := []store.Document{
		{OriginalFilename: "scan001.pdf", DocType: &unknown},
		{OriginalFilename: "blurry.jpg"},
	}

	cl := Build(bankingCase(), docs)
	require.Len(t, cl.Unreadable, 2)
	assert.Equal(t, 0.0, cl.CompletenessScore)
}

func TestChecklistAnyOfNotDoubleCounted(t *testing.T) {
	docs := []store.Document{
		docOf(store.DocPANPersonal, "pan1.pdf"),
		docOf(store.DocPANBusiness, "pan2.pdf"),
	}

	cl := Build(bankingCase(), docs)
	// Both PAN variants still earn a single any-of point: 1/5.
	assert.InDelta(t, 20.0, cl.CompletenessScore, 0.001)
}

func TestChecklistScoreAlwaysInRange(t *testing.T) {
	for _, program := range []store.ProgramType{store.ProgramBanking, store.ProgramIncome, store.ProgramHybrid} {
		pt := program
		cl := Build(&store.Case{ProgramType: &pt}, nil)
		assert.GreaterOrEqual(t, cl.CompletenessScore, 0.0)
		assert.LessOrEqual(t, cl.CompletenessScore, 100.0)
	}
}

func TestRequiredDocumentsPerProgram(t *testing.T) {
	banking := RequiredDocuments(store.ProgramBanking)
	assert.Contains(t, banking, store.DocBankStatement)
	assert.NotContains(t, banking, store.DocITR)

	income := RequiredDocuments(store.ProgramIncome)
	assert.Contains(t, income, store.DocITR)
	assert.Contains(t, income, store.DocFinancialStatements)

	hybrid := RequiredDocuments(store.ProgramHybrid)
	assert.Contains(t, hybrid, store.DocBankStatement)
	assert.Contains(t, hybrid, store.DocITR)
}
