package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"caseos/internal/store"
)

func TestShouldSkip(t *testing.T) {
	// Bank statements go straight to the statement parser.
	assert.True(t, ShouldSkip(store.DocBankStatement, "hdfc_statement.pdf"))

	// GST returns skip OCR only when the filename carries a valid GSTIN.
	assert.True(t, ShouldSkip(store.DocGSTReturns, "gstr3b 27AABCU9603R1ZM.pdf"))
	assert.False(t, ShouldSkip(store.DocGSTReturns, "gstr3b_march.pdf"))

	// Photos rarely OCR to anything useful.
	assert.True(t, ShouldSkip(store.DocUnknown, "shop_photo.jpg"))
	assert.False(t, ShouldSkip(store.DocUnknown, "scan001.pdf"))

	// Everything else is worth reading.
	assert.False(t, ShouldSkip(store.DocGSTCertificate, "gst_certificate.pdf"))
	assert.False(t, ShouldSkip(store.DocPANPersonal, "pan_card.pdf"))
	assert.False(t, ShouldSkip(store.DocCIBILReport, "cibil.pdf"))
}
