package gst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPAN(t *testing.T) {
	assert.True(t, ValidPAN("ABCPE1234F"))
	assert.True(t, ValidPAN("AAACM9999C"))

	// 4th character X is not a valid entity type.
	assert.False(t, ValidPAN("ABCXE1234F"))
	assert.False(t, ValidPAN("abcpe1234f"))
	assert.False(t, ValidPAN("ABCPE1234"))
	assert.False(t, ValidPAN(""))
}

func TestValidGSTIN(t *testing.T) {
	assert.True(t, ValidGSTIN("27AABCU9603R1ZM"))

	// State code 99 is not assigned.
	assert.False(t, ValidGSTIN("99AABCU9603R1ZM"))
	// Embedded PAN has an invalid entity character.
	assert.False(t, ValidGSTIN("27AABXU9603R1ZM"))
	assert.False(t, ValidGSTIN("27AABCU9603R1Z"))
	assert.False(t, ValidGSTIN(""))
}

func TestStateFromGSTIN(t *testing.T) {
	assert.Equal(t, "Maharashtra", StateFromGSTIN("27AABCU9603R1ZM"))
	assert.Equal(t, "Karnataka", StateFromGSTIN("29AABCU9603R1ZM"))
	assert.Equal(t, "", StateFromGSTIN("99AABCU9603R1ZM"))
}

func TestFindGSTINInFilename(t *testing.T) {
	assert.Equal(t, "27AABCU9603R1ZM", FindGSTIN("gst_certificate_27AABCU9603R1ZM.pdf"))
	assert.Equal(t, "27AABCU9603R1ZM", FindGSTIN("GSTR3B 27aabcu9603r1zm March.pdf"))
	assert.Equal(t, "", FindGSTIN("bank_statement.pdf"))
	// Invalid state code never surfaces.
	assert.Equal(t, "", FindGSTIN("cert_99AABCU9603R1ZM.pdf"))
}
