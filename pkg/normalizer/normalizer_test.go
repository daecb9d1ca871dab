package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVendorName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips trailing corp suffix",
			input:    "Acme Corp.",
			expected: "ACME",
		},
		{
			name:     "strips trailing corporation suffix",
			input:    "Acme Corporation",
			expected: "ACME",
		},
		{
			name:     "strips stacked suffixes",
			input:    "Acme Co Ltd",
			expected: "ACME",
		},
		{
			name:     "strips suffix after multi word name",
			input:    "Acme Office Supplies Inc",
			expected: "ACME OFFICE SUPPLIES",
		},
		{
			name:     "removes punctuation",
			input:    "Smith & Sons, LLC",
			expected: "SMITH SONS",
		},
		{
			name:     "keeps apostrophes",
			input:    "O'Brien Plumbing",
			expected: "O'BRIEN PLUMBING",
		},
		{
			name:     "never strips the only token",
			input:    "Inc",
			expected: "INC",
		},
		{
			name:     "collapses whitespace",
			input:    "  Acme   Widgets  ",
			expected: "ACME WIDGETS",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "suffix in the middle is kept",
			input:    "Corp Solutions Group",
			expected: "CORP SOLUTIONS GROUP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeVendorName(tt.input))
		})
	}
}

func TestNormalizeVendorNameIsIdempotent(t *testing.T) {
	inputs := []string{
		"Acme Corp.",
		"Acme Office Supplies Inc",
		"Smith & Sons, LLC",
		"O'Brien Plumbing",
		"Inc",
		"  Global Trading GmbH ",
	}

	for _, input := range inputs {
		once := NormalizeVendorName(input)
		twice := NormalizeVendorName(once)
		assert.Equal(t, once, twice, "normalizing %q twice changed the result", input)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "billing@acme.com", NormalizeEmail("  Billing@Acme.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "15551234567", DigitsOnly("+1 (555) 123-4567"))
	assert.Equal(t, "", DigitsOnly("ext"))
}

func TestNormalizeTaxID(t *testing.T) {
	assert.Equal(t, "123456789", NormalizeTaxID("12-345 6789"))
	assert.Equal(t, "GB123456", NormalizeTaxID("gb 12.34.56"))
}

func TestApply(t *testing.T) {
	assert.Equal(t, "ACME", Apply("Acme Inc", "vendor_name"))
	assert.Equal(t, "unchanged", Apply("unchanged", "no_such_normalizer"))
}
