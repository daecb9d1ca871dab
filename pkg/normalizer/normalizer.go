// Package normalizer provides vendor identity normalization and duplicate
// detection.
package normalizer

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("vendor_name", NormalizeVendorName)
	Register("email", NormalizeEmail)
	Register("phone", DigitsOnly)
	Register("tax_id", NormalizeTaxID)
	Register("digits_only", DigitsOnly)
	Register("uppercase", strings.ToUpper)
	Register("trim", strings.TrimSpace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// legalSuffixes are trailing legal-entity tokens stripped from vendor names.
// Compared against uppercased tokens.
var legalSuffixes = map[string]bool{
	"INC":          true,
	"INCORPORATED": true,
	"LLC":          true,
	"LLP":          true,
	"LP":           true,
	"CORP":         true,
	"CORPORATION":  true,
	"LTD":          true,
	"LIMITED":      true,
	"CO":           true,
	"COMPANY":      true,
	"PLC":          true,
	"GMBH":         true,
	"SA":           true,
	"PTY":          true,
}

// NormalizeVendorName produces the canonical matching key for a vendor name:
// uppercase, punctuation removed (apostrophes excepted), trailing legal
// suffixes stripped, whitespace collapsed. Idempotent: applying it to its own
// output returns the same string.
func NormalizeVendorName(s string) string {
	s = strings.ToUpper(s)

	// Strip punctuation except apostrophes so "O'Brien" keeps its identity
	var cleaned strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	tokens := strings.Fields(cleaned.String())

	// Strip trailing legal suffixes, repeatedly ("Acme Co Ltd" -> "Acme").
	// Never strip the only remaining token.
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeTaxID removes separators and whitespace from a tax ID
func NormalizeTaxID(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return strings.ToUpper(result.String())
}
