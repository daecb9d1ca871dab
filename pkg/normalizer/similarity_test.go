package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/apmatch/pkg/models"
)

func TestSimilarityIdenticalIdentities(t *testing.T) {
	identity := VendorIdentity{
		Name:  "Acme Office Supplies",
		Email: "billing@acme.com",
		Phone: "+1 (555) 123-4567",
		TaxID: "12-3456789",
	}

	score, details := Similarity(identity, identity)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, 100.0, details["name"])
	assert.Equal(t, 100.0, details["email"])
	assert.Equal(t, 100.0, details["phone"])
	assert.Equal(t, 100.0, details["tax_id"])
}

func TestSimilaritySuffixInsensitiveNames(t *testing.T) {
	a := VendorIdentity{Name: "Acme Office Supplies Inc"}
	b := VendorIdentity{Name: "ACME OFFICE SUPPLIES"}

	score, details := Similarity(a, b)
	assert.GreaterOrEqual(t, score, 95.0)
	assert.Equal(t, 100.0, details["name"])
}

func TestSimilaritySharedTaxIDAutoMergeRange(t *testing.T) {
	taxA := "12-3456789"
	taxB := "123456789"

	a := VendorIdentity{Name: "Acme Corp", TaxID: taxA}
	b := VendorIdentity{Name: "Acme Corporation", TaxID: taxB}

	// Both names canonicalize to the same key and the tax IDs agree, so the
	// pair clears the auto-merge threshold.
	score, details := Similarity(a, b)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, 100.0, details["name"])
	assert.Equal(t, 100.0, details["tax_id"])
}

func TestSimilarityRenormalizesOverPresentSignals(t *testing.T) {
	// Name matches exactly; email present on both but different. Phone and
	// tax ID are missing on one side and must not dilute the score.
	a := VendorIdentity{Name: "Acme", Email: "a@acme.com", Phone: "5551234567"}
	b := VendorIdentity{Name: "Acme", Email: "b@acme.com"}

	score, details := Similarity(a, b)

	// weights: name 0.6, email 0.2 -> (100*0.6 + 0*0.2) / 0.8 = 75
	assert.InDelta(t, 75.0, score, 0.001)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "email")
	assert.NotContains(t, details, "phone")
	assert.NotContains(t, details, "tax_id")
}

func TestSimilarityNoComparableSignals(t *testing.T) {
	score, details := Similarity(VendorIdentity{}, VendorIdentity{Name: "Acme"})
	assert.Equal(t, 0.0, score)
	assert.Empty(t, details)
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a        string
		b        string
		expected int
	}{
		{"", "", 0},
		{"acme", "acme", 0},
		{"acme", "", 4},
		{"kitten", "sitting", 3},
		{"ACME WIDGETS", "ACME WIDGET", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestClusterPicksOldestAsCanonical(t *testing.T) {
	now := time.Now()
	taxID := "12-3456789"

	oldest := &models.Vendor{
		ID:        "11111111-1111-1111-1111-111111111111",
		Name:      "Acme Corp",
		TaxID:     &taxID,
		CreatedAt: now.Add(-48 * time.Hour),
	}
	newer := &models.Vendor{
		ID:        "22222222-2222-2222-2222-222222222222",
		Name:      "Acme Corporation",
		TaxID:     &taxID,
		CreatedAt: now.Add(-24 * time.Hour),
	}
	unrelated := &models.Vendor{
		ID:        "33333333-3333-3333-3333-333333333333",
		Name:      "Globex Industrial",
		CreatedAt: now,
	}

	pairs := Cluster([]*models.Vendor{newer, unrelated, oldest}, 80)

	require.Len(t, pairs, 1)
	assert.Equal(t, oldest.ID, pairs[0].Canonical.ID)
	assert.Equal(t, newer.ID, pairs[0].Duplicate.ID)
	assert.GreaterOrEqual(t, pairs[0].Similarity, 95.0)
}

func TestClusterNoDuplicates(t *testing.T) {
	vendors := []*models.Vendor{
		{ID: "1", Name: "Acme Widgets", CreatedAt: time.Now()},
		{ID: "2", Name: "Globex Industrial", CreatedAt: time.Now()},
	}

	assert.Empty(t, Cluster(vendors, 80))
	assert.Empty(t, Cluster(vendors[:1], 80))
}
