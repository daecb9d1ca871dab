package normalizer

// Similarity weights per identity signal. Weights are renormalized over the
// signals present on both records, so a missing email does not drag the
// score down.
const (
	weightName  = 0.6
	weightEmail = 0.2
	weightPhone = 0.1
	weightTaxID = 0.1
)

// VendorIdentity is the comparable identity of a vendor record
type VendorIdentity struct {
	Name  string
	Email string
	Phone string
	TaxID string
}

// Similarity scores two vendor identities on a 0-100 scale and returns the
// per-signal scores that produced it.
func Similarity(a, b VendorIdentity) (float64, map[string]float64) {
	details := make(map[string]float64)

	var weightedSum, totalWeight float64

	nameA := NormalizeVendorName(a.Name)
	nameB := NormalizeVendorName(b.Name)
	if nameA != "" && nameB != "" {
		score := Levenshtein(nameA, nameB) * 100
		details["name"] = score
		weightedSum += score * weightName
		totalWeight += weightName
	}

	emailA := NormalizeEmail(a.Email)
	emailB := NormalizeEmail(b.Email)
	if emailA != "" && emailB != "" {
		score := exactScore(emailA, emailB)
		details["email"] = score
		weightedSum += score * weightEmail
		totalWeight += weightEmail
	}

	phoneA := DigitsOnly(a.Phone)
	phoneB := DigitsOnly(b.Phone)
	if phoneA != "" && phoneB != "" {
		score := exactScore(phoneA, phoneB)
		details["phone"] = score
		weightedSum += score * weightPhone
		totalWeight += weightPhone
	}

	taxA := NormalizeTaxID(a.TaxID)
	taxB := NormalizeTaxID(b.TaxID)
	if taxA != "" && taxB != "" {
		score := exactScore(taxA, taxB)
		details["tax_id"] = score
		weightedSum += score * weightTaxID
		totalWeight += weightTaxID
	}

	if totalWeight == 0 {
		return 0, details
	}

	score := weightedSum / totalWeight
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, details
}

func exactScore(a, b string) float64 {
	if a == b {
		return 100
	}
	return 0
}

// Levenshtein returns a similarity score between 0.0 and 1.0
func Levenshtein(a, b string) float64 {
	distance := LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}
