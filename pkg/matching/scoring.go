package matching

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/normalizer"
)

// Receipt-logic scores: 90 when goods arrived before the invoice (expected
// causal order), 60 when the invoice predates the receipt.
const (
	receiptLogicExpectedScore = 90
	receiptLogicInvertedScore = 60
)

// Tolerances are the tenant-configured comparison tolerances used by the
// amount and date scorers.
type Tolerances struct {
	AmountTolerancePercent decimal.Decimal
	AmountToleranceAbs     decimal.Decimal
	DateToleranceDays      int
}

// TolerancesFromRule extracts scorer tolerances from a matching rule
func TolerancesFromRule(rule *models.MatchingRule) Tolerances {
	return Tolerances{
		AmountTolerancePercent: rule.AmountTolerancePercent,
		AmountToleranceAbs:     rule.AmountToleranceAbs,
		DateToleranceDays:      rule.DateToleranceDays,
	}
}

// VendorScore compares the vendor identities on two documents. Identical
// canonical names score 100; anything else falls back to weighted identity
// similarity. A missing side scores 0.
func VendorScore(a, b *models.Vendor) models.FieldScore {
	if a == nil || b == nil {
		return models.FieldScore{Score: 0, Evidence: map[string]any{"missing": true}}
	}

	nameA := normalizer.NormalizeVendorName(a.Name)
	nameB := normalizer.NormalizeVendorName(b.Name)

	evidence := map[string]any{
		"invoice_vendor": nameA,
		"po_vendor":      nameB,
	}

	if nameA != "" && nameA == nameB {
		evidence["exact"] = true
		return models.FieldScore{Score: 100, Evidence: evidence}
	}

	score, details := normalizer.Similarity(vendorIdentity(a), vendorIdentity(b))
	evidence["signals"] = details
	return models.FieldScore{Score: score, Evidence: evidence}
}

// AmountScore compares two monetary amounts. Within tolerance the score
// decays linearly from 100 to 80; beyond tolerance it decays toward 0 as the
// difference approaches the average of the two amounts.
func AmountScore(a, b decimal.Decimal, tol Tolerances) models.FieldScore {
	diff := a.Sub(b).Abs()
	avg := a.Add(b).Div(decimal.NewFromInt(2)).Abs()

	evidence := map[string]any{
		"invoice_amount": a.String(),
		"po_amount":      b.String(),
		"difference":     diff.String(),
	}

	if avg.IsZero() {
		if diff.IsZero() {
			return models.FieldScore{Score: 100, Evidence: evidence}
		}
		return models.FieldScore{Score: 0, Evidence: evidence}
	}

	pctTolerance := avg.Mul(tol.AmountTolerancePercent).Div(decimal.NewFromInt(100))
	tolerance := decimal.Max(pctTolerance, tol.AmountToleranceAbs)
	evidence["tolerance"] = tolerance.String()

	if diff.LessThanOrEqual(tolerance) {
		if tolerance.IsZero() {
			return models.FieldScore{Score: 100, Evidence: evidence}
		}
		ratio, _ := diff.Div(tolerance).Float64()
		return models.FieldScore{Score: 100 - 20*ratio, Evidence: evidence}
	}

	if diff.GreaterThanOrEqual(avg) {
		return models.FieldScore{Score: 0, Evidence: evidence}
	}

	span := avg.Sub(tolerance)
	if span.LessThanOrEqual(decimal.Zero) {
		return models.FieldScore{Score: 0, Evidence: evidence}
	}
	ratio, _ := diff.Sub(tolerance).Div(span).Float64()
	return models.FieldScore{Score: 80 * (1 - ratio), Evidence: evidence}
}

// DateScore compares two dates. Within the tolerance window the score decays
// from 100 to 70; beyond it the decay steepens, reaching 0 at three times
// the window.
func DateScore(a, b time.Time, toleranceDays int) models.FieldScore {
	if a.IsZero() || b.IsZero() {
		return models.FieldScore{Score: 0, Evidence: map[string]any{"missing": true}}
	}

	daysDiff := a.Sub(b).Hours() / 24
	if daysDiff < 0 {
		daysDiff = -daysDiff
	}

	evidence := map[string]any{
		"invoice_date":   a.Format(time.DateOnly),
		"po_date":        b.Format(time.DateOnly),
		"days_diff":      daysDiff,
		"tolerance_days": toleranceDays,
	}

	tol := float64(toleranceDays)
	if tol <= 0 {
		if daysDiff == 0 {
			return models.FieldScore{Score: 100, Evidence: evidence}
		}
		return models.FieldScore{Score: 0, Evidence: evidence}
	}

	if daysDiff <= tol {
		return models.FieldScore{Score: 100 - 30*(daysDiff/tol), Evidence: evidence}
	}

	score := 70 * (1 - (daysDiff-tol)/(2*tol))
	if score < 0 {
		score = 0
	}
	return models.FieldScore{Score: score, Evidence: evidence}
}

// ReferenceScore compares the invoice's free-text PO reference against a PO
// number. Binary: reference identifiers get no fuzzy credit.
func ReferenceScore(poNumberRef *string, poNumber string) models.FieldScore {
	if poNumberRef == nil || strings.TrimSpace(*poNumberRef) == "" {
		return models.FieldScore{Score: 0, Evidence: map[string]any{"missing": true}}
	}

	ref := strings.TrimSpace(*poNumberRef)
	evidence := map[string]any{
		"invoice_reference": ref,
		"po_number":         poNumber,
	}

	if strings.EqualFold(ref, strings.TrimSpace(poNumber)) {
		return models.FieldScore{Score: 100, Evidence: evidence}
	}
	return models.FieldScore{Score: 0, Evidence: evidence}
}

// ReceiptLogicScore checks the causal order of receiving and invoicing
func ReceiptLogicScore(receiptDate, invoiceDate time.Time) models.FieldScore {
	if receiptDate.IsZero() || invoiceDate.IsZero() {
		return models.FieldScore{Score: 0, Evidence: map[string]any{"missing": true}}
	}

	evidence := map[string]any{
		"receipt_date": receiptDate.Format(time.DateOnly),
		"invoice_date": invoiceDate.Format(time.DateOnly),
	}

	if !receiptDate.After(invoiceDate) {
		return models.FieldScore{Score: receiptLogicExpectedScore, Evidence: evidence}
	}
	return models.FieldScore{Score: receiptLogicInvertedScore, Evidence: evidence}
}

func vendorIdentity(v *models.Vendor) normalizer.VendorIdentity {
	id := normalizer.VendorIdentity{Name: v.Name}
	if v.Email != nil {
		id.Email = *v.Email
	}
	if v.Phone != nil {
		id.Phone = *v.Phone
	}
	if v.TaxID != nil {
		id.TaxID = *v.TaxID
	}
	return id
}
