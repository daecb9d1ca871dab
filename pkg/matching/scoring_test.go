package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mmtuentertainment/apmatch/pkg/models"
)

func defaultTolerances() Tolerances {
	return Tolerances{
		AmountTolerancePercent: decimal.NewFromInt(5),
		AmountToleranceAbs:     decimal.NewFromInt(10),
		DateToleranceDays:      7,
	}
}

func TestAmountScore(t *testing.T) {
	tol := defaultTolerances()

	t.Run("exact amounts score 100", func(t *testing.T) {
		score := AmountScore(decimal.NewFromFloat(6250), decimal.NewFromFloat(6250), tol)
		assert.Equal(t, 100.0, score.Score)
	})

	t.Run("small variance within tolerance stays above 80", func(t *testing.T) {
		// 6265.75 vs 6250.00: 0.25% variance, well inside the 5% band
		score := AmountScore(decimal.NewFromFloat(6265.75), decimal.NewFromFloat(6250), tol)
		assert.Greater(t, score.Score, 80.0)
		assert.Less(t, score.Score, 100.0)
	})

	t.Run("difference at tolerance edge scores 80", func(t *testing.T) {
		// avg 1000, 5% tolerance = 50; diff exactly 50
		score := AmountScore(decimal.NewFromFloat(1025), decimal.NewFromFloat(975), tol)
		assert.InDelta(t, 80.0, score.Score, 0.001)
	})

	t.Run("difference equal to the average scores 0", func(t *testing.T) {
		// a=150, b=50: avg=100, diff=100
		score := AmountScore(decimal.NewFromFloat(150), decimal.NewFromFloat(50), tol)
		assert.Equal(t, 0.0, score.Score)
	})

	t.Run("beyond tolerance decays toward 0", func(t *testing.T) {
		// avg 100, tolerance max(5, 10)=10, diff 60: 80*(1-50/90) ~ 35.6
		score := AmountScore(decimal.NewFromFloat(130), decimal.NewFromFloat(70), tol)
		assert.Greater(t, score.Score, 0.0)
		assert.Less(t, score.Score, 80.0)
	})

	t.Run("both amounts zero score 100", func(t *testing.T) {
		score := AmountScore(decimal.Zero, decimal.Zero, tol)
		assert.Equal(t, 100.0, score.Score)
	})

	t.Run("evidence carries the raw comparison", func(t *testing.T) {
		score := AmountScore(decimal.NewFromFloat(110), decimal.NewFromFloat(100), tol)
		assert.Equal(t, "110", score.Evidence["invoice_amount"])
		assert.Equal(t, "100", score.Evidence["po_amount"])
		assert.Equal(t, "10", score.Evidence["difference"])
	})
}

func TestDateScore(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("same day scores 100", func(t *testing.T) {
		score := DateScore(base, base, 7)
		assert.Equal(t, 100.0, score.Score)
	})

	t.Run("at the tolerance edge scores 70", func(t *testing.T) {
		score := DateScore(base, base.AddDate(0, 0, 7), 7)
		assert.InDelta(t, 70.0, score.Score, 0.001)
	})

	t.Run("inside the window stays above 70", func(t *testing.T) {
		score := DateScore(base, base.AddDate(0, 0, 3), 7)
		assert.Greater(t, score.Score, 70.0)
		assert.Less(t, score.Score, 100.0)
	})

	t.Run("decays to 0 at three times the window", func(t *testing.T) {
		score := DateScore(base, base.AddDate(0, 0, 21), 7)
		assert.Equal(t, 0.0, score.Score)
	})

	t.Run("beyond the window but within decay range", func(t *testing.T) {
		score := DateScore(base, base.AddDate(0, 0, 14), 7)
		assert.InDelta(t, 35.0, score.Score, 0.001)
	})

	t.Run("tail decay is steeper than the in-window decay", func(t *testing.T) {
		inWindow := DateScore(base, base, 7).Score - DateScore(base, base.AddDate(0, 0, 7), 7).Score
		tail := DateScore(base, base.AddDate(0, 0, 7), 7).Score - DateScore(base, base.AddDate(0, 0, 14), 7).Score
		assert.Greater(t, tail, inWindow)
	})

	t.Run("missing date scores 0", func(t *testing.T) {
		score := DateScore(time.Time{}, base, 7)
		assert.Equal(t, 0.0, score.Score)
	})
}

func TestVendorScore(t *testing.T) {
	t.Run("suffix insensitive names score 100", func(t *testing.T) {
		a := &models.Vendor{Name: "Acme Office Supplies Inc"}
		b := &models.Vendor{Name: "ACME OFFICE SUPPLIES"}
		score := VendorScore(a, b)
		assert.Equal(t, 100.0, score.Score)
		assert.Equal(t, true, score.Evidence["exact"])
	})

	t.Run("different names fall back to similarity", func(t *testing.T) {
		a := &models.Vendor{Name: "Acme Widgets"}
		b := &models.Vendor{Name: "Acme Widgetz"}
		score := VendorScore(a, b)
		assert.Greater(t, score.Score, 80.0)
		assert.Less(t, score.Score, 100.0)
	})

	t.Run("missing vendor scores 0", func(t *testing.T) {
		score := VendorScore(&models.Vendor{Name: "Acme"}, nil)
		assert.Equal(t, 0.0, score.Score)
	})
}

func TestReferenceScore(t *testing.T) {
	ref := "PO-2026-0042"

	t.Run("exact match scores 100", func(t *testing.T) {
		assert.Equal(t, 100.0, ReferenceScore(&ref, "PO-2026-0042").Score)
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, 100.0, ReferenceScore(&ref, "po-2026-0042").Score)
	})

	t.Run("no fuzzy credit", func(t *testing.T) {
		assert.Equal(t, 0.0, ReferenceScore(&ref, "PO-2026-0043").Score)
	})

	t.Run("missing reference scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, ReferenceScore(nil, "PO-2026-0042").Score)
	})
}

func TestReceiptLogicScore(t *testing.T) {
	invoiceDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("receipt before invoice scores 90", func(t *testing.T) {
		score := ReceiptLogicScore(invoiceDate.AddDate(0, 0, -2), invoiceDate)
		assert.Equal(t, 90.0, score.Score)
	})

	t.Run("receipt on the invoice date scores 90", func(t *testing.T) {
		score := ReceiptLogicScore(invoiceDate, invoiceDate)
		assert.Equal(t, 90.0, score.Score)
	})

	t.Run("receipt after invoice scores 60", func(t *testing.T) {
		score := ReceiptLogicScore(invoiceDate.AddDate(0, 0, 5), invoiceDate)
		assert.Equal(t, 60.0, score.Score)
	})

	t.Run("missing dates score 0", func(t *testing.T) {
		score := ReceiptLogicScore(time.Time{}, invoiceDate)
		assert.Equal(t, 0.0, score.Score)
	})
}

func TestAggregateClamped(t *testing.T) {
	assert.Equal(t, 100.0, Aggregate2Way(200, 200, 200))
	assert.Equal(t, 0.0, Aggregate2Way(-50, -50, -50))
	assert.Equal(t, 100.0, Aggregate3Way(150, 150, 150, 150))
}

func TestAggregateWeights(t *testing.T) {
	// perfect fields with the expected receipt order: 25 + 35 + 15 + 22.5
	assert.InDelta(t, 97.5, Aggregate3Way(100, 100, 100, 90), 0.001)
	assert.InDelta(t, 100.0, Aggregate2Way(100, 100, 100), 0.001)
	assert.InDelta(t, 40.0, Aggregate2Way(0, 100, 0), 0.001)
}
