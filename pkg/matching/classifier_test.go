package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mmtuentertainment/apmatch/pkg/models"
)

func goodScores() map[string]models.FieldScore {
	return map[string]models.FieldScore{
		"vendor": {Score: 100},
		"amount": {Score: 100},
		"date":   {Score: 100},
	}
}

func TestClassifyBands(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name          string
		confidence    float64
		expected      string
		wantException bool
	}{
		{"high confidence is matched", 97, models.MatchStatusMatched, false},
		{"band edge 95 is matched", 95, models.MatchStatusMatched, false},
		{"mid band is partial", 85, models.MatchStatusPartial, false},
		{"band edge 70 is partial", 70, models.MatchStatusPartial, false},
		{"low band is exception", 60, models.MatchStatusException, true},
		{"band edge 50 is exception", 50, models.MatchStatusException, true},
		{"below 50 is failed", 30, models.MatchStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.confidence, goodScores(), true, decimal.Zero, decimal.NewFromInt(500), ThresholdPartial, now)
			assert.Equal(t, tt.expected, c.MatchStatus)
			if tt.wantException {
				assert.NotEmpty(t, c.ExceptionType)
			} else {
				assert.Empty(t, c.ExceptionType)
			}
		})
	}
}

func TestClassifyTenantReviewThreshold(t *testing.T) {
	now := time.Now()
	total := decimal.NewFromInt(500)

	t.Run("stricter threshold routes a partial to review", func(t *testing.T) {
		c := Classify(75, goodScores(), true, decimal.Zero, total, 80, now)
		assert.Equal(t, models.MatchStatusException, c.MatchStatus)
		assert.Equal(t, models.ExceptionTypeApprovalRequired, c.ExceptionType)
	})

	t.Run("looser threshold widens the partial band", func(t *testing.T) {
		c := Classify(65, goodScores(), true, decimal.Zero, total, 60, now)
		assert.Equal(t, models.MatchStatusPartial, c.MatchStatus)
		assert.Empty(t, c.ExceptionType)
	})

	t.Run("zero threshold falls back to the default boundary", func(t *testing.T) {
		c := Classify(69, goodScores(), true, decimal.Zero, total, 0, now)
		assert.Equal(t, models.MatchStatusException, c.MatchStatus)
	})

	t.Run("matched band is not affected", func(t *testing.T) {
		c := Classify(96, goodScores(), true, decimal.Zero, total, 80, now)
		assert.Equal(t, models.MatchStatusMatched, c.MatchStatus)
	})
}

func TestClassifyExceptionTypeInference(t *testing.T) {
	now := time.Now()
	total := decimal.NewFromInt(500)

	t.Run("no candidates and failed is no_match_found", func(t *testing.T) {
		c := Classify(0, map[string]models.FieldScore{}, false, decimal.Zero, total, ThresholdPartial, now)
		assert.Equal(t, models.MatchStatusFailed, c.MatchStatus)
		assert.Equal(t, models.ExceptionTypeNoMatchFound, c.ExceptionType)
	})

	t.Run("low amount score wins first", func(t *testing.T) {
		scores := map[string]models.FieldScore{
			"vendor": {Score: 50},
			"amount": {Score: 40},
			"date":   {Score: 50},
		}
		c := Classify(55, scores, true, decimal.NewFromInt(200), total, ThresholdPartial, now)
		assert.Equal(t, models.ExceptionTypeAmountVariance, c.ExceptionType)
	})

	t.Run("vendor mismatch when amount is fine", func(t *testing.T) {
		scores := map[string]models.FieldScore{
			"vendor": {Score: 40},
			"amount": {Score: 90},
			"date":   {Score: 40},
		}
		c := Classify(60, scores, true, decimal.Zero, total, ThresholdPartial, now)
		assert.Equal(t, models.ExceptionTypeVendorMismatch, c.ExceptionType)
	})

	t.Run("date variance when amount and vendor are fine", func(t *testing.T) {
		scores := map[string]models.FieldScore{
			"vendor": {Score: 100},
			"amount": {Score: 90},
			"date":   {Score: 20},
		}
		c := Classify(65, scores, true, decimal.Zero, total, ThresholdPartial, now)
		assert.Equal(t, models.ExceptionTypeDateVariance, c.ExceptionType)
	})

	t.Run("borderline with no disqualifying field needs approval", func(t *testing.T) {
		scores := map[string]models.FieldScore{
			"vendor": {Score: 85},
			"amount": {Score: 75},
			"date":   {Score: 75},
		}
		c := Classify(62, scores, true, decimal.Zero, total, ThresholdPartial, now)
		assert.Equal(t, models.ExceptionTypeApprovalRequired, c.ExceptionType)
	})
}

func TestClassifySeverityAndPriority(t *testing.T) {
	now := time.Now()

	t.Run("large variance is high severity priority 1", func(t *testing.T) {
		c := Classify(55, goodScores(), true, decimal.NewFromInt(1500), decimal.NewFromInt(5000), ThresholdPartial, now)
		assert.Equal(t, models.ExceptionSeverityHigh, c.Severity)
		assert.Equal(t, 1, c.Priority)
		assert.Equal(t, now.Add(3*24*time.Hour), c.DueDate)
	})

	t.Run("large invoice is high severity priority 1", func(t *testing.T) {
		c := Classify(55, goodScores(), true, decimal.NewFromInt(50), decimal.NewFromInt(20000), ThresholdPartial, now)
		assert.Equal(t, models.ExceptionSeverityHigh, c.Severity)
		assert.Equal(t, 1, c.Priority)
	})

	t.Run("amount variance is medium priority 2", func(t *testing.T) {
		scores := map[string]models.FieldScore{
			"vendor": {Score: 100},
			"amount": {Score: 40},
			"date":   {Score: 100},
		}
		c := Classify(60, scores, true, decimal.NewFromInt(100), decimal.NewFromInt(500), ThresholdPartial, now)
		assert.Equal(t, models.ExceptionSeverityMedium, c.Severity)
		assert.Equal(t, 2, c.Priority)
		assert.Equal(t, now.Add(7*24*time.Hour), c.DueDate)
	})

	t.Run("other types are medium priority 3", func(t *testing.T) {
		scores := map[string]models.FieldScore{
			"vendor": {Score: 40},
			"amount": {Score: 90},
			"date":   {Score: 100},
		}
		c := Classify(60, scores, true, decimal.NewFromInt(5), decimal.NewFromInt(500), ThresholdPartial, now)
		assert.Equal(t, models.ExceptionSeverityMedium, c.Severity)
		assert.Equal(t, 3, c.Priority)
	})
}
