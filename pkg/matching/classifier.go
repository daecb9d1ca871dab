package matching

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmtuentertainment/apmatch/pkg/models"
)

// Default confidence bands for match classification. The partial/exception
// boundary is the tenant's review threshold; the other two bands are fixed.
const (
	ThresholdMatched   = 95
	ThresholdPartial   = 70
	ThresholdException = 50
)

// Field-score floors used for exception-type inference
const (
	amountScoreFloor = 70
	vendorScoreFloor = 80
	dateScoreFloor   = 70
)

// Severity cutoffs
var (
	highVarianceCutoff = decimal.NewFromInt(1000)
	highInvoiceCutoff  = decimal.NewFromInt(10000)
)

// Classification is the outcome of classifying a match result. ExceptionType
// is empty when the confidence band does not require an exception.
type Classification struct {
	MatchStatus   string
	ExceptionType string
	Severity      string
	Priority      int
	DueDate       time.Time
}

// Classify maps an aggregated confidence onto a match status and, for the
// exception bands, infers the exception type from the individual field
// scores. reviewThreshold is the tenant's partial/exception boundary; zero
// or negative falls back to ThresholdPartial. Inference order is fixed: a
// missing document always wins, then amount, vendor, date; a borderline
// confidence with no disqualifying field needs human approval.
func Classify(
	confidence float64,
	scores map[string]models.FieldScore,
	hadCandidates bool,
	variance decimal.Decimal,
	invoiceTotal decimal.Decimal,
	reviewThreshold float64,
	now time.Time,
) Classification {
	if reviewThreshold <= 0 {
		reviewThreshold = ThresholdPartial
	}

	c := Classification{}

	switch {
	case confidence >= ThresholdMatched:
		c.MatchStatus = models.MatchStatusMatched
		return c
	case confidence >= reviewThreshold:
		c.MatchStatus = models.MatchStatusPartial
		return c
	case confidence >= ThresholdException:
		c.MatchStatus = models.MatchStatusException
	default:
		c.MatchStatus = models.MatchStatusFailed
	}

	c.ExceptionType = inferExceptionType(scores, hadCandidates, c.MatchStatus)
	c.Severity, c.Priority = severity(c.ExceptionType, variance, invoiceTotal)
	c.DueDate = dueDate(now, c.Priority)
	return c
}

func inferExceptionType(scores map[string]models.FieldScore, hadCandidates bool, matchStatus string) string {
	if !hadCandidates {
		if matchStatus == models.MatchStatusFailed {
			return models.ExceptionTypeNoMatchFound
		}
		return models.ExceptionTypeMissingDocument
	}

	if scores["amount"].Score < amountScoreFloor {
		return models.ExceptionTypeAmountVariance
	}
	if scores["vendor"].Score < vendorScoreFloor {
		return models.ExceptionTypeVendorMismatch
	}
	if scores["date"].Score < dateScoreFloor {
		return models.ExceptionTypeDateVariance
	}
	return models.ExceptionTypeApprovalRequired
}

func severity(exceptionType string, variance, invoiceTotal decimal.Decimal) (string, int) {
	if invoiceTotal.GreaterThan(highInvoiceCutoff) {
		return models.ExceptionSeverityHigh, 1
	}
	if variance.Abs().GreaterThan(highVarianceCutoff) {
		return models.ExceptionSeverityHigh, 1
	}
	if exceptionType == models.ExceptionTypeAmountVariance {
		return models.ExceptionSeverityMedium, 2
	}
	return models.ExceptionSeverityMedium, 3
}

func dueDate(now time.Time, priority int) time.Time {
	if priority == 1 {
		return now.Add(3 * 24 * time.Hour)
	}
	return now.Add(7 * 24 * time.Hour)
}
