// Package matching implements invoice reconciliation: candidate discovery,
// field scoring, confidence aggregation, and match classification.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"

	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/metrics"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// InvoiceRepository provides invoice reads and matching-status updates
type InvoiceRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Invoice, error)
	UpdateMatchingStatus(ctx context.Context, tenantID, id, status string) error
}

// VendorSource provides vendor lookups for scoring
type VendorSource interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Vendor, error)
}

// MatchResultRepository persists match results. Results are append-only;
// only the approval status may change after insert.
type MatchResultRepository interface {
	Create(ctx context.Context, result *models.MatchResult) (*models.MatchResult, error)
}

// ExceptionRepository persists match exceptions
type ExceptionRepository interface {
	Create(ctx context.Context, exception *models.MatchException) (*models.MatchException, error)
}

// RuleSource resolves the effective matching rule for an invoice. A nil rule
// means the tenant has none configured and the built-in defaults apply.
type RuleSource interface {
	GetEffectiveRule(ctx context.Context, tenantID, vendorID string) (*models.MatchingRule, error)
}

// AuditEmitter records audit events for match decisions
type AuditEmitter interface {
	Emit(ctx context.Context, event *models.AuditEvent) error
}

// Engine matches a single invoice against its candidate purchase orders and
// receipts.
type Engine struct {
	invoices   InvoiceRepository
	vendors    VendorSource
	results    MatchResultRepository
	exceptions ExceptionRepository
	rules      RuleSource
	finder     *CandidateFinder
	enhancer   Enhancer
	audit      AuditEmitter
	logger     ectologger.Logger
}

// NewEngine creates a new match engine
func NewEngine(
	invoices InvoiceRepository,
	vendors VendorSource,
	results MatchResultRepository,
	exceptions ExceptionRepository,
	rules RuleSource,
	finder *CandidateFinder,
	enhancer Enhancer,
	audit AuditEmitter,
	logger ectologger.Logger,
) *Engine {
	if enhancer == nil {
		enhancer = NoopEnhancer{}
	}
	return &Engine{
		invoices:   invoices,
		vendors:    vendors,
		results:    results,
		exceptions: exceptions,
		rules:      rules,
		finder:     finder,
		enhancer:   enhancer,
		audit:      audit,
		logger:     logger,
	}
}

// evaluation is the best-scoring pairing found for an invoice
type evaluation struct {
	po          *models.PurchaseOrder
	receipt     *models.Receipt
	matchType   models.MatchType
	confidence  float64
	fieldScores map[string]models.FieldScore
}

// MatchInvoice runs the full matching pipeline for one invoice and persists
// the outcome. autoApproveOverride, when set, takes precedence over the
// effective rule's auto-approve threshold.
func (e *Engine) MatchInvoice(ctx context.Context, tenantID, invoiceID string, autoApproveOverride *float64) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.MatchInvoice")
	defer span.End()

	start := time.Now()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"invoice_id": invoiceID,
	})

	invoice, err := e.invoices.GetByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, &models.AuditEvent{
		TenantID:  tenantID,
		EventType: models.AuditEventMatchAttempted,
		InvoiceID: &invoice.ID,
		Actor:     "system",
	})

	vendor, err := e.vendors.GetByID(ctx, tenantID, invoice.VendorID)
	if err != nil {
		return nil, err
	}

	rule, err := e.effectiveRule(ctx, tenantID, invoice.VendorID)
	if err != nil {
		return nil, err
	}
	autoApproveThreshold := rule.AutoApproveThreshold
	if autoApproveOverride != nil {
		autoApproveThreshold = *autoApproveOverride
	}

	candidates, err := e.finder.Find(ctx, invoice)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}

	best := e.evaluate(ctx, invoice, vendor, candidates, TolerancesFromRule(rule))

	if len(candidates) > 0 && best.confidence >= enhanceBandLow && best.confidence < enhanceBandHigh {
		best.confidence = e.enhance(ctx, tenantID, invoice, best)
	}

	variance := decimal.Zero
	if best.po != nil {
		variance = invoice.TotalAmount.Sub(best.po.TotalAmount)
	}

	classification := Classify(best.confidence, best.fieldScores, len(candidates) > 0, variance, invoice.TotalAmount, rule.ReviewThreshold, time.Now())

	result := &models.MatchResult{
		TenantID:          tenantID,
		InvoiceID:         invoice.ID,
		MatchType:         best.matchType,
		OverallConfidence: best.confidence,
		FieldScores:       database.JSONB[map[string]models.FieldScore]{Data: best.fieldScores},
		MatchStatus:       classification.MatchStatus,
		ApprovalStatus:    models.ApprovalStatusPending,
		VarianceAmount:    variance,
	}
	if best.po != nil {
		result.POID = &best.po.ID
	}
	if best.receipt != nil {
		result.ReceiptID = &best.receipt.ID
	}

	autoApproved := best.confidence >= autoApproveThreshold
	if autoApproved {
		result.ApprovalStatus = models.ApprovalStatusAutoApproved
	}

	result, err = e.results.Create(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("failed to persist match result: %w", err)
	}

	if classification.ExceptionType != "" {
		if err := e.createException(ctx, invoice, result, best, classification, variance); err != nil {
			return nil, err
		}
	}

	invoiceStatus := invoiceStatusFor(classification.MatchStatus, autoApproved)
	if err := e.invoices.UpdateMatchingStatus(ctx, tenantID, invoice.ID, invoiceStatus); err != nil {
		return nil, fmt.Errorf("failed to update invoice status: %w", err)
	}

	latency := time.Since(start)
	metrics.RecordInvoiceMatch(tenantID, classification.MatchStatus, latency.Seconds())

	e.emitAudit(ctx, &models.AuditEvent{
		TenantID:      tenantID,
		EventType:     models.AuditEventMatchDecided,
		InvoiceID:     &invoice.ID,
		POID:          result.POID,
		ReceiptID:     result.ReceiptID,
		MatchResultID: &result.ID,
		After: database.JSONB[map[string]any]{Data: map[string]any{
			"match_status":       classification.MatchStatus,
			"overall_confidence": best.confidence,
			"match_type":         best.matchType,
			"approval_status":    result.ApprovalStatus,
		}},
		LatencyMillis: latency.Milliseconds(),
		Actor:         "system",
	})
	if autoApproved {
		e.emitAudit(ctx, &models.AuditEvent{
			TenantID:      tenantID,
			EventType:     models.AuditEventMatchAutoApproved,
			InvoiceID:     &invoice.ID,
			MatchResultID: &result.ID,
			Actor:         "system",
		})
	}

	log.WithFields(map[string]any{
		"match_status": classification.MatchStatus,
		"confidence":   best.confidence,
	}).Info("Matched invoice")

	return result, nil
}

// evaluate scores every candidate pairing and keeps the single best one.
// Three-way pairings are preferred over two-way when not worse.
func (e *Engine) evaluate(ctx context.Context, invoice *models.Invoice, invoiceVendor *models.Vendor, candidates []Candidate, tol Tolerances) evaluation {
	best2 := evaluation{matchType: models.MatchType2WayPOInvoice, confidence: -1}
	best3 := evaluation{matchType: models.MatchType3WayFull, confidence: -1}

	// Candidate POs are usually restricted to the invoice's vendor; a po_id
	// hint can point at a PO held by an unmerged duplicate vendor record, so
	// the PO side's vendor is fetched when it differs.
	poVendors := map[string]*models.Vendor{invoice.VendorID: invoiceVendor}

	for _, candidate := range candidates {
		po := candidate.PO

		poVendor, ok := poVendors[po.VendorID]
		if !ok {
			fetched, err := e.vendors.GetByID(ctx, invoice.TenantID, po.VendorID)
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).Warnf("failed to load vendor %s for PO %s", po.VendorID, po.ID)
			}
			poVendor = fetched
			poVendors[po.VendorID] = poVendor
		}

		vendorScore := VendorScore(invoiceVendor, poVendor)

		amountScore := AmountScore(invoice.TotalAmount, po.TotalAmount, tol)
		dateScore := DateScore(invoice.InvoiceDate, po.PODate, tol.DateToleranceDays)
		referenceScore := ReferenceScore(invoice.PONumberRef, po.PONumber)

		scores := map[string]models.FieldScore{
			"vendor":    vendorScore,
			"amount":    amountScore,
			"date":      dateScore,
			"reference": referenceScore,
		}

		confidence2 := Aggregate2Way(vendorScore.Score, amountScore.Score, dateScore.Score)
		if confidence2 > best2.confidence {
			best2 = evaluation{
				po:          po,
				matchType:   models.MatchType2WayPOInvoice,
				confidence:  confidence2,
				fieldScores: scores,
			}
		}

		for _, receipt := range candidate.Receipts {
			receiptScore := ReceiptLogicScore(receipt.ReceiptDate, invoice.InvoiceDate)

			scores3 := map[string]models.FieldScore{
				"vendor":        vendorScore,
				"amount":        amountScore,
				"date":          dateScore,
				"reference":     referenceScore,
				"receipt_logic": receiptScore,
			}

			confidence3 := Aggregate3Way(vendorScore.Score, amountScore.Score, dateScore.Score, receiptScore.Score)
			if confidence3 > best3.confidence {
				best3 = evaluation{
					po:          po,
					receipt:     receipt,
					matchType:   models.MatchType3WayFull,
					confidence:  confidence3,
					fieldScores: scores3,
				}
			}
		}
	}

	if best3.po != nil && best3.confidence >= best2.confidence {
		return best3
	}
	if best2.po != nil {
		return best2
	}

	return evaluation{
		matchType:   models.MatchType2WayPOInvoice,
		confidence:  0,
		fieldScores: map[string]models.FieldScore{},
	}
}

// enhance consults the external scorer for an ambiguous match. Its answer is
// used only when higher than the rule-based confidence; any failure falls
// back silently.
func (e *Engine) enhance(ctx context.Context, tenantID string, invoice *models.Invoice, best evaluation) float64 {
	req := EnhanceRequest{
		TenantID:    tenantID,
		InvoiceID:   invoice.ID,
		MatchType:   best.matchType,
		Confidence:  best.confidence,
		FieldScores: best.fieldScores,
	}
	if best.po != nil {
		req.POID = best.po.ID
	}
	if best.receipt != nil {
		req.ReceiptID = &best.receipt.ID
	}

	enhanced, err := e.enhancer.Enhance(ctx, req)
	if err != nil {
		metrics.RecordEnhancementCall("error")
		e.logger.WithContext(ctx).WithError(err).Warn("Enhancement call failed, using rule-based confidence")
		return best.confidence
	}

	if enhanced > best.confidence {
		metrics.RecordEnhancementCall("enhanced")
		return clampConfidence(enhanced)
	}

	metrics.RecordEnhancementCall("unchanged")
	return best.confidence
}

func (e *Engine) createException(
	ctx context.Context,
	invoice *models.Invoice,
	result *models.MatchResult,
	best evaluation,
	classification Classification,
	variance decimal.Decimal,
) error {
	exception := &models.MatchException{
		TenantID:       invoice.TenantID,
		MatchResultID:  result.ID,
		InvoiceID:      invoice.ID,
		ExceptionType:  classification.ExceptionType,
		Severity:       classification.Severity,
		VarianceAmount: variance,
		Status:         models.ExceptionStatusOpen,
		Priority:       classification.Priority,
		DueDate:        classification.DueDate,
		Details: database.JSONB[map[string]any]{Data: map[string]any{
			"overall_confidence": best.confidence,
			"match_type":         best.matchType,
		}},
	}
	applyExceptionFieldDetail(exception, invoice, best)

	exception, err := e.exceptions.Create(ctx, exception)
	if err != nil {
		return fmt.Errorf("failed to persist match exception: %w", err)
	}

	metrics.RecordException(invoice.TenantID, exception.ExceptionType, exception.Severity)

	e.emitAudit(ctx, &models.AuditEvent{
		TenantID:      invoice.TenantID,
		EventType:     models.AuditEventExceptionCreated,
		InvoiceID:     &invoice.ID,
		MatchResultID: &result.ID,
		ExceptionID:   &exception.ID,
		After: database.JSONB[map[string]any]{Data: map[string]any{
			"exception_type": exception.ExceptionType,
			"severity":       exception.Severity,
			"priority":       exception.Priority,
		}},
		Actor: "system",
	})

	return nil
}

// applyExceptionFieldDetail attaches the disagreeing field with its expected
// and actual values, so reviewers see what disqualified the match.
func applyExceptionFieldDetail(exception *models.MatchException, invoice *models.Invoice, best evaluation) {
	if best.po == nil {
		return
	}

	switch exception.ExceptionType {
	case models.ExceptionTypeAmountVariance:
		exception.FieldName = ptr("total_amount")
		exception.ExpectedValue = ptr(best.po.TotalAmount.String())
		exception.ActualValue = ptr(invoice.TotalAmount.String())
	case models.ExceptionTypeVendorMismatch:
		exception.FieldName = ptr("vendor_id")
		exception.ExpectedValue = ptr(best.po.VendorID)
		exception.ActualValue = ptr(invoice.VendorID)
	case models.ExceptionTypeDateVariance:
		exception.FieldName = ptr("invoice_date")
		exception.ExpectedValue = ptr(best.po.PODate.Format(time.DateOnly))
		exception.ActualValue = ptr(invoice.InvoiceDate.Format(time.DateOnly))
	}
}

func (e *Engine) effectiveRule(ctx context.Context, tenantID, vendorID string) (*models.MatchingRule, error) {
	rule, err := e.rules.GetEffectiveRule(ctx, tenantID, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve matching rule: %w", err)
	}
	if rule == nil {
		return models.DefaultMatchingRule(), nil
	}
	return rule, nil
}

func (e *Engine) emitAudit(ctx context.Context, event *models.AuditEvent) {
	if err := e.audit.Emit(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.WithContext(ctx).WithError(err).Error("failed to emit audit event")
	}
}

func invoiceStatusFor(matchStatus string, autoApproved bool) string {
	if autoApproved {
		return models.InvoiceMatchingStatusMatched
	}
	switch matchStatus {
	case models.MatchStatusMatched:
		return models.InvoiceMatchingStatusMatched
	case models.MatchStatusPartial:
		return models.InvoiceMatchingStatusPartiallyMatched
	default:
		return models.InvoiceMatchingStatusException
	}
}

func ptr[T any](v T) *T {
	return &v
}
