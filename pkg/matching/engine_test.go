package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/apmatch/pkg/models"
)

const testTenant = "tenant-1"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeStore struct {
	invoices        map[string]*models.Invoice
	vendors         map[string]*models.Vendor
	pos             map[string]*models.PurchaseOrder
	receipts        map[string][]*models.Receipt
	rules           []*models.MatchingRule
	results         []*models.MatchResult
	exceptions      []*models.MatchException
	auditEvents     []*models.AuditEvent
	invoiceStatuses map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invoices:        map[string]*models.Invoice{},
		vendors:         map[string]*models.Vendor{},
		pos:             map[string]*models.PurchaseOrder{},
		receipts:        map[string][]*models.Receipt{},
		invoiceStatuses: map[string]string{},
	}
}

func (f *fakeStore) GetByID(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, errors.New("sql: no rows in result set")
	}
	return inv, nil
}

func (f *fakeStore) UpdateMatchingStatus(ctx context.Context, tenantID, id, status string) error {
	f.invoiceStatuses[id] = status
	return nil
}

type fakeVendors struct{ store *fakeStore }

func (f fakeVendors) GetByID(ctx context.Context, tenantID, id string) (*models.Vendor, error) {
	v, ok := f.store.vendors[id]
	if !ok {
		return nil, errors.New("sql: no rows in result set")
	}
	return v, nil
}

type fakePOs struct{ store *fakeStore }

func (f fakePOs) GetByID(ctx context.Context, tenantID, id string) (*models.PurchaseOrder, error) {
	po, ok := f.store.pos[id]
	if !ok {
		return nil, errors.New("sql: no rows in result set")
	}
	return po, nil
}

func (f fakePOs) ListMatchable(ctx context.Context, tenantID, vendorID string, limit int) ([]*models.PurchaseOrder, error) {
	var out []*models.PurchaseOrder
	for _, po := range f.store.pos {
		if po.VendorID == vendorID && len(out) < limit {
			out = append(out, po)
		}
	}
	return out, nil
}

type fakeReceipts struct{ store *fakeStore }

func (f fakeReceipts) ListAcceptedByPO(ctx context.Context, tenantID, poID string) ([]*models.Receipt, error) {
	return f.store.receipts[poID], nil
}

type fakeResults struct{ store *fakeStore }

func (f fakeResults) Create(ctx context.Context, result *models.MatchResult) (*models.MatchResult, error) {
	result.ID = fmt.Sprintf("result-%d", len(f.store.results)+1)
	result.CreatedAt = time.Now()
	f.store.results = append(f.store.results, result)
	return result, nil
}

type fakeExceptions struct{ store *fakeStore }

func (f fakeExceptions) Create(ctx context.Context, exception *models.MatchException) (*models.MatchException, error) {
	exception.ID = fmt.Sprintf("exception-%d", len(f.store.exceptions)+1)
	f.store.exceptions = append(f.store.exceptions, exception)
	return exception, nil
}

type fakeRules struct{ store *fakeStore }

func (f fakeRules) GetEffectiveRule(ctx context.Context, tenantID, vendorID string) (*models.MatchingRule, error) {
	for _, rule := range f.store.rules {
		if rule.VendorID != nil && *rule.VendorID == vendorID {
			return rule, nil
		}
	}
	for _, rule := range f.store.rules {
		if rule.VendorID == nil {
			return rule, nil
		}
	}
	return nil, nil
}

type fakeAudit struct{ store *fakeStore }

func (f fakeAudit) Emit(ctx context.Context, event *models.AuditEvent) error {
	f.store.auditEvents = append(f.store.auditEvents, event)
	return nil
}

type stubEnhancer struct {
	confidence float64
	err        error
	called     bool
}

func (s *stubEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (float64, error) {
	s.called = true
	if s.err != nil {
		return 0, s.err
	}
	return s.confidence, nil
}

func newTestEngine(store *fakeStore, enhancer Enhancer) *Engine {
	logger := testLogger()
	finder := NewCandidateFinder(fakePOs{store}, fakeReceipts{store}, 10, logger)
	return NewEngine(
		store,
		fakeVendors{store},
		fakeResults{store},
		fakeExceptions{store},
		fakeRules{store},
		finder,
		enhancer,
		fakeAudit{store},
		logger,
	)
}

func seedExactMatch(store *fakeStore) *models.Invoice {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	ref := "PO-1001"

	store.vendors["vendor-1"] = &models.Vendor{
		ID: "vendor-1", TenantID: testTenant, Name: "Acme Office Supplies Inc",
		Status: models.VendorStatusActive, CreatedAt: date,
	}
	store.pos["po-1"] = &models.PurchaseOrder{
		ID: "po-1", TenantID: testTenant, PONumber: "PO-1001", VendorID: "vendor-1",
		TotalAmount: decimal.NewFromFloat(6250), PODate: date,
		Status: models.PurchaseOrderStatusApproved,
	}
	store.receipts["po-1"] = []*models.Receipt{{
		ID: "receipt-1", TenantID: testTenant, POID: "po-1",
		ReceiptNumber: "R-1", ReceiptDate: date.AddDate(0, 0, -1),
		Status: models.ReceiptStatusAccepted,
	}}
	invoice := &models.Invoice{
		ID: "invoice-1", TenantID: testTenant, VendorID: "vendor-1",
		InvoiceNumber: "INV-1", TotalAmount: decimal.NewFromFloat(6250),
		InvoiceDate: date, PONumberRef: &ref,
		MatchingStatus: models.InvoiceMatchingStatusUnmatched,
	}
	store.invoices["invoice-1"] = invoice
	return invoice
}

func TestMatchInvoiceExactMatch(t *testing.T) {
	store := newFakeStore()
	seedExactMatch(store)
	engine := newTestEngine(store, nil)

	result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.OverallConfidence, 95.0)
	assert.Equal(t, models.MatchStatusMatched, result.MatchStatus)
	assert.Equal(t, models.ApprovalStatusAutoApproved, result.ApprovalStatus)
	assert.Equal(t, models.InvoiceMatchingStatusMatched, store.invoiceStatuses["invoice-1"])
	assert.Empty(t, store.exceptions)
	require.NotNil(t, result.POID)
	assert.Equal(t, "po-1", *result.POID)
	assert.True(t, decimal.Zero.Equal(result.VarianceAmount))
}

func TestMatchInvoiceSmallAmountVariance(t *testing.T) {
	store := newFakeStore()
	invoice := seedExactMatch(store)
	invoice.TotalAmount = decimal.NewFromFloat(6265.75)

	engine := newTestEngine(store, nil)

	result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)

	amountScore := result.FieldScores.Data["amount"]
	assert.Greater(t, amountScore.Score, 80.0)
	assert.Less(t, amountScore.Score, 100.0)
	assert.GreaterOrEqual(t, result.OverallConfidence, 70.0)
	assert.True(t, decimal.NewFromFloat(15.75).Equal(result.VarianceAmount))
	assert.Empty(t, store.exceptions)
}

func TestMatchInvoiceNoCandidates(t *testing.T) {
	store := newFakeStore()
	invoice := seedExactMatch(store)
	delete(store.pos, "po-1")
	invoice.PONumberRef = nil

	engine := newTestEngine(store, nil)

	result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.MatchStatusFailed, result.MatchStatus)
	assert.Equal(t, 0.0, result.OverallConfidence)
	assert.Nil(t, result.POID)
	assert.Equal(t, models.InvoiceMatchingStatusException, store.invoiceStatuses["invoice-1"])

	require.Len(t, store.exceptions, 1)
	assert.Equal(t, models.ExceptionTypeNoMatchFound, store.exceptions[0].ExceptionType)
	assert.Equal(t, models.ExceptionStatusOpen, store.exceptions[0].Status)
}

func TestMatchInvoiceLargeAmountVariance(t *testing.T) {
	store := newFakeStore()
	invoice := seedExactMatch(store)
	invoice.TotalAmount = decimal.NewFromFloat(15000)
	invoice.PONumberRef = nil

	engine := newTestEngine(store, nil)

	result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)

	assert.Less(t, result.OverallConfidence, 70.0)
	require.Len(t, store.exceptions, 1)
	exception := store.exceptions[0]
	assert.Equal(t, models.ExceptionTypeAmountVariance, exception.ExceptionType)
	assert.Equal(t, models.ExceptionSeverityHigh, exception.Severity)
	assert.Equal(t, 1, exception.Priority)
	require.NotNil(t, exception.FieldName)
	assert.Equal(t, "total_amount", *exception.FieldName)
	assert.Equal(t, "6250", *exception.ExpectedValue)
	assert.Equal(t, "15000", *exception.ActualValue)
	assert.True(t, decimal.NewFromFloat(8750).Equal(exception.VarianceAmount))
}

func TestMatchInvoicePOIDHint(t *testing.T) {
	store := newFakeStore()
	invoice := seedExactMatch(store)

	// a second, worse PO that would otherwise be a candidate
	store.pos["po-2"] = &models.PurchaseOrder{
		ID: "po-2", TenantID: testTenant, PONumber: "PO-2002", VendorID: "vendor-1",
		TotalAmount: decimal.NewFromFloat(6250), PODate: invoice.InvoiceDate,
		Status: models.PurchaseOrderStatusApproved,
	}
	hint := "po-2"
	invoice.POID = &hint
	invoice.PONumberRef = nil

	engine := newTestEngine(store, nil)

	result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)

	require.NotNil(t, result.POID)
	assert.Equal(t, "po-2", *result.POID)
}

func TestMatchInvoiceEnhancement(t *testing.T) {
	setup := func() (*fakeStore, *models.Invoice) {
		store := newFakeStore()
		invoice := seedExactMatch(store)
		// push confidence into the ambiguous band with a 20-day date gap
		invoice.InvoiceDate = invoice.InvoiceDate.AddDate(0, 0, 20)
		invoice.PONumberRef = nil
		return store, invoice
	}

	t.Run("higher enhanced confidence is used", func(t *testing.T) {
		store, _ := setup()
		enhancer := &stubEnhancer{confidence: 92}
		engine := newTestEngine(store, enhancer)

		result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
		require.NoError(t, err)

		assert.True(t, enhancer.called)
		assert.Equal(t, 92.0, result.OverallConfidence)
	})

	t.Run("lower enhanced confidence is ignored", func(t *testing.T) {
		store, _ := setup()
		enhancer := &stubEnhancer{confidence: 10}
		engine := newTestEngine(store, enhancer)

		result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
		require.NoError(t, err)

		assert.True(t, enhancer.called)
		assert.Greater(t, result.OverallConfidence, 10.0)
	})

	t.Run("enhancer failure falls back silently", func(t *testing.T) {
		store, _ := setup()
		enhancer := &stubEnhancer{err: errors.New("service unavailable")}
		engine := newTestEngine(store, enhancer)

		result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
		require.NoError(t, err)

		assert.True(t, enhancer.called)
		assert.Greater(t, result.OverallConfidence, 0.0)
	})
}

func TestMatchInvoiceAppendOnly(t *testing.T) {
	store := newFakeStore()
	seedExactMatch(store)
	engine := newTestEngine(store, nil)

	_, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)
	first := store.results[0]

	_, err = engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)

	require.Len(t, store.results, 2)
	assert.Equal(t, first, store.results[0])
	assert.NotEqual(t, store.results[0].ID, store.results[1].ID)
}

func TestMatchInvoiceAutoApproveOverride(t *testing.T) {
	store := newFakeStore()
	invoice := seedExactMatch(store)
	invoice.TotalAmount = decimal.NewFromFloat(6265.75)

	engine := newTestEngine(store, nil)

	// raise the bar above what this invoice can reach
	override := 99.9
	result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", &override)
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalStatusPending, result.ApprovalStatus)
}

func TestMatchInvoiceEmitsAuditTrail(t *testing.T) {
	store := newFakeStore()
	seedExactMatch(store)
	engine := newTestEngine(store, nil)

	_, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
	require.NoError(t, err)

	var types []string
	for _, event := range store.auditEvents {
		types = append(types, event.EventType)
	}
	assert.Contains(t, types, models.AuditEventMatchAttempted)
	assert.Contains(t, types, models.AuditEventMatchDecided)
	assert.Contains(t, types, models.AuditEventMatchAutoApproved)
}

func TestMatchInvoiceRuleReviewThreshold(t *testing.T) {
	// A two-way match with a 14-day date gap: amount and vendor score 100,
	// the date scores 35, so confidence lands at 80.5.
	seed := func() *fakeStore {
		store := newFakeStore()
		invoice := seedExactMatch(store)
		delete(store.receipts, "po-1")
		invoice.InvoiceDate = invoice.InvoiceDate.AddDate(0, 0, 14)
		return store
	}

	t.Run("default boundary leaves it partial", func(t *testing.T) {
		store := seed()
		engine := newTestEngine(store, nil)

		result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
		require.NoError(t, err)

		assert.InDelta(t, 80.5, result.OverallConfidence, 0.001)
		assert.Equal(t, models.MatchStatusPartial, result.MatchStatus)
		assert.Empty(t, store.exceptions)
	})

	t.Run("stricter tenant rule routes it to review", func(t *testing.T) {
		store := seed()
		store.rules = append(store.rules, &models.MatchingRule{
			ID: "rule-1", TenantID: testTenant, Name: "strict", IsActive: true,
			AmountTolerancePercent: decimal.NewFromInt(5),
			AmountToleranceAbs:     decimal.NewFromInt(10),
			DateToleranceDays:      7,
			AutoApproveThreshold:   85,
			ReviewThreshold:        85,
		})
		engine := newTestEngine(store, nil)

		result, err := engine.MatchInvoice(context.Background(), testTenant, "invoice-1", nil)
		require.NoError(t, err)

		assert.Equal(t, models.MatchStatusException, result.MatchStatus)
		require.Len(t, store.exceptions, 1)
		assert.Equal(t, models.ExceptionTypeDateVariance, store.exceptions[0].ExceptionType)
		assert.Equal(t, models.InvoiceMatchingStatusException, store.invoiceStatuses["invoice-1"])
	})
}
