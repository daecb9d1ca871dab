package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmtuentertainment/apmatch/internal/repositories/invoice"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchexception"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchresult"
	"github.com/mmtuentertainment/apmatch/internal/repositories/purchaseorder"
	"github.com/mmtuentertainment/apmatch/internal/repositories/receipt"
	"github.com/mmtuentertainment/apmatch/internal/repositories/vendor"
	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/normalizer"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "postgres"
	}
	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "apmatch"
	}

	dsn := fmt.Sprintf("host=%s port=5432 user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbUser, dbPassword, dbName)

	sqlxDB, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("database unavailable, skipping integration test: %v", err)
	}
	t.Cleanup(func() { sqlxDB.Close() })

	return database.NewDatabaseInstance(sqlxDB, getTestLogger())
}

// TestReconciliationFlow walks a vendor, purchase order, receipt, and invoice
// through the full persistence lifecycle up to an approved match result.
func TestReconciliationFlow(t *testing.T) {
	db := getTestDB(t)
	logger := getTestLogger()
	ctx := context.Background()
	tenantID := uuid.New().String()

	vendors := vendor.NewRepository(db, logger)
	pos := purchaseorder.NewRepository(db, logger)
	receipts := receipt.NewRepository(db, logger)
	invoices := invoice.NewRepository(db, logger)
	results := matchresult.NewRepository(db, logger)

	// Vendor
	v, err := vendors.Create(ctx, &models.Vendor{
		TenantID: tenantID,
		Name:     "Acme Corporation",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VendorStatusActive, v.Status)
	assert.Equal(t, normalizer.NormalizeVendorName("Acme Corporation"), v.NormalizedName)

	// Purchase order with derived totals
	po, err := pos.Create(ctx, tenantID, &models.CreatePurchaseOrderRequest{
		PONumber: "PO-1001",
		VendorID: v.ID,
		PODate:   time.Now().UTC(),
		Status:   models.PurchaseOrderStatusApproved,
		Items: []models.CreatePurchaseOrderItemRequest{
			{Description: "Widgets", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromFloat(12.50)},
			{Description: "Gadgets", Quantity: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(20)},
		},
	})
	require.NoError(t, err)
	assert.True(t, po.TotalAmount.Equal(decimal.NewFromInt(225)), "total should be derived from line items, got %s", po.TotalAmount)

	items, err := pos.GetItems(ctx, tenantID, po.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].LineTotal.Equal(decimal.NewFromInt(125)))

	matchable, err := pos.ListMatchable(ctx, tenantID, v.ID, 10)
	require.NoError(t, err)
	require.Len(t, matchable, 1)

	// Receipt, accepted receipts only participate in three-way matching
	rcpt, err := receipts.Create(ctx, tenantID, &models.CreateReceiptRequest{
		POID:          po.ID,
		ReceiptNumber: "RCV-1",
		ReceiptDate:   time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReceiptStatusReceived, rcpt.Status)

	accepted, err := receipts.ListAcceptedByPO(ctx, tenantID, po.ID)
	require.NoError(t, err)
	assert.Empty(t, accepted)

	require.NoError(t, receipts.UpdateStatus(ctx, tenantID, rcpt.ID, models.ReceiptStatusAccepted))
	accepted, err = receipts.ListAcceptedByPO(ctx, tenantID, po.ID)
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	// Invoice
	inv, err := invoices.Create(ctx, tenantID, &models.CreateInvoiceRequest{
		VendorID:      v.ID,
		InvoiceNumber: "INV-2001",
		TotalAmount:   decimal.NewFromInt(225),
		InvoiceDate:   time.Now().UTC(),
		POID:          &po.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceMatchingStatusUnmatched, inv.MatchingStatus)

	unmatched, err := invoices.ListUnmatchedIDs(ctx, tenantID)
	require.NoError(t, err)
	assert.Contains(t, unmatched, inv.ID)

	// Match result + approval decision
	result, err := results.Create(ctx, &models.MatchResult{
		TenantID:          tenantID,
		InvoiceID:         inv.ID,
		POID:              &po.ID,
		ReceiptID:         &rcpt.ID,
		MatchType:         models.MatchType3WayFull,
		OverallConfidence: 92.5,
		MatchStatus:       models.MatchStatusPartial,
		ApprovalStatus:    models.ApprovalStatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, results.UpdateApprovalStatus(ctx, tenantID, result.ID, models.ApprovalStatusApproved))
	require.NoError(t, invoices.UpdateMatchingStatus(ctx, tenantID, inv.ID, models.InvoiceMatchingStatusMatched))

	history, err := results.ListByInvoice(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ApprovalStatusApproved, history[0].ApprovalStatus)

	inv, err = invoices.GetByID(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceMatchingStatusMatched, inv.MatchingStatus)

	unmatched, err = invoices.ListUnmatchedIDs(ctx, tenantID)
	require.NoError(t, err)
	assert.NotContains(t, unmatched, inv.ID)
}

// TestExceptionLifecycle exercises the review queue state machine against
// real rows: open -> in_review -> escalated with a replacement exception.
func TestExceptionLifecycle(t *testing.T) {
	db := getTestDB(t)
	logger := getTestLogger()
	ctx := context.Background()
	tenantID := uuid.New().String()

	vendors := vendor.NewRepository(db, logger)
	invoices := invoice.NewRepository(db, logger)
	results := matchresult.NewRepository(db, logger)
	exceptions := matchexception.NewRepository(db, logger)

	v, err := vendors.Create(ctx, &models.Vendor{TenantID: tenantID, Name: "Globex LLC"})
	require.NoError(t, err)

	inv, err := invoices.Create(ctx, tenantID, &models.CreateInvoiceRequest{
		VendorID:      v.ID,
		InvoiceNumber: "INV-3001",
		TotalAmount:   decimal.NewFromInt(500),
		InvoiceDate:   time.Now().UTC(),
	})
	require.NoError(t, err)

	result, err := results.Create(ctx, &models.MatchResult{
		TenantID:          tenantID,
		InvoiceID:         inv.ID,
		MatchType:         models.MatchType2WayPOInvoice,
		OverallConfidence: 55,
		MatchStatus:       models.MatchStatusException,
		ApprovalStatus:    models.ApprovalStatusPending,
	})
	require.NoError(t, err)

	fieldName := "total_amount"
	exc, err := exceptions.Create(ctx, &models.MatchException{
		TenantID:      tenantID,
		MatchResultID: result.ID,
		InvoiceID:     inv.ID,
		ExceptionType: models.ExceptionTypeAmountVariance,
		Severity:      models.ExceptionSeverityMedium,
		FieldName:     &fieldName,
		Priority:      2,
		DueDate:       time.Now().UTC().Add(5 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionStatusOpen, exc.Status)

	// Review is only valid from open
	reviewed, err := exceptions.Review(ctx, tenantID, exc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionStatusInReview, reviewed.Status)

	_, err = exceptions.Review(ctx, tenantID, exc.ID)
	require.Error(t, err, "second review should conflict")

	// Escalation closes the original and opens a high-severity replacement
	notes := "vendor unresponsive"
	replacement, err := exceptions.Escalate(ctx, tenantID, exc.ID, &notes, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionSeverityHigh, replacement.Severity)
	assert.Equal(t, 1, replacement.Priority)
	require.NotNil(t, replacement.EscalatedFrom)
	assert.Equal(t, exc.ID, *replacement.EscalatedFrom)

	original, err := exceptions.GetByID(ctx, tenantID, exc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionStatusEscalated, original.Status)
	require.NotNil(t, original.EscalatedTo)
	assert.Equal(t, replacement.ID, *original.EscalatedTo)

	// Replacement resolves normally
	resolveNotes := "credit memo issued"
	resolved, err := exceptions.Resolve(ctx, tenantID, replacement.ID, models.ExceptionResolutionAdjusted, &resolveNotes, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionStatusResolved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, models.ExceptionResolutionAdjusted, *resolved.Resolution)
	assert.True(t, resolved.IsTerminal())
}
