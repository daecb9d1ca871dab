package matching

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// PurchaseOrderSource provides purchase order lookups for candidate discovery
type PurchaseOrderSource interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.PurchaseOrder, error)
	ListMatchable(ctx context.Context, tenantID, vendorID string, limit int) ([]*models.PurchaseOrder, error)
}

// ReceiptSource provides receipt lookups for candidate discovery
type ReceiptSource interface {
	ListAcceptedByPO(ctx context.Context, tenantID, poID string) ([]*models.Receipt, error)
}

// Candidate is one purchase order eligible to match an invoice, with its
// accepted receipts for three-way evaluation.
type Candidate struct {
	PO       *models.PurchaseOrder
	Receipts []*models.Receipt
}

// CandidateFinder restricts the search space before scoring. Full
// cross-product scoring over a tenant's PO set is avoided: a po_id hint pins
// the candidate set to that single PO, otherwise the vendor's most recent
// matchable POs are taken up to a fixed cap.
type CandidateFinder struct {
	pos           PurchaseOrderSource
	receipts      ReceiptSource
	maxCandidates int
	logger        ectologger.Logger
}

// NewCandidateFinder creates a new CandidateFinder
func NewCandidateFinder(pos PurchaseOrderSource, receipts ReceiptSource, maxCandidates int, logger ectologger.Logger) *CandidateFinder {
	if maxCandidates <= 0 {
		maxCandidates = 10
	}
	return &CandidateFinder{
		pos:           pos,
		receipts:      receipts,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

// Find returns the candidate purchase orders for an invoice. An empty result
// is not an error; the classifier routes a candidate-less invoice to the
// exception queue.
func (f *CandidateFinder) Find(ctx context.Context, invoice *models.Invoice) ([]Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.CandidateFinder.Find")
	defer span.End()

	var pos []*models.PurchaseOrder

	if invoice.POID != nil && *invoice.POID != "" {
		po, err := f.pos.GetByID(ctx, invoice.TenantID, *invoice.POID)
		if err != nil {
			if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
				f.logger.WithContext(ctx).Warnf("invoice %s references unknown PO %s", invoice.ID, *invoice.POID)
				return nil, nil
			}
			return nil, err
		}
		pos = []*models.PurchaseOrder{po}
	} else {
		var err error
		pos, err = f.pos.ListMatchable(ctx, invoice.TenantID, invoice.VendorID, f.maxCandidates)
		if err != nil {
			return nil, err
		}
	}

	candidates := make([]Candidate, 0, len(pos))
	for _, po := range pos {
		receipts, err := f.receipts.ListAcceptedByPO(ctx, invoice.TenantID, po.ID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{PO: po, Receipts: receipts})
	}

	return candidates, nil
}
