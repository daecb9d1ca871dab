package normalizer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/metrics"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/redis"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// mergeLockTTL bounds how long a crashed merge can block a tenant
const (
	mergeLockTTL     = 30 * time.Second
	mergeLockTimeout = 10 * time.Second
)

// VendorRepository is the vendor persistence the service needs
type VendorRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Vendor, error)
	ListActive(ctx context.Context, tenantID string) ([]*models.Vendor, error)
	MarkMerged(ctx context.Context, tenantID, id, canonicalID string) error
	RepointReferences(ctx context.Context, tenantID, fromVendorID, toVendorID string) (int64, error)
}

// NormalizationRepository persists detected duplicate pairs
type NormalizationRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.VendorNormalization, error)
	FindOpenPair(ctx context.Context, tenantID, vendorID, canonicalVendorID string) (*models.VendorNormalization, error)
	Create(ctx context.Context, normalization *models.VendorNormalization) (*models.VendorNormalization, error)
	UpdateStatus(ctx context.Context, tenantID, id, status string) (*models.VendorNormalization, error)
}

// AuditEmitter records audit events for vendor merges
type AuditEmitter interface {
	Emit(ctx context.Context, event *models.AuditEvent) error
}

// MergeLock is a held per-tenant merge lock
type MergeLock interface {
	Release(ctx context.Context) error
}

// MergeLocker serializes vendor merges within a tenant
type MergeLocker interface {
	TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (MergeLock, error)
}

// RedisMergeLocker adapts the Redis locker to the MergeLocker surface
type RedisMergeLocker struct {
	locker *redis.Locker
}

// NewRedisMergeLocker creates a MergeLocker backed by Redis
func NewRedisMergeLocker(locker *redis.Locker) RedisMergeLocker {
	return RedisMergeLocker{locker: locker}
}

// TryAcquire acquires the named lock, retrying until the timeout
func (r RedisMergeLocker) TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (MergeLock, error) {
	lock, err := r.locker.TryAcquire(ctx, key, ttl, timeout)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Options carries the tunable thresholds for duplicate detection
type Options struct {
	SimilarityThreshold float64
	AutoMergeThreshold  float64
	AutoMergeEnabled    bool
}

// Service runs duplicate detection and vendor merges for a tenant
type Service struct {
	vendors        VendorRepository
	normalizations NormalizationRepository
	locker         MergeLocker
	audit          AuditEmitter
	opts           Options
	logger         ectologger.Logger
}

// NewService creates a new normalization service
func NewService(
	vendors VendorRepository,
	normalizations NormalizationRepository,
	locker MergeLocker,
	audit AuditEmitter,
	opts Options,
	logger ectologger.Logger,
) *Service {
	return &Service{
		vendors:        vendors,
		normalizations: normalizations,
		locker:         locker,
		audit:          audit,
		opts:           opts,
		logger:         logger,
	}
}

// RunClustering scans a tenant's active vendors for duplicates. Detected
// pairs are recorded as pending normalizations; when auto-merge is enabled,
// pairs at or above the auto-merge threshold are recorded as approved and
// merged immediately. A failed auto-merge leaves the pair approved so it can
// be retried manually.
func (s *Service) RunClustering(ctx context.Context, tenantID string) ([]*models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "normalizer.Service.RunClustering")
	defer span.End()

	vendors, err := s.vendors.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}

	pairs := Cluster(vendors, s.opts.SimilarityThreshold)
	if len(pairs) == 0 {
		return nil, nil
	}

	created := make([]*models.VendorNormalization, 0, len(pairs))
	for _, pair := range pairs {
		existing, err := s.normalizations.FindOpenPair(ctx, tenantID, pair.Duplicate.ID, pair.Canonical.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check for existing normalization: %w", err)
		}
		if existing != nil {
			continue
		}

		autoMerge := s.opts.AutoMergeEnabled && pair.Similarity >= s.opts.AutoMergeThreshold
		status := models.VendorNormalizationStatusPending
		if autoMerge {
			status = models.VendorNormalizationStatusApproved
		}

		normalization := &models.VendorNormalization{
			TenantID:          tenantID,
			VendorID:          pair.Duplicate.ID,
			CanonicalVendorID: pair.Canonical.ID,
			Similarity:        pair.Similarity,
			Status:            status,
			Details:           database.JSONB[map[string]float64]{Data: pair.Details},
		}

		normalization, err = s.normalizations.Create(ctx, normalization)
		if err != nil {
			return nil, fmt.Errorf("failed to create normalization: %w", err)
		}

		if autoMerge {
			if err := s.MergeVendor(ctx, tenantID, pair.Duplicate.ID, pair.Canonical.ID, "system"); err != nil {
				s.logger.WithContext(ctx).WithError(err).
					Errorf("auto-merge failed for vendor %s", pair.Duplicate.ID)
			} else {
				normalization, err = s.normalizations.UpdateStatus(ctx, tenantID, normalization.ID, models.VendorNormalizationStatusMerged)
				if err != nil {
					return nil, fmt.Errorf("failed to mark normalization merged: %w", err)
				}
			}
		}

		created = append(created, normalization)
	}

	return created, nil
}

// MergeVendor folds a duplicate vendor into its canonical record: open
// documents are repointed and the duplicate is retired with a pointer to the
// survivor. The merge takes a per-tenant lock and re-checks the duplicate
// inside it, so a concurrent merge of the same pair becomes a no-op.
func (s *Service) MergeVendor(ctx context.Context, tenantID, vendorID, canonicalVendorID, actor string) error {
	ctx, span := tracing.StartSpan(ctx, "normalizer.Service.MergeVendor")
	defer span.End()

	if vendorID == canonicalVendorID {
		return httperror.NewHTTPError(http.StatusBadRequest, "cannot merge a vendor into itself")
	}

	lock, err := s.locker.TryAcquire(ctx, "vendor-merge:"+tenantID, mergeLockTTL, mergeLockTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire merge lock: %w", err)
	}
	defer lock.Release(ctx)

	// Re-check under the lock: a concurrent run may have merged this pair
	// already.
	duplicate, err := s.vendors.GetByID(ctx, tenantID, vendorID)
	if err != nil {
		return err
	}
	if !duplicate.IsActive() || duplicate.MergedInto != nil {
		metrics.RecordVendorMerge(tenantID, "noop")
		return nil
	}

	canonical, err := s.vendors.GetByID(ctx, tenantID, canonicalVendorID)
	if err != nil {
		return err
	}
	if !canonical.IsActive() {
		return httperror.NewHTTPError(http.StatusConflict, "canonical vendor is not active")
	}

	repointed, err := s.vendors.RepointReferences(ctx, tenantID, vendorID, canonicalVendorID)
	if err != nil {
		metrics.RecordVendorMerge(tenantID, "error")
		return fmt.Errorf("failed to repoint vendor references: %w", err)
	}

	if err := s.vendors.MarkMerged(ctx, tenantID, vendorID, canonicalVendorID); err != nil {
		metrics.RecordVendorMerge(tenantID, "error")
		return fmt.Errorf("failed to retire merged vendor: %w", err)
	}

	metrics.RecordVendorMerge(tenantID, "merged")
	s.logger.WithContext(ctx).Infof("merged vendor %s into %s (%d documents repointed)", vendorID, canonicalVendorID, repointed)

	event := &models.AuditEvent{
		TenantID:  tenantID,
		EventType: models.AuditEventVendorMerged,
		Actor:     actor,
		Before: database.JSONB[map[string]any]{Data: map[string]any{
			"vendor_id": vendorID,
			"name":      duplicate.Name,
			"status":    duplicate.Status,
		}},
		After: database.JSONB[map[string]any]{Data: map[string]any{
			"vendor_id":           vendorID,
			"merged_into":         canonicalVendorID,
			"status":              models.VendorStatusInactive,
			"documents_repointed": repointed,
		}},
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to emit vendor merge audit event")
	}

	return nil
}

// ApproveNormalization approves a duplicate pair and performs the merge.
// Approved pairs whose auto-merge failed can be approved again to retry.
func (s *Service) ApproveNormalization(ctx context.Context, tenantID, id, actor string) (*models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "normalizer.Service.ApproveNormalization")
	defer span.End()

	normalization, err := s.normalizations.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if normalization.Status != models.VendorNormalizationStatusPending &&
		normalization.Status != models.VendorNormalizationStatusApproved {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "normalization is %s and cannot be approved", normalization.Status)
	}

	if err := s.MergeVendor(ctx, tenantID, normalization.VendorID, normalization.CanonicalVendorID, actor); err != nil {
		return nil, err
	}

	return s.normalizations.UpdateStatus(ctx, tenantID, id, models.VendorNormalizationStatusMerged)
}

// RejectNormalization rejects a pending duplicate pair without merging
func (s *Service) RejectNormalization(ctx context.Context, tenantID, id string) (*models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "normalizer.Service.RejectNormalization")
	defer span.End()

	normalization, err := s.normalizations.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if normalization.Status != models.VendorNormalizationStatusPending {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "normalization is %s, only pending normalizations can be rejected", normalization.Status)
	}

	return s.normalizations.UpdateStatus(ctx, tenantID, id, models.VendorNormalizationStatusRejected)
}
