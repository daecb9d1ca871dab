package normalizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/apmatch/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeVendorRepo struct {
	vendors    map[string]*models.Vendor
	repointed  map[string]string
	merged     map[string]string
	repointErr error
}

func newFakeVendorRepo(vendors ...*models.Vendor) *fakeVendorRepo {
	byID := make(map[string]*models.Vendor, len(vendors))
	for _, v := range vendors {
		byID[v.ID] = v
	}
	return &fakeVendorRepo{
		vendors:   byID,
		repointed: map[string]string{},
		merged:    map[string]string{},
	}
}

func (f *fakeVendorRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Vendor, error) {
	return f.vendors[id], nil
}

func (f *fakeVendorRepo) ListActive(ctx context.Context, tenantID string) ([]*models.Vendor, error) {
	var active []*models.Vendor
	for _, v := range f.vendors {
		if v.IsActive() {
			active = append(active, v)
		}
	}
	return active, nil
}

func (f *fakeVendorRepo) MarkMerged(ctx context.Context, tenantID, id, canonicalID string) error {
	f.merged[id] = canonicalID
	f.vendors[id].Status = models.VendorStatusInactive
	f.vendors[id].MergedInto = &canonicalID
	return nil
}

func (f *fakeVendorRepo) RepointReferences(ctx context.Context, tenantID, fromVendorID, toVendorID string) (int64, error) {
	if f.repointErr != nil {
		return 0, f.repointErr
	}
	f.repointed[fromVendorID] = toVendorID
	return 2, nil
}

type fakeNormalizationRepo struct {
	created       []*models.VendorNormalization
	statusUpdates map[string]string
}

func newFakeNormalizationRepo() *fakeNormalizationRepo {
	return &fakeNormalizationRepo{statusUpdates: map[string]string{}}
}

func (f *fakeNormalizationRepo) GetByID(ctx context.Context, tenantID, id string) (*models.VendorNormalization, error) {
	for _, n := range f.created {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeNormalizationRepo) FindOpenPair(ctx context.Context, tenantID, vendorID, canonicalVendorID string) (*models.VendorNormalization, error) {
	return nil, nil
}

func (f *fakeNormalizationRepo) Create(ctx context.Context, n *models.VendorNormalization) (*models.VendorNormalization, error) {
	n.ID = n.VendorID + ":" + n.CanonicalVendorID
	copied := *n
	f.created = append(f.created, &copied)
	return n, nil
}

func (f *fakeNormalizationRepo) UpdateStatus(ctx context.Context, tenantID, id, status string) (*models.VendorNormalization, error) {
	f.statusUpdates[id] = status
	for _, n := range f.created {
		if n.ID == id {
			updated := *n
			updated.Status = status
			return &updated, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeMergeLock struct {
	released bool
}

func (f *fakeMergeLock) Release(ctx context.Context) error {
	f.released = true
	return nil
}

type fakeMergeLocker struct {
	lock *fakeMergeLock
	err  error
}

func (f *fakeMergeLocker) TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (MergeLock, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lock = &fakeMergeLock{}
	return f.lock, nil
}

type fakeAudit struct {
	events []*models.AuditEvent
}

func (f *fakeAudit) Emit(ctx context.Context, event *models.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

func strPtr(s string) *string { return &s }

func autoMergeVendors() (*models.Vendor, *models.Vendor) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	canonical := &models.Vendor{
		ID:        "vendor-a",
		TenantID:  "tenant-1",
		Name:      "Acme Corp",
		TaxID:     strPtr("98-7654321"),
		Status:    models.VendorStatusActive,
		CreatedAt: base,
	}
	duplicate := &models.Vendor{
		ID:        "vendor-b",
		TenantID:  "tenant-1",
		Name:      "Acme Corporation",
		TaxID:     strPtr("98-7654321"),
		Status:    models.VendorStatusActive,
		CreatedAt: base.AddDate(0, 1, 0),
	}
	return canonical, duplicate
}

func TestRunClusteringAutoMergePairRecordedApprovedThenMerged(t *testing.T) {
	canonical, duplicate := autoMergeVendors()
	vendors := newFakeVendorRepo(canonical, duplicate)
	normalizations := newFakeNormalizationRepo()
	locker := &fakeMergeLocker{}
	audit := &fakeAudit{}

	svc := NewService(vendors, normalizations, locker, audit, Options{
		SimilarityThreshold: 80,
		AutoMergeThreshold:  95,
		AutoMergeEnabled:    true,
	}, testLogger())

	created, err := svc.RunClustering(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	// The pair is written as approved before the merge runs.
	require.Len(t, normalizations.created, 1)
	assert.Equal(t, models.VendorNormalizationStatusApproved, normalizations.created[0].Status)
	assert.Equal(t, "vendor-b", normalizations.created[0].VendorID)
	assert.Equal(t, "vendor-a", normalizations.created[0].CanonicalVendorID)

	// The merge then retires the duplicate and marks the pair merged.
	assert.Equal(t, models.VendorNormalizationStatusMerged, created[0].Status)
	assert.Equal(t, "vendor-a", vendors.merged["vendor-b"])
	assert.Equal(t, "vendor-a", vendors.repointed["vendor-b"])
	require.NotNil(t, locker.lock)
	assert.True(t, locker.lock.released)
	require.Len(t, audit.events, 1)
	assert.Equal(t, models.AuditEventVendorMerged, audit.events[0].EventType)
}

func TestRunClusteringBelowAutoMergeThresholdIsPending(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	a := &models.Vendor{ID: "vendor-a", TenantID: "tenant-1", Name: "Acme Widgets", Status: models.VendorStatusActive, CreatedAt: base}
	b := &models.Vendor{ID: "vendor-b", TenantID: "tenant-1", Name: "Acme Widgetz", Status: models.VendorStatusActive, CreatedAt: base.AddDate(0, 1, 0)}

	vendors := newFakeVendorRepo(a, b)
	normalizations := newFakeNormalizationRepo()
	locker := &fakeMergeLocker{}

	svc := NewService(vendors, normalizations, locker, &fakeAudit{}, Options{
		SimilarityThreshold: 80,
		AutoMergeThreshold:  95,
		AutoMergeEnabled:    true,
	}, testLogger())

	created, err := svc.RunClustering(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, models.VendorNormalizationStatusPending, created[0].Status)
	assert.Empty(t, vendors.merged)
	assert.Nil(t, locker.lock)
}

func TestRunClusteringAutoMergeDisabledStaysPending(t *testing.T) {
	canonical, duplicate := autoMergeVendors()
	vendors := newFakeVendorRepo(canonical, duplicate)
	normalizations := newFakeNormalizationRepo()

	svc := NewService(vendors, normalizations, &fakeMergeLocker{}, &fakeAudit{}, Options{
		SimilarityThreshold: 80,
		AutoMergeThreshold:  95,
		AutoMergeEnabled:    false,
	}, testLogger())

	created, err := svc.RunClustering(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, models.VendorNormalizationStatusPending, created[0].Status)
	assert.Empty(t, vendors.merged)
}

func TestRunClusteringFailedAutoMergeLeavesApproved(t *testing.T) {
	canonical, duplicate := autoMergeVendors()
	vendors := newFakeVendorRepo(canonical, duplicate)
	normalizations := newFakeNormalizationRepo()
	locker := &fakeMergeLocker{err: errors.New("redis unavailable")}

	svc := NewService(vendors, normalizations, locker, &fakeAudit{}, Options{
		SimilarityThreshold: 80,
		AutoMergeThreshold:  95,
		AutoMergeEnabled:    true,
	}, testLogger())

	created, err := svc.RunClustering(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	// The merge never ran, so the approved record stays for a manual retry.
	assert.Equal(t, models.VendorNormalizationStatusApproved, created[0].Status)
	assert.Empty(t, vendors.merged)
	assert.Empty(t, normalizations.statusUpdates)
}
