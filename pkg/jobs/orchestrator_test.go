package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeJobRepo struct {
	job             *models.MatchJob
	progressUpdates int
	completed       bool
	failedMessage   string
	cancelAfter     int
	cancelChecks    int
	summary         *models.JobSummary
	storedErrors    []models.JobError
}

func (f *fakeJobRepo) GetByID(ctx context.Context, tenantID, id string) (*models.MatchJob, error) {
	return f.job, nil
}

func (f *fakeJobRepo) MarkProcessing(ctx context.Context, tenantID, id string) (*models.MatchJob, error) {
	f.job.Status = models.MatchJobStatusProcessing
	return f.job, nil
}

func (f *fakeJobRepo) UpdateProgress(ctx context.Context, tenantID, id string, processed, matched, exceptions int, jobErrors []models.JobError) error {
	f.progressUpdates++
	f.job.ProcessedCount = processed
	f.job.MatchedCount = matched
	f.job.ExceptionCount = exceptions
	return nil
}

func (f *fakeJobRepo) Complete(ctx context.Context, tenantID, id string, processed, matched, exceptions int, jobErrors []models.JobError, summary *models.JobSummary) error {
	f.completed = true
	f.job.Status = models.MatchJobStatusCompleted
	f.summary = summary
	f.storedErrors = jobErrors
	return nil
}

func (f *fakeJobRepo) Fail(ctx context.Context, tenantID, id, errorMessage string) error {
	f.job.Status = models.MatchJobStatusFailed
	f.failedMessage = errorMessage
	return nil
}

func (f *fakeJobRepo) IsCancelled(ctx context.Context, tenantID, id string) (bool, error) {
	f.cancelChecks++
	if f.cancelAfter > 0 && f.cancelChecks > f.cancelAfter {
		return true, nil
	}
	return false, nil
}

type fakeLister struct {
	ids []string
	err error
}

func (f fakeLister) ListUnmatchedIDs(ctx context.Context, tenantID string) ([]string, error) {
	return f.ids, f.err
}

type fakeMatcher struct {
	calls    []string
	statuses map[string]string
	failIDs  map[string]bool
}

func (f *fakeMatcher) MatchInvoice(ctx context.Context, tenantID, invoiceID string, autoApproveOverride *float64) (*models.MatchResult, error) {
	f.calls = append(f.calls, invoiceID)
	if f.failIDs[invoiceID] {
		return nil, errors.New("persistence failure")
	}
	status := models.MatchStatusMatched
	if s, ok := f.statuses[invoiceID]; ok {
		status = s
	}
	approval := models.ApprovalStatusPending
	if status == models.MatchStatusMatched {
		approval = models.ApprovalStatusAutoApproved
	}
	return &models.MatchResult{
		InvoiceID:      invoiceID,
		MatchStatus:    status,
		ApprovalStatus: approval,
	}, nil
}

type fakeJobAudit struct{ events []*models.AuditEvent }

func (f *fakeJobAudit) Emit(ctx context.Context, event *models.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

func queuedJob(invoiceIDs []string) *models.MatchJob {
	return &models.MatchJob{
		ID:         "00000000-0000-0000-0000-000000000001",
		TenantID:   "tenant-1",
		Status:     models.MatchJobStatusQueued,
		InvoiceIDs: database.JSONB[[]string]{Data: invoiceIDs},
	}
}

func invoiceIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("invoice-%d", i+1)
	}
	return ids
}

func TestOrchestratorRunCompletes(t *testing.T) {
	repo := &fakeJobRepo{job: queuedJob(invoiceIDs(3))}
	matcher := &fakeMatcher{statuses: map[string]string{
		"invoice-2": models.MatchStatusPartial,
		"invoice-3": models.MatchStatusException,
	}}
	audit := &fakeJobAudit{}

	o := NewOrchestrator(repo, fakeLister{}, matcher, audit, OrchestratorConfig{}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.NoError(t, err)

	assert.True(t, repo.completed)
	assert.Len(t, matcher.calls, 3)

	require.NotNil(t, repo.summary)
	assert.Equal(t, 3, repo.summary.TotalInvoices)
	assert.Equal(t, 1, repo.summary.Matched)
	assert.Equal(t, 1, repo.summary.Partial)
	assert.Equal(t, 1, repo.summary.Exceptions)
	assert.Equal(t, 0, repo.summary.Failed)
	assert.Equal(t, 1, repo.summary.AutoApproved)

	var types []string
	for _, event := range audit.events {
		types = append(types, event.EventType)
	}
	assert.Contains(t, types, models.AuditEventJobStarted)
	assert.Contains(t, types, models.AuditEventJobCompleted)
}

func TestOrchestratorPerInvoiceErrorsAreContained(t *testing.T) {
	repo := &fakeJobRepo{job: queuedJob(invoiceIDs(4))}
	matcher := &fakeMatcher{failIDs: map[string]bool{"invoice-2": true}}

	o := NewOrchestrator(repo, fakeLister{}, matcher, &fakeJobAudit{}, OrchestratorConfig{}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.NoError(t, err)

	assert.True(t, repo.completed)
	assert.Len(t, matcher.calls, 4, "a per-invoice failure must not abort the batch")
	assert.Equal(t, 1, repo.summary.Failed)
	assert.Equal(t, 3, repo.summary.Matched)
	require.Len(t, repo.storedErrors, 1)
	assert.Equal(t, "invoice-2", repo.storedErrors[0].InvoiceID)
}

func TestOrchestratorErrorListIsBounded(t *testing.T) {
	ids := invoiceIDs(30)
	failIDs := make(map[string]bool, len(ids))
	for _, id := range ids {
		failIDs[id] = true
	}

	repo := &fakeJobRepo{job: queuedJob(ids)}
	matcher := &fakeMatcher{failIDs: failIDs}

	o := NewOrchestrator(repo, fakeLister{}, matcher, &fakeJobAudit{}, OrchestratorConfig{MaxErrors: 20}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.NoError(t, err)

	require.Len(t, repo.storedErrors, 20)
	// only the most recent errors are kept
	assert.Equal(t, "invoice-11", repo.storedErrors[0].InvoiceID)
	assert.Equal(t, "invoice-30", repo.storedErrors[19].InvoiceID)
}

func TestOrchestratorCheckpointsProgress(t *testing.T) {
	repo := &fakeJobRepo{job: queuedJob(invoiceIDs(25))}
	matcher := &fakeMatcher{}

	o := NewOrchestrator(repo, fakeLister{}, matcher, &fakeJobAudit{}, OrchestratorConfig{ProgressInterval: 10}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, repo.progressUpdates)
	assert.True(t, repo.completed)
}

func TestOrchestratorStopsOnCancellation(t *testing.T) {
	repo := &fakeJobRepo{job: queuedJob(invoiceIDs(10)), cancelAfter: 3}
	matcher := &fakeMatcher{}

	o := NewOrchestrator(repo, fakeLister{}, matcher, &fakeJobAudit{}, OrchestratorConfig{}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.NoError(t, err)

	assert.False(t, repo.completed)
	assert.Len(t, matcher.calls, 3, "already-processed invoices stay processed, the rest are skipped")
}

func TestOrchestratorFailsWhenInvoiceSetCannotLoad(t *testing.T) {
	repo := &fakeJobRepo{job: queuedJob(nil)}
	lister := fakeLister{err: errors.New("database unavailable")}
	audit := &fakeJobAudit{}

	o := NewOrchestrator(repo, lister, &fakeMatcher{}, audit, OrchestratorConfig{}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.Error(t, err)

	assert.Equal(t, models.MatchJobStatusFailed, repo.job.Status)
	assert.Contains(t, repo.failedMessage, "failed to load invoice set")

	var types []string
	for _, event := range audit.events {
		types = append(types, event.EventType)
	}
	assert.Contains(t, types, models.AuditEventJobFailed)
}

func TestOrchestratorSkipsCancelledJob(t *testing.T) {
	repo := &fakeJobRepo{job: queuedJob(invoiceIDs(3))}
	repo.job.Status = models.MatchJobStatusCancelled
	matcher := &fakeMatcher{}

	o := NewOrchestrator(repo, fakeLister{}, matcher, &fakeJobAudit{}, OrchestratorConfig{}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.NoError(t, err)

	assert.Empty(t, matcher.calls)
	assert.False(t, repo.completed)
}

func TestOrchestratorResolvesAllUnmatched(t *testing.T) {
	repo := &fakeJobRepo{job: queuedJob(nil)}
	lister := fakeLister{ids: invoiceIDs(2)}
	matcher := &fakeMatcher{}

	o := NewOrchestrator(repo, lister, matcher, &fakeJobAudit{}, OrchestratorConfig{}, testLogger())

	err := o.Run(context.Background(), "tenant-1", repo.job.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice-1", "invoice-2"}, matcher.calls)
	assert.True(t, repo.completed)
}
