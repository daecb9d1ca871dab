package events

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcontext "github.com/mmtuentertainment/apmatch/pkg/context"
	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/kafka"
	"github.com/mmtuentertainment/apmatch/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeStore struct {
	created []*models.AuditEvent
	err     error
}

func (s *fakeStore) Create(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, event)
	return event, nil
}

type fakePublisher struct {
	published []*kafka.ReconciliationEvent
	err       error
}

func (p *fakePublisher) PublishReconciliationEvent(ctx context.Context, event *kafka.ReconciliationEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func TestEmitPersistsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}
	emitter := NewEmitter(store, publisher, testLogger())

	invoiceID := "inv-1"
	event := &models.AuditEvent{
		TenantID:  "tenant-1",
		EventType: models.AuditEventMatchDecided,
		InvoiceID: &invoiceID,
		After:     database.JSONB[map[string]any]{Data: map[string]any{"match_status": "matched"}},
	}

	err := emitter.Emit(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	require.Len(t, publisher.published, 1)

	wire := publisher.published[0]
	assert.Equal(t, models.AuditEventMatchDecided, wire.EventType)
	assert.Equal(t, "tenant-1", wire.TenantID)
	require.NotNil(t, wire.InvoiceID)
	assert.Equal(t, "inv-1", *wire.InvoiceID)
	assert.Equal(t, "matched", wire.After["match_status"])
}

func TestEmitFillsCorrelationIDFromContext(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store, &fakePublisher{}, testLogger())

	ctx := appcontext.SetCorrelationID(context.Background(), "corr-123")
	event := &models.AuditEvent{
		TenantID:  "tenant-1",
		EventType: models.AuditEventVendorMerged,
	}

	err := emitter.Emit(ctx, event)
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Equal(t, "corr-123", store.created[0].CorrelationID)
}

func TestEmitGeneratesCorrelationIDWhenMissing(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store, &fakePublisher{}, testLogger())

	event := &models.AuditEvent{
		TenantID:  "tenant-1",
		EventType: models.AuditEventJobStarted,
	}

	err := emitter.Emit(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.NotEmpty(t, store.created[0].CorrelationID)
}

func TestEmitDefaultsActorToSystem(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store, &fakePublisher{}, testLogger())

	event := &models.AuditEvent{
		TenantID:  "tenant-1",
		EventType: models.AuditEventJobCompleted,
	}

	err := emitter.Emit(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Equal(t, "system", store.created[0].Actor)
}

func TestEmitUsesActorFromContext(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store, &fakePublisher{}, testLogger())

	ctx := appcontext.SetUserID(context.Background(), "user-9")
	event := &models.AuditEvent{
		TenantID:  "tenant-1",
		EventType: models.AuditEventExceptionResolved,
	}

	err := emitter.Emit(ctx, event)
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Equal(t, "user-9", store.created[0].Actor)
}

func TestEmitFailsWhenStoreFails(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	publisher := &fakePublisher{}
	emitter := NewEmitter(store, publisher, testLogger())

	event := &models.AuditEvent{
		TenantID:  "tenant-1",
		EventType: models.AuditEventMatchAttempted,
	}

	err := emitter.Emit(context.Background(), event)
	require.Error(t, err)
	assert.Empty(t, publisher.published)
}

func TestEmitSwallowsPublishFailure(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	emitter := NewEmitter(store, publisher, testLogger())

	event := &models.AuditEvent{
		TenantID:  "tenant-1",
		EventType: models.AuditEventMatchDecided,
	}

	err := emitter.Emit(context.Background(), event)
	require.NoError(t, err)
	assert.Len(t, store.created, 1)
}
