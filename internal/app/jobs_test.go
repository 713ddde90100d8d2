package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconciliationStoreStub struct {
	deliveries []domain.WebhookDelivery
	listErr    error
	markErr    map[string]error
	cutoff     time.Time
	reported   []string
	events     []store.OutboxEvent
}

func (s *reconciliationStoreStub) ListUnreconciledDeliveries(ctx context.Context, olderThan time.Time, limit int) ([]domain.WebhookDelivery, error) {
	s.cutoff = olderThan
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.deliveries, nil
}

func (s *reconciliationStoreStub) MarkDeliveryReported(ctx context.Context, providerEventID string, events ...store.OutboxEvent) error {
	if err := s.markErr[providerEventID]; err != nil {
		return err
	}
	s.reported = append(s.reported, providerEventID)
	s.events = append(s.events, events...)
	return nil
}

func TestReportUnreconciledPayments(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &reconciliationStoreStub{
		deliveries: []domain.WebhookDelivery{
			{ProviderEventID: "evt_1", SessionID: "cs_1", Outcome: domain.OutcomeGrantFailed},
			{ProviderEventID: "evt_2", SessionID: "cs_2", Outcome: domain.OutcomeGrantFailed},
		},
		markErr: map[string]error{"evt_2": errors.New("deadlock")},
	}
	jobs := NewJobs(repo, "payment_events", 10*time.Minute, discardLogger())
	jobs.now = func() time.Time { return now }

	reported, err := jobs.ReportUnreconciledPayments(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, reported)
	assert.Equal(t, now.Add(-10*time.Minute), repo.cutoff)
	assert.Equal(t, []string{"evt_1"}, repo.reported)
	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.RoutingKeyReconciliationRequired, repo.events[0].RoutingKey)
	event, ok := repo.events[0].Payload.(domain.ReconciliationRequiredEvent)
	require.True(t, ok)
	assert.Equal(t, "cs_1", event.SessionID)
}

func TestReportUnreconciledPayments_NoExchange(t *testing.T) {
	repo := &reconciliationStoreStub{deliveries: []domain.WebhookDelivery{{ProviderEventID: "evt_1", SessionID: "cs_1"}}}
	jobs := NewJobs(repo, "", time.Minute, discardLogger())

	reported, err := jobs.ReportUnreconciledPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reported)
	assert.Empty(t, repo.events)
}

func TestReportUnreconciledPayments_ListError(t *testing.T) {
	repo := &reconciliationStoreStub{listErr: errors.New("db down")}
	jobs := NewJobs(repo, "payment_events", time.Minute, discardLogger())

	_, err := jobs.ReportUnreconciledPayments(context.Background())
	assert.Error(t, err)
	assert.Empty(t, repo.reported)
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	jobs := NewJobs(&reconciliationStoreStub{}, "", time.Minute, discardLogger())
	scheduler := NewScheduler(jobs, discardLogger(), "not a cron spec")

	assert.Error(t, scheduler.Start())
	<-scheduler.Stop().Done()
}
