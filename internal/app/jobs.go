package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
	"github.com/google/uuid"
)

const reconciliationBatchSize = 100

// ReconciliationStore is what the reconciliation job reads and marks.
type ReconciliationStore interface {
	ListUnreconciledDeliveries(ctx context.Context, olderThan time.Time, limit int) ([]domain.WebhookDelivery, error)
	MarkDeliveryReported(ctx context.Context, providerEventID string, events ...store.OutboxEvent) error
}

// Jobs holds the scheduled work of the service.
type Jobs struct {
	repo     ReconciliationStore
	logger   *slog.Logger
	exchange string
	grace    time.Duration
	now      func() time.Time
}

func NewJobs(repo ReconciliationStore, exchange string, grace time.Duration, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{repo: repo, logger: logger, exchange: exchange, grace: grace, now: time.Now}
}

// ReportUnreconciledPayments surfaces paid sessions whose grant failed and
// which still have no payment row. It reports; it never grants.
func (j *Jobs) ReportUnreconciledPayments(ctx context.Context) (int, error) {
	j.logger.Info("starting payment reconciliation job")

	cutoff := j.now().UTC().Add(-j.grace)
	deliveries, err := j.repo.ListUnreconciledDeliveries(ctx, cutoff, reconciliationBatchSize)
	if err != nil {
		j.logger.Error("failed to list unreconciled deliveries", slog.Any("error", err))
		return 0, err
	}

	reported := 0
	for _, delivery := range deliveries {
		j.logger.Error("paid checkout has no payment record",
			slog.String("event_id", delivery.ProviderEventID),
			slog.String("session_id", delivery.SessionID),
			slog.String("detail", delivery.Detail),
			slog.Time("received_at", delivery.ReceivedAt),
		)

		var events []store.OutboxEvent
		if j.exchange != "" {
			events = append(events, store.OutboxEvent{
				Exchange:   j.exchange,
				RoutingKey: domain.RoutingKeyReconciliationRequired,
				Payload: domain.ReconciliationRequiredEvent{
					EventID:         uuid.NewString(),
					ProviderEventID: delivery.ProviderEventID,
					SessionID:       delivery.SessionID,
					Detail:          delivery.Detail,
					ReceivedAt:      delivery.ReceivedAt,
					OccurredAt:      j.now().UTC(),
				},
			})
		}
		if err := j.repo.MarkDeliveryReported(ctx, delivery.ProviderEventID, events...); err != nil {
			j.logger.Error("failed to mark delivery reported", slog.String("event_id", delivery.ProviderEventID), slog.Any("error", err))
			continue
		}
		reported++
	}

	j.logger.Info("finished payment reconciliation job", slog.Int("found", len(deliveries)), slog.Int("reported", reported))
	return reported, nil
}
