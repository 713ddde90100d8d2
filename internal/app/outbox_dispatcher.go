package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
	"github.com/Ced-Maker4352/luxe-mobile/pkg/rabbitmq"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 2 * time.Second
	defaultStaleProcessing = 2 * time.Minute
)

// OutboxStore is the slice of the repository the dispatcher needs.
type OutboxStore interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// PublisherFactory opens a publisher connection on demand.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher relays event_outbox rows to RabbitMQ.
type OutboxDispatcher struct {
	repo                OutboxStore
	connect             PublisherFactory
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	publisher           rabbitmq.Publisher
	logger              *slog.Logger
}

func NewOutboxDispatcher(repo OutboxStore, connect PublisherFactory, pollInterval time.Duration, logger *slog.Logger) *OutboxDispatcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxDispatcher{
		repo:                repo,
		connect:             connect,
		batchSize:           defaultBatchSize,
		pollInterval:        pollInterval,
		staleProcessingTime: defaultStaleProcessing,
		logger:              logger,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closePublisher()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.flushOnce(ctx); err != nil {
				d.logger.Error("outbox flush failed", slog.Any("error", err))
			}
		}
	}
}

func (d *OutboxDispatcher) flushOnce(ctx context.Context) error {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}

	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("outbox publish failed",
				slog.Int64("outbox_id", message.ID),
				slog.String("routing_key", message.RoutingKey),
				slog.Int("attempts", message.Attempts),
				slog.Int("retry_after_seconds", retryAfter),
				slog.Any("error", err),
			)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error("failed to reschedule outbox message", slog.Int64("outbox_id", message.ID), slog.Any("error", markErr))
			}
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message published", slog.Int64("outbox_id", message.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.publisher == nil {
		publisher, err := d.connect()
		if err != nil {
			return err
		}
		d.publisher = publisher
	}

	if err := d.publisher.Publish(ctx, message.Exchange, message.RoutingKey, message.Payload); err != nil {
		d.closePublisher()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closePublisher() {
	if d.publisher != nil {
		d.publisher.Close()
		d.publisher = nil
	}
}

// retryDelaySeconds doubles per attempt and caps at five minutes.
func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 9)
	if delay > 300 {
		return 300
	}
	return delay
}
