package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ErrJournalUnavailable means the webhook_events table has not been migrated.
var ErrJournalUnavailable = errors.New("webhook journal table missing")

// RecordDelivery journals a verified delivery. It returns false when the
// provider event id was already journaled.
func (r *PostgresRepository) RecordDelivery(ctx context.Context, delivery domain.WebhookDelivery) (bool, error) {
	if delivery.Outcome == "" {
		delivery.Outcome = domain.OutcomeReceived
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO webhook_events (provider_event_id, event_type, session_id, outcome)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_event_id) DO NOTHING
	`, delivery.ProviderEventID, delivery.EventType, nullableString(delivery.SessionID), delivery.Outcome)
	if err != nil {
		if isUndefinedTableError(err) {
			return false, ErrJournalUnavailable
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteDelivery stores the final outcome of a journaled delivery.
func (r *PostgresRepository) CompleteDelivery(ctx context.Context, providerEventID, sessionID, outcome, detail string) error {
	if len(detail) > 2000 {
		detail = detail[:2000]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE webhook_events
		SET outcome = $2,
			detail = $3,
			session_id = COALESCE($4, session_id),
			processed_at = NOW()
		WHERE provider_event_id = $1
	`, providerEventID, outcome, nullableString(detail), nullableString(sessionID))
	if err != nil {
		if isUndefinedTableError(err) {
			return ErrJournalUnavailable
		}
		return err
	}
	return nil
}

// ListUnreconciledDeliveries returns failed grants received before olderThan
// that still have no payment row and have not been reported.
func (r *PostgresRepository) ListUnreconciledDeliveries(ctx context.Context, olderThan time.Time, limit int) ([]domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT w.provider_event_id, w.event_type, COALESCE(w.session_id, ''), w.outcome,
		       COALESCE(w.detail, ''), w.received_at, w.processed_at, w.reported_at
		FROM webhook_events w
		WHERE w.outcome = $1
		  AND w.reported_at IS NULL
		  AND w.received_at < $2
		  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.stripe_session_id = w.session_id)
		ORDER BY w.received_at
		LIMIT $3
	`, domain.OutcomeGrantFailed, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]domain.WebhookDelivery, 0)
	for rows.Next() {
		var d domain.WebhookDelivery
		if err := rows.Scan(
			&d.ProviderEventID,
			&d.EventType,
			&d.SessionID,
			&d.Outcome,
			&d.Detail,
			&d.ReceivedAt,
			&d.ProcessedAt,
			&d.ReportedAt,
		); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// MarkDeliveryReported flags a delivery as reported and enqueues events in the same transaction.
func (r *PostgresRepository) MarkDeliveryReported(ctx context.Context, providerEventID string, events ...OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE webhook_events
		SET reported_at = NOW()
		WHERE provider_event_id = $1 AND reported_at IS NULL
	`, providerEventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, event := range events {
		if err := enqueueEventTx(ctx, tx, event); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delivery report: %w", err)
	}
	return nil
}
