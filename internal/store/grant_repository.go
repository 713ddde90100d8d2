package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/jackc/pgx/v5"
)

// GrantPath records which balance mutation a committed grant went through.
type GrantPath string

const (
	GrantPathFunction     GrantPath = "grant_credits"
	GrantPathDirectUpdate GrantPath = "direct_update"
)

// OutboxEvent is a message written to event_outbox in the caller's transaction.
type OutboxEvent struct {
	Exchange   string
	RoutingKey string
	Payload    interface{}
}

// GrantCredits adds the package's credits to the account, records the payment
// and enqueues events in a single transaction. The balance is mutated through
// the grant_credits function; when the function is not installed the same
// additive update is applied directly and GrantPathDirectUpdate is returned.
// A second payment for the same session fails with ErrPaymentAlreadyRecorded
// and leaves the balance untouched.
func (r *PostgresRepository) GrantCredits(ctx context.Context, req domain.GrantRequest, events ...OutboxEvent) (GrantPath, error) {
	payment := req.Payment
	if payment.Status == "" {
		payment.Status = domain.PaymentStatusCompleted
	}
	if payment.Currency == "" {
		payment.Currency = domain.DefaultCurrency
	}
	if err := r.validate.Struct(payment); err != nil {
		return "", fmt.Errorf("invalid payment record: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if err := lockProfileTx(ctx, tx, payment.UserID); err != nil {
		return "", err
	}

	path, err := applyCreditsTx(ctx, tx, req)
	if err != nil {
		return "", err
	}

	if err := insertPaymentTx(ctx, tx, payment); err != nil {
		return "", err
	}

	for _, event := range events {
		if err := enqueueEventTx(ctx, tx, event); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit credit grant: %w", err)
	}
	return path, nil
}

func lockProfileTx(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id::text FROM profiles WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUnknownProfileError(err) {
			return ErrProfileNotFound
		}
		return err
	}
	return nil
}

func applyCreditsTx(ctx context.Context, tx pgx.Tx, req domain.GrantRequest) (GrantPath, error) {
	payment := req.Payment

	savepoint, err := tx.Begin(ctx)
	if err != nil {
		return "", err
	}
	_, err = savepoint.Exec(ctx, `SELECT grant_credits($1, $2, $3, $4, $5)`,
		payment.UserID,
		payment.CreditsGranted,
		payment.VideoCreditsGranted,
		req.TierLabel,
		req.Subscribed,
	)
	if err == nil {
		if err := savepoint.Commit(ctx); err != nil {
			return "", err
		}
		return GrantPathFunction, nil
	}
	_ = savepoint.Rollback(ctx)
	if !isUndefinedFunctionError(err) {
		return "", fmt.Errorf("grant_credits failed: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE profiles
		SET photo_generations = photo_generations + $2,
			video_generations = video_generations + $3,
			subscription_tier = $4,
			is_subscribed = is_subscribed OR $5,
			updated_at = NOW()
		WHERE id = $1
	`, payment.UserID, payment.CreditsGranted, payment.VideoCreditsGranted, req.TierLabel, req.Subscribed)
	if err != nil {
		return "", fmt.Errorf("direct credit update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrProfileNotFound
	}
	return GrantPathDirectUpdate, nil
}

func insertPaymentTx(ctx context.Context, tx pgx.Tx, payment domain.PaymentRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (
			user_id, stripe_session_id, stripe_payment_intent, amount_cents, currency,
			status, package_id, credits_granted, video_credits_granted, promo_code
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		payment.UserID,
		payment.ProviderSessionID,
		nullableString(payment.ProviderPaymentIntent),
		payment.AmountCents,
		strings.ToLower(payment.Currency),
		payment.Status,
		payment.PackageID,
		payment.CreditsGranted,
		payment.VideoCreditsGranted,
		nullableString(payment.PromoCode),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPaymentAlreadyRecorded
		}
		if isUnknownProfileError(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func enqueueEventTx(ctx context.Context, tx pgx.Tx, event OutboxEvent) error {
	blob, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(event.Exchange), strings.TrimSpace(event.RoutingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}
