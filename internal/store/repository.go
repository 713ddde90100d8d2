/**
 * @description
 * PostgreSQL data access for the payments webhook: account lookups, the
 * payment ledger and the credit grant transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: driver, transactions and savepoints.
 * - github.com/go-playground/validator/v10: payment rows are validated before insert.
 */

package store

import (
	"context"
	"errors"
	"strings"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrProfileNotFound        = errors.New("profile not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded for session")
)

// PostgresRepository implements every persistence contract the service needs.
type PostgresRepository struct {
	db       *pgxpool.Pool
	validate *validator.Validate
}

// NewPostgresRepository wraps a connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db, validate: validator.New()}
}

// Ping checks database connectivity for the health endpoint.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// FindUserIDByEmail resolves an account by email, ignoring case.
func (r *PostgresRepository) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrUserNotFound
	}

	var userID string
	err := r.db.QueryRow(ctx, `
		SELECT id::text
		FROM profiles
		WHERE LOWER(email) = LOWER($1)
		ORDER BY created_at
		LIMIT 1
	`, email).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return userID, nil
}

// PaymentExists reports whether a payment row exists for the checkout session.
func (r *PostgresRepository) PaymentExists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE stripe_session_id = $1)
	`, sessionID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// FindPaymentBySessionID loads the ledger row for a checkout session.
func (r *PostgresRepository) FindPaymentBySessionID(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	var (
		payment       domain.PaymentRecord
		paymentIntent *string
		promoCode     *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id::text, user_id::text, stripe_session_id, stripe_payment_intent, amount_cents,
		       currency, status, package_id, credits_granted, video_credits_granted, promo_code, created_at
		FROM payments
		WHERE stripe_session_id = $1
	`, sessionID).Scan(
		&payment.ID,
		&payment.UserID,
		&payment.ProviderSessionID,
		&paymentIntent,
		&payment.AmountCents,
		&payment.Currency,
		&payment.Status,
		&payment.PackageID,
		&payment.CreditsGranted,
		&payment.VideoCreditsGranted,
		&promoCode,
		&payment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if paymentIntent != nil {
		payment.ProviderPaymentIntent = *paymentIntent
	}
	if promoCode != nil {
		payment.PromoCode = *promoCode
	}
	return &payment, nil
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
