/**
 * @description
 * Domain models for checkout completions, granted payments and the webhook
 * delivery journal.
 *
 * @notes
 * - Amounts are kept in the smallest currency unit (cents) as int64.
 * - ProviderSessionID is the idempotency key: at most one PaymentRecord per
 *   checkout session may ever exist.
 */

package domain

import "time"

// PaymentStatusCompleted is the only status written by the webhook.
const PaymentStatusCompleted = "completed"

// DefaultCurrency is used when the provider omits a currency.
const DefaultCurrency = "usd"

// CheckoutSession is the provider-neutral view of a completed checkout.
type CheckoutSession struct {
	ID                string
	PaymentIntentID   string
	AmountTotal       int64
	Currency          string
	ClientReferenceID string
	MetadataPackageID string
	PromoCode         string
	CustomerEmail     string
}

// PaymentRecord maps to the `payments` table.
type PaymentRecord struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id" validate:"required"`
	ProviderSessionID     string    `json:"stripe_session_id" validate:"required"`
	ProviderPaymentIntent string    `json:"stripe_payment_intent,omitempty"`
	AmountCents           int64     `json:"amount_cents" validate:"gte=0"`
	Currency              string    `json:"currency" validate:"required,len=3"`
	Status                string    `json:"status" validate:"required,oneof=completed"`
	PackageID             string    `json:"package_id" validate:"required"`
	CreditsGranted        int       `json:"credits_granted" validate:"gte=0"`
	VideoCreditsGranted   int       `json:"video_credits_granted" validate:"gte=0"`
	PromoCode             string    `json:"promo_code,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// GrantRequest carries everything one entitlement grant needs.
type GrantRequest struct {
	Payment    PaymentRecord
	TierLabel  string
	Subscribed bool
}

// Delivery outcomes recorded in the webhook journal.
const (
	OutcomeReceived         = "received"
	OutcomeCreditsGranted   = "credits_granted"
	OutcomeDegraded         = "degraded"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeIgnored          = "ignored"
	OutcomeWarning          = "warning"
	OutcomeGrantFailed      = "grant_failed"
)

// WebhookDelivery maps to the `webhook_events` table.
type WebhookDelivery struct {
	ProviderEventID string     `json:"provider_event_id"`
	EventType       string     `json:"event_type"`
	SessionID       string     `json:"session_id,omitempty"`
	Outcome         string     `json:"outcome"`
	Detail          string     `json:"detail,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ReportedAt      *time.Time `json:"reported_at,omitempty"`
}
