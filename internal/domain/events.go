package domain

import "time"

// Routing keys published on the payment events exchange.
const (
	RoutingKeyCreditsGranted         = "credits.granted"
	RoutingKeyReconciliationRequired = "payments.reconciliation_required"
)

// CreditsGrantedEvent is emitted after a grant commits.
type CreditsGrantedEvent struct {
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	PackageID    string    `json:"package_id"`
	PhotoCredits int       `json:"photo_credits"`
	VideoCredits int       `json:"video_credits"`
	TierLabel    string    `json:"tier_label"`
	Subscribed   bool      `json:"subscribed"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ReconciliationRequiredEvent flags a paid session with no payment record.
type ReconciliationRequiredEvent struct {
	EventID         string    `json:"event_id"`
	ProviderEventID string    `json:"provider_event_id"`
	SessionID       string    `json:"session_id"`
	Detail          string    `json:"detail"`
	ReceivedAt      time.Time `json:"received_at"`
	OccurredAt      time.Time `json:"occurred_at"`
}
