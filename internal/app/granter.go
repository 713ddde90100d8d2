package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
	"github.com/google/uuid"
)

// GrantMode is how a grant attempt ended.
type GrantMode string

const (
	// GrantTransactional: balance and payment row committed through grant_credits.
	GrantTransactional GrantMode = "transactional"
	// GrantDegraded: committed, but through the direct update because grant_credits is missing.
	GrantDegraded GrantMode = "degraded"
	// GrantFailed: nothing committed.
	GrantFailed GrantMode = "failed"
)

// GrantResult reports a grant attempt. Duplicate is set when the payment row
// already existed, i.e. a concurrent delivery won.
type GrantResult struct {
	Mode      GrantMode
	Duplicate bool
	Err       error
}

// GrantStore persists a credit grant atomically.
type GrantStore interface {
	GrantCredits(ctx context.Context, req domain.GrantRequest, events ...store.OutboxEvent) (store.GrantPath, error)
}

// Granter applies entitlements to accounts.
type Granter struct {
	store    GrantStore
	exchange string
	logger   *slog.Logger
	now      func() time.Time
}

// NewGranter creates a Granter. When exchange is empty no credits.granted event is enqueued.
func NewGranter(grants GrantStore, exchange string, logger *slog.Logger) *Granter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Granter{store: grants, exchange: exchange, logger: logger, now: time.Now}
}

func (g *Granter) Grant(ctx context.Context, req domain.GrantRequest) GrantResult {
	payment := req.Payment
	logger := g.logger.With(
		slog.String("session_id", payment.ProviderSessionID),
		slog.String("user_id", payment.UserID),
		slog.String("package_id", payment.PackageID),
	)

	var events []store.OutboxEvent
	if g.exchange != "" {
		events = append(events, store.OutboxEvent{
			Exchange:   g.exchange,
			RoutingKey: domain.RoutingKeyCreditsGranted,
			Payload: domain.CreditsGrantedEvent{
				EventID:      uuid.NewString(),
				UserID:       payment.UserID,
				SessionID:    payment.ProviderSessionID,
				PackageID:    payment.PackageID,
				PhotoCredits: payment.CreditsGranted,
				VideoCredits: payment.VideoCreditsGranted,
				TierLabel:    req.TierLabel,
				Subscribed:   req.Subscribed,
				OccurredAt:   g.now().UTC(),
			},
		})
	}

	path, err := g.store.GrantCredits(ctx, req, events...)
	if err != nil {
		if errors.Is(err, store.ErrPaymentAlreadyRecorded) {
			logger.Info("payment already recorded by a concurrent delivery; grant rolled back")
			return GrantResult{Mode: GrantFailed, Duplicate: true, Err: err}
		}
		logger.Error("credit grant failed", slog.Any("error", err))
		return GrantResult{Mode: GrantFailed, Err: err}
	}

	if path == store.GrantPathDirectUpdate {
		logger.Warn("grant_credits function unavailable; credits applied by direct update")
		return GrantResult{Mode: GrantDegraded}
	}
	return GrantResult{Mode: GrantTransactional}
}
