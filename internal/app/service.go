/**
 * @description
 * Checkout completion pipeline. Turns a verified checkout session into at
 * most one credit grant: resolve the package, resolve the account, guard
 * against replays, grant.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
)

// Checkout statuses and markers returned to the provider.
const (
	StatusCreditsGranted   = "credits_granted"
	StatusAlreadyProcessed = "already_processed"
	StatusInFlight         = "in_flight"
	StatusGrantFailed      = "grant_failed"

	WarningNoPackageID    = "no package_id"
	WarningUnknownPackage = "unknown package"
	WarningUserNotFound   = "user not found"
	WarningNoSessionID    = "no session id"

	ErrorNoUserIdentifier = "no user identifier"
	ErrorUserLookup       = "user lookup failed"
)

// Repository defines the persistence operations the service needs.
type Repository interface {
	UserDirectory
	GrantStore
	PaymentExists(ctx context.Context, sessionID string) (bool, error)
	FindPaymentBySessionID(ctx context.Context, sessionID string) (*domain.PaymentRecord, error)
	RecordDelivery(ctx context.Context, delivery domain.WebhookDelivery) (bool, error)
	CompleteDelivery(ctx context.Context, providerEventID, sessionID, outcome, detail string) error
	ListUnreconciledDeliveries(ctx context.Context, olderThan time.Time, limit int) ([]domain.WebhookDelivery, error)
	MarkDeliveryReported(ctx context.Context, providerEventID string, events ...store.OutboxEvent) error
}

// CheckoutOutcome is the result of processing one checkout completion.
type CheckoutOutcome struct {
	Status       string
	Warning      string
	Error        string
	UserID       string
	PackageID    string
	PhotoCredits int
	VideoCredits int
	Mode         GrantMode
}

// Granted reports whether credits were committed.
func (o CheckoutOutcome) Granted() bool {
	return o.Status == StatusCreditsGranted
}

// JournalOutcome maps the outcome onto the webhook_events vocabulary.
func (o CheckoutOutcome) JournalOutcome() string {
	switch {
	case o.Status == StatusCreditsGranted && o.Mode == GrantDegraded:
		return domain.OutcomeDegraded
	case o.Status == StatusCreditsGranted:
		return domain.OutcomeCreditsGranted
	case o.Status == StatusAlreadyProcessed:
		return domain.OutcomeAlreadyProcessed
	case o.Status == StatusGrantFailed, o.Error == ErrorUserLookup:
		return domain.OutcomeGrantFailed
	case o.Status == StatusInFlight:
		return domain.OutcomeReceived
	default:
		return domain.OutcomeWarning
	}
}

// Service processes checkout completions.
type Service struct {
	repo     Repository
	catalog  *domain.Catalog
	identity *IdentityResolver
	granter  *Granter
	inflight InflightGuard
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the pipeline. A nil inflight guard disables the session claim.
func NewService(repo Repository, catalog *domain.Catalog, inflight InflightGuard, exchange string, logger *slog.Logger) *Service {
	if catalog == nil {
		catalog = domain.DefaultCatalog
	}
	if inflight == nil {
		inflight = NoopInflightGuard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		identity: NewIdentityResolver(repo),
		granter:  NewGranter(repo, exchange, logger),
		inflight: inflight,
		logger:   logger,
		now:      time.Now,
	}
}

// AlreadyProcessed reports whether a payment exists for the session.
func (s *Service) AlreadyProcessed(ctx context.Context, sessionID string) (bool, error) {
	return s.repo.PaymentExists(ctx, sessionID)
}

// ProcessCheckoutCompleted grants the purchased package at most once per session.
func (s *Service) ProcessCheckoutCompleted(ctx context.Context, session domain.CheckoutSession) CheckoutOutcome {
	logger := s.logger.With(slog.String("session_id", session.ID))

	userID, packageID := ParseReference(session.ClientReferenceID, session.MetadataPackageID)
	if packageID == "" {
		logger.Warn("checkout completed without package id")
		return CheckoutOutcome{Warning: WarningNoPackageID}
	}

	entitlement, ok := s.catalog.Resolve(packageID)
	if !ok {
		logger.Warn("checkout completed for unknown package", slog.String("package_id", packageID))
		return CheckoutOutcome{Warning: WarningUnknownPackage, PackageID: packageID}
	}

	if strings.TrimSpace(session.ID) == "" {
		logger.Warn("checkout completed without session id", slog.String("package_id", packageID))
		return CheckoutOutcome{Warning: WarningNoSessionID, PackageID: packageID}
	}

	userID, err := s.identity.ResolveUser(ctx, userID, session.CustomerEmail)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoUserIdentifier):
			logger.Error("checkout completed without user identifier", slog.String("package_id", packageID))
			return CheckoutOutcome{Error: ErrorNoUserIdentifier, PackageID: packageID}
		case errors.Is(err, ErrUserNotFound):
			logger.Warn("no account matches checkout email", slog.String("package_id", packageID))
			return CheckoutOutcome{Warning: WarningUserNotFound, PackageID: packageID}
		default:
			logger.Error("account lookup failed", slog.String("package_id", packageID), slog.Any("error", err))
			return CheckoutOutcome{Error: ErrorUserLookup, PackageID: packageID}
		}
	}
	logger = logger.With(slog.String("user_id", userID), slog.String("package_id", packageID))

	release, err := s.inflight.Claim(ctx, session.ID)
	switch {
	case errors.Is(err, ErrDeliveryInFlight):
		logger.Warn("checkout session is being processed by another delivery")
		return CheckoutOutcome{Status: StatusInFlight, UserID: userID, PackageID: packageID}
	case err != nil:
		logger.Warn("in-flight claim unavailable; continuing without it", slog.Any("error", err))
	default:
		defer release()
	}

	processed, err := s.AlreadyProcessed(ctx, session.ID)
	if err != nil {
		logger.Error("idempotency lookup failed; relying on payment uniqueness", slog.Any("error", err))
	} else if processed {
		logger.Info("checkout session already processed")
		return CheckoutOutcome{Status: StatusAlreadyProcessed, UserID: userID, PackageID: packageID}
	}

	currency := strings.ToLower(strings.TrimSpace(session.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	req := domain.GrantRequest{
		Payment: domain.PaymentRecord{
			UserID:                userID,
			ProviderSessionID:     session.ID,
			ProviderPaymentIntent: session.PaymentIntentID,
			AmountCents:           session.AmountTotal,
			Currency:              currency,
			Status:                domain.PaymentStatusCompleted,
			PackageID:             packageID,
			CreditsGranted:        entitlement.PhotoCredits,
			VideoCreditsGranted:   entitlement.VideoCredits,
			PromoCode:             session.PromoCode,
		},
		TierLabel:  entitlement.TierLabel,
		Subscribed: s.catalog.IsSubscription(packageID),
	}

	result := s.granter.Grant(ctx, req)
	switch {
	case result.Duplicate:
		return CheckoutOutcome{Status: StatusAlreadyProcessed, UserID: userID, PackageID: packageID}
	case result.Mode == GrantFailed:
		return CheckoutOutcome{Status: StatusGrantFailed, UserID: userID, PackageID: packageID, Mode: GrantFailed}
	}

	logger.Info("credits granted",
		slog.Int("photo_credits", entitlement.PhotoCredits),
		slog.Int("video_credits", entitlement.VideoCredits),
		slog.String("mode", string(result.Mode)),
	)
	return CheckoutOutcome{
		Status:       StatusCreditsGranted,
		UserID:       userID,
		PackageID:    packageID,
		PhotoCredits: entitlement.PhotoCredits,
		VideoCredits: entitlement.VideoCredits,
		Mode:         result.Mode,
	}
}

// RecordDelivery journals a verified delivery. Journal failures never affect the response.
func (s *Service) RecordDelivery(ctx context.Context, eventID, eventType, sessionID string) {
	if strings.TrimSpace(eventID) == "" {
		return
	}
	inserted, err := s.repo.RecordDelivery(ctx, domain.WebhookDelivery{
		ProviderEventID: eventID,
		EventType:       eventType,
		SessionID:       sessionID,
		Outcome:         domain.OutcomeReceived,
		ReceivedAt:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to journal webhook delivery", slog.String("event_id", eventID), slog.Any("error", err))
		return
	}
	if !inserted {
		s.logger.Info("webhook event redelivered", slog.String("event_id", eventID), slog.String("event_type", eventType))
	}
}

// CompleteDelivery stores the outcome of a journaled delivery.
func (s *Service) CompleteDelivery(ctx context.Context, eventID, sessionID, outcome, detail string) {
	if strings.TrimSpace(eventID) == "" {
		return
	}
	if err := s.repo.CompleteDelivery(ctx, eventID, sessionID, outcome, detail); err != nil {
		s.logger.Warn("failed to update webhook journal", slog.String("event_id", eventID), slog.Any("error", err))
	}
}

// GetPayment returns the ledger row for a session.
func (s *Service) GetPayment(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	return s.repo.FindPaymentBySessionID(ctx, strings.TrimSpace(sessionID))
}

// ListUnreconciled returns failed grants that have no payment record yet.
func (s *Service) ListUnreconciled(ctx context.Context, limit int) ([]domain.WebhookDelivery, error) {
	return s.repo.ListUnreconciledDeliveries(ctx, s.now().UTC(), limit)
}
