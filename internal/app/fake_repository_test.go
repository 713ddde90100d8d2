package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
)

type balance struct {
	photo      int
	video      int
	tier       string
	subscribed bool
}

// fakeRepository keeps accounts and payments in memory and enforces session uniqueness.
type fakeRepository struct {
	mu sync.Mutex

	emails   map[string]string
	balances map[string]*balance
	payments map[string]domain.PaymentRecord
	outbox   []store.OutboxEvent
	journal  map[string]domain.WebhookDelivery

	grantPath        store.GrantPath
	grantErr         error
	existsErr        error
	lookupErr        error
	skipExistsCheck  bool
	grantCalls       int
	reportedEventIDs []string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		emails:    map[string]string{},
		balances:  map[string]*balance{},
		payments:  map[string]domain.PaymentRecord{},
		journal:   map[string]domain.WebhookDelivery{},
		grantPath: store.GrantPathFunction,
	}
}

func (r *fakeRepository) addUser(id, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[id] = &balance{}
	if email != "" {
		r.emails[strings.ToLower(email)] = id
	}
}

func (r *fakeRepository) balanceOf(id string) balance {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.balances[id]; ok {
		return *b
	}
	return balance{}
}

func (r *fakeRepository) paymentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

func (r *fakeRepository) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	if r.lookupErr != nil {
		return "", r.lookupErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", store.ErrUserNotFound
	}
	return id, nil
}

func (r *fakeRepository) PaymentExists(ctx context.Context, sessionID string) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	if r.skipExistsCheck {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.payments[sessionID]
	return ok, nil
}

func (r *fakeRepository) FindPaymentBySessionID(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[sessionID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	return &payment, nil
}

func (r *fakeRepository) GrantCredits(ctx context.Context, req domain.GrantRequest, events ...store.OutboxEvent) (store.GrantPath, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grantCalls++

	if r.grantErr != nil {
		return "", r.grantErr
	}
	account, ok := r.balances[req.Payment.UserID]
	if !ok {
		return "", store.ErrProfileNotFound
	}
	if _, exists := r.payments[req.Payment.ProviderSessionID]; exists {
		return "", store.ErrPaymentAlreadyRecorded
	}

	account.photo += req.Payment.CreditsGranted
	account.video += req.Payment.VideoCreditsGranted
	account.tier = req.TierLabel
	account.subscribed = account.subscribed || req.Subscribed
	r.payments[req.Payment.ProviderSessionID] = req.Payment
	r.outbox = append(r.outbox, events...)
	return r.grantPath, nil
}

func (r *fakeRepository) RecordDelivery(ctx context.Context, delivery domain.WebhookDelivery) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.journal[delivery.ProviderEventID]; ok {
		return false, nil
	}
	r.journal[delivery.ProviderEventID] = delivery
	return true, nil
}

func (r *fakeRepository) CompleteDelivery(ctx context.Context, providerEventID, sessionID, outcome, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivery := r.journal[providerEventID]
	delivery.Outcome = outcome
	delivery.Detail = detail
	if sessionID != "" {
		delivery.SessionID = sessionID
	}
	r.journal[providerEventID] = delivery
	return nil
}

func (r *fakeRepository) ListUnreconciledDeliveries(ctx context.Context, olderThan time.Time, limit int) ([]domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WebhookDelivery
	for _, delivery := range r.journal {
		if delivery.Outcome != domain.OutcomeGrantFailed || delivery.ReportedAt != nil {
			continue
		}
		if _, paid := r.payments[delivery.SessionID]; paid {
			continue
		}
		out = append(out, delivery)
	}
	return out, nil
}

func (r *fakeRepository) MarkDeliveryReported(ctx context.Context, providerEventID string, events ...store.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reportedEventIDs = append(r.reportedEventIDs, providerEventID)
	r.outbox = append(r.outbox, events...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
