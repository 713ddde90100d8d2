package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Ced-Maker4352/luxe-mobile/internal/app"
	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorStub struct {
	outcome   app.CheckoutOutcome
	sessions  []domain.CheckoutSession
	recorded  []string
	completed map[string]string
}

func (p *processorStub) ProcessCheckoutCompleted(ctx context.Context, session domain.CheckoutSession) app.CheckoutOutcome {
	p.sessions = append(p.sessions, session)
	return p.outcome
}

func (p *processorStub) RecordDelivery(ctx context.Context, eventID, eventType, sessionID string) {
	p.recorded = append(p.recorded, eventID)
}

func (p *processorStub) CompleteDelivery(ctx context.Context, eventID, sessionID, outcome, detail string) {
	if p.completed == nil {
		p.completed = map[string]string{}
	}
	p.completed[eventID] = outcome
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(processor CheckoutProcessor, secret string) *WebhookHandler {
	return NewWebhookHandler(processor, NewSignatureVerifier(DefaultSignatureTolerance), secret, 0, testLogger())
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", SignHeader([]byte(body), testSecret, time.Now()))
	return req
}

const checkoutEvent = `{
  "id": "evt_checkout_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_123",
      "object": "checkout.session",
      "amount_total": 1999,
      "currency": "usd",
      "client_reference_id": "user123:socialQuick",
      "payment_intent": "pi_456",
      "customer_details": {"email": "buyer@example.com"},
      "metadata": {"package_id": "creatorPack", "promo_code": "SPRING"}
    }
  }
}`

func TestWebhookHandler_TransportRejections(t *testing.T) {
	processor := &processorStub{}

	t.Run("method not allowed", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newTestHandler(processor, testSecret).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
	})

	t.Run("missing secret", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newTestHandler(processor, "").ServeHTTP(rr, signedRequest(t, checkoutEvent))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("missing signature", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(checkoutEvent))
		newTestHandler(processor, testSecret).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid signature", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := signedRequest(t, checkoutEvent)
		req.Header.Set("Stripe-Signature", SignHeader([]byte(checkoutEvent), "whsec_wrong", time.Now()))
		newTestHandler(processor, testSecret).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("stale signature", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := signedRequest(t, checkoutEvent)
		req.Header.Set("Stripe-Signature", SignHeader([]byte(checkoutEvent), testSecret, time.Now().Add(-10*time.Minute)))
		newTestHandler(processor, testSecret).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, `{"id": "evt_1", `))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		body := `{"id":"evt_big","pad":"` + strings.Repeat("x", 2048) + `"}`
		handler := NewWebhookHandler(processor, nil, testSecret, 1024, testLogger())
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, signedRequest(t, body))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	assert.Empty(t, processor.sessions, "rejected deliveries never reach the pipeline")
	assert.Empty(t, processor.recorded)
}

func TestWebhookHandler_CheckoutCompletedGranted(t *testing.T) {
	processor := &processorStub{outcome: app.CheckoutOutcome{
		Status:       app.StatusCreditsGranted,
		UserID:       "user123",
		PackageID:    "creatorPack",
		PhotoCredits: 30,
		VideoCredits: 0,
		Mode:         app.GrantTransactional,
	}}
	rr := httptest.NewRecorder()

	newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, checkoutEvent))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "credits_granted", body["status"])
	assert.Equal(t, "user123", body["userId"])
	assert.Equal(t, "creatorPack", body["packageId"])
	assert.Equal(t, float64(30), body["photo"])
	assert.Equal(t, float64(0), body["video"], "zero credits are still reported")

	require.Len(t, processor.sessions, 1)
	session := processor.sessions[0]
	assert.Equal(t, "cs_test_123", session.ID)
	assert.Equal(t, "pi_456", session.PaymentIntentID)
	assert.Equal(t, int64(1999), session.AmountTotal)
	assert.Equal(t, "usd", session.Currency)
	assert.Equal(t, "user123:socialQuick", session.ClientReferenceID)
	assert.Equal(t, "creatorPack", session.MetadataPackageID)
	assert.Equal(t, "SPRING", session.PromoCode)
	assert.Equal(t, "buyer@example.com", session.CustomerEmail)

	assert.Equal(t, []string{"evt_checkout_1"}, processor.recorded)
	assert.Equal(t, domain.OutcomeCreditsGranted, processor.completed["evt_checkout_1"])
}

func TestWebhookHandler_CheckoutCompletedWarningsAreAcknowledged(t *testing.T) {
	cases := []app.CheckoutOutcome{
		{Warning: app.WarningUnknownPackage, PackageID: "goldPack"},
		{Warning: app.WarningNoPackageID},
		{Warning: app.WarningUserNotFound},
		{Error: app.ErrorNoUserIdentifier},
		{Status: app.StatusAlreadyProcessed, UserID: "user123"},
		{Status: app.StatusGrantFailed, Mode: app.GrantFailed},
	}

	for _, outcome := range cases {
		processor := &processorStub{outcome: outcome}
		rr := httptest.NewRecorder()
		newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, checkoutEvent))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp WebhookResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Received)
		assert.Equal(t, outcome.Status, resp.Status)
		assert.Equal(t, outcome.Warning, resp.Warning)
		assert.Equal(t, outcome.Error, resp.Error)
		assert.Nil(t, resp.Photo)
		assert.Empty(t, resp.UserID)
	}
}

func TestWebhookHandler_InflightReturnsConflict(t *testing.T) {
	processor := &processorStub{outcome: app.CheckoutOutcome{Status: app.StatusInFlight}}
	rr := httptest.NewRecorder()

	newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, checkoutEvent))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"received":false,"status":"in_flight"}`, rr.Body.String())
	assert.Equal(t, domain.OutcomeReceived, processor.completed["evt_checkout_1"])
}

func TestWebhookHandler_OtherEventsAcknowledgedWithoutProcessing(t *testing.T) {
	for _, eventType := range []string{"invoice.paid", "customer.subscription.updated", "charge.refunded"} {
		processor := &processorStub{}
		body := `{"id":"evt_other","type":"` + eventType + `","data":{"object":{"id":"in_1"}}}`
		rr := httptest.NewRecorder()

		newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, body))

		require.Equal(t, http.StatusOK, rr.Code, eventType)
		assert.JSONEq(t, `{"received":true}`, rr.Body.String())
		assert.Empty(t, processor.sessions)
		assert.Equal(t, domain.OutcomeIgnored, processor.completed["evt_other"])
	}
}

func TestWebhookHandler_UnreadEnvelopeFieldsDoNotRejectDelivery(t *testing.T) {
	bodies := map[string]string{
		"renewal with empty data":      `{"type":"invoice.paid","data":{}}`,
		"renewal with only previous":   `{"id":"evt_r","type":"invoice.paid","data":{"previous_attributes":{}}}`,
		"string created":               `{"type":"customer.created","created":"x","data":{"object":{}}}`,
		"unknown type without data":    `{"id":"evt_u","type":"customer.created"}`,
		"object of an unexpected type": `{"id":"evt_o","type":"charge.refunded","data":{"object":"ch_1"}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			processor := &processorStub{}
			rr := httptest.NewRecorder()

			newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, body))

			require.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `{"received":true}`, rr.Body.String())
			assert.Empty(t, processor.sessions)
		})
	}
}

func TestWebhookHandler_CheckoutWithUnreadableObject(t *testing.T) {
	bodies := []string{
		`{"id":"evt_1","type":"checkout.session.completed","data":{}}`,
		`{"id":"evt_1","type":"checkout.session.completed","data":{"object":null}}`,
		`{"id":"evt_1","type":"checkout.session.completed","data":{"object":"cs_1"}}`,
		`{"id":"evt_1","type":"checkout.session.completed","data":[]}`,
	}

	for _, body := range bodies {
		processor := &processorStub{}
		rr := httptest.NewRecorder()

		newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, body))

		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Empty(t, processor.sessions)
	}
}

func TestWebhookHandler_CheckoutWithoutObject(t *testing.T) {
	processor := &processorStub{}
	rr := httptest.NewRecorder()

	newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, `{"id":"evt_1","type":"checkout.session.completed"}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, processor.sessions)
}

func TestDecodeCheckoutSession_EmailFallsBackToCustomerEmail(t *testing.T) {
	processor := &processorStub{outcome: app.CheckoutOutcome{Warning: app.WarningUserNotFound}}
	body := `{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_2","customer_email":"legacy@example.com","metadata":{"package_id":"socialQuick"}}}}`
	rr := httptest.NewRecorder()

	newTestHandler(processor, testSecret).ServeHTTP(rr, signedRequest(t, body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, processor.sessions, 1)
	assert.Equal(t, "legacy@example.com", processor.sessions[0].CustomerEmail)
	assert.Empty(t, processor.sessions[0].PaymentIntentID)
}
