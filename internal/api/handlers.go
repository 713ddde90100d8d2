/**
 * @description
 * HTTP entry point for payment provider webhooks. Authenticates the raw body,
 * decodes the event envelope and dispatches on the event type.
 *
 * @notes
 * - Transport failures (method, configuration, signature, JSON) are rejected
 *   with 4xx/5xx so the provider retries or alerts.
 * - Once a delivery is authenticated and parsed it is acknowledged with 200,
 *   including business-level problems; those are reported in the body and logs.
 * - The one exception is a checkout session another delivery is still
 *   granting: that is answered 409 so the provider redelivers it later, when
 *   the redelivery resolves to already_processed (or grants, if the first
 *   attempt failed).
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Ced-Maker4352/luxe-mobile/internal/app"
	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

const (
	signatureHeaderName = "Stripe-Signature"
	defaultBodyLimit    = 1 << 20
)

var errMissingEventObject = errors.New("event has no data object")

// eventEnvelope is the part of an event the router reads. Only the checkout
// branch decodes data.object, so unrelated event shapes are still acknowledged.
type eventEnvelope struct {
	ID   string           `json:"id"`
	Type stripe.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// CheckoutProcessor runs the checkout completion pipeline and its journal.
type CheckoutProcessor interface {
	ProcessCheckoutCompleted(ctx context.Context, session domain.CheckoutSession) app.CheckoutOutcome
	RecordDelivery(ctx context.Context, eventID, eventType, sessionID string)
	CompleteDelivery(ctx context.Context, eventID, sessionID, outcome, detail string)
}

// WebhookResponse is the JSON body returned for every parsed delivery.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	Status    string `json:"status,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Error     string `json:"error,omitempty"`
	UserID    string `json:"userId,omitempty"`
	PackageID string `json:"packageId,omitempty"`
	Photo     *int   `json:"photo,omitempty"`
	Video     *int   `json:"video,omitempty"`
}

// WebhookHandler handles provider webhook deliveries.
type WebhookHandler struct {
	processor CheckoutProcessor
	verifier  *SignatureVerifier
	secret    string
	bodyLimit int64
	logger    *slog.Logger
}

// NewWebhookHandler creates a handler. An empty secret is accepted so the
// service can boot; every delivery is then answered with 500.
func NewWebhookHandler(processor CheckoutProcessor, verifier *SignatureVerifier, secret string, bodyLimit int64, logger *slog.Logger) *WebhookHandler {
	if verifier == nil {
		verifier = NewSignatureVerifier(DefaultSignatureTolerance)
	}
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		processor: processor,
		verifier:  verifier,
		secret:    strings.TrimSpace(secret),
		bodyLimit: bodyLimit,
		logger:    logger,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("request_id", requestIDFrom(r)))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.secret == "" {
		logger.Error("webhook signing secret is not configured")
		http.Error(w, "Webhook secret not configured", http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get(signatureHeaderName)
	if strings.TrimSpace(signature) == "" {
		logger.Warn("webhook delivery without signature header")
		http.Error(w, "Missing stripe-signature header", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook body exceeds limit", slog.Int64("limit_bytes", h.bodyLimit))
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.Warn("failed to read webhook body", slog.Any("error", err))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Check(body, signature, h.secret); err != nil {
		logger.Warn("webhook signature rejected", slog.String("reason", err.Error()))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event eventEnvelope
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Warn("webhook body is not a valid event", slog.Any("error", err))
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	logger = logger.With(slog.String("event_id", event.ID), slog.String("event_type", string(event.Type)))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		h.handleCheckoutCompleted(w, r, logger, &event)
	case stripe.EventTypeInvoicePaid:
		logger.Info("invoice paid acknowledged; renewals are not processed")
		h.acknowledgeIgnored(w, r, &event)
	default:
		logger.Info("unhandled webhook event type acknowledged")
		h.acknowledgeIgnored(w, r, &event)
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(w http.ResponseWriter, r *http.Request, logger *slog.Logger, event *eventEnvelope) {
	ctx := r.Context()

	session, err := decodeCheckoutSession(event)
	if err != nil {
		logger.Warn("checkout completion has an unreadable session", slog.Any("error", err))
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	h.processor.RecordDelivery(ctx, event.ID, string(event.Type), session.ID)
	outcome := h.processor.ProcessCheckoutCompleted(ctx, session)
	h.processor.CompleteDelivery(ctx, event.ID, session.ID, outcome.JournalOutcome(), outcomeDetail(outcome))

	// Not acknowledged: the provider retries and the retry sees the committed payment.
	if outcome.Status == app.StatusInFlight {
		respondWithJSON(w, http.StatusConflict, WebhookResponse{Received: false, Status: outcome.Status})
		return
	}
	respondWithJSON(w, http.StatusOK, toWebhookResponse(outcome))
}

func (h *WebhookHandler) acknowledgeIgnored(w http.ResponseWriter, r *http.Request, event *eventEnvelope) {
	h.processor.RecordDelivery(r.Context(), event.ID, string(event.Type), "")
	h.processor.CompleteDelivery(r.Context(), event.ID, "", domain.OutcomeIgnored, "")
	respondWithJSON(w, http.StatusOK, WebhookResponse{Received: true})
}

// decodeCheckoutSession projects the event's checkout session onto the domain type.
func decodeCheckoutSession(event *eventEnvelope) (domain.CheckoutSession, error) {
	if isEmptyJSON(event.Data) {
		return domain.CheckoutSession{}, errMissingEventObject
	}
	var data struct {
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return domain.CheckoutSession{}, err
	}
	if isEmptyJSON(data.Object) {
		return domain.CheckoutSession{}, errMissingEventObject
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(data.Object, &cs); err != nil {
		return domain.CheckoutSession{}, err
	}

	session := domain.CheckoutSession{
		ID:                cs.ID,
		AmountTotal:       cs.AmountTotal,
		Currency:          string(cs.Currency),
		ClientReferenceID: cs.ClientReferenceID,
	}
	if cs.PaymentIntent != nil {
		session.PaymentIntentID = cs.PaymentIntent.ID
	}
	if cs.Metadata != nil {
		session.MetadataPackageID = cs.Metadata["package_id"]
		session.PromoCode = cs.Metadata["promo_code"]
	}
	if cs.CustomerDetails != nil {
		session.CustomerEmail = cs.CustomerDetails.Email
	}
	if strings.TrimSpace(session.CustomerEmail) == "" {
		session.CustomerEmail = cs.CustomerEmail
	}
	return session, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func toWebhookResponse(outcome app.CheckoutOutcome) WebhookResponse {
	resp := WebhookResponse{
		Received: true,
		Status:   outcome.Status,
		Warning:  outcome.Warning,
		Error:    outcome.Error,
	}
	if outcome.Granted() {
		photo, video := outcome.PhotoCredits, outcome.VideoCredits
		resp.UserID = outcome.UserID
		resp.PackageID = outcome.PackageID
		resp.Photo = &photo
		resp.Video = &video
	}
	return resp
}

func outcomeDetail(outcome app.CheckoutOutcome) string {
	switch {
	case outcome.Error != "":
		return outcome.Error
	case outcome.Warning != "":
		return outcome.Warning
	default:
		return outcome.Status
	}
}

func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
