package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/infra/logging"
	"oasis-billing/internal/infra/metrics"
	red "oasis-billing/internal/infra/redis"
	"oasis-billing/internal/usecase"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	replayLimit      = 30
	replayWindow     = time.Minute
)

type callbackEventView struct {
	ID                string          `json:"id"`
	Gateway           string          `json:"gateway"`
	Format            string          `json:"format"`
	MerchantOrderID   string          `json:"merchant_order_id,omitempty"`
	ExternalReference string          `json:"external_reference,omitempty"`
	RawStatusCode     string          `json:"raw_status_code,omitempty"`
	Status            string          `json:"status"`
	Reason            string          `json:"reason,omitempty"`
	Attempts          int             `json:"attempts"`
	ReceivedAt        time.Time       `json:"received_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	RawPayload        string          `json:"raw_payload,omitempty"` // set when the body was not JSON
}

func toEventView(ev *model.CallbackEvent, withPayload bool) callbackEventView {
	v := callbackEventView{
		ID:                ev.ID,
		Gateway:           string(ev.Gateway),
		Format:            string(ev.Format),
		MerchantOrderID:   ev.MerchantOrderID,
		ExternalReference: ev.ExternalReference,
		RawStatusCode:     ev.RawStatusCode,
		Status:            string(ev.Status),
		Reason:            ev.Reason,
		Attempts:          ev.Attempts,
		ReceivedAt:        ev.ReceivedAt,
		ProcessedAt:       ev.ProcessedAt,
		UpdatedAt:         ev.UpdatedAt,
	}
	if withPayload && len(ev.Payload) > 0 {
		if json.Valid(ev.Payload) {
			v.Payload = json.RawMessage(ev.Payload)
		} else {
			v.RawPayload = string(ev.Payload)
		}
	}
	return v
}

// AdminHandler serves the manual review surface for stored callbacks.
type AdminHandler struct {
	callbacks usecase.CallbackUseCase
	limiter   *red.RateLimiter // optional
	log       *zerolog.Logger
}

func NewAdminHandler(callbacks usecase.CallbackUseCase, limiter *red.RateLimiter, logger *zerolog.Logger) *AdminHandler {
	return &AdminHandler{callbacks: callbacks, limiter: limiter, log: logger}
}

func (h *AdminHandler) ListCallbacks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := model.CallbackEventStatus(q.Get("status"))
	if status == "" {
		status = model.CallbackEventReview
	}
	switch status {
	case model.CallbackEventReceived, model.CallbackEventProcessed, model.CallbackEventReview, model.CallbackEventFailed:
	default:
		metrics.IncAdminRequest("list", "bad_request")
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	limit := defaultListLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			metrics.IncAdminRequest("list", "bad_request")
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	events, err := h.callbacks.ListEvents(r.Context(), status, limit)
	if err != nil {
		logging.With(r.Context(), h.log).Error().Err(err).Msg("list callback events failed")
		metrics.IncAdminRequest("list", "error")
		writeError(w, http.StatusInternalServerError, "Failed to list callback events")
		return
	}
	items := make([]callbackEventView, 0, len(events))
	for _, ev := range events {
		items = append(items, toEventView(ev, false))
	}
	metrics.IncAdminRequest("list", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandler) GetCallback(w http.ResponseWriter, r *http.Request) {
	ev, err := h.callbacks.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncAdminRequest("get", "not_found")
			writeError(w, http.StatusNotFound, "callback event not found")
			return
		}
		logging.With(r.Context(), h.log).Error().Err(err).Msg("get callback event failed")
		metrics.IncAdminRequest("get", "error")
		writeError(w, http.StatusInternalServerError, "Failed to load callback event")
		return
	}
	metrics.IncAdminRequest("get", "ok")
	writeJSON(w, http.StatusOK, toEventView(ev, true))
}

type replayResponse struct {
	EventID            string   `json:"event_id"`
	Outcome            string   `json:"outcome"`
	SubscriptionStatus string   `json:"subscription_status,omitempty"`
	Review             []string `json:"review,omitempty"`
	Error              string   `json:"error,omitempty"`
}

func (h *AdminHandler) ReplayCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, h.log)
	id := chi.URLParam(r, "id")

	if !h.allow(r, "replay") {
		metrics.IncAdminRequest("replay", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "Too many replay requests")
		return
	}

	subject := ""
	if c := adminFrom(ctx); c != nil {
		subject = c.Subject
	}
	res, err := h.callbacks.Replay(ctx, id, "admin")
	if err != nil && errors.Is(err, domain.ErrNotFound) && res == nil {
		metrics.IncAdminRequest("replay", "not_found")
		writeError(w, http.StatusNotFound, "callback event not found")
		return
	}

	out := replayResponse{EventID: id}
	status := http.StatusOK
	if res != nil {
		out.Outcome = string(res.Outcome)
		out.Review = res.Review
		if res.Transaction != nil && err == nil {
			out.SubscriptionStatus = string(res.Transaction.Status)
		}
	}
	if err != nil {
		out.Error = err.Error()
		status = http.StatusConflict
		metrics.IncAdminRequest("replay", "failed")
		l.Warn().Err(err).Str("event_id", id).Str("admin", subject).Msg("admin replay failed")
	} else {
		metrics.IncAdminRequest("replay", "ok")
		l.Info().Str("event_id", id).Str("admin", subject).Str("outcome", out.Outcome).Msg("admin replay")
	}
	writeJSON(w, status, out)
}

// allow applies the per-admin limit. Limiter errors fail open.
func (h *AdminHandler) allow(r *http.Request, action string) bool {
	if h.limiter == nil {
		return true
	}
	subject := "anonymous"
	if c := adminFrom(r.Context()); c != nil && c.Subject != "" {
		subject = c.Subject
	}
	ok, err := h.limiter.Allow(r.Context(), red.AdminActionKey(subject, action), replayLimit, replayWindow)
	if err != nil {
		logging.With(r.Context(), h.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}
