package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/infra/logging"
	"oasis-billing/internal/infra/metrics"
	"oasis-billing/internal/infra/payment"
	"oasis-billing/internal/usecase"
)

// CallbackHandler is the inbound webhook surface for both gateways:
// verify, normalize, reconcile, then reply per the gateway's contract.
type CallbackHandler struct {
	verifier  *payment.Verifier
	callbacks usecase.CallbackUseCase
	log       *zerolog.Logger
	dev       bool
	now       func() time.Time
}

func NewCallbackHandler(verifier *payment.Verifier, callbacks usecase.CallbackUseCase, dev bool, logger *zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		verifier:  verifier,
		callbacks: callbacks,
		log:       logger,
		dev:       dev,
		now:       time.Now,
	}
}

func (h *CallbackHandler) FaspayPOST(w http.ResponseWriter, r *http.Request) {
	receivedAt := h.now()
	l := logging.With(r.Context(), h.log).With().Str("gateway", string(model.GatewayFaspay)).Logger()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// Nothing can be verified; answer with the shape the gateway expects.
		l.Error().Err(err).Msg("failed to read callback body")
		FaspayAccepted(model.FormatUnknown, nil, receivedAt).Write(w)
		return
	}
	format := payment.DetectFormat(model.GatewayFaspay, body)
	l = l.With().Str("format", string(format)).Logger()

	if !h.faspayAuthentic(r, format, body, &l) {
		FaspayRejected(format).Write(w)
		return
	}

	reply := FaspayAccepted(format, body, receivedAt)
	defer h.absorb(w, reply, &l)

	ev, err := payment.Normalize(model.GatewayFaspay, body, receivedAt)
	if err != nil {
		h.recordUnrecognized(r, model.GatewayFaspay, format, body, err, &l)
		reply.Write(w)
		return
	}
	if _, err := h.callbacks.Apply(r.Context(), ev, body); err != nil {
		// Already logged and stored as failed by the use case.
		l.Debug().Err(err).Str("merchant_order_id", ev.MerchantOrderID).Msg("callback absorbed")
	}
	reply.Write(w)
}

// faspayAuthentic applies the signature policy for the detected format.
// Legacy carries its signature in the body; everything else is treated as
// SNAP and verified from headers.
func (h *CallbackHandler) faspayAuthentic(r *http.Request, format model.Format, body []byte, l *zerolog.Logger) bool {
	var check payment.Check
	if format == model.FormatFaspayLegacy {
		check = h.verifier.VerifyFaspayLegacy(body)
	} else {
		check = h.verifier.VerifyFaspaySNAP(r.Method, body, r.Header)
		if check == payment.CheckMissing && !h.verifier.RequireSNAPSignature() {
			l.Warn().Msg("SNAP notification without signature headers accepted")
			metrics.IncSignatureReject(string(model.GatewayFaspay), string(format), "missing_accepted")
			return true
		}
	}
	if check == payment.CheckValid {
		return true
	}
	metrics.IncSignatureReject(string(model.GatewayFaspay), string(format), check.String())
	l.Warn().
		Str("check", check.String()).
		Str("signature", logging.Redact(r.Header.Get(payment.HeaderSignature), h.dev)).
		Msg("callback signature rejected")
	return false
}

func (h *CallbackHandler) XenditPOST(w http.ResponseWriter, r *http.Request) {
	receivedAt := h.now()
	l := logging.With(r.Context(), h.log).With().Str("gateway", string(model.GatewayXendit)).Logger()

	if check := h.verifier.VerifyXendit(r.Header); check != payment.CheckValid {
		metrics.IncSignatureReject(string(model.GatewayXendit), "", check.String())
		l.Warn().Str("check", check.String()).
			Str("token", logging.Redact(r.Header.Get(payment.HeaderCallbackToken), h.dev)).
			Msg("callback token rejected")
		XenditRejected(check).Write(w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		l.Error().Err(err).Msg("failed to read callback body")
		XenditProcessed(model.PaymentEvent{}, nil, err).Write(w)
		return
	}
	format := payment.DetectFormat(model.GatewayXendit, body)
	l = l.With().Str("format", string(format)).Logger()
	defer h.absorb(w, XenditProcessed(model.PaymentEvent{}, nil, errPanicked), &l)

	ev, err := payment.Normalize(model.GatewayXendit, body, receivedAt)
	if err != nil {
		h.recordUnrecognized(r, model.GatewayXendit, format, body, err, &l)
		var ne *payment.NormalizationError
		if errors.As(err, &ne) {
			XenditUnrecognized(ne.Keys).Write(w)
			return
		}
		XenditUnrecognized(payment.TopLevelKeys(body)).Write(w)
		return
	}
	res, err := h.callbacks.Apply(r.Context(), ev, body)
	XenditProcessed(ev, res, err).Write(w)
}

func (h *CallbackHandler) recordUnrecognized(r *http.Request, gw model.Gateway, format model.Format, body []byte, cause error, l *zerolog.Logger) {
	if _, err := h.callbacks.RecordUnrecognized(r.Context(), gw, format, body, cause); err != nil {
		l.Error().Err(err).Msg("failed to record unrecognized callback")
	}
}

var errPanicked = errors.New("callback handler panicked")

// absorb turns a panic in a callback handler into the gateway's fixed reply.
func (h *CallbackHandler) absorb(w http.ResponseWriter, reply Reply, l *zerolog.Logger) {
	if rec := recover(); rec != nil {
		l.Error().Interface("panic", rec).Msg("callback handler panicked")
		reply.Write(w)
	}
}

func (h *CallbackHandler) FaspayGET(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Faspay Callback Endpoint",
		"status":    "Active",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"note":      "This endpoint receives POST requests from Faspay payment gateway",
		"formats":   []string{"Legacy Debit API (JSON)", "SNAP Payment Notification"},
	})
}

func (h *CallbackHandler) XenditGET(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "Xendit Callback Endpoint",
		"status":          "Active",
		"timestamp":       h.now().UTC().Format(time.RFC3339),
		"note":            "This endpoint receives POST requests from Xendit payment gateway",
		"security":        "X-Callback-Token header verification required",
		"supported_types": []string{"Virtual Account Payment", "E-Wallet Payment"},
	})
}
