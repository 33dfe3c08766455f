package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"oasis-billing/internal/infra/logging"
	"oasis-billing/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Pinger reports dependency health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the route and timing knobs of the HTTP surface.
type Options struct {
	FaspayPath     string // SNAP endpoint path, also used for legacy notifications
	XenditPath     string
	RequestTimeout time.Duration
}

// Server wires the callback, checkout and admin routes.
type Server struct {
	opts     Options
	cb       *CallbackHandler
	admin    *AdminHandler
	auth     *AuthManager // nil disables the admin API
	payments usecase.PaymentUseCase
	plans    PlanLister
	health   []Pinger
	log      *zerolog.Logger
}

func NewServer(
	opts Options,
	cb *CallbackHandler,
	admin *AdminHandler,
	auth *AuthManager,
	payments usecase.PaymentUseCase,
	plans PlanLister,
	logger *zerolog.Logger,
	health ...Pinger,
) *Server {
	if opts.FaspayPath == "" {
		opts.FaspayPath = "/callback/payment"
	}
	if opts.XenditPath == "" {
		opts.XenditPath = "/api/xendit/callback"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Server{
		opts:     opts,
		cb:       cb,
		admin:    admin,
		auth:     auth,
		payments: payments,
		plans:    plans,
		health:   health,
		log:      logger,
	}
}

// Routes builds the router with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get(s.opts.FaspayPath, s.cb.FaspayGET)
	r.Post(s.opts.FaspayPath, s.cb.FaspayPOST)
	r.Get(s.opts.XenditPath, s.cb.XenditGET)
	r.Post(s.opts.XenditPath, s.cb.XenditPOST)

	if s.payments != nil {
		r.Get("/api/xendit/checkout", checkoutInfoHandler)
		r.Post("/api/xendit/checkout", checkoutHandler(s.payments, s.log))
		r.Get("/api/xendit/checkout/{orderID}", checkoutStatusHandler(s.payments, s.log))
	}
	if s.plans != nil {
		r.Get("/api/plans", plansListHandler(s.plans, s.log))
	}

	if s.admin != nil {
		r.Route("/api/admin", func(ar chi.Router) {
			ar.Use(RequireAdmin(s.auth, s.log))
			ar.Get("/callbacks", s.admin.ListCallbacks)
			ar.Get("/callbacks/{id}", s.admin.GetCallback)
			ar.Post("/callbacks/{id}/replay", s.admin.ReplayCallback)
		})
	}

	return Chain(r,
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.opts.RequestTimeout),
		BodyLimit(maxBodyBytes),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range s.health {
		if err := p.Ping(ctx); err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests for up to grace.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
