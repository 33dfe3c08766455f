// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oasis-billing/internal/config"
	"oasis-billing/internal/domain/model"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling only applies outside dev mode.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && level < zerolog.DebugLevel {
		zerolog.SetGlobalLevel(level)
	}
	return newWithWriter(cfg, dev, os.Stdout)
}

func newWithWriter(cfg config.LogConfig, dev bool, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.ToLower(cfg.Format) == "console" || dev {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(out).Level(level).With().Timestamp().Str("service", "oasis-billing").Logger()

	if cfg.Sampling && !dev {
		// Keep warnings and errors; sample the rest 1 in 10.
		sampled := base.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BasicSampler{N: 10},
			DebugSampler: &zerolog.BasicSampler{N: 10},
			InfoSampler:  &zerolog.BasicSampler{N: 10},
		})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxEventID ctxKey = "callback_event_id"
)

// With attaches trace_id and callback_event_id from ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok && v != "" {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxEventID).(string); ok && v != "" {
		l = l.Str("callback_event_id", v)
	}
	logger := l.Logger()
	return &logger
}

// ForEvent adds the canonical payment event fields.
func ForEvent(l *zerolog.Logger, ev model.PaymentEvent) *zerolog.Logger {
	logger := l.With().
		Str("gateway", string(ev.Gateway)).
		Str("format", string(ev.Format)).
		Str("merchant_order_id", ev.MerchantOrderID).
		Str("external_ref", ev.ExternalReference).
		Str("raw_status", ev.RawStatusCode).
		Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "Reconciler.Apply")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides secrets and signatures when not in dev; keep short/preview.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}

func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxEventID, id)
}

// TraceID returns the request trace id, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
