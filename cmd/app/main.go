// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/sync/errgroup"

	"oasis-billing/internal/config"
	"oasis-billing/internal/domain/ports/adapter"
	"oasis-billing/internal/domain/ports/repository"
	payAdapters "oasis-billing/internal/infra/adapters/payment"
	tele "oasis-billing/internal/infra/adapters/telegram"
	"oasis-billing/internal/infra/api"
	"oasis-billing/internal/infra/db/memory"
	pg "oasis-billing/internal/infra/db/postgres"
	"oasis-billing/internal/infra/logging"
	"oasis-billing/internal/infra/metrics"
	"oasis-billing/internal/infra/payment"
	red "oasis-billing/internal/infra/redis"
	"oasis-billing/internal/infra/sched"
	"oasis-billing/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

type stores struct {
	txm         repository.TransactionManager
	txs         repository.TransactionRepository
	subs        repository.SubscriptionRepository
	activations repository.ActivationRepository
	plans       repository.SubscriptionPlanRepository
	events      repository.CallbackEventRepository
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logging / metrics ----
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	// ---- Signature verifiers ----
	verifier, err := payment.NewVerifier(cfg.Secrets())
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway secrets")
	}
	if !cfg.Secrets().SNAPRequireSignature {
		logger.Warn().Msg("faspay.snap.require_signature is false: unsigned SNAP notifications will be accepted")
	}

	var health []api.Pinger

	// ---- Persistence ----
	var st stores
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		health = append(health, pool)
		go samplePool(ctx, pool)

		st = stores{
			txm:         pg.NewTxManager(pool),
			txs:         pg.NewTransactionRepo(pool),
			subs:        pg.NewSubscriptionRepo(pool),
			activations: pg.NewActivationRepo(pool),
			plans:       pg.NewPlanRepo(pool),
			events:      pg.NewCallbackEventRepo(pool),
		}
	} else {
		logger.Warn().Msg("database.url not set: using in-memory store, state is lost on exit")
		mem := memory.NewStore()
		st = stores{
			txm:         mem,
			txs:         mem.Transactions(),
			subs:        mem.Subscriptions(),
			activations: mem.Activations(),
			plans:       mem.Plans(),
			events:      mem.CallbackEvents(),
		}
	}

	// ---- Redis (optional) ----
	var (
		locker  adapter.Locker
		limiter *red.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		health = append(health, redisClient)
		locker = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
		st.plans = pg.NewPlanRepoCacheDecorator(st.plans, redisClient, cfg.Redis.TTL, logger)
	} else {
		logger.Info().Msg("redis.url not set: order lock, plan cache and admin rate limit disabled")
	}

	// ---- Alerts ----
	var alerter adapter.Alerter
	if cfg.Alert.Telegram.Token != "" {
		tg, err := tele.NewTelegramAlerter(&cfg.Alert.Telegram, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram alerter")
		}
		alerter = tg
	} else {
		alerter = tele.NewNoopAlerter(logger)
	}
	alerts := sched.NewAlertDispatcher(alerter, 256, 10*time.Second, logger)

	// ---- Outbound gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Xendit.SecretKey != "" {
		xg, err := payAdapters.NewXenditGateway(&cfg.Xendit, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("xendit gateway")
		}
		gateway = xg
	} else {
		logger.Warn().Msg("xendit.secret_key not set: checkout uses the noop gateway")
		gateway = payAdapters.NewNoopPaymentGateway()
	}

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(st.plans)
	if n, err := planUC.EnsureDefaults(ctx); err != nil {
		logger.Fatal().Err(err).Msg("seed plans")
	} else if n > 0 {
		logger.Info().Int("created", n).Msg("default plans created")
	}
	subUC := usecase.NewSubscriptionUseCase(st.plans, st.subs, st.activations, logger)
	refs := payment.NewOrderRefResolver(cfg.Billing.OrderPrefix, cfg.Billing.FallbackPlan)
	callbackUC := usecase.NewCallbackUseCase(
		st.txm, st.txs, st.events,
		subUC, refs, payment.Normalize, locker, alerts,
		usecase.CallbackOptions{StoreTimeout: cfg.Billing.StoreTimeout, Currency: cfg.Billing.Currency},
		logger,
	)
	paymentUC := usecase.NewPaymentUseCase(st.txs, st.plans, gateway, refs, cfg.Billing.StoreTimeout, logger)

	// ---- HTTP ----
	var auth *api.AuthManager
	if cfg.Admin.JWTSecret != "" {
		auth = api.NewAuthManager(cfg.Admin.JWTSecret, 30*time.Minute)
	} else {
		logger.Warn().Msg("admin.jwt_secret not set: admin API disabled")
	}
	srv := api.NewServer(
		api.Options{
			FaspayPath:     cfg.Faspay.SNAP.EndpointPath,
			RequestTimeout: cfg.HTTP.RequestTimeout,
		},
		api.NewCallbackHandler(verifier, callbackUC, cfg.Runtime.Dev, logger),
		api.NewAdminHandler(callbackUC, limiter, logger),
		auth,
		paymentUC,
		planUC,
		logger,
		health...,
	)

	// ---- Workers ----
	replayer := sched.NewCallbackReplayer(callbackUC, cfg.Replay.Interval, cfg.Replay.MaxAttempts, cfg.Replay.BatchSize, logger)
	watcher := sched.NewStalePendingWatcher(st.txs, 10*time.Minute, cfg.Replay.StalePendingAfter, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(replayer.Run(gctx)) })
	g.Go(func() error { return ignoreCancel(watcher.Run(gctx)) })
	g.Go(func() error { return ignoreCancel(alerts.Run(gctx)) })
	g.Go(func() error {
		err := srv.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.HTTP.Port), 15*time.Second)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}
	logger.Info().Msg("bye")
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// samplePool exports pgx pool stats every 15s.
func samplePool(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := pool.Stat()
			metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
		}
	}
}
