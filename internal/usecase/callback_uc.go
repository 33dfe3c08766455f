// File: internal/usecase/callback_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/adapter"
	"oasis-billing/internal/domain/ports/repository"
	ucport "oasis-billing/internal/domain/ports/usecase"
	"oasis-billing/internal/infra/logging"
	"oasis-billing/internal/infra/metrics"
)

// Outcome is what one callback ended up doing.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"      // status changed (and activation fired for success)
	OutcomeRecorded     Outcome = "recorded"     // still pending, reference recorded
	OutcomeDuplicate    Outcome = "duplicate"    // redelivery or stale event, nothing changed
	OutcomeIgnored      Outcome = "ignored"      // unmapped status code, nothing changed
	OutcomeUnresolved   Outcome = "unresolved"   // no transaction for the merchant order id
	OutcomeReview       Outcome = "review"       // nothing changed, needs a human
	OutcomeFailed       Outcome = "failed"       // rolled back, retriable
	OutcomeUnrecognized Outcome = "unrecognized" // payload could not be normalized
)

// Normalizer turns a stored raw payload back into a canonical event.
type Normalizer func(gw model.Gateway, body []byte, receivedAt time.Time) (model.PaymentEvent, error)

// CallbackResult describes the processing of one callback.
type CallbackResult struct {
	EventID     string
	Outcome     Outcome
	Decision    model.Decision
	Transaction *model.Transaction // state after processing, nil when unresolved
	Activation  *model.ActivationResult
	Review      []string // reasons a human should look at this event
}

// NeedsReview reports whether the event was flagged for manual reconciliation.
func (r *CallbackResult) NeedsReview() bool { return len(r.Review) > 0 }

type CallbackUseCase interface {
	// Apply stores the verified event and runs it through the transition
	// table. Internal failures are reported in the result and the returned
	// error but never need to reach the gateway.
	Apply(ctx context.Context, ev model.PaymentEvent, payload []byte) (*CallbackResult, error)
	// RecordUnrecognized stores a payload that failed normalization and
	// flags it for review.
	RecordUnrecognized(ctx context.Context, gw model.Gateway, format model.Format, payload []byte, cause error) (*CallbackResult, error)
	// Replay re-applies a stored callback event.
	Replay(ctx context.Context, eventID, trigger string) (*CallbackResult, error)
	ListEvents(ctx context.Context, status model.CallbackEventStatus, limit int) ([]*model.CallbackEvent, error)
	ListRetriable(ctx context.Context, maxAttempts, limit int) ([]*model.CallbackEvent, error)
	GetEvent(ctx context.Context, id string) (*model.CallbackEvent, error)
}

// CallbackOptions tunes the reconciler.
type CallbackOptions struct {
	StoreTimeout time.Duration // bound on the whole read-decide-write transaction
	LockTTL      time.Duration
	Currency     string
}

var errConcurrentUpdate = errors.New("transaction status changed concurrently")

// Compile-time check
var _ CallbackUseCase = (*callbackUC)(nil)

type callbackUC struct {
	txm       repository.TransactionManager
	txs       repository.TransactionRepository
	events    repository.CallbackEventRepository
	activator ucport.SubscriptionActivator
	refs      OrderRefs
	normalize Normalizer
	locker    adapter.Locker  // optional
	alerter   adapter.Alerter // optional
	opts      CallbackOptions
	log       *zerolog.Logger
}

func NewCallbackUseCase(
	txm repository.TransactionManager,
	txs repository.TransactionRepository,
	events repository.CallbackEventRepository,
	activator ucport.SubscriptionActivator,
	refs OrderRefs,
	normalize Normalizer,
	locker adapter.Locker,
	alerter adapter.Alerter,
	opts CallbackOptions,
	logger *zerolog.Logger,
) *callbackUC {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 30 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.StoreTimeout + 5*time.Second
	}
	return &callbackUC{
		txm:       txm,
		txs:       txs,
		events:    events,
		activator: activator,
		refs:      refs,
		normalize: normalize,
		locker:    locker,
		alerter:   alerter,
		opts:      opts,
		log:       logger,
	}
}

func (uc *callbackUC) Apply(ctx context.Context, ev model.PaymentEvent, payload []byte) (*CallbackResult, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	rec := &model.CallbackEvent{
		ID:                ulid.Make().String(),
		Gateway:           ev.Gateway,
		Format:            ev.Format,
		MerchantOrderID:   ev.MerchantOrderID,
		ExternalReference: ev.ExternalReference,
		RawStatusCode:     ev.RawStatusCode,
		Payload:           payload,
		Status:            model.CallbackEventReceived,
		ReceivedAt:        ev.ReceivedAt,
		UpdatedAt:         ev.ReceivedAt,
	}
	if err := uc.events.Save(ctx, repository.NoTX, rec); err != nil {
		// The audit row is not worth dropping a paid callback for.
		logging.With(ctx, uc.log).Error().Err(err).Str("merchant_order_id", ev.MerchantOrderID).
			Msg("failed to store callback event")
		rec.ID = ""
	}
	return uc.process(ctx, rec.ID, ev, "callback")
}

func (uc *callbackUC) RecordUnrecognized(ctx context.Context, gw model.Gateway, format model.Format, payload []byte, cause error) (*CallbackResult, error) {
	now := time.Now()
	reason := "unrecognized payload"
	if cause != nil {
		reason = cause.Error()
	}
	rec := &model.CallbackEvent{
		ID:         ulid.Make().String(),
		Gateway:    gw,
		Format:     format,
		Payload:    payload,
		Status:     model.CallbackEventReview,
		Reason:     reason,
		ReceivedAt: now,
		UpdatedAt:  now,
	}
	res := &CallbackResult{EventID: rec.ID, Outcome: OutcomeUnrecognized, Review: []string{reason}}

	l := logging.With(ctx, uc.log)
	l.Warn().Str("gateway", string(gw)).Str("reason", reason).Msg("callback payload not recognized, flagged for review")
	metrics.IncCallback(string(gw), string(format), string(OutcomeUnrecognized))

	if err := uc.events.Save(ctx, repository.NoTX, rec); err != nil {
		l.Error().Err(err).Msg("failed to store unrecognized callback")
		return res, err
	}
	uc.alert(ctx, rec.ID, string(gw), "", reason)
	return res, nil
}

func (uc *callbackUC) Replay(ctx context.Context, eventID, trigger string) (*CallbackResult, error) {
	rec, err := uc.events.FindByID(ctx, repository.NoTX, eventID)
	if err != nil {
		return nil, err
	}
	ev, err := uc.normalize(rec.Gateway, rec.Payload, rec.ReceivedAt)
	if err != nil {
		uc.markResult(ctx, rec.ID, model.CallbackEventReview, err.Error())
		metrics.IncReplay(trigger, string(model.CallbackEventReview))
		return &CallbackResult{EventID: rec.ID, Outcome: OutcomeUnrecognized, Review: []string{err.Error()}}, nil
	}
	res, err := uc.process(ctx, rec.ID, ev, trigger)
	status := eventStatus(res, err)
	metrics.IncReplay(trigger, string(status))
	return res, err
}

func (uc *callbackUC) ListEvents(ctx context.Context, status model.CallbackEventStatus, limit int) ([]*model.CallbackEvent, error) {
	return uc.events.ListByStatus(ctx, repository.NoTX, status, limit)
}

func (uc *callbackUC) ListRetriable(ctx context.Context, maxAttempts, limit int) ([]*model.CallbackEvent, error) {
	return uc.events.ListRetriable(ctx, repository.NoTX, maxAttempts, limit)
}

func (uc *callbackUC) GetEvent(ctx context.Context, id string) (*model.CallbackEvent, error) {
	return uc.events.FindByID(ctx, repository.NoTX, id)
}

// process runs the read-decide-write sequence for one event under a row
// lock, then records the outcome on the callback event.
func (uc *callbackUC) process(ctx context.Context, eventID string, ev model.PaymentEvent, trigger string) (*CallbackResult, error) {
	start := time.Now()
	ctx = logging.WithEventID(ctx, eventID)
	l := logging.ForEvent(logging.With(ctx, uc.log), ev)
	l.Info().Str("status", string(ev.Status)).Int64("amount", ev.Amount).Str("trigger", trigger).Msg("callback received")

	res := &CallbackResult{EventID: eventID}

	if unlock := uc.lockOrder(ctx, ev.MerchantOrderID, l); unlock != nil {
		defer unlock()
	}

	sctx, cancel := context.WithTimeout(ctx, uc.opts.StoreTimeout)
	defer cancel()

	err := uc.txm.WithTx(sctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		res.Outcome, res.Decision, res.Transaction, res.Activation, res.Review = "", model.Decision{}, nil, nil, nil
		return uc.reconcile(ctx, tx, ev, res)
	})

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		err = fmt.Errorf("%w: store timeout after %s: %w", domain.ErrActivationFailed, uc.opts.StoreTimeout, err)
		res.Outcome = OutcomeFailed
	default:
		res.Outcome = OutcomeFailed
	}

	if res.Outcome == OutcomeApplied && res.Decision.To == model.TransactionStatusActive && res.Transaction != nil {
		metrics.AddRevenue(res.Transaction.Currency, res.Transaction.Amount)
	}
	if res.Outcome == OutcomeApplied {
		metrics.IncTransition(string(res.Decision.From), string(res.Decision.To))
	}

	status := eventStatus(res, err)
	reason := strings.Join(res.Review, "; ")
	if err != nil {
		reason = err.Error()
	}
	if eventID != "" {
		uc.markResult(ctx, eventID, status, reason)
	}

	metrics.IncCallback(string(ev.Gateway), string(ev.Format), string(res.Outcome))
	metrics.ObserveCallback(string(ev.Gateway), time.Since(start))

	var le *zerolog.Event
	switch {
	case err != nil:
		le = l.Error().Err(err)
	case status == model.CallbackEventReview:
		le = l.Warn().Strs("review", res.Review)
	default:
		le = l.Info()
	}
	le.Str("outcome", string(res.Outcome)).
		Str("verdict", string(res.Decision.Verdict)).
		Str("from", string(res.Decision.From)).
		Str("to", string(res.Decision.To)).
		Dur("duration", time.Since(start)).
		Msg("callback processed")

	if status != model.CallbackEventProcessed {
		uc.alert(ctx, eventID, string(ev.Gateway), ev.MerchantOrderID, reasonOrOutcome(reason, res.Outcome))
	}
	return res, err
}

// reconcile is the body of the transaction.
func (uc *callbackUC) reconcile(ctx context.Context, tx repository.Tx, ev model.PaymentEvent, res *CallbackResult) error {
	t, err := uc.txs.FindByMerchantOrderID(ctx, tx, ev.MerchantOrderID)
	if errors.Is(err, domain.ErrNotFound) {
		res.Outcome = OutcomeUnresolved
		res.Review = append(res.Review, domain.ErrUnresolvedOrder.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	// The stored plan is authoritative; the order id only cross-checks it.
	if plan, ok := uc.refs.ResolvePlan(ev.MerchantOrderID); !ok {
		res.Review = append(res.Review, "plan not parseable from merchant order id")
	} else if plan != t.PlanID {
		res.Review = append(res.Review, fmt.Sprintf("order id plan %q differs from stored plan %q", plan, t.PlanID))
	}
	if ev.Gateway != t.Gateway {
		res.Review = append(res.Review, fmt.Sprintf("callback from %s for a %s transaction", ev.Gateway, t.Gateway))
	}

	d := t.Apply(ev)
	res.Decision = d
	res.Transaction = t

	var ref *string
	if ev.ExternalReference != "" {
		r := ev.ExternalReference
		ref = &r
	}

	switch d.Verdict {
	case model.VerdictTransition:
		if d.Effect == model.EffectActivate && ev.Amount < t.Amount {
			res.Outcome = OutcomeReview
			res.Decision = model.Decision{From: d.From, To: d.From, Effect: model.EffectNone, Verdict: model.VerdictConflict}
			res.Review = append(res.Review, fmt.Sprintf("underpaid: received %d of %d", ev.Amount, t.Amount))
			return uc.touch(ctx, tx, t, ref)
		}
		if d.Effect == model.EffectActivate {
			act, err := uc.activator.ActivateOrExtend(ctx, tx, t.UserID, t.PlanID, ev.IdempotencyKey())
			if err != nil {
				return err
			}
			res.Activation = act
		}
		changed, err := uc.txs.UpdateStatusIf(ctx, tx, t.MerchantOrderID, d.From, d.To, ref)
		if err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
		if !changed {
			return errConcurrentUpdate
		}
		t.Status = d.To
		if ref != nil {
			t.GatewayReference = ref
		}
		res.Outcome = OutcomeApplied
		return nil

	case model.VerdictRecord:
		res.Outcome = OutcomeRecorded
		return uc.touch(ctx, tx, t, ref)

	case model.VerdictNoop:
		res.Outcome = OutcomeDuplicate
		return nil

	case model.VerdictUnknownStatus:
		res.Outcome = OutcomeIgnored
		res.Review = append(res.Review, fmt.Sprintf("%s: %q", domain.ErrUnknownStatus, ev.RawStatusCode))
		return nil

	default: // conflict
		res.Outcome = OutcomeReview
		res.Review = append(res.Review, fmt.Sprintf("%s event for %s transaction", ev.Status, t.Status))
		return nil
	}
}

func (uc *callbackUC) touch(ctx context.Context, tx repository.Tx, t *model.Transaction, ref *string) error {
	if ref == nil {
		return nil
	}
	if err := uc.txs.TouchReference(ctx, tx, t.MerchantOrderID, *ref); err != nil {
		return fmt.Errorf("record gateway reference: %w", err)
	}
	t.GatewayReference = ref
	return nil
}

// lockOrder takes the best-effort per-order lock. Correctness does not depend
// on it: the row lock and the conditional update do.
func (uc *callbackUC) lockOrder(ctx context.Context, merchantOrderID string, l *zerolog.Logger) func() {
	if uc.locker == nil {
		return nil
	}
	key := "lock:order:" + strings.ToUpper(merchantOrderID)
	token, err := uc.locker.TryLock(ctx, key, uc.opts.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			metrics.IncLockBusy()
		}
		l.Debug().Err(err).Msg("order lock not acquired, relying on row lock")
		return nil
	}
	return func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := uc.locker.Unlock(uctx, key, token); err != nil {
			l.Warn().Err(err).Msg("failed to release order lock")
		}
	}
}

func (uc *callbackUC) markResult(ctx context.Context, eventID string, status model.CallbackEventStatus, reason string) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.events.MarkResult(mctx, repository.NoTX, eventID, status, reason, time.Now()); err != nil {
		logging.With(ctx, uc.log).Error().Err(err).Str("status", string(status)).Msg("failed to update callback event")
	}
}

func (uc *callbackUC) alert(ctx context.Context, eventID, gateway, merchantOrderID, reason string) {
	if uc.alerter == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := uc.alerter.Alert(actx, adapter.ReviewAlert{
		EventID:         eventID,
		Gateway:         gateway,
		MerchantOrderID: merchantOrderID,
		Reason:          reason,
	})
	if err != nil {
		logging.With(ctx, uc.log).Warn().Err(err).Str("callback_event_id", eventID).Msg("failed to raise review alert")
	}
}

// eventStatus maps a processing result onto the stored callback status.
func eventStatus(res *CallbackResult, err error) model.CallbackEventStatus {
	switch {
	case err != nil || res.Outcome == OutcomeFailed:
		return model.CallbackEventFailed
	case res.NeedsReview():
		return model.CallbackEventReview
	default:
		return model.CallbackEventProcessed
	}
}

func reasonOrOutcome(reason string, o Outcome) string {
	if reason != "" {
		return reason
	}
	return string(o)
}
