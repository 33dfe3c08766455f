// Package memory holds in-process repositories used by tests and -dev mode.
package memory

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*Store)(nil)

// Tx is the handle passed to repositories inside Store.WithTx.
type Tx struct{ store *Store }

type dataset struct {
	transactions map[string]*model.Transaction // by upper-cased merchant order id
	subs         map[string]*model.UserSubscription
	activations  map[string]*model.ActivationRecord
	plans        map[string]*model.SubscriptionPlan
	events       map[string]*model.CallbackEvent
}

func newDataset() *dataset {
	return &dataset{
		transactions: map[string]*model.Transaction{},
		subs:         map[string]*model.UserSubscription{},
		activations:  map[string]*model.ActivationRecord{},
		plans:        map[string]*model.SubscriptionPlan{},
		events:       map[string]*model.CallbackEvent{},
	}
}

// clone copies everything except callback events, which are only ever
// written outside transactions.
func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.transactions {
		cp := *v
		c.transactions[k] = &cp
	}
	for k, v := range d.subs {
		cp := *v
		c.subs[k] = &cp
	}
	for k, v := range d.activations {
		cp := *v
		c.activations[k] = &cp
	}
	for k, v := range d.plans {
		cp := *v
		c.plans[k] = &cp
	}
	c.events = d.events
	return c
}

// Store serialises transactions with txMu; a write made without a Tx takes
// txMu for its own duration, so it behaves like an autocommit statement.
// Calling a repository with NoTX from inside WithTx deadlocks, the same way a
// second connection would block on a row lock in Postgres.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *dataset
}

func NewStore() *Store {
	return &Store{data: newDataset()}
}

// WithTx runs fn under the store-wide transaction lock. Writes are rolled
// back when fn returns an error.
func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &Tx{store: s}); err != nil {
		s.mu.Lock()
		snap.events = s.data.events
		s.data = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

// write runs fn with the data lock held, taking the transaction lock first
// when the caller is not inside WithTx.
func (s *Store) write(tx repository.Tx, fn func(d *dataset) error) error {
	switch v := tx.(type) {
	case nil:
		s.txMu.Lock()
		defer s.txMu.Unlock()
	case *Tx:
		if v.store != s {
			return domain.ErrInvalidExecContext
		}
	default:
		return domain.ErrInvalidExecContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(tx repository.Tx, fn func(d *dataset) error) error {
	switch v := tx.(type) {
	case nil:
	case *Tx:
		if v.store != s {
			return domain.ErrInvalidExecContext
		}
	default:
		return domain.ErrInvalidExecContext
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// writeEvent bypasses the transaction lock; callback events are append-only
// audit rows that must survive a rolled back reconciliation.
func (s *Store) writeEvent(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) Transactions() *TransactionRepo     { return &TransactionRepo{s: s} }
func (s *Store) Subscriptions() *SubscriptionRepo   { return &SubscriptionRepo{s: s} }
func (s *Store) Activations() *ActivationRepo       { return &ActivationRepo{s: s} }
func (s *Store) Plans() *PlanRepo                   { return &PlanRepo{s: s} }
func (s *Store) CallbackEvents() *CallbackEventRepo { return &CallbackEventRepo{s: s} }
