// Package memory is an in-process ledger store. It is the default backend for
// local runs and the fake used by service tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
)

type Store struct {
	mu           sync.RWMutex
	customers    map[string]core.Customer
	loans        map[string]core.Loan
	transactions map[string]core.Transaction
	closed       bool

	hub *ledger.Hub
}

var _ ledger.Store = (*Store)(nil)

func New(logger *slog.Logger) *Store {
	s := &Store{
		customers:    make(map[string]core.Customer),
		loans:        make(map[string]core.Loan),
		transactions: make(map[string]core.Transaction),
	}
	s.hub = ledger.NewHub(s, logger)
	return s
}

func (s *Store) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return core.Customer{}, fmt.Errorf("customer %s: %w", id, ledger.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetLoan(ctx context.Context, id string) (core.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[id]
	if !ok {
		return core.Loan{}, fmt.Errorf("loan %s: %w", id, ledger.ErrNotFound)
	}
	return l, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	return t, nil
}

func (s *Store) FindCustomers(ctx context.Context, q ledger.Query) ([]core.Customer, error) {
	s.mu.RLock()
	out := make([]core.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if q.MatchCustomer(c) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) FindLoans(ctx context.Context, q ledger.Query) ([]core.Loan, error) {
	s.mu.RLock()
	out := make([]core.Loan, 0)
	for _, l := range s.loans {
		if q.MatchLoan(l) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoanDate.Equal(out[j].LoanDate) {
			return out[i].LoanDate.After(out[j].LoanDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) FindTransactions(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	s.mu.RLock()
	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if q.MatchTransaction(t) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Commit validates every operation against the current state plus the
// earlier operations of the same batch, then applies them under one lock.
func (s *Store) Commit(ctx context.Context, b *ledger.Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ledger.ErrClosed
	}
	if err := s.check(b); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, op := range b.Ops() {
		s.apply(op)
	}
	s.mu.Unlock()

	s.hub.Notify(b.Collections()...)
	return nil
}

type docKey struct {
	col ledger.Collection
	id  string
}

// version reports the stored version of k and whether it exists.
func (s *Store) version(k docKey) (int64, bool) {
	switch k.col {
	case ledger.Customers:
		c, ok := s.customers[k.id]
		return c.Version, ok
	case ledger.Loans:
		l, ok := s.loans[k.id]
		return l.Version, ok
	case ledger.Transactions:
		t, ok := s.transactions[k.id]
		return t.Version, ok
	}
	return 0, false
}

type docState struct {
	present bool
	version int64
}

func (s *Store) check(b *ledger.Batch) error {
	staged := make(map[docKey]docState)
	current := func(k docKey) docState {
		if st, ok := staged[k]; ok {
			return st
		}
		v, ok := s.version(k)
		return docState{present: ok, version: v}
	}

	for i, op := range b.Ops() {
		if op.ID == "" {
			return fmt.Errorf("op %d on %s: empty id: %w", i, op.Collection, ledger.ErrNotFound)
		}
		if err := checkPayload(op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		k := docKey{op.Collection, op.ID}
		st := current(k)
		switch op.Kind {
		case ledger.OpCreate:
			if st.present {
				return fmt.Errorf("%s %s %s: %w", op.Kind, op.Collection, op.ID, ledger.ErrConflict)
			}
			staged[k] = docState{present: true, version: 1}
		case ledger.OpUpdate, ledger.OpDelete:
			if !st.present {
				return fmt.Errorf("%s %s %s: %w", op.Kind, op.Collection, op.ID, ledger.ErrNotFound)
			}
			if op.Conditional() && st.version != op.Version {
				return fmt.Errorf("%s %s %s at version %d, stored %d: %w",
					op.Kind, op.Collection, op.ID, op.Version, st.version, ledger.ErrConflict)
			}
			if op.Kind == ledger.OpDelete {
				staged[k] = docState{}
			} else {
				staged[k] = docState{present: true, version: op.Version + 1}
			}
		default:
			return fmt.Errorf("op %d: unsupported kind %d", i, op.Kind)
		}
	}
	return nil
}

func checkPayload(op ledger.Op) error {
	if op.Kind == ledger.OpDelete {
		return nil
	}
	switch op.Collection {
	case ledger.Customers:
		if op.Customer == nil {
			return fmt.Errorf("%s %s: missing customer payload", op.Kind, op.ID)
		}
	case ledger.Loans:
		if op.Loan == nil {
			return fmt.Errorf("%s %s: missing loan payload", op.Kind, op.ID)
		}
	case ledger.Transactions:
		if op.Transaction == nil {
			return fmt.Errorf("%s %s: missing transaction payload", op.Kind, op.ID)
		}
	default:
		return ledger.ErrUnknownCollection
	}
	return nil
}

func (s *Store) apply(op ledger.Op) {
	switch op.Collection {
	case ledger.Customers:
		if op.Kind == ledger.OpDelete {
			delete(s.customers, op.ID)
			return
		}
		s.customers[op.ID] = *op.Customer
	case ledger.Loans:
		if op.Kind == ledger.OpDelete {
			delete(s.loans, op.ID)
			return
		}
		s.loans[op.ID] = *op.Loan
	case ledger.Transactions:
		if op.Kind == ledger.OpDelete {
			delete(s.transactions, op.ID)
			return
		}
		s.transactions[op.ID] = *op.Transaction
	}
}

func (s *Store) Subscribe(ctx context.Context, q ledger.Query, fn func(ledger.Snapshot)) (*ledger.Subscription, error) {
	return s.hub.Subscribe(ctx, q, fn)
}

// Subscriptions reports the number of live subscriptions.
func (s *Store) Subscriptions() int {
	return s.hub.Size()
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
