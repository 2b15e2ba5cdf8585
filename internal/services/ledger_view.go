package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"koperasi/internal/cache"
	"koperasi/internal/core"
	"koperasi/internal/ledger"
)

// AllTypes is the filter value that disables the type filter.
const AllTypes = "Semua"

// LedgerFilter selects transactions by calendar day range and type. Start
// and End are inclusive whole days.
type LedgerFilter struct {
	Start time.Time
	End   time.Time
	Type  string
}

func (f LedgerFilter) Validate() error {
	if f.Type != "" && f.Type != AllTypes && !core.TransactionType(f.Type).Valid() {
		return &core.ValidationError{Field: "type", Err: core.ErrUnknownType}
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return &core.ValidationError{Field: "end", Err: errors.New("end date before start date")}
	}
	return nil
}

func (f LedgerFilter) Query() ledger.Query {
	q := ledger.AllTransactions()
	if !f.Start.IsZero() {
		q.From, _ = core.DayBounds(f.Start)
	}
	if !f.End.IsZero() {
		_, q.Until = core.DayBounds(f.End)
	}
	if f.Type != "" && f.Type != AllTypes {
		q.Type = core.TransactionType(f.Type)
	}
	return q
}

// LedgerRow is a transaction with its display detail resolved.
type LedgerRow struct {
	core.Transaction
	Detail string `json:"detail"`
}

type ledgerStore interface {
	ledger.Reader
	ledger.Subscriber
}

// LedgerView serves the transaction ledger. Customer names are resolved
// through a cache that is dropped whenever the customers collection changes;
// the current watch is then re-run so open streams pick up renames.
type LedgerView struct {
	store  ledger.Reader
	sub    ledger.Subscriber
	names  *cache.ReadThrough[string]
	logger *slog.Logger

	namesSub *ledger.Subscription

	mu      sync.Mutex
	current *ledger.Subscription
}

func NewLedgerView(ctx context.Context, store ledgerStore, logger *slog.Logger) (*LedgerView, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &LedgerView{
		store:  store,
		sub:    store,
		names:  cache.NewReadThrough[string](cache.NewLRUCache[string](1024, time.Hour)),
		logger: logger,
	}
	sub, err := store.Subscribe(ctx, ledger.AllCustomers(), func(ledger.Snapshot) {
		v.names.Reset()
		v.mu.Lock()
		current := v.current
		v.mu.Unlock()
		current.Refresh()
	})
	if err != nil {
		return nil, fmt.Errorf("watch customers: %w", err)
	}
	v.namesSub = sub
	return v, nil
}

func (v *LedgerView) List(ctx context.Context, f LedgerFilter) ([]LedgerRow, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	txs, err := v.store.FindTransactions(ctx, f.Query())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return v.resolve(ctx, txs)
}

// Watch streams the filtered ledger to fn. Any previous watch is detached
// before the new one attaches, so fn never sees rows for an old filter.
func (v *LedgerView) Watch(ctx context.Context, f LedgerFilter, fn func([]LedgerRow)) error {
	if err := f.Validate(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.current.Close()
	v.current = nil

	sub, err := v.sub.Subscribe(ctx, f.Query(), func(s ledger.Snapshot) {
		rows, err := v.resolve(ctx, s.Transactions)
		if err != nil {
			v.logger.ErrorContext(ctx, "Failed to resolve ledger rows", "error", err)
			return
		}
		fn(rows)
	})
	if err != nil {
		return fmt.Errorf("watch ledger: %w", err)
	}
	v.current = sub
	return nil
}

func (v *LedgerView) Close() {
	v.mu.Lock()
	v.current.Close()
	v.current = nil
	v.mu.Unlock()
	v.namesSub.Close()
}

func (v *LedgerView) resolve(ctx context.Context, txs []core.Transaction) ([]LedgerRow, error) {
	rows := make([]LedgerRow, 0, len(txs))
	for _, t := range txs {
		row := LedgerRow{Transaction: t, Detail: t.Description}
		if row.Detail == "" {
			row.Detail = "-"
		}
		if t.CustomerID != "" {
			name, err := v.customerName(ctx, t.CustomerID)
			if err != nil {
				return nil, err
			}
			if name != "" {
				row.Detail = "Nasabah: " + name
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// customerName returns "" for customers that no longer exist.
func (v *LedgerView) customerName(ctx context.Context, id string) (string, error) {
	return v.names.GetOrLoad(ctx, id, func(ctx context.Context) (string, error) {
		c, err := v.store.GetCustomer(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return c.Name, nil
	})
}
