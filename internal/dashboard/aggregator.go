package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"koperasi/internal/ledger"
)

// Aggregator keeps the dashboard figures current. It holds one subscription
// on transactions and one on loans; each delivery recomputes its half from
// the full snapshot and publishes the merged result.
type Aggregator struct {
	store  ledger.Subscriber
	now    func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	figures  Figures
	ready    bool
	watchers map[uint64]chan Figures
	nextID   uint64

	txSub   *ledger.Subscription
	loanSub *ledger.Subscription
}

func NewAggregator(store ledger.Subscriber, now func() time.Time, logger *slog.Logger) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:    store,
		now:      now,
		logger:   logger,
		watchers: make(map[uint64]chan Figures),
	}
}

// Start attaches both subscriptions. The first figures arrive asynchronously.
func (a *Aggregator) Start(ctx context.Context) error {
	txSub, err := a.store.Subscribe(ctx, ledger.AllTransactions(), func(s ledger.Snapshot) {
		cash := ComputeCash(s.Transactions, a.now())
		a.publish(func(f *Figures) { f.CashFigures = cash })
	})
	if err != nil {
		return fmt.Errorf("subscribe transactions: %w", err)
	}
	loanSub, err := a.store.Subscribe(ctx, ledger.AllLoans(), func(s ledger.Snapshot) {
		loans := ComputeLoans(s.Loans)
		a.publish(func(f *Figures) { f.LoanFigures = loans })
	})
	if err != nil {
		txSub.Close()
		return fmt.Errorf("subscribe loans: %w", err)
	}

	a.mu.Lock()
	a.txSub, a.loanSub = txSub, loanSub
	a.mu.Unlock()
	a.logger.Info("Dashboard aggregator started")
	return nil
}

func (a *Aggregator) publish(update func(*Figures)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	update(&a.figures)
	a.figures.UpdatedAt = a.now()
	a.ready = true

	for _, ch := range a.watchers {
		// Keep only the newest figures in the slot.
		select {
		case <-ch:
		default:
		}
		ch <- a.figures
	}
}

// Figures returns the latest published figures and whether any delivery has
// happened yet.
func (a *Aggregator) Figures() (Figures, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.figures, a.ready
}

// Watch returns a channel that always holds the newest figures not yet
// received, plus a func that detaches it.
func (a *Aggregator) Watch() (<-chan Figures, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan Figures, 1)
	if a.ready {
		ch <- a.figures
	}
	a.nextID++
	id := a.nextID
	a.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.watchers, id)
			a.mu.Unlock()
		})
	}
}

// Close detaches both subscriptions.
func (a *Aggregator) Close() {
	a.mu.Lock()
	txSub, loanSub := a.txSub, a.loanSub
	a.txSub, a.loanSub = nil, nil
	a.mu.Unlock()

	txSub.Close()
	loanSub.Close()
}
