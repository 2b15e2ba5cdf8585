package ledger

import (
	"context"
	"log/slog"
	"sync"
)

// Hub fans committed changes out to live subscriptions. Backends embed one
// and call Notify after every successful commit.
//
// Each subscription owns a goroutine and a one-slot dirty flag. Notifications
// that arrive while a callback is running collapse into a single re-run that
// loads the newest snapshot, so a slow consumer never sees a backlog of stale
// result sets and never runs two callbacks at once.
type Hub struct {
	reader Reader
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

func NewHub(reader Reader, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		reader: reader,
		logger: logger,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscription is a live query. Close detaches it and waits for any running
// callback to return; it must not be called from inside that callback.
type Subscription struct {
	id     uint64
	hub    *Hub
	query  Query
	fn     func(Snapshot)
	dirty  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Query() Query { return s.query }

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.hub.remove(s.id)
	})
}

// Refresh asks for a re-run with the newest snapshot even though no
// watched collection changed. It never blocks.
func (s *Subscription) Refresh() {
	if s == nil {
		return
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Done is closed once the subscription has stopped delivering.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (h *Hub) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (*Subscription, error) {
	switch q.Collection {
	case Customers, Loans, Transactions:
	default:
		return nil, ErrUnknownCollection
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	h.nextID++
	s := &Subscription{
		id:     h.nextID,
		hub:    h,
		query:  q,
		fn:     fn,
		dirty:  make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.dirty <- struct{}{} // initial snapshot
	h.subs[s.id] = s
	go h.run(subCtx, s)
	return s, nil
}

// Notify marks every subscription on the given collections as dirty.
func (h *Hub) Notify(collections ...Collection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		for _, c := range collections {
			if s.query.Collection != c {
				continue
			}
			select {
			case s.dirty <- struct{}{}:
			default:
			}
			break
		}
	}
}

// Size returns the number of attached subscriptions.
func (h *Hub) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) run(ctx context.Context, s *Subscription) {
	defer close(s.done)
	defer h.remove(s.id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
		}

		snap, err := Load(ctx, h.reader, s.query)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.ErrorContext(ctx, "Failed to load subscription snapshot",
				"collection", s.query.Collection,
				"error", err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.fn(snap)
	}
}
