package backend

import (
	"context"
	"log/slog"

	"koperasi/internal/amqp"
	"koperasi/internal/ledger"
)

// PublishingStore announces every committed batch after the commit succeeds.
// Publish failures are logged and never reported to the caller: the ledger
// is already written and the worker's periodic resync repairs the mirror.
type PublishingStore struct {
	ledger.Store
	pub    ChangePublisher
	logger *slog.Logger
}

func NewPublishingStore(store ledger.Store, pub ChangePublisher, logger *slog.Logger) *PublishingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingStore{Store: store, pub: pub, logger: logger}
}

func (s *PublishingStore) Commit(ctx context.Context, b *ledger.Batch) error {
	if err := s.Store.Commit(ctx, b); err != nil {
		return err
	}
	if b == nil || b.Len() == 0 {
		return nil
	}

	msg := ChangeMessage(b)
	if err := s.pub.PublishLedgerChanged(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger change",
			"error", err,
			"collections", msg.Collections,
			"documents", len(msg.DocumentIDs))
	}
	return nil
}

// Ping forwards to the wrapped store when it supports it.
func (s *PublishingStore) Ping(ctx context.Context) error {
	if p, ok := s.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ChangeMessage describes b. The operation is the single op kind of the
// batch, or "mixed".
func ChangeMessage(b *ledger.Batch) *amqp.LedgerChangedMessage {
	cols := b.Collections()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = string(c)
	}

	op := ""
	for _, o := range b.Ops() {
		kind := o.Kind.String()
		if op == "" {
			op = kind
		} else if op != kind {
			op = "mixed"
			break
		}
	}
	return amqp.NewLedgerChangedMessage(names, b.IDs(), op)
}
