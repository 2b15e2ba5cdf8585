// Package backend selects and opens the ledger store for a process.
package backend

import (
	"context"
	"time"

	"koperasi/internal/amqp"
	"koperasi/internal/ledger"
)

// CleanupFunc releases whatever the backend opened.
type CleanupFunc func() error

// Result is an opened store plus its cleanup.
type Result struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// ChangePublisher announces committed batches. *amqp.Client implements it.
type ChangePublisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// Pinger is implemented by stores backed by a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Type BackendType

	// SQLite
	SQLiteDBPath string

	// Postgres
	DatabaseURL   string
	SlowThreshold time.Duration

	// Memory: snapshot file loaded at open and written at cleanup. Empty
	// keeps the ledger in memory only.
	SnapshotPath string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	}
	return false
}
