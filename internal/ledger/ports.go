// Package ledger defines the storage contract for the customers, loans and
// transactions collections: point reads, filtered queries, atomic batches and
// live subscriptions.
package ledger

import (
	"context"
	"errors"

	"koperasi/internal/core"
)

type Collection string

const (
	Customers    Collection = "customers"
	Loans        Collection = "loans"
	Transactions Collection = "transactions"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict rejects a create of an existing id, or a conditional op on
	// a document another commit changed after it was read.
	ErrConflict = errors.New("document already exists or changed since read")
	ErrClosed   = errors.New("ledger store closed")
)

// Ports implemented by every backend.
type (
	Reader interface {
		GetCustomer(ctx context.Context, id string) (core.Customer, error)
		GetLoan(ctx context.Context, id string) (core.Loan, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)

		// FindCustomers returns matches ordered by name.
		FindCustomers(ctx context.Context, q Query) ([]core.Customer, error)
		// FindLoans returns matches ordered by loan date, newest first.
		FindLoans(ctx context.Context, q Query) ([]core.Loan, error)
		// FindTransactions returns matches ordered by instant, newest first.
		FindTransactions(ctx context.Context, q Query) ([]core.Transaction, error)
	}

	Writer interface {
		// Commit applies every operation of b or none of them.
		Commit(ctx context.Context, b *Batch) error
	}

	Subscriber interface {
		// Subscribe delivers a fresh snapshot of q now and after every
		// committed change to q's collection until the subscription is closed
		// or ctx is done.
		Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (*Subscription, error)
	}

	Store interface {
		Reader
		Writer
		Subscriber
		Close() error
	}
)

// Snapshot is the full result set of a query at one point in time.
type Snapshot struct {
	Query        Query
	Customers    []core.Customer
	Loans        []core.Loan
	Transactions []core.Transaction
}

func (s Snapshot) Len() int {
	switch s.Query.Collection {
	case Customers:
		return len(s.Customers)
	case Loans:
		return len(s.Loans)
	case Transactions:
		return len(s.Transactions)
	}
	return 0
}

// Load runs q against r and wraps the result in a Snapshot.
func Load(ctx context.Context, r Reader, q Query) (Snapshot, error) {
	snap := Snapshot{Query: q}
	var err error
	switch q.Collection {
	case Customers:
		snap.Customers, err = r.FindCustomers(ctx, q)
	case Loans:
		snap.Loans, err = r.FindLoans(ctx, q)
	case Transactions:
		snap.Transactions, err = r.FindTransactions(ctx, q)
	default:
		err = ErrUnknownCollection
	}
	return snap, err
}

var ErrUnknownCollection = errors.New("unknown collection")
