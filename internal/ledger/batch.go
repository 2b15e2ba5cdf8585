package ledger

import "koperasi/internal/core"

type OpKind int

const (
	// OpCreate fails with ErrConflict when the id already exists.
	OpCreate OpKind = iota
	// OpUpdate replaces the whole document; fails with ErrNotFound when absent.
	OpUpdate
	// OpDelete fails with ErrNotFound when absent.
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Op is one document mutation. Exactly one of the document pointers is set
// for create and update; deletes carry the document only when they are
// conditional on its version.
//
// Version is the stored version the op was planned against. Updates, and
// deletes that carry a document, fail with ErrConflict when another commit
// changed the document in between.
type Op struct {
	Kind        OpKind
	Collection  Collection
	ID          string
	Version     int64
	Customer    *core.Customer
	Loan        *core.Loan
	Transaction *core.Transaction
}

// Conditional reports whether the op only applies at Version.
func (op Op) Conditional() bool {
	switch op.Kind {
	case OpUpdate:
		return true
	case OpDelete:
		return op.Customer != nil || op.Loan != nil || op.Transaction != nil
	}
	return false
}

// Batch collects mutations that must be committed together.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Ops() []Op { return b.ops }

func (b *Batch) Len() int { return len(b.ops) }

func (b *Batch) CreateCustomer(c core.Customer) *Batch {
	c.Version = 1
	return b.add(Op{Kind: OpCreate, Collection: Customers, ID: c.ID, Customer: &c})
}

// UpdateCustomer replaces c as it was read; the stored copy gets the next
// version.
func (b *Batch) UpdateCustomer(c core.Customer) *Batch {
	read := c.Version
	c.Version++
	return b.add(Op{Kind: OpUpdate, Collection: Customers, ID: c.ID, Version: read, Customer: &c})
}

func (b *Batch) CreateLoan(l core.Loan) *Batch {
	l.Version = 1
	return b.add(Op{Kind: OpCreate, Collection: Loans, ID: l.ID, Loan: &l})
}

func (b *Batch) UpdateLoan(l core.Loan) *Batch {
	read := l.Version
	l.Version++
	return b.add(Op{Kind: OpUpdate, Collection: Loans, ID: l.ID, Version: read, Loan: &l})
}

// DeleteLoan removes l provided it is still at the version it was read at.
func (b *Batch) DeleteLoan(l core.Loan) *Batch {
	return b.add(Op{Kind: OpDelete, Collection: Loans, ID: l.ID, Version: l.Version, Loan: &l})
}

func (b *Batch) CreateTransaction(t core.Transaction) *Batch {
	t.Version = 1
	return b.add(Op{Kind: OpCreate, Collection: Transactions, ID: t.ID, Transaction: &t})
}

func (b *Batch) UpdateTransaction(t core.Transaction) *Batch {
	read := t.Version
	t.Version++
	return b.add(Op{Kind: OpUpdate, Collection: Transactions, ID: t.ID, Version: read, Transaction: &t})
}

// DeleteTransaction removes a transaction by id, whatever its version.
func (b *Batch) DeleteTransaction(id string) *Batch {
	return b.add(Op{Kind: OpDelete, Collection: Transactions, ID: id})
}

func (b *Batch) add(op Op) *Batch {
	b.ops = append(b.ops, op)
	return b
}

// Collections lists the distinct collections touched, in first-touch order.
func (b *Batch) Collections() []Collection {
	var out []Collection
	seen := make(map[Collection]bool, 3)
	for _, op := range b.ops {
		if !seen[op.Collection] {
			seen[op.Collection] = true
			out = append(out, op.Collection)
		}
	}
	return out
}

// IDs lists the document ids touched, in batch order.
func (b *Batch) IDs() []string {
	out := make([]string, 0, len(b.ops))
	for _, op := range b.ops {
		out = append(out, op.ID)
	}
	return out
}
