// Package services holds the cooperative's business rules: the bookkeeping
// engine that turns staff actions into atomic ledger batches, and the read
// models built on top of the ledger (customer directory, detail, ledger view).
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
)

var (
	// ErrPaymentImmutable is returned for any attempt to edit a payment.
	// Payments are corrected by deleting and recording them again.
	ErrPaymentImmutable = errors.New("payments cannot be edited; delete and record again")
	ErrNoSavings        = errors.New("customer has no savings to withdraw")
	ErrLoanSettled      = errors.New("loan is already settled")
	// ErrSavingsWouldGoNegative rejects a reversal that would leave savings
	// below zero, which happens when the credited amount was already withdrawn.
	ErrSavingsWouldGoNegative = errors.New("reversal would make savings negative")
	ErrActiveLoanExists       = errors.New("customer already has an active loan")
	ErrCustomerInactive       = errors.New("customer is not active")
)

// IsConflict reports whether err is a rule conflict with the current ledger
// state rather than bad input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPaymentImmutable) ||
		errors.Is(err, ErrSavingsWouldGoNegative) ||
		errors.Is(err, ErrActiveLoanExists) ||
		errors.Is(err, ledger.ErrConflict)
}

const (
	firstInstallmentNote = "Angsuran pertama (masuk tabungan)"
	withdrawalNote       = "Pencairan tabungan"
)

func newLoanNote(installments int) string {
	return fmt.Sprintf("Pinjaman baru dengan %dx angsuran.", installments)
}

func installmentNote(n int) string {
	return fmt.Sprintf("Angsuran ke-%d", n)
}

// Store is the slice of the ledger the engine needs.
type Store interface {
	ledger.Reader
	ledger.Writer
}

// Bookkeeper applies the bookkeeping rules. Each operation pre-reads what it
// needs, builds one batch and commits it; nothing is written on error. The
// batch only commits if every document it rewrites is still at the version
// read, otherwise the operation is planned again from fresh reads.
type Bookkeeper struct {
	store            Store
	logger           *slog.Logger
	newID            func() string
	now              func() time.Time
	singleActiveLoan bool
}

type Option func(*Bookkeeper)

func WithClock(now func() time.Time) Option {
	return func(b *Bookkeeper) { b.now = now }
}

func WithIDs(newID func() string) Option {
	return func(b *Bookkeeper) { b.newID = newID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bookkeeper) { b.logger = logger }
}

// WithSingleActiveLoan makes CreateLoan refuse customers that still owe on
// another loan.
func WithSingleActiveLoan(on bool) Option {
	return func(b *Bookkeeper) { b.singleActiveLoan = on }
}

func NewBookkeeper(store Store, opts ...Option) *Bookkeeper {
	b := &Bookkeeper{
		store:  store,
		logger: slog.Default(),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bookkeeper) at(t time.Time) time.Time {
	if t.IsZero() {
		return b.now()
	}
	return t
}

func (b *Bookkeeper) CreateCustomer(ctx context.Context, p core.CustomerProfile) (core.Customer, error) {
	if err := p.Validate(); err != nil {
		return core.Customer{}, err
	}
	c := core.Customer{
		ID:        b.newID(),
		Name:      strings.TrimSpace(p.Name),
		Phone:     strings.TrimSpace(p.Phone),
		Address:   strings.TrimSpace(p.Address),
		Status:    core.CustomerActive,
		CreatedAt: b.now(),
	}
	if err := b.store.Commit(ctx, ledger.NewBatch().CreateCustomer(c)); err != nil {
		return core.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	c.Version = 1
	b.logger.InfoContext(ctx, "Customer created", "customer_id", c.ID)
	return c, nil
}

// planAttempts bounds how often an operation is planned again after another
// commit changed one of the documents it read.
const planAttempts = 5

// replan runs plan, which pre-reads and commits one batch, until the commit
// no longer hits a version conflict.
func replan[T any](ctx context.Context, b *Bookkeeper, name string, plan func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= planAttempts; attempt++ {
		out, err = plan()
		if !errors.Is(err, ledger.ErrConflict) || ctx.Err() != nil {
			return out, err
		}
		b.logger.DebugContext(ctx, "Ledger changed since read, planning again",
			"operation", name,
			"attempt", attempt)
	}
	return out, err
}

// UpdateCustomer changes profile fields only; savings and status are kept.
func (b *Bookkeeper) UpdateCustomer(ctx context.Context, id string, p core.CustomerProfile) (core.Customer, error) {
	if err := p.Validate(); err != nil {
		return core.Customer{}, err
	}
	return replan(ctx, b, "update customer", func() (core.Customer, error) {
		c, err := b.store.GetCustomer(ctx, id)
		if err != nil {
			return core.Customer{}, err
		}
		c.Name = strings.TrimSpace(p.Name)
		c.Phone = strings.TrimSpace(p.Phone)
		c.Address = strings.TrimSpace(p.Address)
		if err := b.store.Commit(ctx, ledger.NewBatch().UpdateCustomer(c)); err != nil {
			return core.Customer{}, fmt.Errorf("update customer: %w", err)
		}
		c.Version++
		return c, nil
	})
}

func (b *Bookkeeper) SoftDeleteCustomer(ctx context.Context, id string) error {
	changed, err := replan(ctx, b, "soft delete customer", func() (bool, error) {
		c, err := b.store.GetCustomer(ctx, id)
		if err != nil {
			return false, err
		}
		if c.Status == core.CustomerDeleted {
			return false, nil
		}
		c.Status = core.CustomerDeleted
		if err := b.store.Commit(ctx, ledger.NewBatch().UpdateCustomer(c)); err != nil {
			return false, fmt.Errorf("soft delete customer: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if changed {
		b.logger.InfoContext(ctx, "Customer soft deleted", "customer_id", id)
	}
	return nil
}

// CreateLoan records a loan and its disbursement transaction.
func (b *Bookkeeper) CreateLoan(ctx context.Context, customerID string, terms core.LoanTerms) (core.Loan, error) {
	if err := terms.Validate(); err != nil {
		return core.Loan{}, err
	}
	loan, err := replan(ctx, b, "create loan", func() (core.Loan, error) {
		return b.createLoan(ctx, customerID, terms)
	})
	if err != nil {
		return core.Loan{}, err
	}
	b.logger.InfoContext(ctx, "Loan created",
		"loan_id", loan.ID,
		"customer_id", customerID,
		"total_due", loan.TotalDue)
	return loan, nil
}

func (b *Bookkeeper) createLoan(ctx context.Context, customerID string, terms core.LoanTerms) (core.Loan, error) {
	c, err := b.store.GetCustomer(ctx, customerID)
	if err != nil {
		return core.Loan{}, err
	}
	if c.Status != core.CustomerActive {
		return core.Loan{}, fmt.Errorf("customer %s: %w: %w", customerID, ErrCustomerInactive, ledger.ErrNotFound)
	}
	if b.singleActiveLoan {
		active, err := b.store.FindLoans(ctx, ledger.Query{
			Collection: ledger.Loans,
			CustomerID: customerID,
			Status:     string(core.LoanActive),
		})
		if err != nil {
			return core.Loan{}, fmt.Errorf("check active loans: %w", err)
		}
		if len(active) > 0 {
			return core.Loan{}, ErrActiveLoanExists
		}
	}

	loan := core.NewLoan(b.newID(), customerID, terms)
	disbursement := core.Transaction{
		ID:          b.newID(),
		CustomerID:  customerID,
		LoanID:      loan.ID,
		Type:        core.TypeNewLoan,
		Amount:      loan.Principal,
		Description: newLoanNote(loan.Installments),
		At:          loan.LoanDate,
	}

	// The customer is rewritten unchanged so that a concurrent soft delete or
	// second loan for the same customer conflicts with this one.
	batch := ledger.NewBatch().
		UpdateCustomer(c).
		CreateLoan(loan).
		CreateTransaction(disbursement)
	if err := b.store.Commit(ctx, batch); err != nil {
		return core.Loan{}, fmt.Errorf("create loan: %w", err)
	}
	loan.Version = 1
	return loan, nil
}

// EditLoan reprices a loan from new terms, keeping the amount already paid,
// and rewrites the paired disbursement transaction.
func (b *Bookkeeper) EditLoan(ctx context.Context, loanID string, terms core.LoanTerms) (core.Loan, error) {
	if err := terms.Validate(); err != nil {
		return core.Loan{}, err
	}
	return replan(ctx, b, "edit loan", func() (core.Loan, error) {
		old, err := b.store.GetLoan(ctx, loanID)
		if err != nil {
			return core.Loan{}, err
		}
		disbursements, err := b.store.FindTransactions(ctx, ledger.Query{
			Collection: ledger.Transactions,
			LoanID:     loanID,
			Type:       core.TypeNewLoan,
		})
		if err != nil {
			return core.Loan{}, fmt.Errorf("find disbursement: %w", err)
		}

		loan := old.Reprice(terms)
		batch := ledger.NewBatch().UpdateLoan(loan)
		for _, t := range disbursements {
			t.Amount = loan.Principal
			t.Description = newLoanNote(loan.Installments)
			t.At = loan.LoanDate
			batch.UpdateTransaction(t)
		}
		if err := b.store.Commit(ctx, batch); err != nil {
			return core.Loan{}, fmt.Errorf("edit loan: %w", err)
		}
		loan.Version++
		return loan, nil
	})
}

// RecordPayment applies an installment. The first installment of a loan is
// also credited to the customer's savings.
func (b *Bookkeeper) RecordPayment(ctx context.Context, loanID string, amount int64, at time.Time) (core.Transaction, error) {
	if err := core.ValidateAmount("jumlah", amount); err != nil {
		return core.Transaction{}, err
	}
	at = b.at(at)
	payment, err := replan(ctx, b, "record payment", func() (core.Transaction, error) {
		return b.recordPayment(ctx, loanID, amount, at)
	})
	if err != nil {
		return core.Transaction{}, err
	}
	b.logger.InfoContext(ctx, "Payment recorded",
		"loan_id", loanID,
		"transaction_id", payment.ID,
		"amount", amount,
		"savings_credit", payment.SavingsCredit)
	return payment, nil
}

// recordPayment numbers the installment from the ones already stored. Every
// installment rewrites the loan, so two payments planned against the same
// installments cannot both commit.
func (b *Bookkeeper) recordPayment(ctx context.Context, loanID string, amount int64, at time.Time) (core.Transaction, error) {
	loan, err := b.store.GetLoan(ctx, loanID)
	if err != nil {
		return core.Transaction{}, err
	}
	if loan.Status == core.LoanSettled {
		return core.Transaction{}, &core.ValidationError{Field: "loanId", Err: ErrLoanSettled}
	}
	prior, err := b.store.FindTransactions(ctx, ledger.InstallmentsOf(loanID))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find installments: %w", err)
	}

	payment := core.Transaction{
		ID:            b.newID(),
		CustomerID:    loan.CustomerID,
		LoanID:        loanID,
		Type:          core.TypeInstallment,
		Amount:        amount,
		At:            at,
		InstallmentNo: len(prior) + 1,
	}
	batch := ledger.NewBatch().UpdateLoan(loan.ApplyPayment(amount))

	if len(prior) == 0 {
		c, err := b.store.GetCustomer(ctx, loan.CustomerID)
		if err != nil {
			return core.Transaction{}, err
		}
		c.Savings += amount
		batch.UpdateCustomer(c)
		payment.SavingsCredit = true
		payment.Description = firstInstallmentNote
	} else {
		payment.Description = installmentNote(payment.InstallmentNo)
	}
	batch.CreateTransaction(payment)

	if err := b.store.Commit(ctx, batch); err != nil {
		return core.Transaction{}, fmt.Errorf("record payment: %w", err)
	}
	payment.Version = 1
	return payment, nil
}

// EditPayment always fails once the transaction is known to exist.
func (b *Bookkeeper) EditPayment(ctx context.Context, transactionID string) error {
	if _, err := b.store.GetTransaction(ctx, transactionID); err != nil {
		return err
	}
	return ErrPaymentImmutable
}

// DeleteTransaction removes a transaction and reverses its effect on the
// documents it touched, in one batch.
func (b *Bookkeeper) DeleteTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var ops int
	t, err := replan(ctx, b, "delete transaction", func() (core.Transaction, error) {
		t, err := b.store.GetTransaction(ctx, id)
		if err != nil {
			return core.Transaction{}, err
		}

		batch := ledger.NewBatch()
		switch t.Type {
		case core.TypeInstallment:
			err = b.reverseInstallment(ctx, batch, t)
		case core.TypeNewLoan:
			err = b.reverseLoan(ctx, batch, t)
		case core.TypeWithdrawal:
			err = b.reverseWithdrawal(ctx, batch, t)
		}
		if err != nil {
			return core.Transaction{}, err
		}
		if t.Type != core.TypeNewLoan {
			batch.DeleteTransaction(t.ID)
		}

		if err := b.store.Commit(ctx, batch); err != nil {
			return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
		}
		ops = batch.Len()
		return t, nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	b.logger.InfoContext(ctx, "Transaction deleted",
		"transaction_id", id,
		"type", t.Type,
		"operations", ops)
	return t, nil
}

func (b *Bookkeeper) reverseInstallment(ctx context.Context, batch *ledger.Batch, t core.Transaction) error {
	loan, err := b.store.GetLoan(ctx, t.LoanID)
	if !t.SavingsCredit {
		if err != nil {
			return err
		}
		batch.UpdateLoan(loan.RevertPayment(t.Amount))
		return nil
	}

	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	if err := b.debitSavings(ctx, batch, t.CustomerID, t.Amount); err != nil {
		return err
	}
	// The balance stays, but the loan is rewritten so a payment numbered
	// against the installment being removed conflicts.
	if err == nil {
		batch.UpdateLoan(loan)
	}
	return nil
}

// reverseLoan deletes the loan, every installment on it and the
// disbursement itself, undoing the savings credit of the first installment.
func (b *Bookkeeper) reverseLoan(ctx context.Context, batch *ledger.Batch, t core.Transaction) error {
	installments, err := b.store.FindTransactions(ctx, ledger.InstallmentsOf(t.LoanID))
	if err != nil {
		return fmt.Errorf("find installments: %w", err)
	}
	var credited int64
	for _, p := range installments {
		if p.SavingsCredit {
			credited += p.Amount
		}
		batch.DeleteTransaction(p.ID)
	}
	if credited > 0 {
		if err := b.debitSavings(ctx, batch, t.CustomerID, credited); err != nil {
			return err
		}
	}

	// Deleting the loan at the version read means a payment that lands after
	// the installments were listed makes the whole batch conflict.
	if loan, err := b.store.GetLoan(ctx, t.LoanID); err == nil {
		batch.DeleteLoan(loan)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	batch.DeleteTransaction(t.ID)
	return nil
}

func (b *Bookkeeper) reverseWithdrawal(ctx context.Context, batch *ledger.Batch, t core.Transaction) error {
	c, err := b.store.GetCustomer(ctx, t.CustomerID)
	if err != nil {
		return err
	}
	c.Savings += t.Amount
	batch.UpdateCustomer(c)
	return nil
}

func (b *Bookkeeper) debitSavings(ctx context.Context, batch *ledger.Batch, customerID string, amount int64) error {
	c, err := b.store.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if c.Savings < amount {
		return fmt.Errorf("customer %s holds %d, reversal needs %d: %w",
			customerID, c.Savings, amount, ErrSavingsWouldGoNegative)
	}
	c.Savings -= amount
	batch.UpdateCustomer(c)
	return nil
}

// WithdrawSavings pays out the full savings balance.
func (b *Bookkeeper) WithdrawSavings(ctx context.Context, customerID string, at time.Time) (core.Transaction, error) {
	at = b.at(at)
	w, err := replan(ctx, b, "withdraw savings", func() (core.Transaction, error) {
		c, err := b.store.GetCustomer(ctx, customerID)
		if err != nil {
			return core.Transaction{}, err
		}
		if c.Savings <= 0 {
			return core.Transaction{}, &core.ValidationError{Field: "tabungan", Err: ErrNoSavings}
		}

		w := core.Transaction{
			ID:          b.newID(),
			CustomerID:  customerID,
			Type:        core.TypeWithdrawal,
			Amount:      c.Savings,
			Description: withdrawalNote,
			At:          at,
		}
		c.Savings = 0

		if err := b.store.Commit(ctx, ledger.NewBatch().UpdateCustomer(c).CreateTransaction(w)); err != nil {
			return core.Transaction{}, fmt.Errorf("withdraw savings: %w", err)
		}
		w.Version = 1
		return w, nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	b.logger.InfoContext(ctx, "Savings withdrawn", "customer_id", customerID, "amount", w.Amount)
	return w, nil
}

func (b *Bookkeeper) RecordDeposit(ctx context.Context, amount int64, description string, at time.Time) (core.Transaction, error) {
	return b.recordCash(ctx, core.TypeDeposit, amount, description, at)
}

func (b *Bookkeeper) RecordOperational(ctx context.Context, amount int64, description string, at time.Time) (core.Transaction, error) {
	return b.recordCash(ctx, core.TypeOperational, amount, description, at)
}

func (b *Bookkeeper) recordCash(ctx context.Context, typ core.TransactionType, amount int64, description string, at time.Time) (core.Transaction, error) {
	if err := core.ValidateAmount("jumlah", amount); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:          b.newID(),
		Type:        typ,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		At:          b.at(at),
	}
	if err := b.store.Commit(ctx, ledger.NewBatch().CreateTransaction(t)); err != nil {
		return core.Transaction{}, fmt.Errorf("record %s: %w", strings.ToLower(string(typ)), err)
	}
	t.Version = 1
	return t, nil
}
