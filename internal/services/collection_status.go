// This file implements the collection status classifier shown on the
// customer list. Each status has a rule; rules are evaluated in priority
// order and the first match wins.

package services

import (
	"time"

	"koperasi/internal/core"
)

type CollectionStatus string

const (
	StatusPaid    CollectionStatus = "paid"
	StatusNewLoan CollectionStatus = "new_loan"
	StatusDue     CollectionStatus = "due"
	StatusSettled CollectionStatus = "lunas"
)

// CollectionInput is what the classifier knows about one customer.
type CollectionInput struct {
	ActiveLoans  []core.Loan
	Installments []core.Transaction
	Now          time.Time
}

// OldestActiveLoan returns the earliest-disbursed active loan.
func (in CollectionInput) OldestActiveLoan() (core.Loan, bool) {
	var oldest core.Loan
	found := false
	for _, l := range in.ActiveLoans {
		if !found || l.LoanDate.Before(oldest.LoanDate) {
			oldest, found = l, true
		}
	}
	return oldest, found
}

// CollectionRule decides whether a customer falls under its status.
type CollectionRule interface {
	Status() CollectionStatus
	Matches(in CollectionInput) bool
}

// PaidTodayRule matches when an installment was recorded today.
type PaidTodayRule struct{}

func (PaidTodayRule) Status() CollectionStatus { return StatusPaid }

func (PaidTodayRule) Matches(in CollectionInput) bool {
	for _, t := range in.Installments {
		if t.Type == core.TypeInstallment && core.SameDay(t.At, in.Now) {
			return true
		}
	}
	return false
}

// DisbursedTodayRule matches when the oldest active loan went out today, so
// no installment is owed yet.
type DisbursedTodayRule struct{}

func (DisbursedTodayRule) Status() CollectionStatus { return StatusNewLoan }

func (DisbursedTodayRule) Matches(in CollectionInput) bool {
	oldest, ok := in.OldestActiveLoan()
	return ok && core.SameDay(oldest.LoanDate, in.Now)
}

// OutstandingRule matches any customer still owing on a loan.
type OutstandingRule struct{}

func (OutstandingRule) Status() CollectionStatus { return StatusDue }

func (OutstandingRule) Matches(in CollectionInput) bool {
	return len(in.ActiveLoans) > 0
}

var collectionRules = []CollectionRule{
	PaidTodayRule{},
	DisbursedTodayRule{},
	OutstandingRule{},
}

// Classify returns the collection status of one customer.
func Classify(in CollectionInput) CollectionStatus {
	for _, r := range collectionRules {
		if r.Matches(in) {
			return r.Status()
		}
	}
	return StatusSettled
}
