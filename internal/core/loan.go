package core

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// InterestFor returns principal × rate / 100 rounded to whole Rupiah.
func InterestFor(principal int64, ratePercent float64) int64 {
	return decimal.NewFromInt(principal).
		Mul(decimal.NewFromFloat(ratePercent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// NewLoan builds a fresh loan whose remaining balance equals its total due.
func NewLoan(id, customerID string, terms LoanTerms) Loan {
	interest := InterestFor(terms.Principal, terms.RatePercent)
	total := terms.Principal + interest
	return Loan{
		ID:           id,
		CustomerID:   customerID,
		Principal:    terms.Principal,
		RatePercent:  terms.RatePercent,
		Interest:     interest,
		TotalDue:     total,
		Remaining:    total,
		Installments: terms.Installments,
		Status:       StatusFor(total),
		LoanDate:     terms.LoanDate,
	}
}

// Paid is the amount already repaid against the loan.
func (l Loan) Paid() int64 {
	return l.TotalDue - l.Remaining
}

// Reprice applies new terms while preserving what was already paid.
func (l Loan) Reprice(terms LoanTerms) Loan {
	paid := l.Paid()
	out := NewLoan(l.ID, l.CustomerID, terms)
	out.Remaining = out.TotalDue - paid
	out.Status = StatusFor(out.Remaining)
	out.Version = l.Version
	return out
}

// ApplyPayment reduces the remaining balance and recomputes the status.
func (l Loan) ApplyPayment(amount int64) Loan {
	l.Remaining -= amount
	l.Status = StatusFor(l.Remaining)
	return l
}

// RevertPayment restores a previously applied payment.
func (l Loan) RevertPayment(amount int64) Loan {
	l.Remaining += amount
	l.Status = StatusFor(l.Remaining)
	return l
}

// InstallmentTarget is the expected per-installment amount, unrounded.
func (l Loan) InstallmentTarget() decimal.Decimal {
	if l.Installments <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(l.TotalDue).Div(decimal.NewFromInt(int64(l.Installments)))
}
