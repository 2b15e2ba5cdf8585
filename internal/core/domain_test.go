package core

import (
	"errors"
	"testing"
	"time"
)

var day = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestLoanTermsValidate(t *testing.T) {
	good := LoanTerms{Principal: 1000000, RatePercent: 10, Installments: 10, LoanDate: day}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		terms LoanTerms
		want  error
	}{
		{LoanTerms{Principal: 0, RatePercent: 10, Installments: 10, LoanDate: day}, ErrInvalidAmount},
		{LoanTerms{Principal: -5, RatePercent: 10, Installments: 10, LoanDate: day}, ErrInvalidAmount},
		{LoanTerms{Principal: 100, RatePercent: -1, Installments: 10, LoanDate: day}, ErrInvalidRate},
		{LoanTerms{Principal: 100, RatePercent: 10, Installments: 0, LoanDate: day}, ErrInvalidInstallments},
		{LoanTerms{Principal: 100, RatePercent: 10, Installments: 10}, ErrMissingDate},
	}
	for i, tc := range bads {
		err := tc.terms.Validate()
		if !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
		if !IsValidation(err) {
			t.Fatalf("case %d expected a validation error, got %T", i, err)
		}
	}
}

func TestNewLoan(t *testing.T) {
	l := NewLoan("L1", "C1", LoanTerms{Principal: 1000000, RatePercent: 10, Installments: 10, LoanDate: day})
	if l.Interest != 100000 || l.TotalDue != 1100000 || l.Remaining != 1100000 {
		t.Fatalf("unexpected loan figures: %+v", l)
	}
	if l.Status != LoanActive {
		t.Fatalf("expected Aktif, got %s", l.Status)
	}
}

func TestInterestRounding(t *testing.T) {
	cases := []struct {
		principal int64
		rate      float64
		want      int64
	}{
		{1000000, 10, 100000},
		{333333, 2.5, 8333},
		{150000, 0, 0},
		{999, 12.5, 125},
	}
	for _, tc := range cases {
		if got := InterestFor(tc.principal, tc.rate); got != tc.want {
			t.Fatalf("InterestFor(%d, %v) expected %d, got %d", tc.principal, tc.rate, tc.want, got)
		}
	}
}

func TestRepricePreservesPaid(t *testing.T) {
	l := NewLoan("L1", "C1", LoanTerms{Principal: 1000000, RatePercent: 10, Installments: 10, LoanDate: day})
	l = l.ApplyPayment(300000)
	l.Version = 3

	edited := l.Reprice(LoanTerms{Principal: 2000000, RatePercent: 5, Installments: 20, LoanDate: day})
	if edited.Version != 3 {
		t.Fatalf("reprice must keep the stored version, got %d", edited.Version)
	}
	if edited.TotalDue != 2100000 {
		t.Fatalf("expected total 2100000, got %d", edited.TotalDue)
	}
	if edited.Remaining != 1800000 {
		t.Fatalf("expected remaining 1800000, got %d", edited.Remaining)
	}

	shrunk := l.Reprice(LoanTerms{Principal: 200000, RatePercent: 0, Installments: 2, LoanDate: day})
	if shrunk.Remaining != -100000 || shrunk.Status != LoanSettled {
		t.Fatalf("expected settled loan with -100000 remaining, got %+v", shrunk)
	}
}

func TestStatusInvariant(t *testing.T) {
	l := NewLoan("L1", "C1", LoanTerms{Principal: 100, RatePercent: 0, Installments: 1, LoanDate: day})
	steps := []func(Loan) Loan{
		func(l Loan) Loan { return l.ApplyPayment(40) },
		func(l Loan) Loan { return l.ApplyPayment(60) },
		func(l Loan) Loan { return l.ApplyPayment(10) },
		func(l Loan) Loan { return l.RevertPayment(10) },
		func(l Loan) Loan { return l.RevertPayment(60) },
	}
	for i, step := range steps {
		l = step(l)
		if (l.Status == LoanSettled) != (l.Remaining <= 0) {
			t.Fatalf("step %d broke status invariant: %+v", i, l)
		}
	}
}

func TestCashEffect(t *testing.T) {
	cases := map[TransactionType]int64{
		TypeDeposit:     100,
		TypeInstallment: 100,
		TypeNewLoan:     -100,
		TypeOperational: -100,
		TypeWithdrawal:  0,
	}
	for typ, want := range cases {
		if got := (Transaction{Type: typ, Amount: 100}).CashEffect(); got != want {
			t.Fatalf("%s expected %d, got %d", typ, want, got)
		}
	}
}

func TestCustomerProfileValidate(t *testing.T) {
	if err := (CustomerProfile{Name: "Siti", Phone: "0812", Address: "Jl. Mawar"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (CustomerProfile{Name: "   "}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}
