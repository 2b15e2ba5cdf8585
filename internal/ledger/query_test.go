package ledger

import (
	"testing"
	"time"

	"koperasi/internal/core"
)

func TestMatchTransaction(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trx := core.Transaction{ID: "T1", CustomerID: "C1", LoanID: "L1", Type: core.TypeInstallment, At: at}

	cases := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty query", AllTransactions(), true},
		{"installments of loan", InstallmentsOf("L1"), true},
		{"other loan", InstallmentsOf("L2"), false},
		{"other customer", Query{Collection: Transactions, CustomerID: "C2"}, false},
		{"other type", Query{Collection: Transactions, Type: core.TypeDeposit}, false},
		{"from is inclusive", Query{Collection: Transactions, From: at}, true},
		{"until is exclusive", Query{Collection: Transactions, Until: at}, false},
		{"inside range", Query{Collection: Transactions, From: at.Add(-time.Hour), Until: at.Add(time.Hour)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.q.MatchTransaction(trx); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMatchLoanAndCustomer(t *testing.T) {
	loan := core.Loan{ID: "L1", CustomerID: "C1", Status: core.LoanActive}
	if !LoansOf("C1").MatchLoan(loan) || LoansOf("C2").MatchLoan(loan) {
		t.Fatalf("customer filter mismatch")
	}
	settled := Query{Collection: Loans, Status: string(core.LoanSettled)}
	if settled.MatchLoan(loan) {
		t.Fatalf("status filter mismatch")
	}

	deleted := core.Customer{ID: "C1", Status: core.CustomerDeleted}
	if ActiveCustomers().MatchCustomer(deleted) {
		t.Fatalf("deleted customer matched active query")
	}
	if !AllCustomers().MatchCustomer(deleted) {
		t.Fatalf("empty query should match every customer")
	}
}

func TestBatchCollections(t *testing.T) {
	b := NewBatch().
		UpdateLoan(core.Loan{ID: "L1"}).
		CreateTransaction(core.Transaction{ID: "T1"}).
		UpdateLoan(core.Loan{ID: "L1"}).
		UpdateCustomer(core.Customer{ID: "C1"})

	cols := b.Collections()
	want := []Collection{Loans, Transactions, Customers}
	if len(cols) != len(want) {
		t.Fatalf("expected %v, got %v", want, cols)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, cols)
		}
	}
	if ids := b.IDs(); len(ids) != 4 || ids[3] != "C1" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
