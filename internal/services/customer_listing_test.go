package services

import (
	"context"
	"testing"
	"time"

	"koperasi/internal/core"
)

func TestCustomerDirectoryList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Loans for Citra go out a week before "today".
	f.clock = day0.AddDate(0, 0, -7)
	citra := f.customer(t, "Citra")
	old := f.loan(t, citra.ID, 1000000, 10, 10)
	f.pay(t, old.ID, 110000)
	f.pay(t, old.ID, 110000)

	f.clock = day0
	agus := f.customer(t, "agus")
	f.loan(t, agus.ID, 500000, 10, 5)

	bayu := f.customer(t, "Bayu")
	gone := f.customer(t, "Dedi")
	if err := f.bk.SoftDeleteCustomer(ctx, gone.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	dir := NewCustomerDirectory(f.store, func() time.Time { return day0.Add(time.Hour) })
	rows, err := dir.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 active customers, got %d", len(rows))
	}
	if rows[0].Customer.ID != agus.ID || rows[1].Customer.ID != bayu.ID || rows[2].Customer.ID != citra.ID {
		t.Fatalf("expected case-insensitive name order, got %s %s %s",
			rows[0].Customer.Name, rows[1].Customer.Name, rows[2].Customer.Name)
	}

	a, b, c := rows[0], rows[1], rows[2]
	if a.Status != StatusNewLoan || a.LoanCountText != "Ke-1" || a.InstallmentText != "5 dari 5 kali" {
		t.Errorf("unexpected row for agus: %+v", a)
	}
	if b.Status != StatusSettled || b.LoanCountText != "-" || b.InstallmentText != "-" || b.LoanDateText != "-" {
		t.Errorf("unexpected row for bayu: %+v", b)
	}
	if c.Status != StatusDue || c.TotalRemaining != 880000 || c.TotalPrincipal != 1000000 || c.InstallmentText != "8 dari 10 kali" {
		t.Errorf("unexpected row for citra: %+v", c)
	}
	if !c.LoanDate.Equal(day0.AddDate(0, 0, -7)) {
		t.Errorf("display date should be the oldest active loan, got %v", c.LoanDate)
	}

	// A payment today turns Citra green.
	f.clock = day0.Add(30 * time.Minute)
	if _, err := f.bk.RecordPayment(ctx, old.ID, 110000, time.Time{}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	rows, _ = dir.List(ctx, ListOptions{Search: "CIT"})
	if len(rows) != 1 || rows[0].Status != StatusPaid {
		t.Fatalf("expected citra paid, got %+v", rows)
	}
}

func TestSortRows(t *testing.T) {
	mk := func(name, addr string, principal int64, date time.Time) CustomerRow {
		return CustomerRow{Customer: core.Customer{Name: name, Address: addr}, TotalPrincipal: principal, LoanDate: date}
	}
	rows := []CustomerRow{
		mk("Budi", "Jl. C", 100, day0),
		mk("ani", "Jl. A", 300, day0.AddDate(0, 0, -2)),
		mk("Cici", "Jl. B", 200, day0.AddDate(0, 0, 1)),
	}

	tests := []struct {
		key   string
		first string
		last  string
	}{
		{"", "ani", "Cici"},
		{SortByAddress, "ani", "Budi"},
		{SortByPrincipalDesc, "ani", "Budi"},
		{SortByLoanDateDesc, "Cici", "ani"},
		{"bogus", "ani", "Cici"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cp := append([]CustomerRow(nil), rows...)
			SortRows(cp, tt.key)
			if cp[0].Customer.Name != tt.first || cp[2].Customer.Name != tt.last {
				t.Errorf("sort %q: got %s..%s", tt.key, cp[0].Customer.Name, cp[2].Customer.Name)
			}
		})
	}
}

func TestLoadCustomerDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, "Siti")
	settled := f.loan(t, c.ID, 100000, 0, 1)
	f.pay(t, settled.ID, 100000)
	active := f.loan(t, c.ID, 200000, 10, 2)
	f.pay(t, active.ID, 20000)

	d, err := LoadCustomerDetail(ctx, f.store, c.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.Customer.Savings != 120000 {
		t.Fatalf("unexpected savings %d", d.Customer.Savings)
	}
	if d.TotalPrincipal != 300000 || d.TotalRemaining != 200000 {
		t.Fatalf("unexpected totals %d/%d", d.TotalPrincipal, d.TotalRemaining)
	}
	if len(d.ActiveLoans) != 1 || d.ActiveLoans[0].ID != active.ID {
		t.Fatalf("unexpected active loans %+v", d.ActiveLoans)
	}
	if len(d.Transactions) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(d.Transactions))
	}
	for i := 1; i < len(d.Transactions); i++ {
		if d.Transactions[i].At.After(d.Transactions[i-1].At) {
			t.Fatalf("history must be newest first")
		}
	}
}
