package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"koperasi/internal/amqp"
	"koperasi/internal/core"
	"koperasi/internal/ledger/memory"
	"koperasi/internal/services"
	"koperasi/internal/sheets"
	sheetsmem "koperasi/internal/sheets/memory"
)

var day0 = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

func seedLedger(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New(nil)
	t.Cleanup(func() { store.Close() })

	clock := day0
	seq := 0
	bk := services.NewBookkeeper(store,
		services.WithClock(func() time.Time { return clock }),
		services.WithIDs(func() string { seq++; return fmt.Sprintf("id-%03d", seq) }),
	)
	ctx := context.Background()

	c, err := bk.CreateCustomer(ctx, core.CustomerProfile{Name: "Siti", Address: "Jl. Kenanga 2"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	l, err := bk.CreateLoan(ctx, c.ID, core.LoanTerms{Principal: 1000000, RatePercent: 10, Installments: 10, LoanDate: clock})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	clock = clock.Add(time.Hour)
	if _, err := bk.RecordPayment(ctx, l.ID, 110000, time.Time{}); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if _, err := bk.RecordDeposit(ctx, 2000000, "Modal awal", day0.Add(-time.Hour)); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	return store
}

func TestSyncAllWritesEveryTab(t *testing.T) {
	store := seedLedger(t)
	tabs := sheetsmem.New()
	w := NewSyncWorker(store, tabs, func() time.Time { return day0.Add(2 * time.Hour) }, nil)

	if err := w.SyncAll(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	tests := []struct {
		tab  string
		rows int
	}{
		{sheets.CustomersTab, 1},
		{sheets.LoansTab, 1},
		{sheets.TransactionsTab, 3},
		{sheets.SummaryTab, 12},
	}
	for _, tt := range tests {
		got, ok := tabs.Tab(tt.tab)
		if !ok {
			t.Fatalf("tab %s not written", tt.tab)
		}
		if len(got.Rows) != tt.rows {
			t.Errorf("tab %s: expected %d rows, got %d", tt.tab, tt.rows, len(got.Rows))
		}
	}

	loans, _ := tabs.Tab(sheets.LoansTab)
	if loans.Rows[0][1] != "Siti" {
		t.Errorf("loan row should carry customer name, got %q", loans.Rows[0][1])
	}

	summary, _ := tabs.Tab(sheets.SummaryTab)
	values := make(map[string]string)
	for _, r := range summary.Rows {
		values[r[0]] = r[1]
	}
	// 2.000.000 deposit - 1.000.000 disbursed + 110.000 installment
	if values["Kas Tersedia"] != "1110000" {
		t.Errorf("unexpected cash on hand %q", values["Kas Tersedia"])
	}
	if values["Pinjaman Aktif"] != "990000" {
		t.Errorf("unexpected active exposure %q", values["Pinjaman Aktif"])
	}
}

func TestHandleLedgerChangedSelectsTabs(t *testing.T) {
	store := seedLedger(t)

	tests := []struct {
		name        string
		collections []string
		want        []string
	}{
		{"transactions", []string{"transactions"}, []string{sheets.TransactionsTab, sheets.SummaryTab}},
		{"loans", []string{"loans"}, []string{sheets.LoansTab, sheets.SummaryTab}},
		{"customers", []string{"customers"}, []string{sheets.CustomersTab, sheets.LoansTab, sheets.TransactionsTab}},
		{"unknown", []string{"expenses"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tabs := sheetsmem.New()
			w := NewSyncWorker(store, tabs, func() time.Time { return day0 }, nil)

			msg := amqp.NewLedgerChangedMessage(tt.collections, []string{"id-001"}, "update")
			if err := w.HandleLedgerChanged(context.Background(), msg); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if tabs.Writes() != len(tt.want) {
				t.Fatalf("expected %d writes, got %d", len(tt.want), tabs.Writes())
			}
			for _, name := range tt.want {
				if _, ok := tabs.Tab(name); !ok {
					t.Errorf("tab %s not written", name)
				}
			}
		})
	}
}

type failingTabs struct{}

func (failingTabs) ReplaceTab(context.Context, string, sheets.Table) error {
	return errors.New("quota exceeded")
}

func TestSyncAllReportsWriteFailure(t *testing.T) {
	store := seedLedger(t)
	w := NewSyncWorker(store, failingTabs{}, nil, nil)
	if err := w.SyncAll(context.Background()); err == nil {
		t.Fatalf("expected error from failing tab writer")
	}
}
