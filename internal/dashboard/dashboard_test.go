package dashboard

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
	"koperasi/internal/ledger/memory"
)

var now = time.Date(2025, 8, 5, 15, 0, 0, 0, time.UTC)

func sampleTransactions() []core.Transaction {
	return []core.Transaction{
		{ID: "1", Type: core.TypeDeposit, Amount: 5000000, At: now.AddDate(0, -1, 0)},
		{ID: "2", Type: core.TypeNewLoan, Amount: 1000000, At: now.AddDate(0, 0, -10)},
		{ID: "3", Type: core.TypeInstallment, Amount: 110000, At: now.AddDate(0, 0, -3)},
		{ID: "4", Type: core.TypeInstallment, Amount: 110000, At: now.Add(-time.Hour)},
		{ID: "5", Type: core.TypeOperational, Amount: 25000, At: now.AddDate(0, 0, -2)},
		{ID: "6", Type: core.TypeWithdrawal, Amount: 110000, At: now.AddDate(0, 0, -1)},
		{ID: "7", Type: core.TypeInstallment, Amount: 90000, At: now.AddDate(0, -1, 0)},
	}
}

func TestComputeCash(t *testing.T) {
	f := ComputeCash(sampleTransactions(), now)

	want := CashFigures{
		Deposits:     5000000,
		Installments: 310000,
		Disbursed:    1000000,
		Operational:  25000,
		Withdrawals:  110000,
		CashOnHand:   5000000 + 310000 - 1000000 - 25000,
		IncomeToday:  110000,
		IncomeMonth:  220000,
	}
	want.Profit = want.CashOnHand - want.Deposits
	want.ProfitPercent = -14.3

	if f != want {
		t.Fatalf("ComputeCash() = %+v, want %+v", f, want)
	}
}

func TestComputeCashIsOrderIndependent(t *testing.T) {
	txs := sampleTransactions()
	want := ComputeCash(txs, now)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]core.Transaction(nil), txs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := ComputeCash(shuffled, now); got != want {
			t.Fatalf("permutation %d changed the figures: %+v", i, got)
		}
	}
}

func TestProfitPercent(t *testing.T) {
	tests := []struct {
		profit, deposits int64
		want             float64
	}{
		{0, 0, 0},
		{500, 0, 0},
		{100, 1000, 10},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{-1, 3, -33.3},
	}
	for _, tt := range tests {
		if got := ProfitPercent(tt.profit, tt.deposits); got != tt.want {
			t.Errorf("ProfitPercent(%d, %d) = %v, want %v", tt.profit, tt.deposits, got, tt.want)
		}
	}
}

func TestComputeLoans(t *testing.T) {
	loans := []core.Loan{
		{ID: "L1", CustomerID: "C1", TotalDue: 1100000, Remaining: 880000, Installments: 10, Status: core.LoanActive},
		{ID: "L2", CustomerID: "C1", TotalDue: 100, Remaining: 100, Installments: 3, Status: core.LoanActive},
		{ID: "L3", CustomerID: "C2", TotalDue: 100, Remaining: 100, Installments: 3, Status: core.LoanActive},
		{ID: "L4", CustomerID: "C3", TotalDue: 500000, Remaining: 0, Installments: 5, Status: core.LoanSettled},
	}
	f := ComputeLoans(loans)

	// 110000 + 33.33 + 33.33 rounds to 110067.
	want := LoanFigures{ActiveExposure: 880200, DailyTarget: 110067, ActiveCustomers: 2, ActiveLoans: 3}
	if f != want {
		t.Fatalf("ComputeLoans() = %+v, want %+v", f, want)
	}
}

func waitFor(t *testing.T, ch <-chan Figures, ok func(Figures) bool) Figures {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-ch:
			if ok(f) {
				return f
			}
		case <-timeout:
			t.Fatalf("timed out waiting for figures")
		}
	}
}

func TestAggregatorFollowsLedger(t *testing.T) {
	store := memory.New(nil)
	defer store.Close()
	ctx := context.Background()

	agg := NewAggregator(store, func() time.Time { return now }, nil)
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	ch, stop := agg.Watch()
	defer stop()

	loan := core.NewLoan("L1", "C1", core.LoanTerms{Principal: 1000000, RatePercent: 10, Installments: 10, LoanDate: now})
	b := ledger.NewBatch().
		CreateCustomer(core.Customer{ID: "C1", Name: "Siti", Status: core.CustomerActive, CreatedAt: now}).
		CreateLoan(loan).
		CreateTransaction(core.Transaction{ID: "T0", Type: core.TypeDeposit, Amount: 2000000, At: now}).
		CreateTransaction(core.Transaction{ID: "T1", CustomerID: "C1", LoanID: "L1", Type: core.TypeNewLoan, Amount: 1000000, At: now})
	if err := store.Commit(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	f := waitFor(t, ch, func(f Figures) bool { return f.CashOnHand == 1000000 && f.ActiveLoans == 1 })
	if f.DailyTarget != 110000 || f.ActiveExposure != 1100000 || f.ActiveCustomers != 1 || f.Profit != -1000000 {
		t.Fatalf("unexpected figures %+v", f)
	}

	got, ready := agg.Figures()
	if !ready || got.CashOnHand != 1000000 {
		t.Fatalf("Figures() = %+v ready=%v", got, ready)
	}

	agg.Close()
	if n := store.Subscriptions(); n != 0 {
		t.Fatalf("expected aggregator to detach, %d subscriptions left", n)
	}
}

func TestWatchKeepsOnlyNewest(t *testing.T) {
	agg := NewAggregator(memory.New(nil), func() time.Time { return now }, nil)
	ch, stop := agg.Watch()
	defer stop()

	for i := int64(1); i <= 3; i++ {
		v := i
		agg.publish(func(f *Figures) { f.Deposits = v })
	}
	if f := <-ch; f.Deposits != 3 {
		t.Fatalf("expected newest figures, got %+v", f)
	}
	select {
	case f := <-ch:
		t.Fatalf("unexpected extra figures %+v", f)
	default:
	}

	stop()
	agg.publish(func(f *Figures) { f.Deposits = 4 })
	select {
	case <-ch:
		t.Fatalf("detached watcher received figures")
	default:
	}
}
