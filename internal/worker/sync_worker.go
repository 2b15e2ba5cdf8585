// Package worker runs the background side of the cooperative: it mirrors the
// ledger into the spreadsheet whenever a change is announced and sends the
// daily collection report.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"koperasi/internal/amqp"
	"koperasi/internal/core"
	"koperasi/internal/dashboard"
	"koperasi/internal/ledger"
	"koperasi/internal/sheets"
)

// SyncWorker rebuilds spreadsheet tabs from the ledger. Each sync rewrites
// whole tabs from current state, so replays and missed messages are harmless.
type SyncWorker struct {
	store  ledger.Reader
	sheets sheets.TabWriter
	now    func() time.Time
	logger *slog.Logger
}

func NewSyncWorker(store ledger.Reader, tabs sheets.TabWriter, now func() time.Time, logger *slog.Logger) *SyncWorker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{store: store, sheets: tabs, now: now, logger: logger}
}

type tabSet struct {
	customers, loans, transactions, summary bool
}

func (s tabSet) any() bool { return s.customers || s.loans || s.transactions || s.summary }

func allTabs() tabSet { return tabSet{true, true, true, true} }

// tabsFor maps changed collections to the tabs that render them. Customer
// names appear on the loan and transaction tabs too.
func tabsFor(msg *amqp.LedgerChangedMessage) tabSet {
	var s tabSet
	if msg.Touches(string(ledger.Customers)) {
		s.customers, s.loans, s.transactions = true, true, true
	}
	if msg.Touches(string(ledger.Loans)) {
		s.loans, s.summary = true, true
	}
	if msg.Touches(string(ledger.Transactions)) {
		s.transactions, s.summary = true, true
	}
	return s
}

// HandleLedgerChanged refreshes the tabs affected by one committed batch.
func (w *SyncWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	tabs := tabsFor(msg)
	if !tabs.any() {
		w.logger.WarnContext(ctx, "Ledger change without known collections", "collections", msg.Collections)
		return nil
	}
	w.logger.InfoContext(ctx, "Processing ledger change",
		"collections", msg.Collections,
		"documents", len(msg.DocumentIDs),
		"operation", msg.Operation)
	return w.sync(ctx, tabs)
}

// SyncAll rewrites every tab. Run at startup and periodically to catch up on
// messages lost while the worker was down.
func (w *SyncWorker) SyncAll(ctx context.Context) error {
	return w.sync(ctx, allTabs())
}

func (w *SyncWorker) sync(ctx context.Context, tabs tabSet) error {
	var (
		customers []core.Customer
		loans     []core.Loan
		txs       []core.Transaction
	)

	load, lctx := errgroup.WithContext(ctx)
	needNames := tabs.customers || tabs.loans || tabs.transactions
	if needNames {
		load.Go(func() (err error) {
			customers, err = w.store.FindCustomers(lctx, ledger.AllCustomers())
			return err
		})
	}
	if tabs.loans || tabs.summary {
		load.Go(func() (err error) {
			loans, err = w.store.FindLoans(lctx, ledger.AllLoans())
			return err
		})
	}
	if tabs.transactions || tabs.summary {
		load.Go(func() (err error) {
			txs, err = w.store.FindTransactions(lctx, ledger.AllTransactions())
			return err
		})
	}
	if err := load.Wait(); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}

	write, wctx := errgroup.WithContext(ctx)
	put := func(tab string, t sheets.Table) {
		write.Go(func() error {
			if err := w.sheets.ReplaceTab(wctx, tab, t); err != nil {
				return fmt.Errorf("tab %s: %w", tab, err)
			}
			return nil
		})
	}
	if tabs.customers {
		put(sheets.CustomersTab, sheets.CustomerTable(customers))
	}
	if tabs.loans {
		put(sheets.LoansTab, sheets.LoanTable(loans, names))
	}
	if tabs.transactions {
		put(sheets.TransactionsTab, sheets.TransactionTable(txs, names))
	}
	if tabs.summary {
		put(sheets.SummaryTab, w.summary(txs, loans))
	}
	if err := write.Wait(); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Spreadsheet mirror updated",
		"customers", len(customers),
		"loans", len(loans),
		"transactions", len(txs))
	return nil
}

func (w *SyncWorker) summary(txs []core.Transaction, loans []core.Loan) sheets.Table {
	now := w.now()
	cash := dashboard.ComputeCash(txs, now)
	book := dashboard.ComputeLoans(loans)
	return sheets.SummaryTable([][2]string{
		{"Diperbarui", now.Format("2006-01-02 15:04")},
		{"Kas Tersedia", strconv.FormatInt(cash.CashOnHand, 10)},
		{"Total Deposito", strconv.FormatInt(cash.Deposits, 10)},
		{"Total Angsuran", strconv.FormatInt(cash.Installments, 10)},
		{"Total Pinjaman", strconv.FormatInt(cash.Disbursed, 10)},
		{"Total Operasional", strconv.FormatInt(cash.Operational, 10)},
		{"Total Pencairan", strconv.FormatInt(cash.Withdrawals, 10)},
		{"Keuntungan", strconv.FormatInt(cash.Profit, 10)},
		{"Persen Keuntungan", strconv.FormatFloat(cash.ProfitPercent, 'f', 1, 64)},
		{"Pinjaman Aktif", strconv.FormatInt(book.ActiveExposure, 10)},
		{"Target Harian", strconv.FormatInt(book.DailyTarget, 10)},
		{"Nasabah Aktif", strconv.Itoa(book.ActiveCustomers)},
	})
}

// PeriodicSync runs SyncAll every interval until ctx is done.
func (w *SyncWorker) PeriodicSync(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.SyncAll(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic sync failed", "error", err)
			}
		}
	}
}
