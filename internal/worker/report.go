package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"koperasi/internal/dashboard"
	"koperasi/internal/ledger"
	"koperasi/internal/notify"
	"koperasi/internal/services"
)

// ReportSender is implemented by *notify.Mailer.
type ReportSender interface {
	SendReport(r notify.Report) error
}

// DailyReporter sends the collection report once a day at a fixed local
// time.
type DailyReporter struct {
	store     ledger.Reader
	directory *services.CustomerDirectory
	sender    ReportSender
	hour, min int
	now       func() time.Time
	logger    *slog.Logger
}

// NewDailyReporter parses at as "HH:MM" in the clock's location.
func NewDailyReporter(store ledger.Reader, sender ReportSender, at string, now func() time.Time, logger *slog.Logger) (*DailyReporter, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("report time %q: %w", at, err)
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyReporter{
		store:     store,
		directory: services.NewCustomerDirectory(store, now),
		sender:    sender,
		hour:      t.Hour(),
		min:       t.Minute(),
		now:       now,
		logger:    logger,
	}, nil
}

// NextRun returns the first report instant strictly after from.
func (r *DailyReporter) NextRun(from time.Time) time.Time {
	y, m, d := from.Date()
	next := time.Date(y, m, d, r.hour, r.min, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// SendNow builds and sends today's report.
func (r *DailyReporter) SendNow(ctx context.Context) error {
	now := r.now()
	rows, err := r.directory.List(ctx, services.ListOptions{Sort: services.SortByAddress})
	if err != nil {
		return err
	}
	txs, err := r.store.FindTransactions(ctx, ledger.AllTransactions())
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	loans, err := r.store.FindLoans(ctx, ledger.AllLoans())
	if err != nil {
		return fmt.Errorf("load loans: %w", err)
	}

	figures := dashboard.Figures{
		CashFigures: dashboard.ComputeCash(txs, now),
		LoanFigures: dashboard.ComputeLoans(loans),
		UpdatedAt:   now,
	}
	report := notify.BuildReport(now, figures, rows)
	if err := r.sender.SendReport(report); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Daily report sent", "due", len(report.Due), "paid", report.Paid)
	return nil
}

// Run sleeps until each scheduled instant and sends the report. Send errors
// are logged; the schedule continues.
func (r *DailyReporter) Run(ctx context.Context) error {
	for {
		next := r.NextRun(r.now())
		r.logger.InfoContext(ctx, "Next daily report scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if err := r.SendNow(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Failed to send daily report", "error", err)
		}
	}
}
