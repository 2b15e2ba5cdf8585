package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
)

const (
	SortByName          = "nama"
	SortByAddress       = "alamat-asc"
	SortByPrincipalDesc = "pinjaman-desc"
	SortByLoanDateDesc  = "tanggal-desc"
)

// ListOptions filter and order the customer list.
type ListOptions struct {
	Search string
	Sort   string
}

// CustomerRow is one line of the customer list.
type CustomerRow struct {
	Customer        core.Customer    `json:"nasabah"`
	Status          CollectionStatus `json:"statusPembayaran"`
	LoanCountText   string           `json:"pinjamanKe"`
	LoanDate        time.Time        `json:"tanggalPinjam"`
	LoanDateText    string           `json:"tanggalPinjamTeks"`
	TotalPrincipal  int64            `json:"totalPokokPinjaman"`
	TotalRemaining  int64            `json:"totalSisaTagihan"`
	InstallmentText string           `json:"angsuran"`
}

// CustomerDirectory builds the customer list from the ledger. Every call
// reads fresh state, so statuses are never stale.
type CustomerDirectory struct {
	store ledger.Reader
	now   func() time.Time
}

func NewCustomerDirectory(store ledger.Reader, now func() time.Time) *CustomerDirectory {
	if now == nil {
		now = time.Now
	}
	return &CustomerDirectory{store: store, now: now}
}

func (d *CustomerDirectory) List(ctx context.Context, opts ListOptions) ([]CustomerRow, error) {
	customers, err := d.store.FindCustomers(ctx, ledger.ActiveCustomers())
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	loans, err := d.store.FindLoans(ctx, ledger.AllLoans())
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	installments, err := d.store.FindTransactions(ctx, ledger.Query{
		Collection: ledger.Transactions,
		Type:       core.TypeInstallment,
	})
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}

	loansBy := make(map[string][]core.Loan)
	for _, l := range loans {
		loansBy[l.CustomerID] = append(loansBy[l.CustomerID], l)
	}
	paymentsBy := make(map[string][]core.Transaction)
	for _, t := range installments {
		paymentsBy[t.CustomerID] = append(paymentsBy[t.CustomerID], t)
	}

	now := d.now()
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	rows := make([]CustomerRow, 0, len(customers))
	for _, c := range customers {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) {
			continue
		}
		rows = append(rows, buildRow(c, loansBy[c.ID], paymentsBy[c.ID], now))
	}

	SortRows(rows, opts.Sort)
	return rows, nil
}

func buildRow(c core.Customer, loans []core.Loan, payments []core.Transaction, now time.Time) CustomerRow {
	row := CustomerRow{Customer: c, LoanCountText: "-", InstallmentText: "-"}
	if len(loans) > 0 {
		row.LoanCountText = fmt.Sprintf("Ke-%d", len(loans))
	}

	in := CollectionInput{Installments: payments, Now: now}
	activeIDs := make(map[string]bool)
	totalInstallments := 0
	for _, l := range loans {
		if l.Status != core.LoanActive {
			continue
		}
		in.ActiveLoans = append(in.ActiveLoans, l)
		activeIDs[l.ID] = true
		row.TotalPrincipal += l.Principal
		row.TotalRemaining += l.Remaining
		totalInstallments += l.Installments
	}
	if oldest, ok := in.OldestActiveLoan(); ok {
		row.LoanDate = oldest.LoanDate
	}
	row.LoanDateText = core.FormatDate(row.LoanDate)
	row.Status = Classify(in)

	if totalInstallments > 0 {
		paid := 0
		for _, p := range payments {
			if activeIDs[p.LoanID] {
				paid++
			}
		}
		row.InstallmentText = fmt.Sprintf("%d dari %d kali", totalInstallments-paid, totalInstallments)
	}
	return row
}

// SortRows orders rows in place. Unknown keys fall back to name order.
func SortRows(rows []CustomerRow, key string) {
	var less func(a, b CustomerRow) bool
	switch key {
	case SortByAddress:
		less = func(a, b CustomerRow) bool {
			return strings.ToLower(a.Customer.Address) < strings.ToLower(b.Customer.Address)
		}
	case SortByPrincipalDesc:
		less = func(a, b CustomerRow) bool { return a.TotalPrincipal > b.TotalPrincipal }
	case SortByLoanDateDesc:
		less = func(a, b CustomerRow) bool { return a.LoanDate.After(b.LoanDate) }
	default:
		less = func(a, b CustomerRow) bool {
			return strings.ToLower(a.Customer.Name) < strings.ToLower(b.Customer.Name)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}
