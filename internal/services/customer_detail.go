package services

import (
	"context"
	"fmt"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
)

// CustomerDetail is everything the detail page shows for one customer.
type CustomerDetail struct {
	Customer       core.Customer      `json:"nasabah"`
	Transactions   []core.Transaction `json:"transaksi"`
	Loans          []core.Loan        `json:"pinjaman"`
	ActiveLoans    []core.Loan        `json:"pinjamanAktif"`
	TotalPrincipal int64              `json:"totalPokokPinjaman"`
	TotalRemaining int64              `json:"totalSisaTagihan"`
}

// LoadCustomerDetail reads the profile, history and loans of one customer.
// Total principal covers every loan; remaining covers active loans only.
func LoadCustomerDetail(ctx context.Context, store ledger.Reader, customerID string) (CustomerDetail, error) {
	c, err := store.GetCustomer(ctx, customerID)
	if err != nil {
		return CustomerDetail{}, err
	}
	history, err := store.FindTransactions(ctx, ledger.Query{Collection: ledger.Transactions, CustomerID: customerID})
	if err != nil {
		return CustomerDetail{}, fmt.Errorf("customer history: %w", err)
	}
	loans, err := store.FindLoans(ctx, ledger.LoansOf(customerID))
	if err != nil {
		return CustomerDetail{}, fmt.Errorf("customer loans: %w", err)
	}

	d := CustomerDetail{
		Customer:     c,
		Transactions: history,
		Loans:        loans,
		ActiveLoans:  make([]core.Loan, 0),
	}
	for _, l := range loans {
		d.TotalPrincipal += l.Principal
		if l.Status == core.LoanActive {
			d.TotalRemaining += l.Remaining
			d.ActiveLoans = append(d.ActiveLoans, l)
		}
	}
	return d, nil
}
