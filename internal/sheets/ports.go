// Package sheets mirrors the ledger into a spreadsheet for the cooperative's
// bookkeeper. The mirror is write-only and rebuilt tab by tab.
package sheets

import "context"

// Tab names of the mirror spreadsheet.
const (
	CustomersTab    = "Nasabah"
	LoansTab        = "Pinjaman"
	TransactionsTab = "Transaksi"
	SummaryTab      = "Ringkasan"
)

// Table is a header row plus data rows, already rendered as cell text.
type Table struct {
	Header []string
	Rows   [][]string
}

// Ports for outbound adapters.
type (
	// TabWriter replaces the whole content of a tab.
	TabWriter interface {
		ReplaceTab(ctx context.Context, tab string, t Table) error
	}
)
