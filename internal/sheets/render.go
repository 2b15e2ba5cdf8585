package sheets

import (
	"strconv"
	"time"

	"koperasi/internal/core"
)

// CustomerTable renders customers in the order given.
func CustomerTable(customers []core.Customer) Table {
	t := Table{Header: []string{"ID", "Nama", "Telepon", "Alamat", "Status", "Tabungan", "Dibuat Pada"}}
	for _, c := range customers {
		t.Rows = append(t.Rows, []string{
			c.ID,
			c.Name,
			c.Phone,
			c.Address,
			string(c.Status),
			strconv.FormatInt(c.Savings, 10),
			cellDate(c.CreatedAt),
		})
	}
	return t
}

// LoanTable resolves customer names through names; unknown ids render empty.
func LoanTable(loans []core.Loan, names map[string]string) Table {
	t := Table{Header: []string{
		"ID", "Nasabah", "Tanggal Pinjam", "Pokok", "Bunga %", "Bunga",
		"Total Tagihan", "Sisa Tagihan", "Angsuran", "Status",
	}}
	for _, l := range loans {
		t.Rows = append(t.Rows, []string{
			l.ID,
			names[l.CustomerID],
			cellDate(l.LoanDate),
			strconv.FormatInt(l.Principal, 10),
			strconv.FormatFloat(l.RatePercent, 'f', -1, 64),
			strconv.FormatInt(l.Interest, 10),
			strconv.FormatInt(l.TotalDue, 10),
			strconv.FormatInt(l.Remaining, 10),
			strconv.Itoa(l.Installments),
			string(l.Status),
		})
	}
	return t
}

func TransactionTable(txs []core.Transaction, names map[string]string) Table {
	t := Table{Header: []string{"ID", "Tanggal", "Tipe", "Nasabah", "Pinjaman", "Jumlah", "Keterangan"}}
	for _, tr := range txs {
		t.Rows = append(t.Rows, []string{
			tr.ID,
			cellDate(tr.At),
			string(tr.Type),
			names[tr.CustomerID],
			tr.LoanID,
			strconv.FormatInt(tr.Amount, 10),
			tr.Description,
		})
	}
	return t
}

// SummaryTable renders label/value pairs in order.
func SummaryTable(pairs [][2]string) Table {
	t := Table{Header: []string{"Keterangan", "Nilai"}}
	for _, p := range pairs {
		t.Rows = append(t.Rows, []string{p[0], p[1]})
	}
	return t
}

func cellDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
