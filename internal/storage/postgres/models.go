package postgres

import (
	"time"

	"koperasi/internal/core"
)

type customerRow struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	Nama       string    `gorm:"type:varchar(120);not null"`
	Telepon    string    `gorm:"type:varchar(40);not null;default:''"`
	Alamat     string    `gorm:"type:varchar(250);not null;default:''"`
	Status     string    `gorm:"type:varchar(16);not null;index"`
	Tabungan   int64     `gorm:"not null;default:0;check:tabungan >= 0"`
	DibuatPada time.Time `gorm:"not null"`
	Versi      int64     `gorm:"not null;default:1"`
}

func (customerRow) TableName() string { return "customers" }

type loanRow struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)"`
	CustomerID     string    `gorm:"type:varchar(64);not null;index"`
	PokokPinjaman  int64     `gorm:"not null"`
	BungaPersen    float64   `gorm:"not null;default:0"`
	Bunga          int64     `gorm:"not null;default:0"`
	TotalTagihan   int64     `gorm:"not null"`
	SisaTagihan    int64     `gorm:"not null"`
	JumlahAngsuran int       `gorm:"not null"`
	Status         string    `gorm:"type:varchar(16);not null;index"`
	TanggalPinjam  time.Time `gorm:"not null"`
	Versi          int64     `gorm:"not null;default:1"`
}

func (loanRow) TableName() string { return "loans" }

type transactionRow struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)"`
	CustomerID       string    `gorm:"type:varchar(64);not null;default:'';index"`
	LoanID           string    `gorm:"type:varchar(64);not null;default:'';index"`
	Tipe             string    `gorm:"type:varchar(32);not null"`
	Jumlah           int64     `gorm:"not null"`
	Keterangan       string    `gorm:"type:text;not null;default:''"`
	TanggalTransaksi time.Time `gorm:"not null;index"`
	KreditTabungan   bool      `gorm:"not null;default:false"`
	AngsuranKe       int       `gorm:"not null;default:0"`
	Versi            int64     `gorm:"not null;default:1"`
}

func (transactionRow) TableName() string { return "transactions" }

func customerFromCore(c core.Customer) *customerRow {
	return &customerRow{
		ID:         c.ID,
		Nama:       c.Name,
		Telepon:    c.Phone,
		Alamat:     c.Address,
		Status:     string(c.Status),
		Tabungan:   c.Savings,
		DibuatPada: c.CreatedAt,
		Versi:      c.Version,
	}
}

func (r customerRow) toCore() core.Customer {
	return core.Customer{
		ID:        r.ID,
		Name:      r.Nama,
		Phone:     r.Telepon,
		Address:   r.Alamat,
		Status:    core.CustomerStatus(r.Status),
		Savings:   r.Tabungan,
		CreatedAt: r.DibuatPada.UTC(),
		Version:   r.Versi,
	}
}

func loanFromCore(l core.Loan) *loanRow {
	return &loanRow{
		ID:             l.ID,
		CustomerID:     l.CustomerID,
		PokokPinjaman:  l.Principal,
		BungaPersen:    l.RatePercent,
		Bunga:          l.Interest,
		TotalTagihan:   l.TotalDue,
		SisaTagihan:    l.Remaining,
		JumlahAngsuran: l.Installments,
		Status:         string(l.Status),
		TanggalPinjam:  l.LoanDate,
		Versi:          l.Version,
	}
}

func (r loanRow) toCore() core.Loan {
	return core.Loan{
		ID:           r.ID,
		CustomerID:   r.CustomerID,
		Principal:    r.PokokPinjaman,
		RatePercent:  r.BungaPersen,
		Interest:     r.Bunga,
		TotalDue:     r.TotalTagihan,
		Remaining:    r.SisaTagihan,
		Installments: r.JumlahAngsuran,
		Status:       core.LoanStatus(r.Status),
		LoanDate:     r.TanggalPinjam.UTC(),
		Version:      r.Versi,
	}
}

func transactionFromCore(t core.Transaction) *transactionRow {
	return &transactionRow{
		ID:               t.ID,
		CustomerID:       t.CustomerID,
		LoanID:           t.LoanID,
		Tipe:             string(t.Type),
		Jumlah:           t.Amount,
		Keterangan:       t.Description,
		TanggalTransaksi: t.At,
		KreditTabungan:   t.SavingsCredit,
		AngsuranKe:       t.InstallmentNo,
		Versi:            t.Version,
	}
}

func (r transactionRow) toCore() core.Transaction {
	return core.Transaction{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		LoanID:        r.LoanID,
		Type:          core.TransactionType(r.Tipe),
		Amount:        r.Jumlah,
		Description:   r.Keterangan,
		At:            r.TanggalTransaksi.UTC(),
		SavingsCredit: r.KreditTabungan,
		InstallmentNo: r.AngsuranKe,
		Version:       r.Versi,
	}
}
