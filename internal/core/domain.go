package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CustomerActive  CustomerStatus = "Aktif"
	CustomerDeleted CustomerStatus = "Dihapus"

	LoanActive  LoanStatus = "Aktif"
	LoanSettled LoanStatus = "Lunas"

	TypeDeposit     TransactionType = "Deposito"
	TypeNewLoan     TransactionType = "Pinjaman Baru"
	TypeInstallment TransactionType = "Angsuran"
	TypeOperational TransactionType = "Operasional"
	TypeWithdrawal  TransactionType = "Pencairan Tabungan"
)

type (
	CustomerStatus  string
	LoanStatus      string
	TransactionType string

	// Customer, Loan and Transaction carry a Version maintained by the ledger
	// store: 1 on create, bumped on each update. It is not part of the wire
	// format.
	Customer struct {
		ID        string         `json:"id"`
		Name      string         `json:"nama"`
		Phone     string         `json:"telepon"`
		Address   string         `json:"alamat"`
		Status    CustomerStatus `json:"status"`
		Savings   int64          `json:"tabungan"`
		CreatedAt time.Time      `json:"dibuatPada"`
		Version   int64          `json:"-"`
	}

	Loan struct {
		ID           string     `json:"id"`
		CustomerID   string     `json:"customerId"`
		Principal    int64      `json:"pokokPinjaman"`
		RatePercent  float64    `json:"bungaPersen"`
		Interest     int64      `json:"bunga"`
		TotalDue     int64      `json:"totalTagihan"`
		Remaining    int64      `json:"sisaTagihan"`
		Installments int        `json:"jumlahAngsuran"`
		Status       LoanStatus `json:"status"`
		LoanDate     time.Time  `json:"tanggalPinjam"`
		Version      int64      `json:"-"`
	}

	// Transaction is one entry of the audit trail. SavingsCredit marks the
	// installment whose amount was also credited to the customer's savings.
	Transaction struct {
		ID            string          `json:"id"`
		CustomerID    string          `json:"customerId,omitempty"`
		LoanID        string          `json:"loanId,omitempty"`
		Type          TransactionType `json:"tipe"`
		Amount        int64           `json:"jumlah"`
		Description   string          `json:"keterangan"`
		At            time.Time       `json:"tanggalTransaksi"`
		SavingsCredit bool            `json:"kreditTabungan,omitempty"`
		InstallmentNo int             `json:"angsuranKe,omitempty"`
		Version       int64           `json:"-"`
	}

	// LoanTerms are the staff-entered inputs a loan is computed from.
	LoanTerms struct {
		Principal    int64
		RatePercent  float64
		Installments int
		LoanDate     time.Time
	}

	CustomerProfile struct {
		Name    string
		Phone   string
		Address string
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidRate         = errors.New("invalid interest rate")
	ErrInvalidInstallments = errors.New("invalid installment count")
	ErrEmptyName           = errors.New("empty customer name")
	ErrMissingDate         = errors.New("date cannot be zero")
	ErrUnknownType         = errors.New("unknown transaction type")
)

// ValidationError wraps a rule violation detected before any write.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StatusFor derives the loan status from its remaining balance.
func StatusFor(remaining int64) LoanStatus {
	if remaining <= 0 {
		return LoanSettled
	}
	return LoanActive
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeNewLoan, TypeInstallment, TypeOperational, TypeWithdrawal:
		return true
	}
	return false
}

// CashEffect returns the signed contribution of a transaction to cash on hand.
// Withdrawals are tracked separately and do not move the cash figure; kas
// tersedia is defined as deposits plus installments minus loans and
// operational costs, so leave savings payouts out of it.
func (t Transaction) CashEffect() int64 {
	switch t.Type {
	case TypeDeposit, TypeInstallment:
		return t.Amount
	case TypeNewLoan, TypeOperational:
		return -t.Amount
	}
	return 0
}

func (t LoanTerms) Validate() error {
	if t.Principal <= 0 {
		return invalid("pokokPinjaman", ErrInvalidAmount)
	}
	if t.RatePercent < 0 {
		return invalid("bungaPersen", ErrInvalidRate)
	}
	if t.Installments <= 0 {
		return invalid("jumlahAngsuran", ErrInvalidInstallments)
	}
	if t.LoanDate.IsZero() {
		return invalid("tanggalPinjam", ErrMissingDate)
	}
	return nil
}

func (p CustomerProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("nama", ErrEmptyName)
	}
	if len(p.Name) > 120 {
		return invalid("nama", errors.New("name too long (max 120 characters)"))
	}
	if len(p.Address) > 250 {
		return invalid("alamat", errors.New("address too long (max 250 characters)"))
	}
	return nil
}

// ValidateAmount rejects non-positive amounts.
func ValidateAmount(field string, amount int64) error {
	if amount <= 0 {
		return invalid(field, ErrInvalidAmount)
	}
	return nil
}

// ValidateDate rejects zero instants.
func ValidateDate(field string, at time.Time) error {
	if at.IsZero() {
		return invalid(field, ErrMissingDate)
	}
	return nil
}
