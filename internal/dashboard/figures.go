// Package dashboard derives the cooperative's headline figures from the
// ledger and keeps them current through live subscriptions.
package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"koperasi/internal/core"
)

// CashFigures are derived from the transactions collection alone.
type CashFigures struct {
	Deposits      int64   `json:"totalDeposito"`
	Installments  int64   `json:"totalAngsuran"`
	Disbursed     int64   `json:"totalPinjaman"`
	Operational   int64   `json:"totalOperasional"`
	Withdrawals   int64   `json:"totalPencairan"`
	CashOnHand    int64   `json:"kasTersedia"`
	Profit        int64   `json:"keuntungan"`
	ProfitPercent float64 `json:"persenKeuntungan"`
	IncomeToday   int64   `json:"pemasukanHariIni"`
	IncomeMonth   int64   `json:"pemasukanBulanIni"`
}

// LoanFigures are derived from the loans collection alone.
type LoanFigures struct {
	ActiveExposure  int64 `json:"pinjamanAktif"`
	DailyTarget     int64 `json:"targetHarian"`
	ActiveCustomers int   `json:"nasabahAktif"`
	ActiveLoans     int   `json:"jumlahPinjamanAktif"`
}

type Figures struct {
	CashFigures
	LoanFigures
	UpdatedAt time.Time `json:"diperbarui"`
}

// ComputeCash sums every transaction. Withdrawals are reported but do not
// move cash on hand. Income is the installments collected on now's day and
// month.
func ComputeCash(txs []core.Transaction, now time.Time) CashFigures {
	var f CashFigures
	dayStart, dayEnd := core.DayBounds(now)
	monthStart, monthEnd := core.MonthBounds(now)

	for _, t := range txs {
		switch t.Type {
		case core.TypeDeposit:
			f.Deposits += t.Amount
		case core.TypeInstallment:
			f.Installments += t.Amount
			at := t.At.In(now.Location())
			if !at.Before(dayStart) && at.Before(dayEnd) {
				f.IncomeToday += t.Amount
			}
			if !at.Before(monthStart) && at.Before(monthEnd) {
				f.IncomeMonth += t.Amount
			}
		case core.TypeNewLoan:
			f.Disbursed += t.Amount
		case core.TypeOperational:
			f.Operational += t.Amount
		case core.TypeWithdrawal:
			f.Withdrawals += t.Amount
		}
		f.CashOnHand += t.CashEffect()
	}

	f.Profit = f.CashOnHand - f.Deposits
	f.ProfitPercent = ProfitPercent(f.Profit, f.Deposits)
	return f
}

// ProfitPercent is profit / deposits × 100 rounded to one decimal, or 0 when
// nothing was deposited.
func ProfitPercent(profit, deposits int64) float64 {
	if deposits == 0 {
		return 0
	}
	return decimal.NewFromInt(profit).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(deposits)).
		Round(1).
		InexactFloat64()
}

// ComputeLoans sums the active loans. The daily target adds the unrounded
// per-installment amounts and rounds once at the end.
func ComputeLoans(loans []core.Loan) LoanFigures {
	var f LoanFigures
	target := decimal.Zero
	customers := make(map[string]struct{})

	for _, l := range loans {
		if l.Status != core.LoanActive {
			continue
		}
		f.ActiveLoans++
		f.ActiveExposure += l.Remaining
		target = target.Add(l.InstallmentTarget())
		customers[l.CustomerID] = struct{}{}
	}

	f.DailyTarget = target.Round(0).IntPart()
	f.ActiveCustomers = len(customers)
	return f
}
