package ledger

import (
	"time"

	"koperasi/internal/core"
)

// Query selects documents of one collection. Zero-valued fields do not filter.
//
// Field applicability:
//   - customers: Status
//   - loans: CustomerID, Status
//   - transactions: CustomerID, LoanID, Type, From (inclusive), Until (exclusive)
type Query struct {
	Collection Collection
	CustomerID string
	LoanID     string
	Status     string
	Type       core.TransactionType
	From       time.Time
	Until      time.Time
}

func AllCustomers() Query    { return Query{Collection: Customers} }
func AllLoans() Query        { return Query{Collection: Loans} }
func AllTransactions() Query { return Query{Collection: Transactions} }

func ActiveCustomers() Query {
	return Query{Collection: Customers, Status: string(core.CustomerActive)}
}

func LoansOf(customerID string) Query {
	return Query{Collection: Loans, CustomerID: customerID}
}

func InstallmentsOf(loanID string) Query {
	return Query{Collection: Transactions, LoanID: loanID, Type: core.TypeInstallment}
}

func (q Query) MatchCustomer(c core.Customer) bool {
	return q.Status == "" || string(c.Status) == q.Status
}

func (q Query) MatchLoan(l core.Loan) bool {
	if q.CustomerID != "" && l.CustomerID != q.CustomerID {
		return false
	}
	return q.Status == "" || string(l.Status) == q.Status
}

func (q Query) MatchTransaction(t core.Transaction) bool {
	if q.CustomerID != "" && t.CustomerID != q.CustomerID {
		return false
	}
	if q.LoanID != "" && t.LoanID != q.LoanID {
		return false
	}
	if q.Type != "" && t.Type != q.Type {
		return false
	}
	if !q.From.IsZero() && t.At.Before(q.From) {
		return false
	}
	if !q.Until.IsZero() && !t.At.Before(q.Until) {
		return false
	}
	return true
}
