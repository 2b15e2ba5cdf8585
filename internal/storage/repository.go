// Package storage is the SQLite ledger backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"koperasi/internal/core"
	"koperasi/internal/ledger"

	_ "modernc.org/sqlite"
)

const (
	customerColumns    = "id, nama, telepon, alamat, status, tabungan, dibuat_pada, versi"
	loanColumns        = "id, customer_id, pokok_pinjaman, bunga_persen, bunga, total_tagihan, sisa_tagihan, jumlah_angsuran, status, tanggal_pinjam, versi"
	transactionColumns = "id, customer_id, loan_id, tipe, jumlah, keterangan, tanggal_transaksi, kredit_tabungan, angsuran_ke, versi"
)

type SQLiteRepository struct {
	db     *sql.DB
	hub    *ledger.Hub
	logger *slog.Logger
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// DSN builds the driver connection string for a database file.
func DSN(dbPath string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
}

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	version, err := RunMigrations(dsn)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db, logger: logger}
	repo.hub = ledger.NewHub(repo, logger)

	logger.Info("SQLite ledger ready", "path", dbPath, "schema_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	r.hub.Close()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func scanCustomer(row scanner) (core.Customer, error) {
	var (
		c       core.Customer
		status  string
		created int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &status, &c.Savings, &created, &c.Version); err != nil {
		return core.Customer{}, err
	}
	c.Status = core.CustomerStatus(status)
	c.CreatedAt = fromMillis(created)
	return c, nil
}

func scanLoan(row scanner) (core.Loan, error) {
	var (
		l        core.Loan
		status   string
		loanDate int64
	)
	if err := row.Scan(&l.ID, &l.CustomerID, &l.Principal, &l.RatePercent, &l.Interest,
		&l.TotalDue, &l.Remaining, &l.Installments, &status, &loanDate, &l.Version); err != nil {
		return core.Loan{}, err
	}
	l.Status = core.LoanStatus(status)
	l.LoanDate = fromMillis(loanDate)
	return l, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t      core.Transaction
		typ    string
		at     int64
		credit int64
	)
	if err := row.Scan(&t.ID, &t.CustomerID, &t.LoanID, &typ, &t.Amount, &t.Description,
		&at, &credit, &t.InstallmentNo, &t.Version); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.At = fromMillis(at)
	t.SavingsCredit = credit != 0
	return t, nil
}

func (r *SQLiteRepository) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Customer{}, fmt.Errorf("customer %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, id string) (core.Loan, error) {
	l, err := scanLoan(r.db.QueryRowContext(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, fmt.Errorf("loan %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (r *SQLiteRepository) FindCustomers(ctx context.Context, q ledger.Query) ([]core.Customer, error) {
	var w where
	if q.Status != "" {
		w.add("status = ?", q.Status)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+customerColumns+" FROM customers"+w.String()+" ORDER BY nama COLLATE NOCASE, id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("find customers: %w", err)
	}
	defer rows.Close()

	out := make([]core.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) FindLoans(ctx context.Context, q ledger.Query) ([]core.Loan, error) {
	var w where
	if q.CustomerID != "" {
		w.add("customer_id = ?", q.CustomerID)
	}
	if q.Status != "" {
		w.add("status = ?", q.Status)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+loanColumns+" FROM loans"+w.String()+" ORDER BY tanggal_pinjam DESC, id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("find loans: %w", err)
	}
	defer rows.Close()

	out := make([]core.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) FindTransactions(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	var w where
	if q.CustomerID != "" {
		w.add("customer_id = ?", q.CustomerID)
	}
	if q.LoanID != "" {
		w.add("loan_id = ?", q.LoanID)
	}
	if q.Type != "" {
		w.add("tipe = ?", string(q.Type))
	}
	if !q.From.IsZero() {
		w.add("tanggal_transaksi >= ?", toMillis(q.From))
	}
	if !q.Until.IsZero() {
		w.add("tanggal_transaksi < ?", toMillis(q.Until))
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions"+w.String()+" ORDER BY tanggal_transaksi DESC, id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Commit runs the whole batch inside one SQL transaction.
func (r *SQLiteRepository) Commit(ctx context.Context, b *ledger.Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, op := range b.Ops() {
		if err := applyOp(ctx, tx, op); err != nil {
			return fmt.Errorf("op %d (%s %s %s): %w", i, op.Kind, op.Collection, op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Ledger batch committed to SQLite",
		"operations", b.Len(),
		"collections", b.Collections())

	r.hub.Notify(b.Collections()...)
	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op ledger.Op) error {
	table, err := tableFor(op.Collection)
	if err != nil {
		return err
	}

	switch op.Kind {
	case ledger.OpCreate:
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", op.ID).Scan(&one)
		if err == nil {
			return ledger.ErrConflict
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return insert(ctx, tx, op)
	case ledger.OpUpdate:
		res, err := update(ctx, tx, op)
		if err != nil {
			return err
		}
		return expectOne(ctx, tx, table, op.ID, res)
	case ledger.OpDelete:
		query, args := "DELETE FROM "+table+" WHERE id = ?", []any{op.ID}
		if op.Conditional() {
			query += " AND versi = ?"
			args = append(args, op.Version)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		return expectOne(ctx, tx, table, op.ID, res)
	}
	return fmt.Errorf("unsupported op kind %d", op.Kind)
}

func tableFor(c ledger.Collection) (string, error) {
	switch c {
	case ledger.Customers, ledger.Loans, ledger.Transactions:
		return string(c), nil
	}
	return "", ledger.ErrUnknownCollection
}

// expectOne maps an update or delete that matched no row to ErrNotFound when
// the id is gone and to ErrConflict when only the version moved on.
func expectOne(ctx context.Context, tx *sql.Tx, table, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	if err != nil {
		return err
	}
	return ledger.ErrConflict
}

func insert(ctx context.Context, tx *sql.Tx, op ledger.Op) error {
	var err error
	switch op.Collection {
	case ledger.Customers:
		c := op.Customer
		if c == nil {
			return errors.New("missing customer payload")
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO customers ("+customerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			c.ID, c.Name, c.Phone, c.Address, string(c.Status), c.Savings, toMillis(c.CreatedAt), c.Version)
	case ledger.Loans:
		l := op.Loan
		if l == nil {
			return errors.New("missing loan payload")
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO loans ("+loanColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			l.ID, l.CustomerID, l.Principal, l.RatePercent, l.Interest, l.TotalDue,
			l.Remaining, l.Installments, string(l.Status), toMillis(l.LoanDate), l.Version)
	case ledger.Transactions:
		t := op.Transaction
		if t == nil {
			return errors.New("missing transaction payload")
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.ID, t.CustomerID, t.LoanID, string(t.Type), t.Amount, t.Description,
			toMillis(t.At), boolInt(t.SavingsCredit), t.InstallmentNo, t.Version)
	}
	return err
}

func update(ctx context.Context, tx *sql.Tx, op ledger.Op) (sql.Result, error) {
	switch op.Collection {
	case ledger.Customers:
		c := op.Customer
		if c == nil {
			return nil, errors.New("missing customer payload")
		}
		return tx.ExecContext(ctx,
			`UPDATE customers SET nama = ?, telepon = ?, alamat = ?, status = ?, tabungan = ?, dibuat_pada = ?, versi = ?
			 WHERE id = ? AND versi = ?`,
			c.Name, c.Phone, c.Address, string(c.Status), c.Savings, toMillis(c.CreatedAt), c.Version, c.ID, op.Version)
	case ledger.Loans:
		l := op.Loan
		if l == nil {
			return nil, errors.New("missing loan payload")
		}
		return tx.ExecContext(ctx,
			`UPDATE loans SET customer_id = ?, pokok_pinjaman = ?, bunga_persen = ?, bunga = ?, total_tagihan = ?,
			 sisa_tagihan = ?, jumlah_angsuran = ?, status = ?, tanggal_pinjam = ?, versi = ?
			 WHERE id = ? AND versi = ?`,
			l.CustomerID, l.Principal, l.RatePercent, l.Interest, l.TotalDue,
			l.Remaining, l.Installments, string(l.Status), toMillis(l.LoanDate), l.Version, l.ID, op.Version)
	case ledger.Transactions:
		t := op.Transaction
		if t == nil {
			return nil, errors.New("missing transaction payload")
		}
		return tx.ExecContext(ctx,
			`UPDATE transactions SET customer_id = ?, loan_id = ?, tipe = ?, jumlah = ?, keterangan = ?,
			 tanggal_transaksi = ?, kredit_tabungan = ?, angsuran_ke = ?, versi = ?
			 WHERE id = ? AND versi = ?`,
			t.CustomerID, t.LoanID, string(t.Type), t.Amount, t.Description,
			toMillis(t.At), boolInt(t.SavingsCredit), t.InstallmentNo, t.Version, t.ID, op.Version)
	}
	return nil, ledger.ErrUnknownCollection
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *SQLiteRepository) Subscribe(ctx context.Context, q ledger.Query, fn func(ledger.Snapshot)) (*ledger.Subscription, error) {
	return r.hub.Subscribe(ctx, q, fn)
}
