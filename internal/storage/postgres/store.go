// Package postgres is the GORM/PostgreSQL ledger backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
)

type Store struct {
	db  *gorm.DB
	hub *ledger.Hub
}

var _ ledger.Store = (*Store)(nil)

// Open connects to dsn, tunes the pool and migrates the ledger tables.
func Open(dsn string, slowThreshold time.Duration, appLogger *slog.Logger) (*Store, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "[GORM] ", log.LstdFlags),
		logger.Config{
			SlowThreshold:             slowThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&customerRow{}, &loanRow{}, &transactionRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate ledger tables: %w", err)
	}

	return New(db, appLogger), nil
}

// New wraps an existing GORM handle.
func New(db *gorm.DB, appLogger *slog.Logger) *Store {
	s := &Store{db: db}
	s.hub = ledger.NewHub(s, appLogger)
	return s
}

func (s *Store) Close() error {
	s.hub.Close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	var row customerRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return core.Customer{}, notFound("customer", id, err)
	}
	return row.toCore(), nil
}

func (s *Store) GetLoan(ctx context.Context, id string) (core.Loan, error) {
	var row loanRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return core.Loan{}, notFound("loan", id, err)
	}
	return row.toCore(), nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var row transactionRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return core.Transaction{}, notFound("transaction", id, err)
	}
	return row.toCore(), nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ledger.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", kind, err)
}

func (s *Store) FindCustomers(ctx context.Context, q ledger.Query) ([]core.Customer, error) {
	tx := s.db.WithContext(ctx).Model(&customerRow{})
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	var rows []customerRow
	if err := tx.Order("LOWER(nama), id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find customers: %w", err)
	}
	out := make([]core.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) FindLoans(ctx context.Context, q ledger.Query) ([]core.Loan, error) {
	tx := s.db.WithContext(ctx).Model(&loanRow{})
	if q.CustomerID != "" {
		tx = tx.Where("customer_id = ?", q.CustomerID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	var rows []loanRow
	if err := tx.Order("tanggal_pinjam DESC, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find loans: %w", err)
	}
	out := make([]core.Loan, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) FindTransactions(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	tx := s.db.WithContext(ctx).Model(&transactionRow{})
	if q.CustomerID != "" {
		tx = tx.Where("customer_id = ?", q.CustomerID)
	}
	if q.LoanID != "" {
		tx = tx.Where("loan_id = ?", q.LoanID)
	}
	if q.Type != "" {
		tx = tx.Where("tipe = ?", string(q.Type))
	}
	if !q.From.IsZero() {
		tx = tx.Where("tanggal_transaksi >= ?", q.From)
	}
	if !q.Until.IsZero() {
		tx = tx.Where("tanggal_transaksi < ?", q.Until)
	}
	var rows []transactionRow
	if err := tx.Order("tanggal_transaksi DESC, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// Commit applies the batch inside one database transaction. Rows touched by
// creates are locked so concurrent creates of the same id serialise; updates
// and conditional deletes only match the version they were planned against.
func (s *Store) Commit(ctx context.Context, b *ledger.Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range b.Ops() {
			if err := applyOp(tx, op); err != nil {
				return fmt.Errorf("op %d (%s %s %s): %w", i, op.Kind, op.Collection, op.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.hub.Notify(b.Collections()...)
	return nil
}

func applyOp(tx *gorm.DB, op ledger.Op) error {
	model, err := rowFor(op)
	if err != nil {
		return err
	}

	switch op.Kind {
	case ledger.OpCreate:
		var existing struct{ ID string }
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(model).Select("id").Where("id = ?", op.ID).Take(&existing).Error
		if err == nil {
			return ledger.ErrConflict
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(model).Error
	case ledger.OpUpdate:
		res := tx.Model(model).Where("id = ? AND versi = ?", op.ID, op.Version).Select("*").Updates(model)
		if res.Error != nil {
			return res.Error
		}
		return expectOne(tx, model, op.ID, res.RowsAffected)
	case ledger.OpDelete:
		q := tx.Where("id = ?", op.ID)
		if op.Conditional() {
			q = q.Where("versi = ?", op.Version)
		}
		res := q.Delete(model)
		if res.Error != nil {
			return res.Error
		}
		return expectOne(tx, model, op.ID, res.RowsAffected)
	}
	return fmt.Errorf("unsupported op kind %d", op.Kind)
}

// expectOne tells a vanished row (ErrNotFound) from one whose version moved
// on after it was read (ErrConflict).
func expectOne(tx *gorm.DB, model any, id string, affected int64) error {
	if affected > 0 {
		return nil
	}
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return ledger.ErrConflict
}

// rowFor returns the GORM model for op: a populated row for writes, an
// empty one of the right table for deletes.
func rowFor(op ledger.Op) (any, error) {
	switch op.Collection {
	case ledger.Customers:
		if op.Kind == ledger.OpDelete {
			return &customerRow{}, nil
		}
		if op.Customer == nil {
			return nil, errors.New("missing customer payload")
		}
		return customerFromCore(*op.Customer), nil
	case ledger.Loans:
		if op.Kind == ledger.OpDelete {
			return &loanRow{}, nil
		}
		if op.Loan == nil {
			return nil, errors.New("missing loan payload")
		}
		return loanFromCore(*op.Loan), nil
	case ledger.Transactions:
		if op.Kind == ledger.OpDelete {
			return &transactionRow{}, nil
		}
		if op.Transaction == nil {
			return nil, errors.New("missing transaction payload")
		}
		return transactionFromCore(*op.Transaction), nil
	}
	return nil, ledger.ErrUnknownCollection
}

func (s *Store) Subscribe(ctx context.Context, q ledger.Query, fn func(ledger.Snapshot)) (*ledger.Subscription, error) {
	return s.hub.Subscribe(ctx, q, fn)
}
