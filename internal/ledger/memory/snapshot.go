package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
)

// fileSnapshot is the on-disk form of the store, keyed by collection name.
type fileSnapshot struct {
	Customers    []core.Customer    `json:"customers"`
	Loans        []core.Loan        `json:"loans"`
	Transactions []core.Transaction `json:"transactions"`
}

// Export writes every document as one JSON object, sorted by id.
func (s *Store) Export(w io.Writer) error {
	s.mu.RLock()
	snap := fileSnapshot{
		Customers:    make([]core.Customer, 0, len(s.customers)),
		Loans:        make([]core.Loan, 0, len(s.loans)),
		Transactions: make([]core.Transaction, 0, len(s.transactions)),
	}
	for _, c := range s.customers {
		snap.Customers = append(snap.Customers, c)
	}
	for _, l := range s.loans {
		snap.Loans = append(snap.Loans, l)
	}
	for _, t := range s.transactions {
		snap.Transactions = append(snap.Transactions, t)
	}
	s.mu.RUnlock()

	sort.Slice(snap.Customers, func(i, j int) bool { return snap.Customers[i].ID < snap.Customers[j].ID })
	sort.Slice(snap.Loans, func(i, j int) bool { return snap.Loans[i].ID < snap.Loans[j].ID })
	sort.Slice(snap.Transactions, func(i, j int) bool { return snap.Transactions[i].ID < snap.Transactions[j].ID })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Import replaces the store content with the documents read from r and
// notifies every subscriber.
func (s *Store) Import(r io.Reader) error {
	var snap fileSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	customers := make(map[string]core.Customer, len(snap.Customers))
	for _, c := range snap.Customers {
		customers[c.ID] = c
	}
	loans := make(map[string]core.Loan, len(snap.Loans))
	for _, l := range snap.Loans {
		loans[l.ID] = l
	}
	txs := make(map[string]core.Transaction, len(snap.Transactions))
	for _, t := range snap.Transactions {
		txs[t.ID] = t
	}

	s.mu.Lock()
	s.customers, s.loans, s.transactions = customers, loans, txs
	s.mu.Unlock()

	s.hub.Notify(ledger.Customers, ledger.Loans, ledger.Transactions)
	return nil
}

// LoadFile imports path. A missing file leaves the store empty.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return s.Import(f)
}

// SaveFile exports to path through a temporary file and a rename.
func (s *Store) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := s.Export(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
