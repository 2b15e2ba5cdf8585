// Package memory is an in-process TabWriter used when no spreadsheet is
// configured and as a test double.
package memory

import (
	"context"
	"sync"

	"koperasi/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	tabs   map[string]sheets.Table
	writes int
}

var _ sheets.TabWriter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: make(map[string]sheets.Table)}
}

func (s *Store) ReplaceTab(_ context.Context, tab string, t sheets.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[tab] = t
	s.writes++
	return nil
}

// Tab returns the last table written to tab.
func (s *Store) Tab(tab string) (sheets.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[tab]
	return t, ok
}

// Writes counts ReplaceTab calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
