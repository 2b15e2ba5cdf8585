package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"koperasi/internal/core"
	"koperasi/internal/services"
)

type cashRecorder func(ctx context.Context, amount int64, description string, at time.Time) (core.Transaction, error)

func (s *Server) ledgerFilter(r *http.Request) (services.LedgerFilter, error) {
	start, err := s.parser.QueryDate(r, "start")
	if err != nil {
		return services.LedgerFilter{}, err
	}
	end, err := s.parser.QueryDate(r, "end")
	if err != nil {
		return services.LedgerFilter{}, err
	}
	f := services.LedgerFilter{Start: start, End: end, Type: r.URL.Query().Get("type")}
	return f, f.Validate()
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := s.ledgerFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.ledger.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Transactions", rows).Write(w)
}

// handleTransactionStream pushes the filtered ledger as a "transactions"
// event on every change. Each stream owns its view so filters never mix.
func (s *Server) handleTransactionStream(w http.ResponseWriter, r *http.Request) {
	f, err := s.ledgerFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := services.NewLedgerView(r.Context(), s.store, s.logger)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer view.Close()

	updates := make(chan []services.LedgerRow, 1)
	err = view.Watch(r.Context(), f, func(rows []services.LedgerRow) {
		select {
		case <-updates:
		default:
		}
		updates <- rows
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	stream, ok := newEventStream(w)
	if !ok {
		return
	}
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case rows := <-updates:
			if err := stream.send("transactions", rows); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-s.streams:
			return
		}
	}
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.recordCash(w, r, s.bookkeeper.RecordDeposit, "Deposit recorded")
}

func (s *Server) handleExpense(w http.ResponseWriter, r *http.Request) {
	s.recordCash(w, r, s.bookkeeper.RecordOperational, "Expense recorded")
}

func (s *Server) recordCash(w http.ResponseWriter, r *http.Request, record cashRecorder, msg string) {
	var req cashRequest
	if err := s.parser.Decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := s.parser.Date("tanggal", req.Tanggal)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := record(r.Context(), int64(req.Jumlah), sanitizeInput(req.Keterangan), at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	Created(msg, t).Write(w)
}

// handleEditTransaction answers 404 for unknown ids and 409 otherwise;
// recorded transactions are never edited in place.
func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.bookkeeper.EditPayment(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Transaction unchanged", nil).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.bookkeeper.DeleteTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Transaction deleted", t).Write(w)
}
