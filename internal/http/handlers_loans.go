package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"koperasi/internal/core"
)

// handleEditLoan reprices a loan. An omitted loan date keeps the current
// one.
func (s *Server) handleEditLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := s.parser.Decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	current, err := s.store.GetLoan(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	at := current.LoanDate
	if req.TanggalPinjam != "" {
		if at, err = s.parser.Date("tanggalPinjam", req.TanggalPinjam); err != nil {
			s.fail(w, r, err)
			return
		}
		if at.IsZero() {
			at = s.now()
		}
	}

	loan, err := s.bookkeeper.EditLoan(r.Context(), id, core.LoanTerms{
		Principal:    int64(req.PokokPinjaman),
		RatePercent:  req.BungaPersen,
		Installments: req.JumlahAngsuran,
		LoanDate:     at,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Loan updated", loan).Write(w)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := s.parser.Decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := s.parser.Date("tanggal", req.Tanggal)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.bookkeeper.RecordPayment(r.Context(), mux.Vars(r)["id"], int64(req.Jumlah), at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	Created("Payment recorded", t).Write(w)
}
