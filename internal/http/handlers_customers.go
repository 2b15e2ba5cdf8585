package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"koperasi/internal/core"
	"koperasi/internal/services"
)

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.directory.List(r.Context(), services.ListOptions{
		Search: sanitizeInput(q.Get("q")),
		Sort:   q.Get("sort"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Customers", rows).Write(w)
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := s.parser.Decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.bookkeeper.CreateCustomer(r.Context(), req.profile())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	Created("Customer created", c).Write(w)
}

func (s *Server) handleCustomerDetail(w http.ResponseWriter, r *http.Request) {
	d, err := services.LoadCustomerDetail(r.Context(), s.store, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Customer detail", d).Write(w)
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := s.parser.Decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.bookkeeper.UpdateCustomer(r.Context(), mux.Vars(r)["id"], req.profile())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Customer updated", c).Write(w)
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := s.bookkeeper.SoftDeleteCustomer(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Customer deleted", nil).Write(w)
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := s.parser.Decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := s.parser.Date("tanggalPinjam", req.TanggalPinjam)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if at.IsZero() {
		at = s.now()
	}
	loan, err := s.bookkeeper.CreateLoan(r.Context(), mux.Vars(r)["id"], core.LoanTerms{
		Principal:    int64(req.PokokPinjaman),
		RatePercent:  req.BungaPersen,
		Installments: req.JumlahAngsuran,
		LoanDate:     at,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	Created("Loan created", loan).Write(w)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := s.parser.Decode(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := s.parser.Date("tanggal", req.Tanggal)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.bookkeeper.WithdrawSavings(r.Context(), mux.Vars(r)["id"], at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	Created("Savings withdrawn", t).Write(w)
}
