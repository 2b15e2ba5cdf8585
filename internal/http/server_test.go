package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"koperasi/internal/auth"
	"koperasi/internal/dashboard"
	"koperasi/internal/ledger/memory"
	"koperasi/internal/services"
)

var testNow = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

const (
	staffEmail    = "admin@koperasi.id"
	staffPassword = "rahasia"
)

type testEnv struct {
	srv   *Server
	token string
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	ctx := context.Background()
	now := func() time.Time { return testNow }

	store := memory.New(nil)
	t.Cleanup(func() { store.Close() })

	seq := 0
	bk := services.NewBookkeeper(store,
		services.WithClock(now),
		services.WithIDs(func() string { seq++; return fmt.Sprintf("id-%03d", seq) }),
		services.WithSingleActiveLoan(true),
	)
	view, err := services.NewLedgerView(ctx, store, nil)
	if err != nil {
		t.Fatalf("ledger view: %v", err)
	}
	t.Cleanup(view.Close)

	agg := dashboard.NewAggregator(store, now, nil)
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("start aggregator: %v", err)
	}
	t.Cleanup(agg.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(staffPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	authSvc, err := auth.NewService(auth.Config{
		Secret:            "0123456789abcdef0123",
		StaffEmail:        staffEmail,
		StaffPasswordHash: string(hash),
		TokenTTL:          time.Hour,
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	srv := NewServer(":0", Deps{
		Store:              store,
		Bookkeeper:         bk,
		Directory:          services.NewCustomerDirectory(store, now),
		Ledger:             view,
		Dashboard:          agg,
		Auth:               authSvc,
		Location:           time.UTC,
		Now:                now,
		RateLimitPerMinute: rateLimit,
	})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	token, _, err := authSvc.SignIn(staffEmail, staffPassword)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return &testEnv{srv: srv, token: token}
}

type response struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)

	var out response
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, rr.Body.String(), err)
	}
	return rr.Code, out
}

func decodeData[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, 0)

	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("readyz never became ready: %d %s", rr.Code, rr.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAuthGuard(t *testing.T) {
	env := newTestEnv(t, 0)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		body   string
		want   int
	}{
		{"no token", http.MethodGet, "/api/customers", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/customers", "Bearer nope", "", http.StatusUnauthorized},
		{"good token", http.MethodGet, "/api/customers", "Bearer " + env.token, "", http.StatusOK},
		{"wrong password", http.MethodPost, "/api/auth/signin", "", `{"email":"admin@koperasi.id","password":"salah"}`, http.StatusUnauthorized},
		{"malformed email", http.MethodPost, "/api/auth/signin", "", `{"email":"admin","password":"x"}`, http.StatusUnprocessableEntity},
		{"sign in", http.MethodPost, "/api/auth/signin", "", `{"email":"ADMIN@koperasi.id","password":"rahasia"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.srv.Handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	env := newTestEnv(t, 0)

	if code, _ := env.do(t, http.MethodGet, "/api/auth/me", ""); code != http.StatusOK {
		t.Fatalf("me status=%d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/auth/signout", ""); code != http.StatusOK {
		t.Fatalf("signout status=%d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/auth/me", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", code)
	}
}

type customerJSON struct {
	ID       string `json:"id"`
	Nama     string `json:"nama"`
	Tabungan int64  `json:"tabungan"`
	Status   string `json:"status"`
}

type loanJSON struct {
	ID           string `json:"id"`
	TotalTagihan int64  `json:"totalTagihan"`
	SisaTagihan  int64  `json:"sisaTagihan"`
	Status       string `json:"status"`
}

type transactionJSON struct {
	ID             string `json:"id"`
	Tipe           string `json:"tipe"`
	Jumlah         int64  `json:"jumlah"`
	KreditTabungan bool   `json:"kreditTabungan"`
	Detail         string `json:"detail"`
}

func TestLoanLifecycle(t *testing.T) {
	env := newTestEnv(t, 0)

	code, res := env.do(t, http.MethodPost, "/api/customers", `{"nama":"Siti","telepon":"0812","alamat":"Jl. Mawar 1"}`)
	if code != http.StatusCreated {
		t.Fatalf("create customer status=%d error=%s", code, res.Error)
	}
	cust := decodeData[customerJSON](t, res)

	code, res = env.do(t, http.MethodPost, "/api/customers/"+cust.ID+"/loans",
		`{"pokokPinjaman":"1.000.000","bungaPersen":10,"jumlahAngsuran":10,"tanggalPinjam":"2025-07-15"}`)
	if code != http.StatusCreated {
		t.Fatalf("create loan status=%d error=%s", code, res.Error)
	}
	loan := decodeData[loanJSON](t, res)
	if loan.TotalTagihan != 1100000 || loan.SisaTagihan != 1100000 || loan.Status != "Aktif" {
		t.Fatalf("unexpected loan %+v", loan)
	}

	code, _ = env.do(t, http.MethodPost, "/api/customers/"+cust.ID+"/loans",
		`{"pokokPinjaman":500000,"bungaPersen":10,"jumlahAngsuran":5}`)
	if code != http.StatusConflict {
		t.Fatalf("second active loan status=%d, want 409", code)
	}

	code, res = env.do(t, http.MethodPost, "/api/loans/"+loan.ID+"/payments", `{"jumlah":110000}`)
	if code != http.StatusCreated {
		t.Fatalf("payment status=%d error=%s", code, res.Error)
	}
	payment := decodeData[transactionJSON](t, res)
	if !payment.KreditTabungan || payment.Tipe != "Angsuran" {
		t.Fatalf("first payment should credit savings: %+v", payment)
	}

	code, res = env.do(t, http.MethodGet, "/api/customers/"+cust.ID, "")
	if code != http.StatusOK {
		t.Fatalf("detail status=%d", code)
	}
	detail := decodeData[struct {
		Nasabah          customerJSON `json:"nasabah"`
		TotalSisaTagihan int64        `json:"totalSisaTagihan"`
	}](t, res)
	if detail.Nasabah.Tabungan != 110000 || detail.TotalSisaTagihan != 990000 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	code, res = env.do(t, http.MethodGet, "/api/transactions?type=Angsuran", "")
	if code != http.StatusOK {
		t.Fatalf("ledger status=%d", code)
	}
	rows := decodeData[[]transactionJSON](t, res)
	if len(rows) != 1 || rows[0].Detail != "Nasabah: Siti" {
		t.Fatalf("unexpected ledger rows %+v", rows)
	}

	if code, _ := env.do(t, http.MethodPut, "/api/transactions/"+payment.ID, `{}`); code != http.StatusConflict {
		t.Fatalf("edit payment status=%d, want 409", code)
	}

	if code, _ := env.do(t, http.MethodDelete, "/api/transactions/"+payment.ID, ""); code != http.StatusOK {
		t.Fatalf("delete payment status=%d", code)
	}
	_, res = env.do(t, http.MethodGet, "/api/customers/"+cust.ID, "")
	detail = decodeData[struct {
		Nasabah          customerJSON `json:"nasabah"`
		TotalSisaTagihan int64        `json:"totalSisaTagihan"`
	}](t, res)
	if detail.Nasabah.Tabungan != 0 || detail.TotalSisaTagihan != 990000 {
		t.Fatalf("savings credit not reversed: %+v", detail)
	}

	code, res = env.do(t, http.MethodPut, "/api/loans/"+loan.ID, `{"pokokPinjaman":2000000,"bungaPersen":5,"jumlahAngsuran":20}`)
	if code != http.StatusOK {
		t.Fatalf("edit loan status=%d error=%s", code, res.Error)
	}
	edited := decodeData[loanJSON](t, res)
	if edited.TotalTagihan != 2100000 || edited.SisaTagihan != 1990000 {
		t.Fatalf("unexpected edited loan %+v", edited)
	}

	if code, _ := env.do(t, http.MethodDelete, "/api/customers/"+cust.ID, ""); code != http.StatusOK {
		t.Fatalf("delete customer status=%d", code)
	}
	_, res = env.do(t, http.MethodGet, "/api/customers", "")
	if list := decodeData[[]json.RawMessage](t, res); len(list) != 0 {
		t.Fatalf("deleted customer still listed: %d rows", len(list))
	}
}

func TestRequestErrors(t *testing.T) {
	env := newTestEnv(t, 0)
	_, res := env.do(t, http.MethodPost, "/api/customers", `{"nama":"Budi"}`)
	cust := decodeData[customerJSON](t, res)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing name", http.MethodPost, "/api/customers", `{"alamat":"x"}`, http.StatusUnprocessableEntity},
		{"unknown field", http.MethodPost, "/api/customers", `{"nama":"A","umur":3}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/deposits", `{"jumlah":`, http.StatusBadRequest},
		{"zero deposit", http.MethodPost, "/api/deposits", `{"jumlah":0}`, http.StatusUnprocessableEntity},
		{"fractional amount", http.MethodPost, "/api/deposits", `{"jumlah":1.5}`, http.StatusUnprocessableEntity},
		{"bad grouping", http.MethodPost, "/api/expenses", `{"jumlah":"1.00"}`, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, "/api/deposits", `{"jumlah":1000,"tanggal":"01/08/2025"}`, http.StatusUnprocessableEntity},
		{"unknown loan", http.MethodPost, "/api/loans/nope/payments", `{"jumlah":1000}`, http.StatusNotFound},
		{"unknown customer", http.MethodGet, "/api/customers/nope", "", http.StatusNotFound},
		{"no savings", http.MethodPost, "/api/customers/" + cust.ID + "/withdrawals", "", http.StatusUnprocessableEntity},
		{"bad ledger type", http.MethodGet, "/api/transactions?type=Hadiah", "", http.StatusUnprocessableEntity},
		{"deposit", http.MethodPost, "/api/deposits", `{"jumlah":"Rp 2.000.000","keterangan":"Modal awal"}`, http.StatusCreated},
		{"expense", http.MethodPost, "/api/expenses", `{"jumlah":50000,"tanggal":"2025-07-31"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := env.do(t, tt.method, tt.path, tt.body)
			if code != tt.want {
				t.Fatalf("status=%d want %d error=%s", code, tt.want, res.Error)
			}
		})
	}
}

func TestDashboardFigures(t *testing.T) {
	env := newTestEnv(t, 0)
	env.do(t, http.MethodPost, "/api/deposits", `{"jumlah":2000000}`)

	deadline := time.Now().Add(2 * time.Second)
	for {
		code, res := env.do(t, http.MethodGet, "/api/dashboard", "")
		if code == http.StatusOK {
			f := decodeData[struct {
				KasTersedia int64 `json:"kasTersedia"`
			}](t, res)
			if f.KasTersedia == 2000000 {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("dashboard never showed the deposit: %d %s", code, res.Data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDashboardStream(t *testing.T) {
	env := newTestEnv(t, 0)
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/dashboard/stream?access_token="+env.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() == "event: figures" {
			if !sc.Scan() || !strings.HasPrefix(sc.Text(), "data: {") {
				t.Fatalf("figures event without data: %q", sc.Text())
			}
			cancel()
			return
		}
	}
	t.Fatalf("stream ended before a figures event: %v", sc.Err())
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		if code, _ := env.do(t, http.MethodPost, "/api/deposits", `{"jumlah":1000}`); code != http.StatusCreated {
			t.Fatalf("write %d status=%d", i, code)
		}
	}
	if code, _ := env.do(t, http.MethodPost, "/api/deposits", `{"jumlah":1000}`); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	for i := 0; i < 5; i++ {
		if code, _ := env.do(t, http.MethodGet, "/api/transactions", ""); code != http.StatusOK {
			t.Fatalf("read %d status=%d", i, code)
		}
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := newTestEnv(t, 0)
	code, res := env.do(t, http.MethodGet, "/api/nothing", "")
	if code != http.StatusNotFound || res.Message != "Not found" {
		t.Fatalf("unexpected %d %+v", code, res)
	}
}
