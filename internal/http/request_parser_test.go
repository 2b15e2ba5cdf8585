package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"koperasi/internal/core"
	"koperasi/internal/ledger"
	"koperasi/internal/services"
)

func TestRupiahUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    Rupiah
		wantErr bool
	}{
		{`1100000`, 1100000, false},
		{`"1.100.000"`, 1100000, false},
		{`"Rp 250.000"`, 250000, false},
		{`null`, 0, false},
		{`1e3`, 1000, false},
		{`12.5`, 0, true},
		{`"12,5.0"`, 0, true},
		{`"-5"`, 0, true},
		{`"10.000,75"`, 0, true},
		{`"10.000,00"`, 10000, false},
		{`9223372036854775807`, 9223372036854775807, false},
		{`9223372036854775808`, 0, true},
		{`18446744073709551617`, 0, true},
		{`-18446744073709551617`, 0, true},
		{`1e30`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Rupiah
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				if !core.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %d, %v; want %d", got, err, tt.want)
			}
		})
	}
}

func TestParserDate(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	now := time.Date(2025, 8, 1, 20, 0, 0, 0, time.UTC) // 2 Aug 03:00 WIB
	p := NewRequestParser(jakarta, func() time.Time { return now })

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2025-08-02", time.Time{}, false},
		{"2025-08-01", time.Date(2025, 8, 1, 0, 0, 0, 0, jakarta), false},
		{"01-08-2025", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := p.Date("tanggal", tt.in)
			if tt.wantErr {
				if !core.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil || !got.Equal(tt.want) {
				t.Fatalf("got %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestValidateReportsWireNames(t *testing.T) {
	p := NewRequestParser(nil, nil)
	err := p.Validate(&loanRequest{BungaPersen: -1})

	var fields FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	for _, name := range []string{"pokokPinjaman", "bungaPersen", "jumlahAngsuran"} {
		if _, ok := fields[name]; !ok {
			t.Errorf("missing error for %s in %v", name, fields)
		}
	}
}

func TestFromErrorStatus(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fields", FieldErrors{"nama": "is required"}, http.StatusUnprocessableEntity},
		{"body", &BodyError{Err: errors.New("eof")}, http.StatusBadRequest},
		{"validation", &core.ValidationError{Field: "jumlah", Err: core.ErrInvalidAmount}, http.StatusUnprocessableEntity},
		{"not found", fmt.Errorf("loan x: %w", ledger.ErrNotFound), http.StatusNotFound},
		{"immutable", services.ErrPaymentImmutable, http.StatusConflict},
		{"negative savings", fmt.Errorf("reverse: %w", services.ErrSavingsWouldGoNegative), http.StatusConflict},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			FromError(slog.Default(), r, tt.err).Write(rr)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d", rr.Code, tt.want)
			}
		})
	}
}
