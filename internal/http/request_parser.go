// This file decodes and validates request bodies and query parameters.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"koperasi/internal/core"
)

const maxBodyBytes = 64 << 10

var maxRupiah = decimal.NewFromInt(math.MaxInt64)

// Rupiah is an amount field that accepts either a JSON integer or a
// formatted string such as "1.100.000".
type Rupiah int64

func (r *Rupiah) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := core.ParseRupiah(s)
		if err != nil {
			return &core.ValidationError{Field: "amount", Err: err}
		}
		*r = Rupiah(v)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return &core.ValidationError{Field: "amount", Err: fmt.Errorf("%s: %w", b, core.ErrInvalidAmount)}
	}
	if !d.IsInteger() {
		return &core.ValidationError{Field: "amount", Err: fmt.Errorf("%s has a fraction: %w", b, core.ErrInvalidAmount)}
	}
	if d.Abs().GreaterThan(maxRupiah) {
		return &core.ValidationError{Field: "amount", Err: fmt.Errorf("%s is out of range: %w", b, core.ErrInvalidAmount)}
	}
	*r = Rupiah(d.IntPart())
	return nil
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type customerRequest struct {
	Nama    string `json:"nama" validate:"required,max=120"`
	Telepon string `json:"telepon" validate:"max=40"`
	Alamat  string `json:"alamat" validate:"max=250"`
}

func (c customerRequest) profile() core.CustomerProfile {
	return core.CustomerProfile{
		Name:    sanitizeInput(c.Nama),
		Phone:   sanitizeInput(c.Telepon),
		Address: sanitizeInput(c.Alamat),
	}
}

type loanRequest struct {
	PokokPinjaman  Rupiah  `json:"pokokPinjaman" validate:"gt=0"`
	BungaPersen    float64 `json:"bungaPersen" validate:"gte=0,lte=100"`
	JumlahAngsuran int     `json:"jumlahAngsuran" validate:"gt=0"`
	TanggalPinjam  string  `json:"tanggalPinjam" validate:"omitempty,datetime=2006-01-02"`
}

type paymentRequest struct {
	Jumlah  Rupiah `json:"jumlah" validate:"gt=0"`
	Tanggal string `json:"tanggal" validate:"omitempty,datetime=2006-01-02"`
}

type cashRequest struct {
	Jumlah     Rupiah `json:"jumlah" validate:"gt=0"`
	Keterangan string `json:"keterangan" validate:"max=500"`
	Tanggal    string `json:"tanggal" validate:"omitempty,datetime=2006-01-02"`
}

type withdrawalRequest struct {
	Tanggal string `json:"tanggal" validate:"omitempty,datetime=2006-01-02"`
}

// RequestParser decodes bodies into DTOs and validates them, reporting
// field names as they appear on the wire.
type RequestParser struct {
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

func NewRequestParser(loc *time.Location, now func() time.Time) *RequestParser {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestParser{validate: v, loc: loc, now: now}
}

// FieldErrors maps wire field names to what is wrong with them.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, "; ")
}

// Decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set. Malformed JSON is a *BodyError, a bad
// amount is a core.ValidationError and failed tags are FieldErrors.
func (p *RequestParser) Decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		switch {
		case allowEmpty && errors.Is(err, io.EOF):
		case core.IsValidation(err):
			return err
		default:
			return &BodyError{Err: err}
		}
	}
	return p.Validate(dst)
}

func (p *RequestParser) Validate(dto any) error {
	err := p.validate.Struct(dto)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			out[e.Field()] = "is required"
		case "gt":
			out[e.Field()] = "must be greater than " + e.Param()
		case "gte":
			out[e.Field()] = "must be at least " + e.Param()
		case "lte", "max":
			out[e.Field()] = "must be at most " + e.Param()
		case "email":
			out[e.Field()] = "must be an e-mail address"
		case "datetime":
			out[e.Field()] = "must be a date formatted " + e.Param()
		default:
			out[e.Field()] = "is invalid"
		}
	}
	return out
}

// BodyError is a body that could not be decoded.
type BodyError struct{ Err error }

func (e *BodyError) Error() string { return "invalid request body: " + e.Err.Error() }
func (e *BodyError) Unwrap() error { return e.Err }

// Date resolves an optional date-only field. Empty means now. A date equal
// to today also resolves to now so same-day entries keep their order.
func (p *RequestParser) Date(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := core.ParseDateInput(s, p.loc)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: field, Err: err}
	}
	if now := p.now().In(p.loc); core.SameDay(t, now) {
		return time.Time{}, nil
	}
	return t, nil
}

// QueryDate parses an optional date query parameter; empty yields zero.
func (p *RequestParser) QueryDate(r *http.Request, key string) (time.Time, error) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := core.ParseDateInput(s, p.loc)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: key, Err: err}
	}
	return t, nil
}

func (p *RequestParser) Location() *time.Location { return p.loc }

// sanitizeInput trims and drops control characters except tab, newline and
// carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
