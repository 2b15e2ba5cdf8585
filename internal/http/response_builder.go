// Package http serves the koperasi JSON API.
//
// This file builds the response envelope. Every body has a message; success
// bodies carry data and failures carry error.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"koperasi/internal/auth"
	"koperasi/internal/core"
	"koperasi/internal/ledger"
	"koperasi/internal/services"
)

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// ResponseBuilder provides a fluent API for JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

// NewResponse creates a builder with a 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.body.Message = msg
	return b
}

func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.body.Data = data
	return b
}

func (b *ResponseBuilder) Error(detail any) *ResponseBuilder {
	b.body.Error = detail
	return b
}

func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.headers[key] = value
	return b
}

// Write sends the response.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

func OK(msg string, data any) *ResponseBuilder {
	return NewResponse().Message(msg).Data(data)
}

func Created(msg string, data any) *ResponseBuilder {
	return NewResponse().Status(http.StatusCreated).Message(msg).Data(data)
}

func ErrorResponse(status int, msg string, detail any) *ResponseBuilder {
	return NewResponse().Status(status).Message(msg).Error(detail)
}

func BadRequest(detail any) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "Bad request", detail)
}

func Unauthorized(detail string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "Unauthorized", detail).
		Header("WWW-Authenticate", `Bearer realm="koperasi"`)
}

func NotFound(detail string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "Not found", detail)
}

func TooManyRequests() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "Too many requests", "rate limit exceeded")
}

// FromError maps an engine or store error to its response. Anything not
// classified is a 500 with a generic body; the cause goes to the log.
func FromError(logger *slog.Logger, r *http.Request, err error) *ResponseBuilder {
	var fields FieldErrors
	var body *BodyError
	switch {
	case errors.As(err, &fields):
		return ErrorResponse(http.StatusUnprocessableEntity, "Validation failed", fields)
	case errors.As(err, &body):
		return BadRequest(body.Error())
	case core.IsValidation(err):
		return ErrorResponse(http.StatusUnprocessableEntity, "Validation failed", err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return NotFound(err.Error())
	case services.IsConflict(err):
		return ErrorResponse(http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrRevoked),
		errors.Is(err, auth.ErrNoIdentity):
		return Unauthorized(err.Error())
	}
	logger.ErrorContext(r.Context(), "Request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	return ErrorResponse(http.StatusInternalServerError, "Internal server error", "internal error")
}
