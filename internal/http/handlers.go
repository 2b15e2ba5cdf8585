package http

import (
	"context"
	"net/http"
	"time"

	"koperasi/internal/backend"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	OK("ok", map[string]string{"status": "ok"}).Write(w)
}

// handleReady reports ready once the store answers and the dashboard has
// received its first figures.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok", "dashboard": "ok"}
	ready := true

	if p, ok := s.store.(backend.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Store ping failed", "error", err)
			checks["store"] = "unreachable"
			ready = false
		}
	}
	if s.dashboard != nil {
		if _, ok := s.dashboard.Figures(); !ok {
			checks["dashboard"] = "warming up"
			ready = false
		}
	}

	if !ready {
		ErrorResponse(http.StatusServiceUnavailable, "Not ready", checks).Write(w)
		return
	}
	OK("ready", checks).Write(w)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := s.parser.Decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	token, id, err := s.auth.SignIn(req.Email, req.Password)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Sign-in rejected",
			"client_ip", s.detector.ExtractClientIP(r))
		s.fail(w, r, err)
		return
	}
	OK("Signed in", map[string]any{
		"token":     token,
		"tokenType": "Bearer",
		"email":     id.Email,
		"expiresAt": id.ExpiresAt,
	}).Write(w)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	OK("Signed out", nil).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.auth.Current(r.Context())
	if !ok {
		Unauthorized("not signed in").Write(w)
		return
	}
	OK("Current identity", id).Write(w)
}
