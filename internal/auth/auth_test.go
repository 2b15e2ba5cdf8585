package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s, err := NewService(Config{
		Secret:            "0123456789abcdef0123",
		StaffEmail:        "Admin@Koperasi.id",
		StaffPasswordHash: string(hash),
		TokenTTL:          time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s
}

func TestSignInAndVerify(t *testing.T) {
	s := newTestService(t)

	if _, _, err := s.SignIn("admin@koperasi.id", "salah"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := s.SignIn("other@koperasi.id", "rahasia"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	token, id, err := s.SignIn(" ADMIN@koperasi.id ", "rahasia")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	got, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Email != "admin@koperasi.id" || got.TokenID != id.TokenID || !got.ExpiresAt.Equal(id.ExpiresAt) {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestVerifyRejects(t *testing.T) {
	s := newTestService(t)
	token, _, _ := s.SignIn("admin@koperasi.id", "rahasia")

	tests := []struct {
		name  string
		token string
		svc   func() *Service
	}{
		{"garbage", "not-a-token", func() *Service { return s }},
		{"tampered", token + "x", func() *Service { return s }},
		{"other secret", token, func() *Service {
			o := newTestService(t)
			o.secret = []byte("fedcba9876543210fedcba")
			return o
		}},
		{"expired", token, func() *Service {
			o := newTestService(t)
			o.secret = s.secret
			o.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
			return o
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.svc().Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected invalid token, got %v", err)
			}
		})
	}
}

func TestSignOutRevokes(t *testing.T) {
	s := newTestService(t)
	token, id, _ := s.SignIn("admin@koperasi.id", "rahasia")

	if err := s.SignOut(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected no identity, got %v", err)
	}

	ctx := WithIdentity(context.Background(), id)
	if cur, ok := s.Current(ctx); !ok || cur.Email != id.Email {
		t.Fatalf("expected current identity, got %+v %v", cur, ok)
	}
	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := s.Verify(token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(Config{Secret: "short", StaffEmail: "a", StaffPasswordHash: "b"}); err == nil {
		t.Fatalf("expected short secret error")
	}
	if _, err := NewService(Config{Secret: "0123456789abcdef", StaffEmail: "a@b", StaffPasswordHash: "plain"}); err == nil {
		t.Fatalf("expected invalid hash error")
	}
}
