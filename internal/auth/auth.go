// Package auth authenticates staff. Sign-in checks the configured staff
// account against a bcrypt hash and issues an HS256 token; sign-out
// remembers the token id until the token would have expired anyway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"koperasi/internal/cache"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRevoked            = errors.New("token revoked")
	ErrNoIdentity         = errors.New("not signed in")
)

// Identity is the signed-in staff member.
type Identity struct {
	Email     string    `json:"email"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider is what the rest of the application needs from auth: the current
// identity, if any, and a way to end it.
type Provider interface {
	Current(ctx context.Context) (Identity, bool)
	SignOut(ctx context.Context) error
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret            string
	StaffEmail        string
	StaffPasswordHash string
	TokenTTL          time.Duration
}

type Service struct {
	secret       []byte
	staffEmail   string
	passwordHash []byte
	ttl          time.Duration
	revoked      *cache.LRUCache[struct{}]
	now          func() time.Time
}

var _ Provider = (*Service)(nil)

const issuer = "koperasi"

func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth secret must be at least 16 bytes")
	}
	if cfg.StaffEmail == "" || cfg.StaffPasswordHash == "" {
		return nil, errors.New("staff email and password hash are required")
	}
	if _, err := bcrypt.Cost([]byte(cfg.StaffPasswordHash)); err != nil {
		return nil, fmt.Errorf("staff password hash: %w", err)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		secret:       []byte(cfg.Secret),
		staffEmail:   strings.ToLower(strings.TrimSpace(cfg.StaffEmail)),
		passwordHash: []byte(cfg.StaffPasswordHash),
		ttl:          ttl,
		revoked:      cache.NewLRUCache[struct{}](10000, ttl),
		now:          time.Now,
	}, nil
}

// Revocations exposes the revocation list so expired entries can be swept.
func (s *Service) Revocations() cache.Cleaner { return s.revoked }

// SignIn returns a signed token for the staff account.
func (s *Service) SignIn(email, password string) (string, Identity, error) {
	if strings.ToLower(strings.TrimSpace(email)) != s.staffEmail {
		return "", Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", Identity{}, ErrInvalidCredentials
	}

	now := s.now()
	id := Identity{Email: s.staffEmail, TokenID: uuid.NewString(), ExpiresAt: now.Add(s.ttl).Truncate(time.Second)}
	claims := Claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.TokenID,
			Issuer:    issuer,
			Subject:   id.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("sign token: %w", err)
	}
	return token, id, nil
}

// Verify parses a bearer token and rejects revoked ones.
func (s *Service) Verify(token string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, ok := s.revoked.Get(claims.ID); ok {
		return Identity{}, ErrRevoked
	}
	return Identity{Email: claims.Email, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke blocks the identity's token until it expires.
func (s *Service) Revoke(id Identity) {
	if id.TokenID == "" {
		return
	}
	s.revoked.SetUntil(id.TokenID, struct{}{}, id.ExpiresAt)
}

func (s *Service) Current(ctx context.Context) (Identity, bool) {
	return FromContext(ctx)
}

func (s *Service) SignOut(ctx context.Context) error {
	id, ok := FromContext(ctx)
	if !ok {
		return ErrNoIdentity
	}
	s.Revoke(id)
	return nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// HashPassword is used by the hash-password command to produce the
// configured staff hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
