package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL   = 15 * time.Minute
	DefaultRefreshDays = 30
	DefaultIssuer      = "leadtrack"

	refreshTokenBytes = 64
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenConfig configures token issuance and validation.
type TokenConfig struct {
	Secret      string
	Issuer      string
	AccessTTL   time.Duration
	RefreshDays int
}

// Tokens issues and validates HS256 access tokens and opaque refresh tokens.
type Tokens struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshDays int
	now         func() time.Time
}

// NewTokens builds a Tokens from cfg. A nil clock means time.Now.
func NewTokens(cfg TokenConfig, now func() time.Time) (*Tokens, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	t := &Tokens{
		secret:      []byte(cfg.Secret),
		issuer:      strings.TrimSpace(cfg.Issuer),
		accessTTL:   cfg.AccessTTL,
		refreshDays: cfg.RefreshDays,
		now:         now,
	}
	if t.issuer == "" {
		t.issuer = DefaultIssuer
	}
	if t.accessTTL <= 0 {
		t.accessTTL = DefaultAccessTTL
	}
	if t.refreshDays <= 0 {
		t.refreshDays = DefaultRefreshDays
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// IssueAccessToken signs a short-lived token for id.
func (t *Tokens) IssueAccessToken(id Identity) (string, time.Time, error) {
	if id.IsZero() {
		return "", time.Time{}, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := AccessClaims{
		Email: id.Email,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken returns a fresh opaque token: 64 random bytes, hex encoded.
func (t *Tokens) IssueRefreshToken() (string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), t.now().UTC().AddDate(0, 0, t.refreshDays), nil
}

// Validate verifies signature, issuer and expiry. Every failure is ErrUnauthenticated.
func (t *Tokens) Validate(token string) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrUnauthenticated
	}
	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return AccessClaims{}, ErrUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return AccessClaims{}, ErrUnauthenticated
	}
	return claims, nil
}

// HashRefreshToken returns the hex sha256 under which a refresh token is stored.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
