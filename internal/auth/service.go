package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/rs/zerolog"

	"leadtrack.io/internal/audit"
	"leadtrack.io/internal/ids"
	"leadtrack.io/internal/obs"
)

// Service registers identities, logs them in and authenticates bearer tokens.
type Service struct {
	store      Store
	tokens     *Tokens
	bcryptCost int
	now        func() time.Time
	log        zerolog.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithBcryptCost overrides the bcrypt cost used for new password hashes.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost <= 0 {
			return nil
		}
		s.bcryptCost = cost
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger sets the logger used for operational messages.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) error {
		s.log = l
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: tokens are required")
	}
	svc := &Service{
		store:      store,
		tokens:     tokens,
		bcryptCost: DefaultBcryptCost,
		now:        time.Now,
		log:        obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Role      string
	CompanyID *string
}

func (in RegisterInput) validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required),
		validation.Field(&in.Name, validation.Length(0, 200)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Register creates an identity. Unknown roles become SALES_EXECUTIVE; a
// duplicate email yields ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := in.validate(); err != nil {
		return Identity{}, err
	}

	var companyID *string
	if in.CompanyID != nil && strings.TrimSpace(*in.CompanyID) != "" {
		cid := strings.TrimSpace(*in.CompanyID)
		if !ids.Valid(cid) {
			return Identity{}, fmt.Errorf("%w: invalid company id", ErrInvalidInput)
		}
		if _, err := s.store.FindCompanyByID(ctx, cid); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Identity{}, fmt.Errorf("%w: unknown company %s", ErrInvalidInput, cid)
			}
			return Identity{}, err
		}
		companyID = &cid
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: hash password: %w", ErrInternal, err)
	}
	now := s.now().UTC()
	identity := Identity{
		ID:           ids.NewAt(now),
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         ParseRole(in.Role),
		CompanyID:    companyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateIdentity(ctx, &identity); err != nil {
		obs.RecordAuthEvent("register", "failure")
		if errors.Is(err, ErrConflict) {
			return Identity{}, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return Identity{}, err
	}
	obs.RecordAuthEvent("register", "success")
	_ = audit.LogEvent(ctx, "auth.register", map[string]any{
		"identity_id": identity.ID,
		"role":        string(identity.Role),
	})
	return identity, nil
}

// Login verifies credentials and issues an access/refresh pair. The refresh
// token is persisted only after the credentials check out.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	identity, err := s.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.loginFailed(ctx, email, "unknown_email")
			return Session{}, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
		}
		s.log.Error().Err(err).Msg("login lookup failed")
		return Session{}, err
	}
	if !VerifyPassword(password, identity.PasswordHash) {
		s.loginFailed(ctx, email, "bad_password")
		return Session{}, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	}

	access, accessExp, err := s.tokens.IssueAccessToken(identity)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	rec := RefreshToken{
		ID:         ids.New(),
		IdentityID: identity.ID,
		TokenHash:  HashRefreshToken(refresh),
		ExpiresAt:  refreshExp,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateRefreshToken(ctx, &rec); err != nil {
		s.log.Error().Err(err).Str("identity_id", identity.ID).Msg("persist refresh token failed")
		return Session{}, err
	}

	obs.RecordAuthEvent("login", "success")
	_ = audit.LogEvent(ctx, "auth.login.succeeded", map[string]any{"identity_id": identity.ID})
	return Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		Identity:         identity,
	}, nil
}

func (s *Service) loginFailed(ctx context.Context, email, reason string) {
	obs.RecordAuthEvent("login", "failure")
	_ = audit.LogEvent(ctx, "auth.login.failed", map[string]any{"email": email, "reason": reason})
}

// Authenticate validates a bearer token and returns the identity it names as
// currently stored. Tokens for deleted identities are rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		obs.RecordAuthEvent("authenticate", "failure")
		return Identity{}, err
	}
	identity, err := s.store.FindIdentityByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordAuthEvent("authenticate", "failure")
			return Identity{}, fmt.Errorf("%w: identity no longer exists", ErrUnauthenticated)
		}
		return Identity{}, err
	}
	return identity, nil
}
