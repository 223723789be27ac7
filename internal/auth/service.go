package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/registry"
)

const (
	defaultIssuer    = "ghg-inventory"
	defaultAccessTTL = time.Hour
)

// Claims carries the user attributes the policy depends on.
type Claims struct {
	Role         registry.Role         `json:"role"`
	CompanyID    int64                 `json:"companyId"`
	CompanyRole  registry.CompanyRole  `json:"companyRole"`
	CompanyState registry.CompanyState `json:"companyState"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Token is a signed access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service authenticates users and compiles their abilities.
type Service struct {
	store       registry.Store
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	now         func() time.Time
	abilityOpts []ability.Option
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret sets the HS256 signing secret.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return ErrMissingSecret
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
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

// WithAbilityOptions passes options to every ability the service builds.
func WithAbilityOptions(opts ...ability.Option) ServiceOption {
	return func(s *Service) error {
		s.abilityOpts = append(s.abilityOpts, opts...)
		return nil
	}
}

// NewService constructs Service. A token secret is required.
func NewService(store registry.Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:     store,
		issuer:    defaultIssuer,
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, ErrMissingSecret
	}
	return svc, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Token, Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Token{}, Session{}, ErrUnauthorized
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return Token{}, Session{}, ErrUnauthorized
		}
		return Token{}, Session{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Token{}, Session{}, err
	}
	token, err := s.IssueToken(user)
	if err != nil {
		return Token{}, Session{}, err
	}
	return token, s.SessionFor(user), nil
}

// IssueToken signs an access token for user.
func (s *Service) IssueToken(user registry.User) (Token, error) {
	if user.ID <= 0 {
		return Token{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Role:         user.Role,
		CompanyID:    user.CompanyID,
		CompanyRole:  user.CompanyRole,
		CompanyState: user.CompanyState,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp}, nil
}

// ParseToken verifies the signature, issuer and expiry of a token.
func (s *Service) ParseToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate validates token and reloads the user, so role and company state
// changes made after the token was issued take effect immediately.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return Session{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	return s.SessionFor(user), nil
}

// SessionFor compiles a fresh ability for user.
func (s *Service) SessionFor(user registry.User) Session {
	u := user
	return Session{User: user, Ability: ability.ForUser(&u, s.abilityOpts...)}
}

// AbilityOptions returns the options applied to compiled abilities.
func (s *Service) AbilityOptions() []ability.Option {
	return s.abilityOpts
}
