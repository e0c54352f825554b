package tokens

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, mainly for expiry tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service issues and verifies HS256 tokens for both tiers
type Service struct {
	login  TierConfig
	secure TierConfig
	now    func() time.Time
}

// NewService validates the configuration and creates a token service
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Login.Secret) == 0 || len(cfg.Secure.Secret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if bytes.Equal(cfg.Login.Secret, cfg.Secure.Secret) {
		return nil, errors.New("login and secure tiers must use different secrets")
	}
	for tier, tc := range map[Tier]TierConfig{TierLogin: cfg.Login, TierSecure: cfg.Secure} {
		if tc.DefaultTTL <= 0 {
			return nil, fmt.Errorf("%s tier: default ttl must be positive", tier)
		}
		if tc.MaxTTL < tc.DefaultTTL {
			return nil, fmt.Errorf("%s tier: max ttl must be at least the default", tier)
		}
	}

	s := &Service{
		login:  cfg.Login,
		secure: cfg.Secure,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) tier(t Tier) (TierConfig, error) {
	switch t {
	case TierLogin:
		return s.login, nil
	case TierSecure:
		return s.secure, nil
	default:
		return TierConfig{}, fmt.Errorf("%w: %q", ErrUnknownTier, t)
	}
}

// DefaultTTL returns the lifetime used when Issue is called with ttl <= 0
func (s *Service) DefaultTTL(t Tier) time.Duration {
	tc, err := s.tier(t)
	if err != nil {
		return 0
	}
	return tc.DefaultTTL
}

// Issue signs a token for subject. A non-positive ttl selects the tier
// default and anything above the tier maximum is clamped to it.
func (s *Service) Issue(subject string, t Tier, ttl time.Duration) (*IssuedToken, error) {
	if subject == "" {
		return nil, errors.New("token subject must not be empty")
	}
	tc, err := s.tier(t)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = tc.DefaultTTL
	}
	if ttl > tc.MaxTTL {
		ttl = tc.MaxTTL
	}

	expiresAt := s.now().Add(ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if t == TierSecure {
		claims.TokenType = SecureTokenType
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s token: %w", t, err)
	}

	return &IssuedToken{
		Token:     signed,
		Tier:      t,
		ExpiresAt: expiresAt,
		TTL:       ttl,
	}, nil
}

// Verify checks a token against a tier. For the secure tier the subject must
// equal expectedSubject; the login tier ignores it.
func (s *Service) Verify(token string, t Tier, expectedSubject string) (*Claims, error) {
	tc, err := s.tier(t)
	if err != nil {
		return nil, &VerificationError{cause: err}
	}
	if token == "" {
		return nil, invalid("empty token")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return tc.Secret, nil
	})
	if err != nil {
		return nil, invalid("parse %s token: %v", t, err)
	}
	if !parsed.Valid {
		return nil, invalid("%s token not valid", t)
	}

	if claims.Subject == "" {
		return nil, invalid("%s token has no subject", t)
	}

	switch t {
	case TierLogin:
		if claims.TokenType != "" {
			return nil, invalid("login token carries token_type %q", claims.TokenType)
		}
	case TierSecure:
		if claims.TokenType != SecureTokenType {
			return nil, invalid("secure token has token_type %q", claims.TokenType)
		}
		if expectedSubject == "" || claims.Subject != expectedSubject {
			return nil, invalid("secure token subject does not match session")
		}
	}

	return &Claims{
		Subject:   claims.Subject,
		TokenType: claims.TokenType,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
