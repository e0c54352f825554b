// Package tokens signs and verifies the two session token tiers.
//
// A login token proves who the caller is for up to a week or more. A secure
// token is shorter lived, carries token_type "secure" and must name the same
// subject as the login token it travels with.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tier selects the secret and lifetime bounds a token is issued under
type Tier string

const (
	TierLogin  Tier = "login"
	TierSecure Tier = "secure"
)

// SecureTokenType is the token_type claim carried only by secure tokens
const SecureTokenType = "secure"

const credentialsMessage = "could not validate credentials"

var (
	// ErrInvalidToken is matched by every verification failure
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownTier is returned for a tier other than login or secure
	ErrUnknownTier = errors.New("unknown token tier")
)

// VerificationError is returned by Verify. Its message never reveals why the
// token was rejected; the cause is kept for server-side logs.
type VerificationError struct {
	cause error
}

func (e *VerificationError) Error() string {
	return credentialsMessage
}

// Is lets errors.Is(err, ErrInvalidToken) match
func (e *VerificationError) Is(target error) bool {
	return target == ErrInvalidToken
}

// Cause returns the underlying reason
func (e *VerificationError) Cause() error {
	return e.cause
}

func invalid(format string, args ...interface{}) error {
	return &VerificationError{cause: fmt.Errorf(format, args...)}
}

// TierConfig holds the signing secret and lifetime bounds for one tier
type TierConfig struct {
	Secret     []byte
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// Config holds both tiers
type Config struct {
	Login  TierConfig
	Secure TierConfig
}

// IssuedToken is a signed token plus the lifetime it was minted with
type IssuedToken struct {
	Token     string
	Tier      Tier
	ExpiresAt time.Time
	TTL       time.Duration
}

// Claims are the verified contents of a token
type Claims struct {
	Subject   string
	TokenType string
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type,omitempty"`
}
