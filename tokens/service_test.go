package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	loginSecret  = []byte("login-secret-for-tests")
	secureSecret = []byte("secure-secret-for-tests")
)

func testConfig() Config {
	return Config{
		Login:  TierConfig{Secret: loginSecret, DefaultTTL: 8 * 24 * time.Hour, MaxTTL: 30 * 24 * time.Hour},
		Secure: TierConfig{Secret: secureSecret, DefaultTTL: 24 * time.Hour, MaxTTL: 7 * 24 * time.Hour},
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(testConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock
}

// signRaw builds tokens the service would never issue itself
func signRaw(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestNewService_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty login secret", func(c *Config) { c.Login.Secret = nil }},
		{"empty secure secret", func(c *Config) { c.Secure.Secret = []byte{} }},
		{"shared secret", func(c *Config) { c.Secure.Secret = []byte(string(c.Login.Secret)) }},
		{"zero default ttl", func(c *Config) { c.Login.DefaultTTL = 0 }},
		{"max below default", func(c *Config) { c.Secure.MaxTTL = time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			svc, err := NewService(cfg)
			assert.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestIssue_TTLSelection(t *testing.T) {
	svc, clock := newTestService(t)

	tests := []struct {
		name string
		tier Tier
		ttl  time.Duration
		want time.Duration
	}{
		{"login default", TierLogin, 0, 8 * 24 * time.Hour},
		{"secure default", TierSecure, -time.Minute, 24 * time.Hour},
		{"explicit", TierSecure, 15 * time.Minute, 15 * time.Minute},
		{"clamped to max", TierLogin, 365 * 24 * time.Hour, 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issued, err := svc.Issue("alice-id", tt.tier, tt.ttl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, issued.TTL)
			assert.Equal(t, tt.tier, issued.Tier)
			assert.Equal(t, clock.now.Add(tt.want), issued.ExpiresAt)
		})
	}
}

func TestIssue_Errors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Issue("", TierLogin, 0)
	assert.Error(t, err)

	_, err = svc.Issue("id", Tier("refresh"), 0)
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestIssue_ClaimSets(t *testing.T) {
	svc, _ := newTestService(t)
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	login, err := svc.Issue("subject-1", TierLogin, 0)
	require.NoError(t, err)
	raw := jwt.MapClaims{}
	_, _, err = parser.ParseUnverified(login.Token, raw)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub", "exp"}, keys(raw))

	secure, err := svc.Issue("subject-1", TierSecure, 0)
	require.NoError(t, err)
	raw = jwt.MapClaims{}
	_, _, err = parser.ParseUnverified(secure.Token, raw)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub", "exp", "token_type"}, keys(raw))
	assert.Equal(t, "secure", raw["token_type"])
}

func keys(m jwt.MapClaims) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestVerify_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	subject := uuid.New().String()

	login, err := svc.Issue(subject, TierLogin, 0)
	require.NoError(t, err)
	claims, err := svc.Verify(login.Token, TierLogin, "")
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.Empty(t, claims.TokenType)
	assert.Equal(t, login.ExpiresAt, claims.ExpiresAt)
	assert.Equal(t, time.UTC, claims.ExpiresAt.Location())

	secure, err := svc.Issue(subject, TierSecure, 0)
	require.NoError(t, err)
	claims, err = svc.Verify(secure.Token, TierSecure, subject)
	require.NoError(t, err)
	assert.Equal(t, SecureTokenType, claims.TokenType)
}

func TestVerify_Rejections(t *testing.T) {
	svc, _ := newTestService(t)
	subject := "user-1"
	exp := jwt.NewNumericDate(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))

	login, err := svc.Issue(subject, TierLogin, 0)
	require.NoError(t, err)
	secure, err := svc.Issue(subject, TierSecure, 0)
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		tier     Tier
		expected string
	}{
		{"empty token", "", TierLogin, ""},
		{"garbage", "not-a-jwt", TierLogin, ""},
		{"login token on secure tier", login.Token, TierSecure, subject},
		{"secure token on login tier", secure.Token, TierLogin, ""},
		{"secure token for another subject", secure.Token, TierSecure, "user-2"},
		{"secure token with empty expected subject", secure.Token, TierSecure, ""},
		{
			"secure secret without token_type",
			signRaw(t, jwt.SigningMethodHS256, secureSecret, tokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ExpiresAt: exp},
			}),
			TierSecure, subject,
		},
		{
			"login secret with token_type",
			signRaw(t, jwt.SigningMethodHS256, loginSecret, tokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ExpiresAt: exp},
				TokenType:        SecureTokenType,
			}),
			TierLogin, "",
		},
		{
			"missing exp",
			signRaw(t, jwt.SigningMethodHS256, loginSecret, tokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
			}),
			TierLogin, "",
		},
		{
			"missing sub",
			signRaw(t, jwt.SigningMethodHS256, loginSecret, tokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
			}),
			TierLogin, "",
		},
		{
			"other algorithm",
			signRaw(t, jwt.SigningMethodHS512, loginSecret, tokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ExpiresAt: exp},
			}),
			TierLogin, "",
		},
		{
			"unsigned",
			signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, tokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ExpiresAt: exp},
			}),
			TierLogin, "",
		},
		{"unknown tier", login.Token, Tier("refresh"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Verify(tt.token, tt.tier, tt.expected)
			assert.Nil(t, claims)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
			assert.Equal(t, "could not validate credentials", err.Error())

			var verr *VerificationError
			require.True(t, errors.As(err, &verr))
			assert.NotNil(t, verr.Cause())
		})
	}
}

func TestVerify_Expiry(t *testing.T) {
	svc, clock := newTestService(t)

	issued, err := svc.Issue("user-1", TierSecure, time.Hour)
	require.NoError(t, err)

	clock.now = clock.now.Add(59 * time.Minute)
	_, err = svc.Verify(issued.Token, TierSecure, "user-1")
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = svc.Verify(issued.Token, TierSecure, "user-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_TiersDoNotShareKeys(t *testing.T) {
	other, err := NewService(Config{
		Login:  TierConfig{Secret: []byte("another-login"), DefaultTTL: time.Hour, MaxTTL: time.Hour},
		Secure: TierConfig{Secret: []byte("another-secure"), DefaultTTL: time.Hour, MaxTTL: time.Hour},
	})
	require.NoError(t, err)
	svc, _ := newTestService(t)

	foreign, err := other.Issue("user-1", TierLogin, 0)
	require.NoError(t, err)

	_, err = svc.Verify(foreign.Token, TierLogin, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
