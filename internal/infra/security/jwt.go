package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
)

var (
	// ErrTokenMalformed covers bad encoding, bad signature, wrong algorithm and missing claims.
	ErrTokenMalformed = errors.New("jwt: token invalid")
	// ErrTokenExpired indicates the token is past its exp claim.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrSecretMissing indicates the codec was built without a signing secret.
	ErrSecretMissing = errors.New("jwt: signing secret is required")
)

// DefaultTokenTTL is the fixed bearer token lifetime. There is no refresh.
const DefaultTokenTTL = 24 * time.Hour

// AccessTokenClaims is the JWT body carried by bearer tokens.
type AccessTokenClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 bearer tokens with a symmetric secret.
// Verification is a pure function of the token, the secret and the clock.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenCodecOption customises a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithTokenTTL overrides the 24h default lifetime.
func WithTokenTTL(ttl time.Duration) TokenCodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithIssuer sets and enforces the iss claim.
func WithIssuer(issuer string) TokenCodecOption {
	return func(c *TokenCodec) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec constructs a codec. Rotating secret invalidates every outstanding token.
func NewTokenCodec(secret string, opts ...TokenCodecOption) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}
	c := &TokenCodec{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs claims. IssuedAt and ExpiresAt are always set by the codec and
// returned so callers can echo the expiry to clients.
func (c *TokenCodec) Issue(claims port.TokenClaims) (string, port.TokenClaims, error) {
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		return "", port.TokenClaims{}, fmt.Errorf("jwt: user id is required")
	}

	// NumericDate has second precision; truncating keeps verify(issue(c)) == c.
	issuedAt := c.now().UTC().Truncate(time.Second)
	claims.UserID = userID
	claims.IssuedAt = issuedAt
	claims.ExpiresAt = issuedAt.Add(c.ttl)

	body := AccessTokenClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   string(claims.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(c.secret)
	if err != nil {
		return "", port.TokenClaims{}, fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the embedded claims.
func (c *TokenCodec) Verify(token string) (port.TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return port.TokenClaims{}, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	body := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, body, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return port.TokenClaims{}, ErrTokenExpired
		}
		return port.TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if parsed == nil || !parsed.Valid || strings.TrimSpace(body.UserID) == "" {
		return port.TokenClaims{}, ErrTokenMalformed
	}

	out := port.TokenClaims{
		UserID: body.UserID,
		Email:  body.Email,
		Role:   domain.Role(body.Role),
	}
	if body.IssuedAt != nil {
		out.IssuedAt = body.IssuedAt.Time.UTC()
	}
	if body.ExpiresAt != nil {
		out.ExpiresAt = body.ExpiresAt.Time.UTC()
	}
	return out, nil
}
