package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIssuer     = "authservice"

	// minKeySize is the HS256 key length recommended by RFC 7518 section 3.2.
	minKeySize = 32
)

// Claims represents JWT claims carried by access and refresh tokens.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec signs, parses and inspects bearer tokens using a single process-wide HMAC key.
type TokenCodec struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// CodecOption configures TokenCodec behavior.
type CodecOption func(*TokenCodec) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: access ttl must be positive", ErrFatal)
		}
		c.accessTTL = ttl
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: refresh ttl must be positive", ErrFatal)
		}
		c.refreshTTL = ttl
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
		return nil
	}
}

// WithCodecClock overrides time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// ParseSigningKey decodes the base64 secret from configuration.
func ParseSigningKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: signing secret is not configured", ErrFatal)
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: signing secret is not valid base64: %v", ErrFatal, err)
	}
	return key, nil
}

// NewTokenCodec constructs a codec. The key is copied and never mutated afterwards.
func NewTokenCodec(key []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(key) < minKeySize {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes", ErrFatal, minKeySize)
	}
	c := &TokenCodec{
		key:        append([]byte(nil), key...),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.accessTTL >= c.refreshTTL {
		return nil, fmt.Errorf("%w: access ttl must be shorter than refresh ttl", ErrFatal)
	}
	return c, nil
}

// TTL returns the configured lifetime for kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	if kind == TokenRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a token of the given kind for principal.
func (c *TokenCodec) Issue(p Principal, kind TokenKind) (string, error) {
	if strings.TrimSpace(p.Email) == "" {
		return "", invalidf("principal email is required")
	}
	if kind != TokenAccess && kind != TokenRefresh {
		return "", invalidf("unknown token type %q", kind)
	}
	now := c.now().UTC()
	claims := Claims{
		Role: p.Role.String(),
		Type: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   p.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(kind))),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// IssuePair mints an ACCESS and a REFRESH token for principal.
func (c *TokenCodec) IssuePair(p Principal) (TokenPair, error) {
	access, err := c.Issue(p, TokenAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := c.Issue(p, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Parse verifies the signature and decodes claims. Expiry is not checked here.
func (c *TokenCodec) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	claims := &Claims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// ExtractClaim parses token and applies selector to the verified claims.
func ExtractClaim[T any](c *TokenCodec, token string, selector func(*Claims) T) (T, error) {
	var zero T
	claims, err := c.Parse(token)
	if err != nil {
		return zero, err
	}
	return selector(claims), nil
}

// ExtractSubject returns the subject (email) claim.
func (c *TokenCodec) ExtractSubject(token string) (string, error) {
	return ExtractClaim(c, token, func(cl *Claims) string { return cl.Subject })
}

// ExtractRole returns the role claim. An unknown role is reported as malformed.
func (c *TokenCodec) ExtractRole(token string) (RoleName, error) {
	raw, err := ExtractClaim(c, token, func(cl *Claims) string { return cl.Role })
	if err != nil {
		return "", err
	}
	role := RoleName(raw)
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrMalformedToken, raw)
	}
	return role, nil
}

// ExtractType returns the token kind claim.
func (c *TokenCodec) ExtractType(token string) (TokenKind, error) {
	return ExtractClaim(c, token, func(cl *Claims) TokenKind { return TokenKind(cl.Type) })
}

// IsExpired reports whether the token's expiry is at or before now. A token without exp is expired.
func (c *TokenCodec) IsExpired(token string) (bool, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return false, err
	}
	return c.expired(claims), nil
}

func (c *TokenCodec) expired(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return !claims.ExpiresAt.Time.After(c.now())
}

// IsValid holds iff the signature verifies, subject and role match, and the token has not expired.
func (c *TokenCodec) IsValid(token, expectedSubject string, expectedRole RoleName) bool {
	claims, err := c.Parse(token)
	if err != nil {
		return false
	}
	if claims.Subject == "" || claims.Subject != expectedSubject {
		return false
	}
	if claims.Role != expectedRole.String() {
		return false
	}
	return !c.expired(claims)
}

// IsRefreshToken reports whether token is a verified REFRESH token.
func (c *TokenCodec) IsRefreshToken(token string) bool {
	kind, err := c.ExtractType(token)
	return err == nil && kind == TokenRefresh
}
