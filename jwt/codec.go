package jwt

import (
	"errors"
	"fmt"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL is the lifetime of an access token when the caller does
	// not pass one.
	DefaultAccessTTL = 30 * time.Minute

	// TokenTypeAccess is the value of the "type" claim on access tokens.
	TokenTypeAccess = "access"

	minSecretBytes = 32
	maxLeeway      = 2 * time.Minute
)

var (
	// ErrTokenMalformed covers tokens that are not a well-formed access token:
	// bad encoding, missing subject or expiry, wrong type, foreign issuer or audience.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignature is returned when the signature does not verify under
	// the configured secret and algorithm.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenExpired is returned once the current time reaches exp.
	ErrTokenExpired = errors.New("token expired")
)

// Config configures a Codec.
type Config struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Audience  string
	Leeway    time.Duration

	// Now overrides the clock; tests use it to step past expiry.
	Now func() time.Time
}

// Claims is the payload of an access token.
type Claims struct {
	TokenType string `json:"type"`
	gjwt.RegisteredClaims
}

// Codec issues and verifies HS256 access tokens. It performs no I/O and
// cannot revoke a token before exp; early invalidation only happens by
// rotating the secret.
type Codec struct {
	config Config
	now    func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.AccessTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{config: cfg, now: now}, nil
}

// AccessTTL is the lifetime used when Issue is called without one.
func (c *Codec) AccessTTL() time.Duration {
	return c.config.AccessTTL
}

// Issue signs an access token for subject. A non-positive expiresIn falls
// back to the configured AccessTTL.
func (c *Codec) Issue(subject string, expiresIn time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if expiresIn <= 0 {
		expiresIn = c.config.AccessTTL
	}

	now := c.now()
	claims := Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.config.Issuer,
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	}
	if c.config.Audience != "" {
		claims.Audience = gjwt.ClaimStrings{c.config.Audience}
	}

	return gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
}

// Verify checks signature, expiry, and token type. The three failure classes
// are distinguishable with errors.Is, but callers at the API boundary must
// collapse them into one response.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	options := []gjwt.ParserOption{
		gjwt.WithValidMethods([]string{gjwt.SigningMethodHS256.Alg()}),
		gjwt.WithExpirationRequired(),
		gjwt.WithTimeFunc(c.now),
	}
	if c.config.Leeway > 0 {
		options = append(options, gjwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, gjwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, gjwt.WithAudience(c.config.Audience))
	}

	parser := gjwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *gjwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gjwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: token type %q", ErrTokenMalformed, claims.TokenType)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, gjwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, gjwt.ErrTokenSignatureInvalid), errors.Is(err, gjwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	case errors.Is(err, gjwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
