package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenTTL is the fixed lifetime of an issued token.
	TokenTTL = 24 * time.Hour

	// DevelopmentSecret signs tokens when no secret is configured.
	// Anyone who knows it can forge tokens; never run production on it.
	DevelopmentSecret = "fallback_secret"
)

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// Claims is the signed payload of an access token.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access tokens.
// It is immutable after construction and safe for concurrent use.
type TokenService struct {
	secret   []byte
	insecure bool
	ttl      time.Duration
	now      func() time.Time
}

type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService builds a token service for secret. An empty secret falls
// back to DevelopmentSecret and marks the service insecure; any other value,
// whitespace included, is used as given.
func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    time.Now,
	}
	if secret == "" {
		s.secret = []byte(DevelopmentSecret)
		s.insecure = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insecure reports whether the service signs with DevelopmentSecret.
func (s *TokenService) Insecure() bool {
	return s.insecure
}

// Issue signs a token for userID valid for TokenTTL from now.
func (s *TokenService) Issue(userID int64) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the token's user id.
// Failures wrap ErrTokenMalformed, ErrTokenSignature or ErrTokenExpired.
func (s *TokenService) Verify(token string) (int64, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// reject non-canonical encodings so only the exact issued string verifies
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return 0, fmt.Errorf("%w: %v", ErrTokenSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return 0, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return 0, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	if claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing userId claim", ErrTokenMalformed)
	}
	return claims.UserID, nil
}
