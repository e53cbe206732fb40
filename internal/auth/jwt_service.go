package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when the service is built without an explicit TTL.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenInvalid is returned for malformed tokens and bad signatures.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for tokens revoked by logout.
	ErrTokenRevoked = errors.New("token revoked")
)

// Identity is what gets embedded in a token.
type Identity struct {
	ID    uuid.UUID
	Name  string
	Email string
	Roles []string
}

// Claims represents JWT claims. The account id travels in the subject.
type Claims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// AccountID parses the subject as an account id.
func (c *Claims) AccountID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	return id, nil
}

// RemainingTTL returns how long the token stays valid, never negative.
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Time.Sub(now); d > 0 {
		return d
	}
	return 0
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService creates a new JWT service with the given secret and TTL.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL returns the configured token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// GenerateToken issues a token for identity using the configured TTL.
func (s *JWTService) GenerateToken(identity Identity) (string, error) {
	return s.GenerateTokenWithTTL(identity, s.ttl)
}

// GenerateTokenWithTTL issues a token that expires ttl from now. A ttl of zero
// or less yields a token that is already expired.
func (s *JWTService) GenerateTokenWithTTL(identity Identity, ttl time.Duration) (string, error) {
	roles := identity.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}

	now := time.Now()
	claims := &Claims{
		Name:  identity.Name,
		Email: identity.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   identity.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
