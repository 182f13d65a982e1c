package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mahaj/careerchat/pkg/model"
)

type Claims struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type contextKey string

const UserKey contextKey = "user"

// Tokens signs and verifies HS256 bearer tokens.
type Tokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{key: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a new JWT token for a given user ID
func (t *Tokens) GenerateToken(userID string, role model.Role) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", model.ErrInvalidInput)
	}
	now := t.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// ValidateToken parses and validates a JWT token. Every failure is reported
// as model.ErrUnauthenticated.
func (t *Tokens) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = StripBearer(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: no token provided", model.ErrUnauthenticated)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", model.ErrUnauthenticated)
	}
	if claims.UserID == "" {
		return nil, errors.Join(model.ErrUnauthenticated, errors.New("token has no user_id"))
	}

	return claims, nil
}

// StripBearer removes a "Bearer " prefix if present.
func StripBearer(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 7 && strings.EqualFold(s[:7], "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
