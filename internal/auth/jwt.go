// Package auth issues and verifies the signed session tokens carried by the
// session cookie. Tokens are bearer credentials: a valid, unexpired token
// authenticates the caller as the embedded account. There is no embedded
// revocation; logout relies on cookie removal plus the repository denylist.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims are the session token claims: the account id plus the registered
// set (jti identifies the token for the logout denylist).
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWT signs and verifies session tokens with a server-held secret.
type JWT struct {
	secret []byte
	ttl    time.Duration
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl}
}

// TTL reports the token lifetime, which the transport reuses as the
// session cookie max age.
func (j *JWT) TTL() time.Duration {
	return j.ttl
}

// Issue creates a signed token for userID expiring after the configured TTL.
func (j *JWT) Issue(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        primitive.NewObjectID().Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// Verify parses and validates a token, returning its claims.
func (j *JWT) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
