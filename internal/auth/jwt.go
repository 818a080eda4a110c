// Package auth validates gateway-issued JWT bearer tokens for the mutating
// API endpoints. Token issuance lives in the gateway; this service only
// verifies.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKeySubject is the gin context key for the authenticated subject.
const ContextKeySubject = "auth_subject"

var (
	// ErrTokenExpired signals an expired but otherwise valid token.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken covers every other validation failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Validate parses and verifies a token, returning its subject.
func (v *Verifier) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return "", ErrTokenExpired
	}
	return claims.Subject, nil
}

// Middleware returns a gin middleware enforcing a valid bearer token. A nil
// verifier (auth disabled) passes everything through.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		subject, err := v.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextKeySubject, subject)
		c.Next()
	}
}
