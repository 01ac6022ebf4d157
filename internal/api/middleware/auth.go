// Package middleware provides the gin middleware of the HTTP API.
package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/config"
)

// Principal kinds attached to a request.
const (
	PrincipalAccount = "account"
	PrincipalAdmin   = "admin"
	PrincipalSystem  = "system"
)

const (
	ctxAccountID = "account_id"
	ctxPrincipal = "principal"

	headerAdminSecret  = "X-Admin-Secret"
	headerSystemSecret = "X-System-Secret"
)

// Claims is the JWT payload of an account token.
type Claims struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator resolves the principal of a request.
type Authenticator struct {
	secret       []byte
	ttl          time.Duration
	adminSecret  []byte
	systemSecret []byte
}

// NewAuthenticator creates an Authenticator from auth config.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		secret:       []byte(cfg.JWTSecret),
		ttl:          ttl,
		adminSecret:  []byte(cfg.AdminSecret),
		systemSecret: []byte(cfg.SystemSecret),
	}
}

// GenerateToken issues an HS256 token for an account.
func (a *Authenticator) GenerateToken(accountID int64, username string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}

	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns its claims.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.AccountID <= 0 {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Account requires a valid bearer token.
func (a *Authenticator) Account() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		claims, err := a.ParseToken(parts[1])
		if err != nil {
			log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("Invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxAccountID, claims.AccountID)
		c.Set(ctxPrincipal, PrincipalAccount)
		c.Next()
	}
}

// Admin requires the admin shared secret.
func (a *Authenticator) Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !secretMatches(a.adminSecret, c.GetHeader(headerAdminSecret)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Set(ctxPrincipal, PrincipalAdmin)
		c.Next()
	}
}

// SystemOrAdmin accepts either the system or the admin shared secret.
func (a *Authenticator) SystemOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch {
		case secretMatches(a.systemSecret, c.GetHeader(headerSystemSecret)):
			c.Set(ctxPrincipal, PrincipalSystem)
		case secretMatches(a.adminSecret, c.GetHeader(headerAdminSecret)):
			c.Set(ctxPrincipal, PrincipalAdmin)
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "System access required"})
			return
		}
		c.Next()
	}
}

// secretMatches compares in constant time. An unset secret never matches.
func secretMatches(want []byte, got string) bool {
	if len(want) == 0 || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare(want, []byte(got)) == 1
}

// GetAccountID returns the authenticated account.
func GetAccountID(c *gin.Context) (int64, error) {
	v, exists := c.Get(ctxAccountID)
	if !exists {
		return 0, errors.New("account_id not found in context")
	}
	id, ok := v.(int64)
	if !ok {
		return 0, errors.New("invalid account_id type")
	}
	return id, nil
}

// GetPrincipal returns the principal kind of the request, or "".
func GetPrincipal(c *gin.Context) string {
	return c.GetString(ctxPrincipal)
}
