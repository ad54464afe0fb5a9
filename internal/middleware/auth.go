// Package middleware provides HTTP middleware for the registry API
package middleware

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/cause_registry/internal/errors"
	"github.com/R3E-Network/cause_registry/internal/httputil"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

// Claims represents JWT claims. The caller identity is the Neo address.
type Claims struct {
	NeoAddress string `json:"neo_address"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware provides RS256 JWT authentication
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	issuer    string
	logger    *logging.Logger
}

// NewAuthMiddleware creates a new authentication middleware. An empty
// issuer accepts any issuer.
func NewAuthMiddleware(publicKey *rsa.PublicKey, issuer string, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		publicKey: publicKey,
		issuer:    issuer,
		logger:    logger,
	}
}

// ParsePublicKey decodes a PEM encoded RSA public key.
func ParsePublicKey(pem []byte) (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM(pem)
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.NeoAddress)
		if claims.Role != "" {
			ctx = logging.WithRole(ctx, claims.Role)
		}

		m.logger.WithContext(ctx).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateToken validates a JWT token and returns claims
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, errors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims")
	}
	if claims.NeoAddress == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing neo_address claim")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err)

	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"error":  err.Error(),
	})
}

// GetUserID extracts the caller's Neo address from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}
