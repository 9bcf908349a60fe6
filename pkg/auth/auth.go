package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ride-share/internal/ride-service/domain"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ride-share"

type contextKey string

const identityKey = contextKey("identity")

type AppClaims struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username,omitempty"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager handles generating and verifying JWT tokens.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{[]byte(secretKey), tokenDuration}
}

func (m *JWTManager) GenerateToken(id domain.Identity) (string, error) {
	now := time.Now()
	claims := AppClaims{
		UserID:   id.ID,
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ParseToken checks the token's validity and returns the claims
func (m *JWTManager) ParseToken(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Verify implements domain.IdentityVerifier. credential may carry a
// "Bearer " prefix.
func (m *JWTManager) Verify(ctx context.Context, credential string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	tokenString, err := bearerToken(credential)
	if err != nil {
		return domain.Identity{}, err
	}

	claims, err := m.ParseToken(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, domain.Unauthenticatedf("token expired")
		}
		return domain.Identity{}, domain.Unauthenticatedf("invalid token")
	}
	if claims.UserID == "" {
		return domain.Identity{}, domain.Unauthenticatedf("token has no user id")
	}
	if !claims.Role.IsValid() {
		return domain.Identity{}, domain.Unauthenticatedf("token has unknown role %q", claims.Role)
	}
	return domain.Identity{ID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
}

func bearerToken(credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", domain.Unauthenticatedf("missing authorization token")
	}
	parts := strings.Fields(credential)
	switch {
	case len(parts) == 1:
		return parts[0], nil
	case len(parts) == 2 && strings.EqualFold(parts[0], "bearer"):
		return parts[1], nil
	}
	return "", domain.Unauthenticatedf("invalid authorization header")
}

// AuthMiddleware is an HTTP middleware that verifies the bearer token and
// stores the caller's identity in the request context.
func (m *JWTManager) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		id, err := m.Verify(r.Context(), authHeader)
		if err != nil {
			writeError(w, http.StatusUnauthorized, domain.Message(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the identity stored by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": msg,
	})
}
