package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"oasis-billing/internal/infra/logging"
	"oasis-billing/internal/infra/metrics"
)

const roleAdmin = "admin"

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// ===== Admin JWT primitives =====

type AuthManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AuthManager{secret: []byte(secret), issuer: "oasis-billing", ttl: ttl}
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Mint signs an admin token for subject.
func (a *AuthManager) Mint(subject string, now time.Time) (string, error) {
	claims := AdminClaims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
	)
	if err != nil || !tkn.Valid || claims.Role != roleAdmin {
		return nil, errInvalidToken
	}
	return claims, nil
}

type adminCtxKey struct{}

func withAdmin(ctx context.Context, c *AdminClaims) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, c)
}

func adminFrom(ctx context.Context) *AdminClaims {
	c, _ := ctx.Value(adminCtxKey{}).(*AdminClaims)
	return c
}

// RequireAdmin rejects requests without a valid admin token. A nil manager
// means the admin API is not configured and every request is refused.
func RequireAdmin(auth *AuthManager, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				logging.With(r.Context(), logger).Error().Msg("admin API secret is not configured")
				metrics.IncAdminRequest("auth", "forbidden")
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			claims, err := auth.ParseFromRequest(r)
			if err != nil {
				metrics.IncAdminRequest("auth", "unauthorized")
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), claims)))
		})
	}
}
