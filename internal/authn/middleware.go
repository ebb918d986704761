package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/ragchat/gateway/internal/gatewayerr"
)

type contextKey int

const claimsContextKey contextKey = iota

// ContextWithClaims attaches claims to ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// FromContext extracts claims previously attached by Middleware, or nil.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// Middleware validates the bearer token on every request and rejects
// missing or invalid tokens with auth_missing / auth_invalid. Validated
// claims are attached to the request context for downstream handlers (C3's
// user resolver, C10/C11's auto-approve heuristic).
func Middleware(validator Validator, writeErr func(http.ResponseWriter, *gatewayerr.Error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeErr(w, gatewayerr.NewAuthMissing("missing Authorization header"))
				return
			}

			token := extractToken(header)
			if token == "" {
				writeErr(w, gatewayerr.NewAuthMissing("invalid Authorization format, expected: Bearer <token>"))
				return
			}

			claims, _ := validator.Validate(r.Context(), token)
			if claims == nil {
				writeErr(w, gatewayerr.NewAuthInvalid("invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func extractToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(header)
}
