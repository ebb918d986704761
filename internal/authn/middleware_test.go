package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	claims *Claims
}

func (f *fakeValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	if token == "good" {
		return f.claims, nil
	}
	return nil, nil
}

func writeTestErr(w http.ResponseWriter, e *gatewayerr.Error) {
	switch e.Kind {
	case gatewayerr.KindAuthMissing:
		w.WriteHeader(http.StatusUnauthorized)
	case gatewayerr.KindAuthInvalid:
		w.WriteHeader(http.StatusUnauthorized)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	v := &fakeValidator{}
	h := Middleware(v, writeTestErr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_InvalidToken(t *testing.T) {
	v := &fakeValidator{}
	h := Middleware(v, writeTestErr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer wrong-aud")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_ValidTokenAttachesClaims(t *testing.T) {
	v := &fakeValidator{claims: &Claims{Subject: "kc-1"}}
	var seen *Claims
	h := Middleware(v, writeTestErr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "kc-1", seen.Subject)
}

func TestClaims_HasAnyRole(t *testing.T) {
	c := &Claims{PrimaryRole: "user", Roles: []string{"user", "admin"}}
	assert.True(t, c.HasAnyRole("admin"))
	assert.True(t, c.IsAdmin())
	assert.False(t, (&Claims{PrimaryRole: "user"}).IsAdmin())
}
