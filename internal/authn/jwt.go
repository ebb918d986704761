package authn

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Validator is the token-validator contract (C2): given a bearer token,
// return its claims or a nil result. Implementations never surface an
// exception for a malformed header, an unsupported algorithm, or an
// unknown key id — all of those yield (nil, nil).
type Validator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// JWTValidator validates bearer tokens against an OIDC-compatible identity
// provider's JWKS endpoint. The key set is fetched once at construction and
// auto-refreshed on a 15-minute minimum interval, tolerating key rotation
// without a restart.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
	logger   hclog.Logger
}

// Config carries C2's externally-configured knobs. Issuer is the
// externally-visible identity-provider URL, which may differ from JWKSURL
// (the URL used for key retrieval inside the deployment network) — a
// frequent point of confusion the validator does not paper over.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// NewJWTValidator fetches JWKS once to fail fast on misconfiguration, then
// returns a validator backed by an auto-refreshing cache.
func NewJWTValidator(ctx context.Context, cfg Config, logger hclog.Logger) (*JWTValidator, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, err
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, err
	}

	return &JWTValidator{
		jwksURL:  cfg.JWKSURL,
		cache:    cache,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		logger:   logger.Named("jwt"),
	}, nil
}

// Validate verifies signature, expiry, issuer, and audience, returning the
// extracted claims on success or (nil, nil) on any validation failure.
func (v *JWTValidator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		v.logger.Warn("jwks unavailable", "error", err)
		return nil, nil
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		v.logger.Debug("token rejected", "error", err)
		return nil, nil
	}

	claims := &Claims{
		Subject:   token.Subject(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}

	if v, ok := token.Get("email"); ok {
		if s, ok := v.(string); ok {
			claims.Email = s
		}
	}
	if v, ok := token.Get("preferred_username"); ok {
		if s, ok := v.(string); ok {
			claims.PreferredUsername = s
		}
	}
	if v, ok := token.Get("given_name"); ok {
		if s, ok := v.(string); ok {
			claims.GivenName = s
		}
	}
	if v, ok := token.Get("family_name"); ok {
		if s, ok := v.(string); ok {
			claims.FamilyName = s
		}
	}
	if roles, ok := token.Get("roles"); ok {
		claims.Roles = toStringSlice(roles)
	}
	if len(claims.Roles) > 0 {
		claims.PrimaryRole = claims.Roles[0]
	}
	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			claims.PrimaryRole = s
			if len(claims.Roles) == 0 {
				claims.Roles = []string{s}
			}
		}
	}

	return claims, nil
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
