package httpapi

import (
	"context"

	"github.com/ragchat/gateway/internal/authn"
	"github.com/ragchat/gateway/internal/store"
)

// resolveUser maps the request's validated claims (or, with auth disabled,
// the fixed demo identity) to a local C3 user record, auto-provisioning it
// on first sight.
func (s *Server) resolveUser(ctx context.Context) (*store.User, error) {
	claims := authn.FromContext(ctx)
	if claims == nil {
		return s.store.ResolveUser(ctx, store.DemoUserExternalID, "", "demo", "Demo User")
	}
	displayName := claims.GivenName
	if claims.FamilyName != "" {
		if displayName != "" {
			displayName += " "
		}
		displayName += claims.FamilyName
	}
	if displayName == "" {
		displayName = claims.PreferredUsername
	}
	return s.store.ResolveUser(ctx, claims.Subject, claims.Email, claims.PreferredUsername, displayName)
}

// autoApproveForCaller applies the admin-role heuristic (C10/C11) absent an
// explicit per-request override.
func autoApproveForCaller(ctx context.Context, explicit bool) bool {
	if explicit {
		return true
	}
	return authn.FromContext(ctx).IsAdmin()
}
