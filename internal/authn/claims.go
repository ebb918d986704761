package authn

import "time"

// Claims is the claims mapping returned by a successful token validation
// (C2's contract). A nil *Claims return from Validator.Validate means the
// token failed validation for any reason; callers never receive a
// distinction between "malformed", "expired", "wrong audience", etc. — that
// distinction exists only in the validator's own logs.
type Claims struct {
	Subject           string
	Email             string
	PreferredUsername string
	GivenName         string
	FamilyName        string
	Roles             []string
	PrimaryRole       string
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// HasAnyRole reports whether the claims carry any of the given roles,
// checking both the role list and the primary role field.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if c == nil {
		return false
	}
	for _, want := range roles {
		if want == c.PrimaryRole {
			return true
		}
		for _, have := range c.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin is the heuristic C11 uses to decide whether a tool call may
// auto-approve absent explicit server configuration.
func (c *Claims) IsAdmin() bool {
	return c.HasAnyRole("admin", "administrator")
}
