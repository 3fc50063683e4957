// Package auth verifies bearer tokens for the speech gateway. Tokens are
// RS256 JWTs issued by the platform identity provider; their public keys
// are fetched from the provider's JWKS endpoint and cached with a TTL.
//
// Every request resolves to a [Principal]. Requests without an
// Authorization header get the anonymous principal, which carries
// read-only permissions. Requests with a token that fails any check
// (prefix, signature, algorithm, audience, expiry, claims) are rejected
// with a single uniform error code so the response never reveals which
// check failed.
package auth

import (
	"encoding/json"
	"fmt"
)

// Permission is a named capability granted to a principal. The set of
// permissions is closed: tokens carrying an unknown permission string are
// rejected as a whole.
type Permission string

const (
	PermissionGetSpeech    Permission = "GetSpeech"
	PermissionCreateSpeech Permission = "CreateSpeech"
	PermissionUpdateSpeech Permission = "UpdateSpeech"
	PermissionDeleteSpeech Permission = "DeleteSpeech"
	PermissionGetPerson    Permission = "GetPerson"
	PermissionCreatePerson Permission = "CreatePerson"
	PermissionUpdatePerson Permission = "UpdatePerson"
	PermissionDeletePerson Permission = "DeletePerson"
)

// allPermissions is the closed set accepted in token claims.
var allPermissions = map[Permission]bool{
	PermissionGetSpeech:    true,
	PermissionCreateSpeech: true,
	PermissionUpdateSpeech: true,
	PermissionDeleteSpeech: true,
	PermissionGetPerson:    true,
	PermissionCreatePerson: true,
	PermissionUpdatePerson: true,
	PermissionDeletePerson: true,
}

// ParsePermission converts a string to a Permission, rejecting anything
// outside the closed set.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !allPermissions[p] {
		return "", fmt.Errorf("auth: unknown permission %q", s)
	}
	return p, nil
}

// UnmarshalJSON rejects unknown permission strings, so a token whose
// permissions claim contains anything outside the closed set fails to
// parse.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// String returns the permission name as it appears in token claims.
func (p Permission) String() string { return string(p) }

// Principal is the resolved caller of a request: either the subject of a
// verified token or the anonymous principal. The permission set is fixed
// at construction.
type Principal struct {
	// UserID is the subject's stable identifier, empty for anonymous
	// callers and for tokens that do not carry one.
	UserID string

	// Username is a display name, empty when the token omits it.
	Username string

	permissions map[Permission]bool
}

// NewPrincipal builds a Principal with the given identity and permission
// set.
func NewPrincipal(userID, username string, perms []Permission) Principal {
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return Principal{UserID: userID, Username: username, permissions: set}
}

// Anonymous returns the principal assigned to requests without an
// Authorization header. It can read persons and speeches but cannot
// mutate anything.
func Anonymous() Principal {
	return NewPrincipal("", "", []Permission{
		PermissionGetPerson,
		PermissionGetSpeech,
	})
}

// HasPermission reports whether the principal holds the permission.
func (p Principal) HasPermission(perm Permission) bool {
	return p.permissions[perm]
}

// Permissions returns the principal's permissions in unspecified order.
func (p Principal) Permissions() []Permission {
	out := make([]Permission, 0, len(p.permissions))
	for perm := range p.permissions {
		out = append(out, perm)
	}
	return out
}
