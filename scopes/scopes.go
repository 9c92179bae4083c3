package scopes

import "github.com/corewell/go-identity-server/oauth2"

// ScopeType partitions scopes into identity scopes (openid-family, mapping to
// identity claims) and resource scopes (API access).
type ScopeType string

const (
	TypeIdentity ScopeType = "identity"
	TypeResource ScopeType = "resource"
)

// Scope is a named permission unit. Scopes are read-only reference data,
// loaded from a Store and never mutated by the engine.
type Scope struct {
	// Name is the unique scope identifier used on the wire.
	Name string `json:"name"`

	Type ScopeType `json:"type"`

	// ClaimNames lists the claim types released when the scope is granted.
	ClaimNames []string `json:"claim_names,omitempty"`

	// UI hints, not protocol-relevant.
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
	Emphasize   bool   `json:"emphasize,omitempty"`

	// Required scopes cannot be deselected on the consent screen.
	Required bool `json:"required,omitempty"`
}

// IsIdentity reports whether the scope maps to identity claims.
func (s Scope) IsIdentity() bool { return s.Type == TypeIdentity }

// StandardScopes returns the built-in OIDC scope definitions. The claim
// tables are constructed once and treated as read-only configuration.
func StandardScopes() []Scope {
	return []Scope{
		{
			Name:        oauth2.ScopeOpenID,
			Type:        TypeIdentity,
			ClaimNames:  []string{"sub"},
			Required:    true,
			DisplayName: "Your user identifier",
		},
		{
			Name: oauth2.ScopeProfile,
			Type: TypeIdentity,
			ClaimNames: []string{
				"name", "family_name", "given_name", "middle_name", "nickname",
				"preferred_username", "profile", "picture", "website", "gender",
				"birthdate", "zoneinfo", "locale", "updated_at",
			},
			DisplayName: "User profile",
			Emphasize:   true,
		},
		{
			Name:        oauth2.ScopeEmail,
			Type:        TypeIdentity,
			ClaimNames:  []string{"email", "email_verified"},
			DisplayName: "Your email address",
			Emphasize:   true,
		},
		{
			Name:        oauth2.ScopeAddress,
			Type:        TypeIdentity,
			ClaimNames:  []string{"address"},
			DisplayName: "Your postal address",
			Emphasize:   true,
		},
		{
			Name:        oauth2.ScopePhone,
			Type:        TypeIdentity,
			ClaimNames:  []string{"phone_number", "phone_number_verified"},
			DisplayName: "Your phone number",
			Emphasize:   true,
		},
		{
			Name:        oauth2.ScopeOfflineAccess,
			Type:        TypeResource,
			DisplayName: "Offline access",
			Emphasize:   true,
		},
	}
}
