package token

import (
	"time"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/users"
)

// Type discriminates the two kinds of security tokens the server mints.
type Type string

const (
	TypeAccessToken   Type = "access_token"
	TypeIdentityToken Type = "identity_token"
)

// Token is the internal typed claim bag. It is rendered to a signed string
// (or stored by reference) by the Manager's CreateSecurityToken.
type Token struct {
	Type         Type
	Audience     string
	Issuer       string
	Lifetime     int // seconds
	Claims       []users.Claim
	Client       *clients.Client
	CreationTime time.Time
}

// SubjectID returns the token's sub claim, or "".
func (t *Token) SubjectID() string {
	for _, c := range t.Claims {
		if c.Type == "sub" {
			return c.Value
		}
	}
	return ""
}

// Scopes returns all scope claim values on the token.
func (t *Token) Scopes() []string {
	var list []string
	for _, c := range t.Claims {
		if c.Type == "scope" {
			list = append(list, c.Value)
		}
	}
	return list
}

// Expired reports whether the token's lifetime has elapsed at now.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.CreationTime.Add(time.Duration(t.Lifetime) * time.Second))
}

// AuthorizationCode is the one-time-use artifact minted at the authorization
// endpoint and redeemed at the token endpoint. Consumed (read-then-delete)
// exactly once; redemption after expiry or reuse is an error.
type AuthorizationCode struct {
	Client  *clients.Client
	Subject *users.Subject

	RequestedScopes []string
	RedirectURI     string

	// IsOpenID records whether the openid scope drove the request, which
	// decides whether an identity token accompanies redemption.
	IsOpenID        bool
	WasConsentShown bool
	Nonce           string

	// PKCE binding, empty when the client did not use PKCE.
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeChallengeMethod

	CreationTime time.Time
}

// Expired reports whether the code has outlived the client's configured
// authorization code lifetime at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	lifetime := c.Client.AuthorizationCodeLifetime
	if lifetime == 0 {
		lifetime = clients.DefaultAuthorizationCodeLifetime
	}
	return now.After(c.CreationTime.Add(time.Duration(lifetime) * time.Second))
}

// RequestedOfflineAccess reports whether the code's scopes included
// offline_access, entitling the redemption to a refresh token.
func (c *AuthorizationCode) RequestedOfflineAccess() bool {
	return oauth2.ScopesContain(c.RequestedScopes, oauth2.ScopeOfflineAccess)
}

// RefreshToken wraps an access token together with rotation/expiration state.
// The store key is an opaque handle; Handle mirrors it on the value for
// convenience after lookup.
type RefreshToken struct {
	Handle   string
	ClientID string

	// AccessToken is the access token issued alongside this refresh token.
	// Its claims are the subject's claims as of the original grant.
	AccessToken *Token

	Subject *users.Subject

	// LifeTime is the current lifetime in seconds from CreationTime.
	// Sliding expiration rewrites it on each use.
	LifeTime     int
	CreationTime time.Time
}

// Expired reports whether the refresh token's lifetime has elapsed at now.
func (rt *RefreshToken) Expired(now time.Time) bool {
	return now.After(rt.CreationTime.Add(time.Duration(rt.LifeTime) * time.Second))
}

// SubjectID returns the stable subject identifier bound to the token.
func (rt *RefreshToken) SubjectID() string {
	if rt.Subject != nil {
		return rt.Subject.SubjectID
	}
	return ""
}
