package clients

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/corewell/go-identity-server/oauth2"
)

// RefreshTokenUsage controls what happens to a refresh token handle on use.
type RefreshTokenUsage string

const (
	// RefreshTokenUsageOneTimeOnly rotates the handle on every use; the old
	// handle is invalidated.
	RefreshTokenUsageOneTimeOnly RefreshTokenUsage = "one_time_only"

	// RefreshTokenUsageReUse keeps the same handle for the token's lifetime.
	RefreshTokenUsageReUse RefreshTokenUsage = "re_use"
)

// RefreshTokenExpiration controls how a refresh token's lifetime is computed.
type RefreshTokenExpiration string

const (
	// RefreshTokenExpirationAbsolute expires the token a fixed interval after
	// creation, regardless of use.
	RefreshTokenExpirationAbsolute RefreshTokenExpiration = "absolute"

	// RefreshTokenExpirationSliding extends the lifetime on each use, but
	// never beyond the client's AbsoluteRefreshTokenLifetime ceiling.
	RefreshTokenExpirationSliding RefreshTokenExpiration = "sliding"
)

// AccessTokenType selects how access tokens are rendered for a client.
type AccessTokenType string

const (
	// AccessTokenTypeJWT renders access tokens as self-contained signed JWTs.
	AccessTokenTypeJWT AccessTokenType = "jwt"

	// AccessTokenTypeReference renders access tokens as opaque handles
	// resolved through the token handle store.
	AccessTokenTypeReference AccessTokenType = "reference"
)

// Secret is a shared secret registered for a client. Value holds the
// base64-encoded SHA-256 digest of the plaintext secret.
type Secret struct {
	Value       string     `json:"value"`
	Description string     `json:"description,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
}

// Expired reports whether the secret's expiration has passed at now.
func (s Secret) Expired(now time.Time) bool {
	return s.Expiration != nil && now.After(*s.Expiration)
}

// Client is a registered relying party. Loaded from a Store at request time
// and treated as immutable for the duration of a request; the protocol engine
// never mutates it.
type Client struct {
	ID          string `json:"id"`
	ClientName  string `json:"client_name,omitempty"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`

	Secrets []Secret `json:"secrets,omitempty"`

	// Flow determines which grant/response types the client may use.
	Flow oauth2.Flow `json:"flow"`

	// RedirectURIs is the exact-match whitelist for redirect_uri.
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// PostLogoutRedirectURIs is the exact-match whitelist for end-session
	// redirect targets.
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`

	// ScopeRestrictions limits which scopes the client may request.
	// Empty means the client may request any registered scope.
	ScopeRestrictions []string `json:"scope_restrictions,omitempty"`

	// CustomGrantTypeRestrictions names the custom grant types a FlowCustom
	// client may use. Empty means any registered custom grant.
	CustomGrantTypeRestrictions []string `json:"custom_grant_type_restrictions,omitempty"`

	// IdentityProviderRestrictions limits which external identity providers
	// may authenticate users for this client. Empty means no restriction.
	IdentityProviderRestrictions []string `json:"identity_provider_restrictions,omitempty"`

	RequireConsent       bool `json:"require_consent"`
	AllowRememberConsent bool `json:"allow_remember_consent"`

	// Token lifetimes, in seconds.
	IdentityTokenLifetime     int `json:"identity_token_lifetime,omitempty"`
	AccessTokenLifetime       int `json:"access_token_lifetime,omitempty"`
	AuthorizationCodeLifetime int `json:"authorization_code_lifetime,omitempty"`

	// Refresh token lifetimes, in seconds. AbsoluteRefreshTokenLifetime is
	// the hard ceiling; SlidingRefreshTokenLifetime is the per-use window
	// when RefreshTokenExpiration is sliding.
	AbsoluteRefreshTokenLifetime int `json:"absolute_refresh_token_lifetime,omitempty"`
	SlidingRefreshTokenLifetime  int `json:"sliding_refresh_token_lifetime,omitempty"`

	RefreshTokenUsage      RefreshTokenUsage      `json:"refresh_token_usage,omitempty"`
	RefreshTokenExpiration RefreshTokenExpiration `json:"refresh_token_expiration,omitempty"`

	// AccessTokenType selects JWT (default) or reference access tokens.
	AccessTokenType AccessTokenType `json:"access_token_type,omitempty"`

	// UpdateAccessTokenClaimsOnRefresh re-resolves the subject's claims when
	// refreshing instead of copying the original access token's claims.
	UpdateAccessTokenClaimsOnRefresh bool `json:"update_access_token_claims_on_refresh"`
}

// Default lifetimes applied by Defaulted when the registration left them zero.
const (
	DefaultIdentityTokenLifetime     = 300
	DefaultAccessTokenLifetime       = 3600
	DefaultAuthorizationCodeLifetime = 300
	DefaultAbsoluteRefreshLifetime   = 30 * 24 * 3600
	DefaultSlidingRefreshLifetime    = 15 * 24 * 3600
)

// Defaulted returns a copy of the client with zero lifetimes and policies
// replaced by the registration defaults.
func (c Client) Defaulted() Client {
	if c.IdentityTokenLifetime == 0 {
		c.IdentityTokenLifetime = DefaultIdentityTokenLifetime
	}
	if c.AccessTokenLifetime == 0 {
		c.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if c.AuthorizationCodeLifetime == 0 {
		c.AuthorizationCodeLifetime = DefaultAuthorizationCodeLifetime
	}
	if c.AbsoluteRefreshTokenLifetime == 0 {
		c.AbsoluteRefreshTokenLifetime = DefaultAbsoluteRefreshLifetime
	}
	if c.SlidingRefreshTokenLifetime == 0 {
		c.SlidingRefreshTokenLifetime = DefaultSlidingRefreshLifetime
	}
	if c.RefreshTokenUsage == "" {
		c.RefreshTokenUsage = RefreshTokenUsageOneTimeOnly
	}
	if c.RefreshTokenExpiration == "" {
		c.RefreshTokenExpiration = RefreshTokenExpirationAbsolute
	}
	if c.AccessTokenType == "" {
		c.AccessTokenType = AccessTokenTypeJWT
	}
	return c
}

// HashSecret returns the base64-encoded SHA-256 digest used to store and
// compare client secrets.
func HashSecret(plain string) string {
	digest := sha256.Sum256([]byte(plain))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// CheckSecret compares plain against the client's registered secrets,
// skipping expired ones. Comparison is constant time.
func (c *Client) CheckSecret(plain string, now time.Time) bool {
	hashed := HashSecret(plain)
	ok := false
	for _, s := range c.Secrets {
		if s.Expired(now) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(s.Value), []byte(hashed)) == 1 {
			ok = true
		}
	}
	return ok
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// HasPostLogoutRedirectURI reports whether uri exactly matches a registered
// post-logout redirect URI.
func (c *Client) HasPostLogoutRedirectURI(uri string) bool {
	for _, u := range c.PostLogoutRedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScope reports whether the client may request the named scope.
func (c *Client) AllowsScope(scope string) bool {
	if len(c.ScopeRestrictions) == 0 {
		return true
	}
	return oauth2.ScopesContain(c.ScopeRestrictions, scope)
}

// AllowsAllScopes reports whether the client has no scope restrictions.
func (c *Client) AllowsAllScopes() bool {
	return len(c.ScopeRestrictions) == 0
}

// AllowsCustomGrant reports whether a FlowCustom client may use the named
// custom grant type.
func (c *Client) AllowsCustomGrant(grantType string) bool {
	if c.Flow != oauth2.FlowCustom {
		return false
	}
	if len(c.CustomGrantTypeRestrictions) == 0 {
		return true
	}
	return oauth2.ScopesContain(c.CustomGrantTypeRestrictions, grantType)
}

// AllowsIdentityProvider reports whether users authenticated by the named
// identity provider may sign in for this client.
func (c *Client) AllowsIdentityProvider(idp string) bool {
	if len(c.IdentityProviderRestrictions) == 0 {
		return true
	}
	return oauth2.ScopesContain(c.IdentityProviderRestrictions, idp)
}

// AllowsResponseType reports whether the client's configured Flow permits
// the requested response type.
func (c *Client) AllowsResponseType(rt oauth2.ResponseType) bool {
	flow, ok := oauth2.FlowForResponseType(rt)
	if !ok {
		return false
	}
	return c.Flow == flow
}
