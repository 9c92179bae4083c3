// Package idp maintains the registry of external OpenID Connect providers a
// login page can hand the user off to. Providers are registered by name; the
// protocol engine refers to them through the idp login hint and the client's
// identity provider restrictions.
package idp

import (
	"context"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/corewell/go-identity-server/users"
)

// ProviderConfig is the registration for a single upstream provider.
type ProviderConfig struct {
	// Name identifies the provider in idp hints and client restrictions.
	Name string

	// Issuer is the provider's issuer URL, used for OIDC discovery.
	Issuer string

	ClientID     string
	ClientSecret string

	// RedirectURL is the callback on this server the provider returns to.
	RedirectURL string

	// Scopes requested from the provider. openid is always included.
	Scopes []string
}

type connection struct {
	provider *oidc.Provider
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// Registry holds the configured external providers. Discovery against each
// issuer happens lazily on first use and the result is cached.
type Registry struct {
	configs map[string]ProviderConfig

	connections     map[string]*connection
	connectionsLock sync.RWMutex
}

// NewRegistry builds a registry from the given provider configurations.
func NewRegistry(configs ...ProviderConfig) (*Registry, error) {
	r := &Registry{
		configs:     make(map[string]ProviderConfig),
		connections: make(map[string]*connection),
	}
	for _, c := range configs {
		if c.Name == "" || c.Issuer == "" || c.ClientID == "" {
			return nil, errors.Errorf("[NewRegistry] provider %q needs a name, issuer and client id", c.Name)
		}
		if _, exists := r.configs[c.Name]; exists {
			return nil, errors.Errorf("[NewRegistry] duplicate provider %q", c.Name)
		}
		r.configs[c.Name] = c
	}
	return r, nil
}

// Names returns the registered provider names, for login page rendering.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.configs[name]
	return ok
}

// AuthCodeURL returns the provider's authorization URL for a login handoff.
// State and nonce are caller-generated and must be checked on the way back.
func (r *Registry) AuthCodeURL(ctx context.Context, name, state, nonce string) (string, error) {
	conn, err := r.connect(ctx, name)
	if err != nil {
		return "", err
	}
	return conn.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// Callback redeems the provider's authorization code, verifies the returned
// id_token against the expected nonce, and maps it to an external identity.
func (r *Registry) Callback(ctx context.Context, name, code, nonce string) (*users.ExternalIdentity, error) {
	conn, err := r.connect(ctx, name)
	if err != nil {
		return nil, err
	}

	token, err := conn.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrapf(err, "[Registry.Callback] exchanging code with %q", name)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.Errorf("[Registry.Callback] no id_token in response from %q", name)
	}

	idToken, err := conn.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrapf(err, "[Registry.Callback] verifying id_token from %q", name)
	}
	if idToken.Nonce != nonce {
		return nil, errors.Errorf("[Registry.Callback] nonce mismatch from %q", name)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrapf(err, "[Registry.Callback] extracting claims from %q", name)
	}

	external := &users.ExternalIdentity{
		Provider:   name,
		ProviderID: idToken.Subject,
	}
	if claims.Email != "" {
		external.Claims = append(external.Claims, users.Claim{Type: "email", Value: claims.Email})
	}
	if claims.Name != "" {
		external.Claims = append(external.Claims, users.Claim{Type: "name", Value: claims.Name})
	}
	return external, nil
}

func (r *Registry) connect(ctx context.Context, name string) (*connection, error) {
	r.connectionsLock.RLock()
	conn, exists := r.connections[name]
	r.connectionsLock.RUnlock()
	if exists {
		return conn, nil
	}

	config, ok := r.configs[name]
	if !ok {
		return nil, errors.Errorf("[Registry.connect] unknown provider %q", name)
	}

	provider, err := oidc.NewProvider(ctx, config.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[Registry.connect] discovering %q", name)
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	} else if !containsScope(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	conn = &connection{
		provider: provider,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
	}

	r.connectionsLock.Lock()
	r.connections[name] = conn
	r.connectionsLock.Unlock()

	return conn, nil
}

func containsScope(scopes []string, name string) bool {
	for _, s := range scopes {
		if s == name {
			return true
		}
	}
	return false
}
