package validation

import (
	"github.com/corewell/go-identity-server/clients"
)

// RedirectURIValidator decides whether a redirect URI may be used with a
// client. Matching is strict equality against the registered list; no
// wildcard or prefix matching.
type RedirectURIValidator struct{}

// NewRedirectURIValidator creates a RedirectURIValidator.
func NewRedirectURIValidator() *RedirectURIValidator {
	return &RedirectURIValidator{}
}

// IsRedirectURIValid reports whether requestedURI is registered for client.
func (v *RedirectURIValidator) IsRedirectURIValid(requestedURI string, client *clients.Client) bool {
	return client.HasRedirectURI(requestedURI)
}

// IsPostLogoutRedirectURIValid reports whether requestedURI is a registered
// post-logout redirect URI for client.
func (v *RedirectURIValidator) IsPostLogoutRedirectURIValid(requestedURI string, client *clients.Client) bool {
	return client.HasPostLogoutRedirectURI(requestedURI)
}
