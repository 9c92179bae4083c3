package validation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/scopes"
)

// ScopeValidator resolves requested scope names against the scope store and
// tracks which of them end up granted after consent. One instance serves one
// request.
type ScopeValidator struct {
	store scopes.Store

	RequestedScopes []scopes.Scope
	GrantedScopes   []scopes.Scope

	ContainsOpenIDScopes   bool
	ContainsResourceScopes bool
}

// NewScopeValidator creates a ScopeValidator backed by the given scope store.
func NewScopeValidator(store scopes.Store) (*ScopeValidator, error) {
	if store == nil {
		return nil, errors.New("[NewScopeValidator] store is nil")
	}
	return &ScopeValidator{store: store}, nil
}

// AreScopesValid resolves the requested names against the store. Any unknown
// name makes the whole request invalid. On success RequestedScopes and
// GrantedScopes hold the resolved definitions and the partition flags are set.
func (v *ScopeValidator) AreScopesValid(ctx context.Context, requestedScopes []string) (bool, error) {
	found, err := v.store.FindScopes(ctx, requestedScopes)
	if err != nil {
		return false, errors.Wrap(err, "[ScopeValidator.AreScopesValid] find scopes")
	}

	byName := make(map[string]scopes.Scope, len(found))
	for _, scope := range found {
		byName[scope.Name] = scope
	}

	resolved := make([]scopes.Scope, 0, len(requestedScopes))
	for _, name := range requestedScopes {
		scope, ok := byName[name]
		if !ok {
			log.Debug().Str("scope", name).Msg("invalid or unknown scope requested")
			return false, nil
		}
		resolved = append(resolved, scope)
		if scope.IsIdentity() {
			v.ContainsOpenIDScopes = true
		} else {
			v.ContainsResourceScopes = true
		}
	}

	v.RequestedScopes = resolved
	v.GrantedScopes = resolved
	return true, nil
}

// AreScopesAllowed checks the resolved request against the client's scope
// restrictions. An empty restriction list permits every scope.
func (v *ScopeValidator) AreScopesAllowed(client *clients.Client, requestedScopes []string) bool {
	if client.AllowsAllScopes() {
		return true
	}
	for _, name := range requestedScopes {
		if !client.AllowsScope(name) {
			log.Debug().Str("clientID", client.ID).Str("scope", name).Msg("client not allowed to request scope")
			return false
		}
	}
	return true
}

// IsResponseTypeValid enforces the scope requirement of the response type:
// token-only flows must not carry identity scopes, id_token-bearing flows
// must, and an id_token-only flow must carry identity scopes exclusively.
func (v *ScopeValidator) IsResponseTypeValid(responseType oauth2.ResponseType) bool {
	switch responseType {
	case oauth2.ResponseTypeToken:
		return !v.ContainsOpenIDScopes
	case oauth2.ResponseTypeIDToken:
		return v.ContainsOpenIDScopes && !v.ContainsResourceScopes
	case oauth2.ResponseTypeCode:
		return true
	default:
		return v.ContainsOpenIDScopes
	}
}

// SetConsentedScopes narrows GrantedScopes to the scopes the user consented
// to. Required scopes are always kept.
func (v *ScopeValidator) SetConsentedScopes(consentedScopes []string) {
	granted := make([]scopes.Scope, 0, len(v.RequestedScopes))
	for _, scope := range v.RequestedScopes {
		if scope.Required || oauth2.ScopesContain(consentedScopes, scope.Name) {
			granted = append(granted, scope)
		}
	}
	v.GrantedScopes = granted
}

// GrantedScopeNames returns the names of the granted scopes in request order.
func (v *ScopeValidator) GrantedScopeNames() []string {
	names := make([]string, 0, len(v.GrantedScopes))
	for _, scope := range v.GrantedScopes {
		names = append(names, scope.Name)
	}
	return names
}

// GrantedResourceScopes returns only the granted resource scopes.
func (v *ScopeValidator) GrantedResourceScopes() []scopes.Scope {
	resource := make([]scopes.Scope, 0, len(v.GrantedScopes))
	for _, scope := range v.GrantedScopes {
		if !scope.IsIdentity() {
			resource = append(resource, scope)
		}
	}
	return resource
}

// GrantedIdentityScopes returns only the granted identity scopes.
func (v *ScopeValidator) GrantedIdentityScopes() []scopes.Scope {
	identity := make([]scopes.Scope, 0, len(v.GrantedScopes))
	for _, scope := range v.GrantedScopes {
		if scope.IsIdentity() {
			identity = append(identity, scope)
		}
	}
	return identity
}

// ContainsOfflineAccess reports whether offline_access is among the granted
// scopes.
func (v *ScopeValidator) ContainsOfflineAccess() bool {
	return oauth2.ScopesContain(v.GrantedScopeNames(), oauth2.ScopeOfflineAccess)
}
