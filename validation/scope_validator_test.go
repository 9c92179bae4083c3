package validation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	fakescoperepo "github.com/corewell/go-identity-server/scopes/fakerepo"
	"github.com/corewell/go-identity-server/validation"
)

func newScopeValidator(t *testing.T) *validation.ScopeValidator {
	t.Helper()
	v, err := validation.NewScopeValidator(fakescoperepo.NewFakeScopeRepo(testScopes()...))
	require.NoError(t, err)
	return v
}

func TestScopeValidator_AreScopesValid(t *testing.T) {
	ctx := context.Background()

	t.Run("known scopes resolve and partition", func(t *testing.T) {
		v := newScopeValidator(t)
		valid, err := v.AreScopesValid(ctx, []string{"openid", "profile", "read"})
		require.NoError(t, err)
		require.True(t, valid)
		require.True(t, v.ContainsOpenIDScopes)
		require.True(t, v.ContainsResourceScopes)
		require.Equal(t, []string{"openid", "profile", "read"}, v.GrantedScopeNames())
		require.Len(t, v.GrantedIdentityScopes(), 2)
		require.Len(t, v.GrantedResourceScopes(), 1)
	})

	t.Run("unknown scope invalidates the request", func(t *testing.T) {
		v := newScopeValidator(t)
		valid, err := v.AreScopesValid(ctx, []string{"openid", "nosuchscope"})
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("resource only", func(t *testing.T) {
		v := newScopeValidator(t)
		valid, err := v.AreScopesValid(ctx, []string{"read"})
		require.NoError(t, err)
		require.True(t, valid)
		require.False(t, v.ContainsOpenIDScopes)
		require.True(t, v.ContainsResourceScopes)
	})
}

func TestScopeValidator_AreScopesAllowed(t *testing.T) {
	v := newScopeValidator(t)

	unrestricted := &clients.Client{ID: "open"}
	restricted := &clients.Client{ID: "narrow", ScopeRestrictions: []string{"openid", "read"}}

	require.True(t, v.AreScopesAllowed(unrestricted, []string{"openid", "profile", "read"}))
	require.True(t, v.AreScopesAllowed(restricted, []string{"openid", "read"}))
	require.False(t, v.AreScopesAllowed(restricted, []string{"openid", "profile"}))
}

func TestScopeValidator_SetConsentedScopes(t *testing.T) {
	ctx := context.Background()
	v := newScopeValidator(t)

	valid, err := v.AreScopesValid(ctx, []string{"openid", "profile", "read"})
	require.NoError(t, err)
	require.True(t, valid)

	t.Run("narrows to the consented subset", func(t *testing.T) {
		v.SetConsentedScopes([]string{"openid", "read"})
		require.Equal(t, []string{"openid", "read"}, v.GrantedScopeNames())
	})

	t.Run("required scopes survive even when not consented", func(t *testing.T) {
		// openid is marked required in the standard scope set
		v.SetConsentedScopes([]string{"read"})
		require.Equal(t, []string{"openid", "read"}, v.GrantedScopeNames())
	})

	t.Run("offline_access tracking", func(t *testing.T) {
		require.False(t, v.ContainsOfflineAccess())

		valid, err := v.AreScopesValid(ctx, []string{oauth2.ScopeOpenID, oauth2.ScopeOfflineAccess})
		require.NoError(t, err)
		require.True(t, valid)
		require.True(t, v.ContainsOfflineAccess())
	})
}
