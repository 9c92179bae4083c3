package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/scopes"
)

type storeFixture struct {
	db          *DB
	clientStore *ClientStore
	scopeStore  *ScopeStore
}

func setupStoreFixture(t *testing.T) *storeFixture {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clientStore, err := NewClientStore(db)
	require.NoError(t, err)
	scopeStore, err := NewScopeStore(db)
	require.NoError(t, err)

	return &storeFixture{db: db, clientStore: clientStore, scopeStore: scopeStore}
}

func TestClientStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips a client with defaults applied", func(t *testing.T) {
		f := setupStoreFixture(t)

		err := f.clientStore.Upsert(ctx, &clients.Client{
			ID:           "webapp",
			ClientName:   "Web App",
			Enabled:      true,
			Flow:         oauth2.FlowAuthorizationCode,
			RedirectURIs: []string{"https://server/cb"},
		})
		require.NoError(t, err)

		client, err := f.clientStore.FindClientByID(ctx, "webapp")
		require.NoError(t, err)
		require.NotNil(t, client)
		require.Equal(t, "Web App", client.ClientName)
		require.Equal(t, oauth2.FlowAuthorizationCode, client.Flow)
		require.NotZero(t, client.AccessTokenLifetime)
	})

	t.Run("unknown client is nil without error", func(t *testing.T) {
		f := setupStoreFixture(t)

		client, err := f.clientStore.FindClientByID(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, client)
	})

	t.Run("upsert replaces an existing registration", func(t *testing.T) {
		f := setupStoreFixture(t)

		require.NoError(t, f.clientStore.Upsert(ctx, &clients.Client{ID: "webapp", Enabled: true}))
		require.NoError(t, f.clientStore.Upsert(ctx, &clients.Client{ID: "webapp", Enabled: false}))

		client, err := f.clientStore.FindClientByID(ctx, "webapp")
		require.NoError(t, err)
		require.NotNil(t, client)
		require.False(t, client.Enabled)
	})

	t.Run("delete removes the registration", func(t *testing.T) {
		f := setupStoreFixture(t)

		require.NoError(t, f.clientStore.Upsert(ctx, &clients.Client{ID: "webapp", Enabled: true}))
		require.NoError(t, f.clientStore.Delete(ctx, "webapp"))

		client, err := f.clientStore.FindClientByID(ctx, "webapp")
		require.NoError(t, err)
		require.Nil(t, client)
	})

	t.Run("list pages in id order", func(t *testing.T) {
		f := setupStoreFixture(t)

		for _, id := range []string{"charlie", "alpha", "bravo"} {
			require.NoError(t, f.clientStore.Upsert(ctx, &clients.Client{ID: id, Enabled: true}))
		}

		page, err := f.clientStore.List(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, "bravo", page[0].ID)
		require.Equal(t, "charlie", page[1].ID)
	})
}

func TestScopeStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips the standard scopes", func(t *testing.T) {
		f := setupStoreFixture(t)

		for _, scope := range scopes.StandardScopes() {
			require.NoError(t, f.scopeStore.Upsert(ctx, scope))
		}

		all, err := f.scopeStore.GetScopes(ctx)
		require.NoError(t, err)
		require.Len(t, all, len(scopes.StandardScopes()))
	})

	t.Run("find returns only known names", func(t *testing.T) {
		f := setupStoreFixture(t)

		require.NoError(t, f.scopeStore.Upsert(ctx, scopes.Scope{Name: "openid", Type: scopes.TypeIdentity, Required: true}))
		require.NoError(t, f.scopeStore.Upsert(ctx, scopes.Scope{Name: "read", Type: scopes.TypeResource}))

		found, err := f.scopeStore.FindScopes(ctx, []string{"openid", "unknown"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, "openid", found[0].Name)
		require.True(t, found[0].Required)
	})

	t.Run("empty name list is empty result", func(t *testing.T) {
		f := setupStoreFixture(t)

		found, err := f.scopeStore.FindScopes(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, found)
	})

	t.Run("delete removes the scope", func(t *testing.T) {
		f := setupStoreFixture(t)

		require.NoError(t, f.scopeStore.Upsert(ctx, scopes.Scope{Name: "read", Type: scopes.TypeResource}))
		require.NoError(t, f.scopeStore.Delete(ctx, "read"))

		found, err := f.scopeStore.FindScopes(ctx, []string{"read"})
		require.NoError(t, err)
		require.Empty(t, found)
	})
}
