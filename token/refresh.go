package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/users"
)

const handleLength = 16 // 128-bit handles

// NewHandle returns a fresh random 128-bit identifier, hex encoded. Used for
// authorization codes, refresh token handles and reference token handles.
func NewHandle() string {
	bytes := make([]byte, handleLength)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

// RefreshManager creates and rotates refresh tokens according to the owning
// client's usage and expiration policies.
type RefreshManager struct {
	store   RefreshTokenStore
	nowFunc func() time.Time
}

// RefreshManagerOption modifies a RefreshManager.
type RefreshManagerOption func(*RefreshManager)

// WithRefreshNowFunc sets the clock (for testing).
func WithRefreshNowFunc(now func() time.Time) RefreshManagerOption {
	return func(m *RefreshManager) {
		m.nowFunc = now
	}
}

// NewRefreshManager builds a RefreshManager over the given store.
func NewRefreshManager(store RefreshTokenStore, options ...RefreshManagerOption) (*RefreshManager, error) {
	if store == nil {
		return nil, errors.New("[NewRefreshManager] refresh token store is required")
	}
	m := &RefreshManager{
		store:   store,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Create mints a new refresh token wrapping accessToken and returns its handle.
// The initial lifetime follows the client's expiration policy: the absolute
// lifetime for absolute expiration, the sliding window for sliding expiration.
func (m *RefreshManager) Create(ctx context.Context, subject *users.Subject, accessToken *Token, client *clients.Client) (string, error) {
	if client == nil {
		return "", errors.New("[RefreshManager.Create] client is required")
	}
	if accessToken == nil {
		return "", errors.New("[RefreshManager.Create] access token is required")
	}

	lifetime := client.AbsoluteRefreshTokenLifetime
	if client.RefreshTokenExpiration == clients.RefreshTokenExpirationSliding {
		lifetime = client.SlidingRefreshTokenLifetime
	}

	handle := NewHandle()
	rt := &RefreshToken{
		Handle:       handle,
		ClientID:     client.ID,
		AccessToken:  accessToken,
		Subject:      subject,
		LifeTime:     lifetime,
		CreationTime: m.nowFunc(),
	}
	if err := m.store.Store(ctx, handle, rt); err != nil {
		return "", errors.Wrap(err, "[RefreshManager.Create] storing refresh token")
	}

	log.Debug().Str("client_id", client.ID).Msg("refresh token created")
	return handle, nil
}

// Update applies the client's policies after a successful refresh grant and
// returns the handle the client should use next time. OneTimeOnly usage
// rotates the handle and invalidates the old one; ReUse keeps it. Sliding
// expiration extends the lifetime from the elapsed age plus the sliding
// window, capped at the client's absolute ceiling.
func (m *RefreshManager) Update(ctx context.Context, handle string, rt *RefreshToken, client *clients.Client) (string, error) {
	if rt == nil {
		return "", errors.New("[RefreshManager.Update] refresh token is required")
	}
	if client == nil {
		return "", errors.New("[RefreshManager.Update] client is required")
	}

	newHandle := handle
	needsStore := false

	if client.RefreshTokenUsage == clients.RefreshTokenUsageOneTimeOnly {
		newHandle = NewHandle()
		needsStore = true
	}

	if client.RefreshTokenExpiration == clients.RefreshTokenExpirationSliding {
		elapsed := int(m.nowFunc().Sub(rt.CreationTime) / time.Second)
		newLifetime := elapsed + client.SlidingRefreshTokenLifetime
		if newLifetime > client.AbsoluteRefreshTokenLifetime {
			newLifetime = client.AbsoluteRefreshTokenLifetime
		}
		rt.LifeTime = newLifetime
		needsStore = true
	}

	if !needsStore {
		return handle, nil
	}

	rt.Handle = newHandle
	if err := m.store.Store(ctx, newHandle, rt); err != nil {
		return "", errors.Wrap(err, "[RefreshManager.Update] storing refresh token")
	}
	if newHandle != handle {
		if err := m.store.Remove(ctx, handle); err != nil {
			return "", errors.Wrap(err, "[RefreshManager.Update] removing rotated handle")
		}
		log.Debug().Str("client_id", client.ID).Msg("refresh token rotated")
	}
	return newHandle, nil
}

// Get looks a refresh token up by handle without consuming it.
func (m *RefreshManager) Get(ctx context.Context, handle string) (*RefreshToken, error) {
	return m.store.Get(ctx, handle)
}

// Revoke removes every refresh token the subject holds for the client.
func (m *RefreshManager) Revoke(ctx context.Context, subjectID, clientID string) error {
	return m.store.RevokeBySubjectAndClient(ctx, subjectID, clientID)
}
