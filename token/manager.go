package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/scopes"
	"github.com/corewell/go-identity-server/users"
)

// CreationRequest carries everything the Manager needs to assemble a token.
type CreationRequest struct {
	Subject *users.Subject
	Client  *clients.Client

	// Scopes are the validated, granted scopes driving claim selection.
	Scopes []scopes.Scope

	Nonce string

	// AccessTokenToHash, when set, adds an at_hash claim binding the identity
	// token to the access token issued alongside it.
	AccessTokenToHash string

	// AuthorizationCodeToHash, when set, adds a c_hash claim binding the
	// identity token to the authorization code (hybrid flow).
	AuthorizationCodeToHash string
}

// Manager is the token service: it selects claims for access and identity
// tokens and renders them to wire strings via the configured Signer.
type Manager struct {
	signer      Signer
	userService users.Service
	handleStore TokenHandleStore
	issuer      string
	nowFunc     func() time.Time
}

// ManagerOption modifies a Manager.
type ManagerOption func(*Manager)

// WithNowFunc sets the clock (for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager builds a token Manager. handleStore may be nil when no client
// uses reference tokens.
func NewManager(signer Signer, userService users.Service, handleStore TokenHandleStore, issuer string, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, errors.New("[NewManager] signer is required")
	}
	if userService == nil {
		return nil, errors.New("[NewManager] user service is required")
	}
	m := &Manager{
		signer:      signer,
		userService: userService,
		handleStore: handleStore,
		issuer:      issuer,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Issuer returns the configured issuer identifier.
func (m *Manager) Issuer() string { return m.issuer }

// CreateIdentityToken assembles an identity token for the request's subject.
func (m *Manager) CreateIdentityToken(ctx context.Context, request CreationRequest) (*Token, error) {
	if request.Client == nil {
		return nil, errors.New("[Manager.CreateIdentityToken] client is required")
	}
	if !request.Subject.Authenticated() {
		return nil, errors.New("[Manager.CreateIdentityToken] authenticated subject is required")
	}

	claims := []users.Claim{
		{Type: "sub", Value: request.Subject.SubjectID},
		{Type: "auth_time", Value: unixString(request.Subject.AuthenticationTime)},
		{Type: "idp", Value: request.Subject.IdentityProvider},
		{Type: "amr", Value: request.Subject.AuthenticationMethod},
	}
	if request.Nonce != "" {
		claims = append(claims, users.Claim{Type: "nonce", Value: request.Nonce})
	}
	if request.AccessTokenToHash != "" {
		claims = append(claims, users.Claim{Type: "at_hash", Value: HashClaimValue(request.AccessTokenToHash)})
	}
	if request.AuthorizationCodeToHash != "" {
		claims = append(claims, users.Claim{Type: "c_hash", Value: HashClaimValue(request.AuthorizationCodeToHash)})
	}

	profileClaims, err := m.profileClaims(ctx, request)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CreateIdentityToken] profile claims")
	}
	for _, c := range profileClaims {
		if c.Type == "sub" {
			continue
		}
		claims = append(claims, c)
	}

	return &Token{
		Type:         TypeIdentityToken,
		Audience:     request.Client.ID,
		Issuer:       m.issuer,
		Lifetime:     request.Client.IdentityTokenLifetime,
		Claims:       claims,
		Client:       request.Client,
		CreationTime: m.nowFunc(),
	}, nil
}

// CreateAccessToken assembles an access token for the request. The subject is
// optional: client-credentials tokens carry only the client identity.
func (m *Manager) CreateAccessToken(_ context.Context, request CreationRequest) (*Token, error) {
	if request.Client == nil {
		return nil, errors.New("[Manager.CreateAccessToken] client is required")
	}

	claims := []users.Claim{
		{Type: "client_id", Value: request.Client.ID},
	}
	for _, s := range request.Scopes {
		claims = append(claims, users.Claim{Type: "scope", Value: s.Name})
	}
	if request.Subject.Authenticated() {
		claims = append(claims,
			users.Claim{Type: "sub", Value: request.Subject.SubjectID},
			users.Claim{Type: "auth_time", Value: unixString(request.Subject.AuthenticationTime)},
			users.Claim{Type: "idp", Value: request.Subject.IdentityProvider},
			users.Claim{Type: "amr", Value: request.Subject.AuthenticationMethod},
		)
	}

	return &Token{
		Type:         TypeAccessToken,
		Audience:     m.issuer + "/resources",
		Issuer:       m.issuer,
		Lifetime:     request.Client.AccessTokenLifetime,
		Claims:       claims,
		Client:       request.Client,
		CreationTime: m.nowFunc(),
	}, nil
}

// CreateSecurityToken renders a token to its wire form: a signed JWT, or an
// opaque handle for clients configured for reference access tokens.
func (m *Manager) CreateSecurityToken(ctx context.Context, t *Token) (string, error) {
	if t.Type == TypeAccessToken && t.Client != nil && t.Client.AccessTokenType == clients.AccessTokenTypeReference {
		if m.handleStore == nil {
			return "", errors.New("[Manager.CreateSecurityToken] reference tokens require a token handle store")
		}
		handle := NewHandle()
		if err := m.handleStore.Store(ctx, handle, t); err != nil {
			return "", errors.Wrap(err, "[Manager.CreateSecurityToken] storing reference token")
		}
		log.Debug().Str("client_id", t.Client.ID).Msg("issued reference access token")
		return handle, nil
	}
	return m.signer.Sign(m.jwtClaims(t))
}

func (m *Manager) jwtClaims(t *Token) jwt.MapClaims {
	now := t.CreationTime
	claims := jwt.MapClaims{
		"iss": t.Issuer,
		"aud": t.Audience,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(time.Duration(t.Lifetime) * time.Second).Unix(),
		"jti": uuid.New().String(),
	}
	for _, c := range t.Claims {
		switch existing := claims[c.Type].(type) {
		case nil:
			claims[c.Type] = c.Value
		case string:
			claims[c.Type] = []string{existing, c.Value}
		case []string:
			claims[c.Type] = append(existing, c.Value)
		}
	}
	return claims
}

// profileClaims resolves the claim values the granted identity scopes release.
func (m *Manager) profileClaims(ctx context.Context, request CreationRequest) ([]users.Claim, error) {
	var claimTypes []string
	for _, s := range request.Scopes {
		if !s.IsIdentity() {
			continue
		}
		for _, name := range s.ClaimNames {
			if !oauth2.ScopesContain(claimTypes, name) {
				claimTypes = append(claimTypes, name)
			}
		}
	}
	if len(claimTypes) == 0 {
		return nil, nil
	}
	return m.userService.GetProfileData(ctx, request.Subject, claimTypes)
}

// HashClaimValue computes the OIDC token-hash value: the left half of the
// SHA-256 digest, base64url encoded without padding. Used for at_hash/c_hash.
func HashClaimValue(value string) string {
	digest := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(digest[:len(digest)/2])
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
