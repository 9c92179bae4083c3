package response

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/scopes"
	"github.com/corewell/go-identity-server/token"
	"github.com/corewell/go-identity-server/validation"
)

// TokenResponseGenerator turns a validated token request into the token
// endpoint's response body, minting access, identity and refresh tokens as
// the grant demands.
type TokenResponseGenerator struct {
	tokenManager   *token.Manager
	refreshManager *token.RefreshManager
	scopeStore     scopes.Store
	nowFunc        func() time.Time
}

// TokenGeneratorOption modifies a TokenResponseGenerator.
type TokenGeneratorOption func(*TokenResponseGenerator)

// WithTokenGeneratorNowFunc sets the clock (for testing).
func WithTokenGeneratorNowFunc(now func() time.Time) TokenGeneratorOption {
	return func(g *TokenResponseGenerator) {
		g.nowFunc = now
	}
}

// NewTokenResponseGenerator builds a TokenResponseGenerator.
func NewTokenResponseGenerator(tokenManager *token.Manager, refreshManager *token.RefreshManager, scopeStore scopes.Store, options ...TokenGeneratorOption) (*TokenResponseGenerator, error) {
	if tokenManager == nil {
		return nil, errors.New("[NewTokenResponseGenerator] token manager is required")
	}
	if refreshManager == nil {
		return nil, errors.New("[NewTokenResponseGenerator] refresh manager is required")
	}
	if scopeStore == nil {
		return nil, errors.New("[NewTokenResponseGenerator] scope store is required")
	}
	g := &TokenResponseGenerator{
		tokenManager:   tokenManager,
		refreshManager: refreshManager,
		scopeStore:     scopeStore,
		nowFunc:        time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Process creates the response for a validated token request.
func (g *TokenResponseGenerator) Process(ctx context.Context, request *validation.ValidatedTokenRequest) (*oauth2.TokenResponse, error) {
	if request == nil {
		return nil, errors.New("[TokenResponseGenerator.Process] request is nil")
	}
	if request.Client == nil {
		return nil, errors.New("[TokenResponseGenerator.Process] request has no client")
	}

	switch request.GrantType {
	case oauth2.GrantTypeAuthorizationCode:
		return g.processAuthorizationCode(ctx, request)
	case oauth2.GrantTypeRefreshToken:
		return g.processRefreshToken(ctx, request)
	default:
		return g.processDirectGrant(ctx, request)
	}
}

func (g *TokenResponseGenerator) processAuthorizationCode(ctx context.Context, request *validation.ValidatedTokenRequest) (*oauth2.TokenResponse, error) {
	code := request.AuthorizationCode
	if code == nil {
		return nil, errors.New("[TokenResponseGenerator.processAuthorizationCode] request has no authorization code")
	}

	grantedScopes, err := g.scopeStore.FindScopes(ctx, code.RequestedScopes)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenResponseGenerator.processAuthorizationCode] resolving scopes")
	}

	accessToken, err := g.tokenManager.CreateAccessToken(ctx, token.CreationRequest{
		Subject: code.Subject,
		Client:  request.Client,
		Scopes:  grantedScopes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[TokenResponseGenerator.processAuthorizationCode] access token")
	}
	rawAccessToken, err := g.tokenManager.CreateSecurityToken(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenResponseGenerator.processAuthorizationCode] signing access token")
	}

	resp := &oauth2.TokenResponse{
		AccessToken: &rawAccessToken,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   request.Client.AccessTokenLifetime,
	}

	if code.RequestedOfflineAccess() {
		handle, err := g.refreshManager.Create(ctx, code.Subject, accessToken, request.Client)
		if err != nil {
			return nil, errors.Wrap(err, "[TokenResponseGenerator.processAuthorizationCode] refresh token")
		}
		resp.RefreshToken = &handle
	}

	if code.IsOpenID {
		identityToken, err := g.tokenManager.CreateIdentityToken(ctx, token.CreationRequest{
			Subject:           code.Subject,
			Client:            request.Client,
			Scopes:            identityScopes(grantedScopes),
			Nonce:             code.Nonce,
			AccessTokenToHash: rawAccessToken,
		})
		if err != nil {
			return nil, errors.Wrap(err, "[TokenResponseGenerator.processAuthorizationCode] identity token")
		}
		rawIdentityToken, err := g.tokenManager.CreateSecurityToken(ctx, identityToken)
		if err != nil {
			return nil, errors.Wrap(err, "[TokenResponseGenerator.processAuthorizationCode] signing identity token")
		}
		resp.IdentityToken = &rawIdentityToken
	}

	log.Info().Str("clientID", request.Client.ID).Msg("authorization code redeemed")
	return resp, nil
}

func (g *TokenResponseGenerator) processRefreshToken(ctx context.Context, request *validation.ValidatedTokenRequest) (*oauth2.TokenResponse, error) {
	refreshToken := request.RefreshToken
	if refreshToken == nil || refreshToken.AccessToken == nil {
		return nil, errors.New("[TokenResponseGenerator.processRefreshToken] request has no refresh token")
	}
	client := request.Client

	var accessToken *token.Token
	if client.UpdateAccessTokenClaimsOnRefresh {
		grantedScopes, err := g.scopeStore.FindScopes(ctx, refreshToken.AccessToken.Scopes())
		if err != nil {
			return nil, errors.Wrap(err, "[TokenResponseGenerator.processRefreshToken] resolving scopes")
		}
		accessToken, err = g.tokenManager.CreateAccessToken(ctx, token.CreationRequest{
			Subject: refreshToken.Subject,
			Client:  client,
			Scopes:  grantedScopes,
		})
		if err != nil {
			return nil, errors.Wrap(err, "[TokenResponseGenerator.processRefreshToken] access token")
		}
	} else {
		copied := *refreshToken.AccessToken
		copied.CreationTime = g.nowFunc()
		copied.Client = client
		copied.Lifetime = client.AccessTokenLifetime
		accessToken = &copied
	}

	rawAccessToken, err := g.tokenManager.CreateSecurityToken(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenResponseGenerator.processRefreshToken] signing access token")
	}

	handle, err := g.refreshManager.Update(ctx, request.RefreshTokenHandle, refreshToken, client)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenResponseGenerator.processRefreshToken] rotating refresh token")
	}

	log.Info().Str("clientID", client.ID).Msg("access token refreshed")
	return &oauth2.TokenResponse{
		AccessToken:  &rawAccessToken,
		TokenType:    oauth2.TokenTypeBearer,
		ExpiresIn:    client.AccessTokenLifetime,
		RefreshToken: &handle,
	}, nil
}

// processDirectGrant covers client_credentials, password and custom grants:
// the grants whose scopes come straight off the token request.
func (g *TokenResponseGenerator) processDirectGrant(ctx context.Context, request *validation.ValidatedTokenRequest) (*oauth2.TokenResponse, error) {
	if request.ValidatedScopes == nil {
		return nil, errors.New("[TokenResponseGenerator.processDirectGrant] request has no validated scopes")
	}

	accessToken, err := g.tokenManager.CreateAccessToken(ctx, token.CreationRequest{
		Subject: request.Subject,
		Client:  request.Client,
		Scopes:  request.ValidatedScopes.GrantedScopes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[TokenResponseGenerator.processDirectGrant] access token")
	}
	rawAccessToken, err := g.tokenManager.CreateSecurityToken(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenResponseGenerator.processDirectGrant] signing access token")
	}

	resp := &oauth2.TokenResponse{
		AccessToken: &rawAccessToken,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   request.Client.AccessTokenLifetime,
	}

	if request.Subject != nil && request.ValidatedScopes.ContainsOfflineAccess() {
		handle, err := g.refreshManager.Create(ctx, request.Subject, accessToken, request.Client)
		if err != nil {
			return nil, errors.Wrap(err, "[TokenResponseGenerator.processDirectGrant] refresh token")
		}
		resp.RefreshToken = &handle
	}

	log.Info().Str("clientID", request.Client.ID).Str("grantType", string(request.GrantType)).Msg("token response created")
	return resp, nil
}

func identityScopes(all []scopes.Scope) []scopes.Scope {
	identity := make([]scopes.Scope, 0, len(all))
	for _, s := range all {
		if s.IsIdentity() {
			identity = append(identity, s)
		}
	}
	return identity
}
