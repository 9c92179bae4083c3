package response

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/token"
	"github.com/corewell/go-identity-server/validation"
)

// AuthorizeResponseGenerator turns a fully validated and approved authorize
// request into the artifacts the redirect carries: an authorization code, an
// access token, an identity token, or a combination, depending on the
// response type.
type AuthorizeResponseGenerator struct {
	tokenManager *token.Manager
	codeStore    token.AuthorizationCodeStore
	nowFunc      func() time.Time
}

// AuthorizeGeneratorOption modifies an AuthorizeResponseGenerator.
type AuthorizeGeneratorOption func(*AuthorizeResponseGenerator)

// WithAuthorizeNowFunc sets the clock (for testing).
func WithAuthorizeNowFunc(now func() time.Time) AuthorizeGeneratorOption {
	return func(g *AuthorizeResponseGenerator) {
		g.nowFunc = now
	}
}

// NewAuthorizeResponseGenerator builds an AuthorizeResponseGenerator.
func NewAuthorizeResponseGenerator(tokenManager *token.Manager, codeStore token.AuthorizationCodeStore, options ...AuthorizeGeneratorOption) (*AuthorizeResponseGenerator, error) {
	if tokenManager == nil {
		return nil, errors.New("[NewAuthorizeResponseGenerator] token manager is required")
	}
	if codeStore == nil {
		return nil, errors.New("[NewAuthorizeResponseGenerator] code store is required")
	}
	g := &AuthorizeResponseGenerator{
		tokenManager: tokenManager,
		codeStore:    codeStore,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// CreateResponse issues the response artifacts for the request. The request
// must have passed validation and interaction processing.
func (g *AuthorizeResponseGenerator) CreateResponse(ctx context.Context, request *validation.ValidatedAuthorizeRequest) (*oauth2.AuthorizeResponse, error) {
	if request == nil {
		return nil, errors.New("[AuthorizeResponseGenerator.CreateResponse] request is nil")
	}
	if request.Client == nil || request.ValidatedScopes == nil {
		return nil, errors.New("[AuthorizeResponseGenerator.CreateResponse] request has not been validated")
	}

	resp := &oauth2.AuthorizeResponse{
		RedirectURI:  request.RedirectURI,
		ResponseMode: request.ResponseMode,
		State:        request.State,
		Scope:        strings.Join(request.ValidatedScopes.GrantedScopeNames(), " "),
	}

	if request.ResponseType.IncludesCode() {
		code, err := g.issueCode(ctx, request)
		if err != nil {
			return nil, err
		}
		resp.Code = code
	}

	var rawAccessToken string
	if request.ResponseType.IncludesToken() {
		accessToken, err := g.tokenManager.CreateAccessToken(ctx, token.CreationRequest{
			Subject: request.Subject,
			Client:  request.Client,
			Scopes:  request.ValidatedScopes.GrantedScopes,
		})
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizeResponseGenerator.CreateResponse] access token")
		}
		rawAccessToken, err = g.tokenManager.CreateSecurityToken(ctx, accessToken)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizeResponseGenerator.CreateResponse] signing access token")
		}
		resp.AccessToken = rawAccessToken
		resp.AccessTokenLifetime = request.Client.AccessTokenLifetime
	}

	if request.ResponseType.IncludesIDToken() {
		identityToken, err := g.tokenManager.CreateIdentityToken(ctx, token.CreationRequest{
			Subject:                 request.Subject,
			Client:                  request.Client,
			Scopes:                  request.ValidatedScopes.GrantedIdentityScopes(),
			Nonce:                   request.Nonce,
			AccessTokenToHash:       rawAccessToken,
			AuthorizationCodeToHash: resp.Code,
		})
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizeResponseGenerator.CreateResponse] identity token")
		}
		rawIdentityToken, err := g.tokenManager.CreateSecurityToken(ctx, identityToken)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizeResponseGenerator.CreateResponse] signing identity token")
		}
		resp.IdentityToken = rawIdentityToken
	}

	log.Info().
		Str("clientID", request.Client.ID).
		Str("responseType", string(request.ResponseType)).
		Msg("authorize response created")
	return resp, nil
}

func (g *AuthorizeResponseGenerator) issueCode(ctx context.Context, request *validation.ValidatedAuthorizeRequest) (string, error) {
	code := &token.AuthorizationCode{
		Client:              request.Client,
		Subject:             request.Subject,
		RequestedScopes:     request.ValidatedScopes.GrantedScopeNames(),
		RedirectURI:         request.RedirectURI,
		IsOpenID:            request.IsOpenIDRequest,
		WasConsentShown:     request.WasConsentShown,
		Nonce:               request.Nonce,
		CodeChallenge:       request.CodeChallenge,
		CodeChallengeMethod: request.CodeChallengeMethod,
		CreationTime:        g.nowFunc(),
	}

	handle := token.NewHandle()
	if err := g.codeStore.Store(ctx, handle, code); err != nil {
		return "", errors.Wrap(err, "[AuthorizeResponseGenerator.issueCode] storing code")
	}
	return handle, nil
}
