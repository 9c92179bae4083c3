package validation

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/scopes"
	"github.com/corewell/go-identity-server/token"
	"github.com/corewell/go-identity-server/users"
)

// TokenRequestValidator validates token-endpoint requests for an already
// authenticated client. Grant lookups that fail for any reason produce the
// same invalid_grant error so callers cannot probe which part was wrong.
type TokenRequestValidator struct {
	scopeStore   scopes.Store
	codeStore    token.AuthorizationCodeStore
	refreshStore token.RefreshTokenStore
	userService  users.Service
	customGrants *CustomGrantRegistry
	nowFunc      func() time.Time
}

// TokenRequestValidatorOption configures a TokenRequestValidator.
type TokenRequestValidatorOption func(*TokenRequestValidator)

// WithTokenValidatorNowFunc overrides the clock used for expiry checks.
func WithTokenValidatorNowFunc(nowFunc func() time.Time) TokenRequestValidatorOption {
	return func(v *TokenRequestValidator) {
		v.nowFunc = nowFunc
	}
}

// WithCustomGrants installs the custom grant registry. Without one, every
// non-standard grant type is unsupported.
func WithCustomGrants(registry *CustomGrantRegistry) TokenRequestValidatorOption {
	return func(v *TokenRequestValidator) {
		v.customGrants = registry
	}
}

// NewTokenRequestValidator creates a TokenRequestValidator.
func NewTokenRequestValidator(
	scopeStore scopes.Store,
	codeStore token.AuthorizationCodeStore,
	refreshStore token.RefreshTokenStore,
	userService users.Service,
	options ...TokenRequestValidatorOption,
) (*TokenRequestValidator, error) {
	if scopeStore == nil {
		return nil, errors.New("[NewTokenRequestValidator] scopeStore is nil")
	}
	if codeStore == nil {
		return nil, errors.New("[NewTokenRequestValidator] codeStore is nil")
	}
	if refreshStore == nil {
		return nil, errors.New("[NewTokenRequestValidator] refreshStore is nil")
	}
	if userService == nil {
		return nil, errors.New("[NewTokenRequestValidator] userService is nil")
	}

	registry, err := NewCustomGrantRegistry()
	if err != nil {
		return nil, err
	}

	validator := &TokenRequestValidator{
		scopeStore:   scopeStore,
		codeStore:    codeStore,
		refreshStore: refreshStore,
		userService:  userService,
		customGrants: registry,
		nowFunc:      time.Now,
	}
	for _, option := range options {
		option(validator)
	}
	return validator, nil
}

// Validate dispatches on grant_type and runs the matching branch. The client
// must already be authenticated.
func (v *TokenRequestValidator) Validate(ctx context.Context, parameters url.Values, client *clients.Client) (*TokenRequestValidationResult, error) {
	if parameters == nil {
		return nil, errors.New("[TokenRequestValidator.Validate] parameters is nil")
	}
	if client == nil {
		return nil, errors.New("[TokenRequestValidator.Validate] client is nil")
	}

	request := &ValidatedTokenRequest{
		Raw:    parameters,
		Client: client,
	}

	grantType := parameters.Get(oauth2.ParamGrantType)
	if grantType == "" {
		log.Debug().Str("clientID", client.ID).Msg("grant_type missing")
		return tokenError(oauth2.ErrorUnsupportedGrantType, request), nil
	}
	request.GrantType = oauth2.GrantType(grantType)

	switch request.GrantType {
	case oauth2.GrantTypeAuthorizationCode:
		return v.validateAuthorizationCodeGrant(ctx, parameters, request)
	case oauth2.GrantTypeRefreshToken:
		return v.validateRefreshTokenGrant(ctx, parameters, request)
	case oauth2.GrantTypeClientCredentials:
		return v.validateClientCredentialsGrant(ctx, parameters, request)
	case oauth2.GrantTypePassword:
		return v.validatePasswordGrant(ctx, parameters, request)
	default:
		return v.validateCustomGrant(ctx, parameters, request)
	}
}

func (v *TokenRequestValidator) validateAuthorizationCodeGrant(ctx context.Context, parameters url.Values, request *ValidatedTokenRequest) (*TokenRequestValidationResult, error) {
	client := request.Client

	if client.Flow != oauth2.FlowAuthorizationCode && client.Flow != oauth2.FlowHybrid {
		log.Debug().Str("clientID", client.ID).Str("flow", string(client.Flow)).Msg("client flow does not allow the authorization_code grant")
		return tokenError(oauth2.ErrorUnauthorizedClient, request), nil
	}

	handle := parameters.Get(oauth2.ParamCode)
	if handle == "" {
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	request.AuthorizationCodeHandle = handle

	// Get consumes the code; a replayed handle comes back nil.
	code, err := v.codeStore.Get(ctx, handle)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator.validateAuthorizationCodeGrant] get code")
	}
	if code == nil {
		log.Debug().Str("clientID", client.ID).Msg("authorization code unknown or already used")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	if code.Expired(v.nowFunc()) {
		log.Debug().Str("clientID", client.ID).Msg("authorization code expired")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	if code.Client == nil || code.Client.ID != client.ID {
		log.Debug().Str("clientID", client.ID).Msg("authorization code was issued to a different client")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}

	redirectURI := parameters.Get(oauth2.ParamRedirectURI)
	if redirectURI == "" || redirectURI != code.RedirectURI {
		log.Debug().Str("clientID", client.ID).Msg("redirect_uri does not match the authorize request")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}

	if code.CodeChallenge != "" {
		if !verifyCodeChallenge(parameters.Get(oauth2.ParamCodeVerifier), code.CodeChallenge, code.CodeChallengeMethod) {
			log.Debug().Str("clientID", client.ID).Msg("code_verifier rejected")
			return tokenError(oauth2.ErrorInvalidGrant, request), nil
		}
	}

	active, err := v.userService.IsActive(ctx, code.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator.validateAuthorizationCodeGrant] check subject")
	}
	if !active {
		log.Debug().Str("clientID", client.ID).Msg("subject of authorization code is no longer active")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}

	request.AuthorizationCode = code
	request.Subject = code.Subject
	return tokenSuccess(request), nil
}

func (v *TokenRequestValidator) validateRefreshTokenGrant(ctx context.Context, parameters url.Values, request *ValidatedTokenRequest) (*TokenRequestValidationResult, error) {
	client := request.Client

	handle := parameters.Get(oauth2.ParamRefreshToken)
	if handle == "" {
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	request.RefreshTokenHandle = handle

	refreshToken, err := v.refreshStore.Get(ctx, handle)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator.validateRefreshTokenGrant] get refresh token")
	}
	if refreshToken == nil {
		log.Debug().Str("clientID", client.ID).Msg("refresh token unknown or revoked")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	if refreshToken.Expired(v.nowFunc()) {
		log.Debug().Str("clientID", client.ID).Msg("refresh token expired")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	if refreshToken.ClientID != client.ID {
		log.Debug().Str("clientID", client.ID).Msg("refresh token belongs to a different client")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	if !client.AllowsScope(oauth2.ScopeOfflineAccess) {
		log.Debug().Str("clientID", client.ID).Msg("client no longer allowed offline_access")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}

	active, err := v.userService.IsActive(ctx, refreshToken.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator.validateRefreshTokenGrant] check subject")
	}
	if !active {
		log.Debug().Str("clientID", client.ID).Msg("subject of refresh token is no longer active")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}

	request.RefreshToken = refreshToken
	request.Subject = refreshToken.Subject
	return tokenSuccess(request), nil
}

func (v *TokenRequestValidator) validateClientCredentialsGrant(ctx context.Context, parameters url.Values, request *ValidatedTokenRequest) (*TokenRequestValidationResult, error) {
	client := request.Client

	if client.Flow != oauth2.FlowClientCredentials {
		log.Debug().Str("clientID", client.ID).Str("flow", string(client.Flow)).Msg("client flow does not allow the client_credentials grant")
		return tokenError(oauth2.ErrorUnauthorizedClient, request), nil
	}

	requestedScopes := oauth2.ParseScopes(parameters.Get(oauth2.ParamScope))
	if len(requestedScopes) == 0 {
		// Without an explicit scope the client's own restriction list
		// becomes the request. A client allowed everything has no such
		// list to fall back on.
		if client.AllowsAllScopes() {
			log.Debug().Str("clientID", client.ID).Msg("scope required for a client without scope restrictions")
			return tokenError(oauth2.ErrorInvalidScope, request), nil
		}
		requestedScopes = client.ScopeRestrictions
	}

	if oauth2.ScopesContain(requestedScopes, oauth2.ScopeOfflineAccess) {
		log.Debug().Str("clientID", client.ID).Msg("offline_access is not valid for client_credentials")
		return tokenError(oauth2.ErrorInvalidScope, request), nil
	}

	scopeValidator, result, err := v.validateScopes(ctx, requestedScopes, request)
	if err != nil || result != nil {
		return result, err
	}
	if scopeValidator.ContainsOpenIDScopes {
		log.Debug().Str("clientID", client.ID).Msg("identity scopes are not valid for client_credentials")
		return tokenError(oauth2.ErrorInvalidScope, request), nil
	}

	request.ValidatedScopes = scopeValidator
	return tokenSuccess(request), nil
}

func (v *TokenRequestValidator) validatePasswordGrant(ctx context.Context, parameters url.Values, request *ValidatedTokenRequest) (*TokenRequestValidationResult, error) {
	client := request.Client

	if client.Flow != oauth2.FlowResourceOwner {
		log.Debug().Str("clientID", client.ID).Str("flow", string(client.Flow)).Msg("client flow does not allow the password grant")
		return tokenError(oauth2.ErrorUnauthorizedClient, request), nil
	}

	requestedScopes := oauth2.ParseScopes(parameters.Get(oauth2.ParamScope))
	if len(requestedScopes) == 0 {
		return tokenError(oauth2.ErrorInvalidScope, request), nil
	}
	scopeValidator, result, err := v.validateScopes(ctx, requestedScopes, request)
	if err != nil || result != nil {
		return result, err
	}
	request.ValidatedScopes = scopeValidator

	userName := parameters.Get(oauth2.ParamUserName)
	password := parameters.Get(oauth2.ParamPassword)
	if userName == "" || password == "" {
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}
	request.UserName = userName
	request.SignInMessage = &users.SignInMessage{ClientID: client.ID}

	authResult, err := v.userService.AuthenticateLocal(ctx, userName, password, request.SignInMessage)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator.validatePasswordGrant] authenticate")
	}
	if authResult == nil || !authResult.Success() {
		log.Debug().Str("clientID", client.ID).Str("userName", userName).Msg("resource owner authentication failed")
		return tokenError(oauth2.ErrorInvalidGrant, request), nil
	}

	request.Subject = authResult.Subject
	return tokenSuccess(request), nil
}

func (v *TokenRequestValidator) validateCustomGrant(ctx context.Context, parameters url.Values, request *ValidatedTokenRequest) (*TokenRequestValidationResult, error) {
	client := request.Client
	grantType := string(request.GrantType)

	if client.Flow != oauth2.FlowCustom {
		log.Debug().Str("clientID", client.ID).Str("grantType", grantType).Msg("client flow does not allow custom grants")
		return tokenError(oauth2.ErrorUnauthorizedClient, request), nil
	}
	if !client.AllowsCustomGrant(grantType) {
		log.Debug().Str("clientID", client.ID).Str("grantType", grantType).Msg("custom grant type not permitted for client")
		return tokenError(oauth2.ErrorUnsupportedGrantType, request), nil
	}

	validator := v.customGrants.Find(grantType)
	if validator == nil {
		log.Debug().Str("grantType", grantType).Msg("no validator registered for custom grant type")
		return tokenError(oauth2.ErrorUnsupportedGrantType, request), nil
	}

	if requestedScopes := oauth2.ParseScopes(parameters.Get(oauth2.ParamScope)); len(requestedScopes) > 0 {
		scopeValidator, result, err := v.validateScopes(ctx, requestedScopes, request)
		if err != nil || result != nil {
			return result, err
		}
		request.ValidatedScopes = scopeValidator
	}

	grantResult, err := validator.Validate(ctx, request)
	if err != nil {
		return nil, errors.Wrapf(err, "[TokenRequestValidator.validateCustomGrant] grant type %q", grantType)
	}
	if grantResult == nil || grantResult.IsError() {
		errorCode := oauth2.ErrorInvalidGrant
		if grantResult != nil && grantResult.Error != "" {
			errorCode = grantResult.Error
		}
		return tokenError(errorCode, request), nil
	}

	request.Subject = grantResult.Subject
	return tokenSuccess(request), nil
}

func (v *TokenRequestValidator) validateScopes(ctx context.Context, requestedScopes []string, request *ValidatedTokenRequest) (*ScopeValidator, *TokenRequestValidationResult, error) {
	scopeValidator, err := NewScopeValidator(v.scopeStore)
	if err != nil {
		return nil, nil, err
	}

	valid, err := scopeValidator.AreScopesValid(ctx, requestedScopes)
	if err != nil {
		return nil, nil, err
	}
	if !valid {
		return nil, tokenError(oauth2.ErrorInvalidScope, request), nil
	}
	if !scopeValidator.AreScopesAllowed(request.Client, requestedScopes) {
		return nil, tokenError(oauth2.ErrorInvalidScope, request), nil
	}
	return scopeValidator, nil, nil
}

// verifyCodeChallenge checks a PKCE code_verifier against the stored
// challenge using the method recorded at authorize time.
func verifyCodeChallenge(codeVerifier, codeChallenge string, method oauth2.CodeChallengeMethod) bool {
	if codeVerifier == "" {
		return false
	}

	presented := codeVerifier
	if method == oauth2.CodeChallengeS256 {
		digest := sha256.Sum256([]byte(codeVerifier))
		presented = base64.RawURLEncoding.EncodeToString(digest[:])
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(codeChallenge)) == 1
}
