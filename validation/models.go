package validation

import (
	"net/url"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/token"
	"github.com/corewell/go-identity-server/users"
)

// ValidatedAuthorizeRequest is the central aggregate for an authorize call.
// It is mutable while the validator stages populate it and must be treated as
// immutable once validation has succeeded.
type ValidatedAuthorizeRequest struct {
	// Raw retains the original parameter bag for the consent-page round trip.
	Raw url.Values

	ClientID string
	Client   *clients.Client

	RedirectURI  string
	ResponseType oauth2.ResponseType
	ResponseMode oauth2.ResponseMode
	Flow         oauth2.Flow

	// Scope is the raw requested scope string; RequestedScopeNames its parsed
	// form. ValidatedScopes is populated by the client stage.
	Scope               string
	RequestedScopeNames []string
	ValidatedScopes     *ScopeValidator

	State string
	Nonce string

	PromptMode oauth2.PromptMode

	LoginHint string
	IdP       string
	Tenant    string
	AcrValues []string

	// MaxAge is nil when the parameter was absent.
	MaxAge *int

	// PKCE parameters, empty when the client did not use PKCE.
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeChallengeMethod

	// Subject is the authenticated principal, once known.
	Subject *users.Subject

	// WasConsentShown records whether the user saw a consent screen for this
	// request; carried onto the authorization code.
	WasConsentShown bool

	// IsOpenIDRequest is true when the openid scope drives the request.
	IsOpenIDRequest bool

	// SessionID identifies the user's authentication session, when the
	// hosting application tracks one.
	SessionID string
}

// AccessTokenRequested reports whether the response type issues an access
// token from the authorization endpoint.
func (r *ValidatedAuthorizeRequest) AccessTokenRequested() bool {
	return r.ResponseType.IncludesToken()
}

// ValidatedTokenRequest is the aggregate for a token-endpoint call, populated
// per grant type by the TokenRequestValidator.
type ValidatedTokenRequest struct {
	Raw url.Values

	Client    *clients.Client
	GrantType oauth2.GrantType

	// ValidatedScopes holds scope validation state for the grants that carry
	// a scope parameter (client_credentials, password, custom).
	ValidatedScopes *ScopeValidator

	// AuthorizationCode and its consumed store handle, for the
	// authorization_code grant.
	AuthorizationCode       *token.AuthorizationCode
	AuthorizationCodeHandle string

	// RefreshToken and its presented handle, for the refresh_token grant.
	RefreshToken       *token.RefreshToken
	RefreshTokenHandle string

	// UserName and Subject, for the password and custom grants.
	UserName string
	Subject  *users.Subject

	// SignInMessage passed to the user service for credential grants.
	SignInMessage *users.SignInMessage
}

// AuthorizeValidationResult is the outcome of authorize-request validation.
// Protocol errors are data, never Go errors; the ErrorType tag decides
// whether the error may be redirected to the client.
type AuthorizeValidationResult struct {
	IsError   bool
	ErrorType oauth2.ErrorType
	Error     string

	Request *ValidatedAuthorizeRequest
}

// TokenRequestValidationResult is the outcome of token-request validation.
type TokenRequestValidationResult struct {
	IsError bool
	Error   string

	Request *ValidatedTokenRequest
}

// ClientValidationResult is the outcome of client authentication.
type ClientValidationResult struct {
	IsError bool
	Error   string

	Client *clients.Client
}

func authorizeError(errorType oauth2.ErrorType, errorCode string, request *ValidatedAuthorizeRequest) *AuthorizeValidationResult {
	return &AuthorizeValidationResult{
		IsError:   true,
		ErrorType: errorType,
		Error:     errorCode,
		Request:   request,
	}
}

func authorizeSuccess(request *ValidatedAuthorizeRequest) *AuthorizeValidationResult {
	return &AuthorizeValidationResult{Request: request}
}

func tokenError(errorCode string, request *ValidatedTokenRequest) *TokenRequestValidationResult {
	return &TokenRequestValidationResult{
		IsError: true,
		Error:   errorCode,
		Request: request,
	}
}

func tokenSuccess(request *ValidatedTokenRequest) *TokenRequestValidationResult {
	return &TokenRequestValidationResult{Request: request}
}
