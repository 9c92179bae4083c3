package oauth2

import "strings"

// ResponseType represents the OAuth 2.0 / OIDC response_type parameter.
// Determines what artifacts the authorization endpoint returns.
type ResponseType string

const (
	// ResponseTypeCode indicates the authorization code flow.
	// Returns an authorization code that must be exchanged at the token endpoint.
	// Example: /connect/authorize?response_type=code&client_id=...
	ResponseTypeCode ResponseType = "code"

	// ResponseTypeToken indicates the OAuth2 implicit flow (access token only).
	// Returns an access token directly in the fragment.
	ResponseTypeToken ResponseType = "token"

	// ResponseTypeIDToken indicates the OIDC implicit flow (identity token only).
	ResponseTypeIDToken ResponseType = "id_token"

	// ResponseTypeIDTokenToken indicates the OIDC implicit flow returning both
	// an identity token and an access token.
	ResponseTypeIDTokenToken ResponseType = "id_token token"

	// ResponseTypeCodeIDToken indicates the hybrid flow returning a code
	// plus an identity token from the authorization endpoint.
	ResponseTypeCodeIDToken ResponseType = "code id_token"

	// ResponseTypeCodeToken indicates the hybrid flow returning a code
	// plus an access token from the authorization endpoint.
	ResponseTypeCodeToken ResponseType = "code token"

	// ResponseTypeCodeIDTokenToken indicates the hybrid flow returning a code,
	// an identity token and an access token from the authorization endpoint.
	ResponseTypeCodeIDTokenToken ResponseType = "code id_token token"
)

// SupportedResponseTypes is the exact set of response_type values the
// authorization endpoint accepts. Anything else is unsupported_response_type.
var SupportedResponseTypes = []ResponseType{
	ResponseTypeCode,
	ResponseTypeToken,
	ResponseTypeIDToken,
	ResponseTypeIDTokenToken,
	ResponseTypeCodeIDToken,
	ResponseTypeCodeToken,
	ResponseTypeCodeIDTokenToken,
}

// Supported reports whether rt is one of the supported response types.
func (rt ResponseType) Supported() bool {
	for _, s := range SupportedResponseTypes {
		if rt == s {
			return true
		}
	}
	return false
}

// IncludesCode reports whether the response type carries an authorization code.
func (rt ResponseType) IncludesCode() bool { return rt.has("code") }

// IncludesToken reports whether the response type carries an access token.
func (rt ResponseType) IncludesToken() bool { return rt.has("token") }

// IncludesIDToken reports whether the response type carries an identity token.
func (rt ResponseType) IncludesIDToken() bool { return rt.has("id_token") }

func (rt ResponseType) has(part string) bool {
	for _, p := range strings.Split(string(rt), " ") {
		if p == part {
			return true
		}
	}
	return false
}

// Flow classifies how a client is allowed to interact with the protocol
// endpoints. For interactive flows it is derived from the response_type;
// for the non-interactive grants it is a client configuration value.
type Flow string

const (
	FlowAuthorizationCode Flow = "authorization_code"
	FlowImplicit          Flow = "implicit"
	FlowHybrid            Flow = "hybrid"
	FlowClientCredentials Flow = "client_credentials"
	FlowResourceOwner     Flow = "resource_owner"
	FlowCustom            Flow = "custom"
)

// FlowForResponseType derives the interactive Flow from a response_type.
// The mapping is total over SupportedResponseTypes; ok is false otherwise.
func FlowForResponseType(rt ResponseType) (Flow, bool) {
	switch rt {
	case ResponseTypeCode:
		return FlowAuthorizationCode, true
	case ResponseTypeToken, ResponseTypeIDToken, ResponseTypeIDTokenToken:
		return FlowImplicit, true
	case ResponseTypeCodeIDToken, ResponseTypeCodeToken, ResponseTypeCodeIDTokenToken:
		return FlowHybrid, true
	}
	return "", false
}

// ResponseMode denotes how authorization response parameters are returned
// to the client's redirect_uri.
type ResponseMode string

const (
	// ResponseModeQuery returns parameters in the URL query string.
	// Only legal for the code flow.
	// Example: https://client.example.com/cb?code=ABC123&state=xyz
	ResponseModeQuery ResponseMode = "query"

	// ResponseModeFragment returns parameters in the URL fragment (after #).
	// The default for token-bearing response types.
	// Example: https://client.example.com/cb#access_token=ABC123&state=xyz
	ResponseModeFragment ResponseMode = "fragment"

	// ResponseModeFormPost returns parameters via an auto-submitting HTML form.
	// Keeps tokens and codes out of URLs entirely.
	ResponseModeFormPost ResponseMode = "form_post"
)

// DefaultResponseMode returns the response mode used when the client did not
// request one: query for the code flow, fragment for everything else.
func DefaultResponseMode(rt ResponseType) ResponseMode {
	if rt == ResponseTypeCode {
		return ResponseModeQuery
	}
	return ResponseModeFragment
}

// PromptMode is the OIDC prompt parameter controlling whether interactive
// UI may be shown during authorization.
type PromptMode string

const (
	PromptNone          PromptMode = "none"
	PromptLogin         PromptMode = "login"
	PromptConsent       PromptMode = "consent"
	PromptSelectAccount PromptMode = "select_account"
)

// Supported reports whether pm is a recognized prompt value.
// An empty prompt is valid (no restriction requested).
func (pm PromptMode) Supported() bool {
	switch pm {
	case "", PromptNone, PromptLogin, PromptConsent, PromptSelectAccount:
		return true
	}
	return false
}

// GrantType represents the OAuth 2.0 grant_type used at the token endpoint.
type GrantType string

const (
	// GrantTypeAuthorizationCode exchanges an authorization code for tokens.
	GrantTypeAuthorizationCode GrantType = "authorization_code"

	// GrantTypeClientCredentials allows machine-to-machine authentication,
	// no resource owner involved.
	GrantTypeClientCredentials GrantType = "client_credentials"

	// GrantTypePassword is the resource-owner password credentials grant.
	GrantTypePassword GrantType = "password"

	// GrantTypeRefreshToken exchanges a refresh token for new tokens.
	GrantTypeRefreshToken GrantType = "refresh_token"
)

// Standard request parameter names.
const (
	ParamClientID            = "client_id"
	ParamClientSecret        = "client_secret"
	ParamResponseType        = "response_type"
	ParamResponseMode        = "response_mode"
	ParamRedirectURI         = "redirect_uri"
	ParamScope               = "scope"
	ParamState               = "state"
	ParamNonce               = "nonce"
	ParamPrompt              = "prompt"
	ParamLoginHint           = "login_hint"
	ParamAcrValues           = "acr_values"
	ParamMaxAge              = "max_age"
	ParamGrantType           = "grant_type"
	ParamCode                = "code"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamCodeVerifier        = "code_verifier"
	ParamRefreshToken        = "refresh_token"
	ParamUserName            = "username"
	ParamPassword            = "password"
	ParamError               = "error"
)

// Scope names with protocol-level meaning.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeAddress       = "address"
	ScopePhone         = "phone"
	ScopeOfflineAccess = "offline_access"
)

// CodeChallengeMethod is the PKCE challenge derivation method.
type CodeChallengeMethod string

const (
	// CodeChallengeS256 means code_challenge = BASE64URL(SHA256(code_verifier)).
	CodeChallengeS256 CodeChallengeMethod = "S256"

	// CodeChallengePlain means the verifier is sent as the challenge verbatim.
	// Only protects against passive interception; S256 is preferred.
	CodeChallengePlain CodeChallengeMethod = "plain"
)

// TokenTypeBearer is the only token_type this server issues.
const TokenTypeBearer = "bearer"

// ParseScopes splits a space-separated scope string, dropping empty tokens.
func ParseScopes(scope string) []string {
	if strings.TrimSpace(scope) == "" {
		return []string{}
	}
	result := []string{}
	for _, s := range strings.Split(scope, " ") {
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

// ScopesContain reports whether name is among scopes.
func ScopesContain(scopes []string, name string) bool {
	for _, s := range scopes {
		if s == name {
			return true
		}
	}
	return false
}
