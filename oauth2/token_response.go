package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard token endpoint response format defined in RFC 6749,
// returned for all grant types. Absent fields are omitted from the JSON.
type TokenResponse struct {
	// AccessToken is the token used to access protected resources.
	// Usage: include in the Authorization header: "Bearer <access_token>"
	AccessToken *string `json:"access_token,omitempty"`

	// IdentityToken is the OpenID Connect ID token with user identity claims.
	// Only present when the "openid" scope drove the request.
	IdentityToken *string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token (always "bearer" here).
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque handle used to obtain new access tokens.
	// Only present when offline_access was among the granted scopes.
	// Rotates on use when the client's usage policy is OneTimeOnly.
	RefreshToken *string `json:"refresh_token,omitempty"`
}

// TokenErrorResponse is the error body for a failed token request,
// serialized with HTTP 400.
type TokenErrorResponse struct {
	Error string `json:"error"`
}

// AuthorizeResponse is the success output of the authorization endpoint.
// Built once per request, immutable afterwards; the HTTP layer turns it into
// a query/fragment redirect or a form-post document depending on ResponseMode.
type AuthorizeResponse struct {
	RedirectURI         string
	ResponseMode        ResponseMode
	Code                string
	IdentityToken       string
	AccessToken         string
	AccessTokenLifetime int
	State               string
	Scope               string
}
