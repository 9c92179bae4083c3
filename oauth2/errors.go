package oauth2

// Protocol error codes returned to clients, per RFC 6749 and OIDC Core.
// These are data, not Go errors: they are serialized onto the wire.
const (
	ErrorInvalidRequest          = "invalid_request"
	ErrorUnauthorizedClient      = "unauthorized_client"
	ErrorAccessDenied            = "access_denied"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorInvalidScope            = "invalid_scope"
	ErrorServerError             = "server_error"
	ErrorLoginRequired           = "login_required"
	ErrorInteractionRequired     = "interaction_required"
	ErrorInvalidClient           = "invalid_client"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
)

// ErrorType governs where an authorize-endpoint error may be communicated.
type ErrorType string

const (
	// ErrorTypeUser means the error must be rendered directly to the end user.
	// Used before the client and redirect_uri have been verified: redirecting
	// would create an open-redirect vector.
	ErrorTypeUser ErrorType = "user"

	// ErrorTypeClient means the error is safely relayed to the client
	// application via its verified redirect_uri.
	ErrorTypeClient ErrorType = "client"
)

// AuthorizeError describes a failed authorization request. For Client errors
// the RedirectURI/ResponseMode/State fields carry everything the HTTP layer
// needs to build the error redirect; for User errors they are empty.
type AuthorizeError struct {
	Type         ErrorType
	Error        string
	ErrorURI     string
	RedirectURI  string
	ResponseMode ResponseMode
	State        string
}
