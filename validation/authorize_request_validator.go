package validation

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/scopes"
)

// Input length caps. Anything longer is rejected before further processing.
const (
	maxClientIDLength    = 100
	maxScopeLength       = 300
	maxRedirectURILength = 400
	maxNonceLength       = 300
	maxLoginHintLength   = 100
	maxAcrValuesLength   = 300
)

// PKCE code challenge length bounds from RFC 7636.
const (
	minCodeChallengeLength = 43
	maxCodeChallengeLength = 128
)

const (
	loginHintIdPPrefix    = "idp:"
	acrValuesIdPPrefix    = "idp:"
	acrValuesTenantPrefix = "tenant:"
)

// AuthorizeRequestValidator validates authorize-endpoint requests in two
// stages. ValidateProtocol is purely syntactic; ValidateClient resolves the
// client and scopes against the stores. Until the client stage has verified
// the redirect URI, every error is tagged ErrorTypeUser so that nothing is
// ever redirected to an unverified URI.
type AuthorizeRequestValidator struct {
	clientStore  clients.Store
	scopeStore   scopes.Store
	uriValidator *RedirectURIValidator
}

// NewAuthorizeRequestValidator creates an AuthorizeRequestValidator.
func NewAuthorizeRequestValidator(clientStore clients.Store, scopeStore scopes.Store) (*AuthorizeRequestValidator, error) {
	if clientStore == nil {
		return nil, errors.New("[NewAuthorizeRequestValidator] clientStore is nil")
	}
	if scopeStore == nil {
		return nil, errors.New("[NewAuthorizeRequestValidator] scopeStore is nil")
	}
	return &AuthorizeRequestValidator{
		clientStore:  clientStore,
		scopeStore:   scopeStore,
		uriValidator: NewRedirectURIValidator(),
	}, nil
}

// Validate runs both validation stages.
func (v *AuthorizeRequestValidator) Validate(ctx context.Context, parameters url.Values) (*AuthorizeValidationResult, error) {
	result, err := v.ValidateProtocol(parameters)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return result, nil
	}
	return v.ValidateClient(ctx, result.Request)
}

// ValidateProtocol performs the syntactic stage. It never touches a store.
// The returned result always carries the partially populated request so that
// later error handling has access to state and response mode.
func (v *AuthorizeRequestValidator) ValidateProtocol(parameters url.Values) (*AuthorizeValidationResult, error) {
	if parameters == nil {
		return nil, errors.New("[AuthorizeRequestValidator.ValidateProtocol] parameters is nil")
	}

	request := &ValidatedAuthorizeRequest{Raw: parameters}

	// state is captured first so even failed requests can echo it back.
	request.State = parameters.Get(oauth2.ParamState)

	clientID := parameters.Get(oauth2.ParamClientID)
	if clientID == "" || len(clientID) > maxClientIDLength {
		log.Debug().Msg("client_id missing or too long")
		return authorizeError(oauth2.ErrorTypeUser, oauth2.ErrorInvalidRequest, request), nil
	}
	request.ClientID = clientID

	redirectURI := parameters.Get(oauth2.ParamRedirectURI)
	if redirectURI == "" || len(redirectURI) > maxRedirectURILength {
		log.Debug().Str("clientID", clientID).Msg("redirect_uri missing or too long")
		return authorizeError(oauth2.ErrorTypeUser, oauth2.ErrorInvalidRequest, request), nil
	}
	if parsed, err := url.Parse(redirectURI); err != nil || !parsed.IsAbs() {
		log.Debug().Str("clientID", clientID).Str("redirectURI", redirectURI).Msg("redirect_uri is not an absolute URI")
		return authorizeError(oauth2.ErrorTypeUser, oauth2.ErrorInvalidRequest, request), nil
	}
	request.RedirectURI = redirectURI

	responseType := oauth2.ResponseType(parameters.Get(oauth2.ParamResponseType))
	if !responseType.Supported() {
		log.Debug().Str("clientID", clientID).Str("responseType", string(responseType)).Msg("unsupported response_type")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorUnsupportedResponseType, request), nil
	}
	request.ResponseType = responseType

	flow, ok := oauth2.FlowForResponseType(responseType)
	if !ok {
		log.Debug().Str("clientID", clientID).Str("responseType", string(responseType)).Msg("no flow for response_type")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorUnsupportedResponseType, request), nil
	}
	request.Flow = flow
	request.ResponseMode = oauth2.DefaultResponseMode(responseType)

	if result := v.validateResponseMode(parameters, request); result != nil {
		return result, nil
	}

	scope := parameters.Get(oauth2.ParamScope)
	if scope == "" || len(scope) > maxScopeLength {
		log.Debug().Str("clientID", clientID).Msg("scope missing or too long")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request), nil
	}
	request.Scope = scope
	request.RequestedScopeNames = oauth2.ParseScopes(scope)
	request.IsOpenIDRequest = oauth2.ScopesContain(request.RequestedScopeNames, oauth2.ScopeOpenID)

	if responseType.IncludesIDToken() && !request.IsOpenIDRequest {
		log.Debug().Str("clientID", clientID).Msg("response_type requests an id_token without the openid scope")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request), nil
	}
	if request.IsOpenIDRequest && !responseType.IncludesIDToken() && !responseType.IncludesCode() {
		log.Debug().Str("clientID", clientID).Str("responseType", string(responseType)).Msg("openid scope requested but response_type cannot carry identity")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request), nil
	}

	nonce := parameters.Get(oauth2.ParamNonce)
	if len(nonce) > maxNonceLength {
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request), nil
	}
	if nonce == "" && responseType.IncludesIDToken() {
		log.Debug().Str("clientID", clientID).Msg("nonce required when an id_token is issued from the authorize endpoint")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request), nil
	}
	request.Nonce = nonce

	promptMode := oauth2.PromptMode(parameters.Get(oauth2.ParamPrompt))
	if !promptMode.Supported() {
		log.Debug().Str("clientID", clientID).Str("prompt", string(promptMode)).Msg("unsupported prompt mode")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request), nil
	}
	request.PromptMode = promptMode

	if result := v.validateOptionalParameters(parameters, request); result != nil {
		return result, nil
	}

	return authorizeSuccess(request), nil
}

func (v *AuthorizeRequestValidator) validateResponseMode(parameters url.Values, request *ValidatedAuthorizeRequest) *AuthorizeValidationResult {
	responseMode := oauth2.ResponseMode(parameters.Get(oauth2.ParamResponseMode))
	if responseMode == "" {
		return nil
	}

	switch responseMode {
	case oauth2.ResponseModeQuery:
		// The query string is only safe for the code flow; tokens must
		// never travel in a query.
		if request.ResponseType != oauth2.ResponseTypeCode {
			return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
		}
	case oauth2.ResponseModeFragment:
		if request.ResponseType == oauth2.ResponseTypeCode {
			return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorUnsupportedResponseType, request)
		}
	case oauth2.ResponseModeFormPost:
		// form_post is legal for every response type.
	default:
		log.Debug().Str("clientID", request.ClientID).Str("responseMode", string(responseMode)).Msg("unsupported response_mode")
		return authorizeError(oauth2.ErrorTypeUser, oauth2.ErrorInvalidRequest, request)
	}

	request.ResponseMode = responseMode
	return nil
}

func (v *AuthorizeRequestValidator) validateOptionalParameters(parameters url.Values, request *ValidatedAuthorizeRequest) *AuthorizeValidationResult {
	loginHint := parameters.Get(oauth2.ParamLoginHint)
	if len(loginHint) > maxLoginHintLength {
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
	}
	if strings.HasPrefix(loginHint, loginHintIdPPrefix) {
		request.IdP = strings.TrimPrefix(loginHint, loginHintIdPPrefix)
	} else {
		request.LoginHint = loginHint
	}

	acrValues := parameters.Get(oauth2.ParamAcrValues)
	if len(acrValues) > maxAcrValuesLength {
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
	}
	for _, acr := range oauth2.ParseScopes(acrValues) {
		switch {
		case strings.HasPrefix(acr, acrValuesIdPPrefix) && request.IdP == "":
			request.IdP = strings.TrimPrefix(acr, acrValuesIdPPrefix)
		case strings.HasPrefix(acr, acrValuesTenantPrefix) && request.Tenant == "":
			request.Tenant = strings.TrimPrefix(acr, acrValuesTenantPrefix)
		default:
			request.AcrValues = append(request.AcrValues, acr)
		}
	}

	if maxAge := parameters.Get(oauth2.ParamMaxAge); maxAge != "" {
		seconds, err := strconv.Atoi(maxAge)
		if err != nil || seconds < 0 {
			log.Debug().Str("clientID", request.ClientID).Str("maxAge", maxAge).Msg("malformed max_age")
			return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
		}
		request.MaxAge = &seconds
	}

	return v.validatePKCE(parameters, request)
}

func (v *AuthorizeRequestValidator) validatePKCE(parameters url.Values, request *ValidatedAuthorizeRequest) *AuthorizeValidationResult {
	codeChallenge := parameters.Get(oauth2.ParamCodeChallenge)
	codeChallengeMethod := parameters.Get(oauth2.ParamCodeChallengeMethod)

	if codeChallenge == "" {
		if codeChallengeMethod != "" {
			return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
		}
		return nil
	}

	if !request.ResponseType.IncludesCode() {
		log.Debug().Str("clientID", request.ClientID).Msg("code_challenge sent on a flow without an authorization code")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
	}
	if len(codeChallenge) < minCodeChallengeLength || len(codeChallenge) > maxCodeChallengeLength {
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
	}

	method := oauth2.CodeChallengeMethod(codeChallengeMethod)
	if method == "" {
		method = oauth2.CodeChallengePlain
	}
	if method != oauth2.CodeChallengeS256 && method != oauth2.CodeChallengePlain {
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidRequest, request)
	}

	request.CodeChallenge = codeChallenge
	request.CodeChallengeMethod = method
	return nil
}

// ValidateClient performs the store-backed stage: client lookup, redirect URI
// registration, response-type permission and scope validation. Errors after
// the redirect URI is verified are tagged ErrorTypeClient and may be
// redirected.
func (v *AuthorizeRequestValidator) ValidateClient(ctx context.Context, request *ValidatedAuthorizeRequest) (*AuthorizeValidationResult, error) {
	if request == nil {
		return nil, errors.New("[AuthorizeRequestValidator.ValidateClient] request is nil")
	}

	client, err := v.clientStore.FindClientByID(ctx, request.ClientID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizeRequestValidator.ValidateClient] find client")
	}
	if client == nil || !client.Enabled {
		log.Debug().Str("clientID", request.ClientID).Msg("unknown or disabled client")
		return authorizeError(oauth2.ErrorTypeUser, oauth2.ErrorUnauthorizedClient, request), nil
	}
	request.Client = client

	if !v.uriValidator.IsRedirectURIValid(request.RedirectURI, client) {
		log.Debug().Str("clientID", client.ID).Str("redirectURI", request.RedirectURI).Msg("redirect_uri not registered for client")
		return authorizeError(oauth2.ErrorTypeUser, oauth2.ErrorUnauthorizedClient, request), nil
	}

	if !client.AllowsResponseType(request.ResponseType) {
		log.Debug().Str("clientID", client.ID).Str("responseType", string(request.ResponseType)).Str("flow", string(client.Flow)).Msg("response_type not permitted for client flow")
		return authorizeError(oauth2.ErrorTypeUser, oauth2.ErrorUnauthorizedClient, request), nil
	}

	if request.IdP != "" && !client.AllowsIdentityProvider(request.IdP) {
		log.Debug().Str("clientID", client.ID).Str("idp", request.IdP).Msg("identity provider not permitted for client, ignoring hint")
		request.IdP = ""
	}

	scopeValidator, err := NewScopeValidator(v.scopeStore)
	if err != nil {
		return nil, err
	}

	valid, err := scopeValidator.AreScopesValid(ctx, request.RequestedScopeNames)
	if err != nil {
		return nil, err
	}
	if !valid {
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidScope, request), nil
	}
	if !scopeValidator.AreScopesAllowed(client, request.RequestedScopeNames) {
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidScope, request), nil
	}
	if !scopeValidator.IsResponseTypeValid(request.ResponseType) {
		log.Debug().Str("clientID", client.ID).Str("responseType", string(request.ResponseType)).Msg("scope partition incompatible with response_type")
		return authorizeError(oauth2.ErrorTypeClient, oauth2.ErrorInvalidScope, request), nil
	}
	request.ValidatedScopes = scopeValidator

	return authorizeSuccess(request), nil
}
