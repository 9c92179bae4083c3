package validation_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewell/go-identity-server/clients"
	fakeclientrepo "github.com/corewell/go-identity-server/clients/fakerepo"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/scopes"
	fakescoperepo "github.com/corewell/go-identity-server/scopes/fakerepo"
	"github.com/corewell/go-identity-server/validation"
)

const (
	testCodeClientID     = "codeclient"
	testImplicitClientID = "implicitclient"
	testRedirectURI      = "https://server/cb"
	testState            = "af0ifjsldkj"
	testNonce            = "n-0S6_WzA2Mj"
	testCodeChallenge    = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

type authorizeFixture struct {
	clientRepo *fakeclientrepo.FakeClientRepo
	scopeRepo  *fakescoperepo.FakeScopeRepo
	validator  *validation.AuthorizeRequestValidator
}

func setupAuthorizeFixture(t *testing.T) *authorizeFixture {
	t.Helper()

	cr := fakeclientrepo.NewFakeClientRepo()
	sr := fakescoperepo.NewFakeScopeRepo(testScopes()...)

	seedClient(t, cr, &clients.Client{
		ID:           testCodeClientID,
		ClientName:   "Code Flow Client",
		Enabled:      true,
		Flow:         oauth2.FlowAuthorizationCode,
		RedirectURIs: []string{testRedirectURI},
	})
	seedClient(t, cr, &clients.Client{
		ID:           testImplicitClientID,
		ClientName:   "Implicit Flow Client",
		Enabled:      true,
		Flow:         oauth2.FlowImplicit,
		RedirectURIs: []string{testRedirectURI},
	})
	seedClient(t, cr, &clients.Client{
		ID:           "disabledclient",
		Enabled:      false,
		Flow:         oauth2.FlowAuthorizationCode,
		RedirectURIs: []string{testRedirectURI},
	})
	seedClient(t, cr, &clients.Client{
		ID:                "restrictedclient",
		Enabled:           true,
		Flow:              oauth2.FlowAuthorizationCode,
		RedirectURIs:      []string{testRedirectURI},
		ScopeRestrictions: []string{oauth2.ScopeOpenID},
	})

	v, err := validation.NewAuthorizeRequestValidator(cr, sr)
	require.NoError(t, err)

	return &authorizeFixture{clientRepo: cr, scopeRepo: sr, validator: v}
}

func testScopes() []scopes.Scope {
	return append(scopes.StandardScopes(), scopes.Scope{
		Name: "read",
		Type: scopes.TypeResource,
	})
}

func seedClient(t *testing.T, repo *fakeclientrepo.FakeClientRepo, client *clients.Client) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), client))
}

func codeRequestParameters() url.Values {
	return url.Values{
		oauth2.ParamClientID:     {testCodeClientID},
		oauth2.ParamRedirectURI:  {testRedirectURI},
		oauth2.ParamResponseType: {string(oauth2.ResponseTypeCode)},
		oauth2.ParamScope:        {"openid profile read"},
		oauth2.ParamState:        {testState},
	}
}

func TestAuthorizeRequestValidator_ValidateProtocol(t *testing.T) {
	f := setupAuthorizeFixture(t)

	t.Run("valid code request passes and derives defaults", func(t *testing.T) {
		result, err := f.validator.ValidateProtocol(codeRequestParameters())
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, oauth2.FlowAuthorizationCode, result.Request.Flow)
		require.Equal(t, oauth2.ResponseModeQuery, result.Request.ResponseMode)
		require.Equal(t, testState, result.Request.State)
		require.True(t, result.Request.IsOpenIDRequest)
	})

	t.Run("nil parameters is a contract violation", func(t *testing.T) {
		_, err := f.validator.ValidateProtocol(nil)
		require.Error(t, err)
	})

	t.Run("missing client_id is a user error", func(t *testing.T) {
		p := codeRequestParameters()
		p.Del(oauth2.ParamClientID)

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeUser, result.ErrorType)
		require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
	})

	t.Run("missing redirect_uri is a user error", func(t *testing.T) {
		p := codeRequestParameters()
		p.Del(oauth2.ParamRedirectURI)

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeUser, result.ErrorType)
		require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
	})

	t.Run("relative redirect_uri is a user error", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamRedirectURI, "/cb")

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeUser, result.ErrorType)
	})

	t.Run("unknown response_type", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamResponseType, "device_code")

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeClient, result.ErrorType)
		require.Equal(t, oauth2.ErrorUnsupportedResponseType, result.Error)
	})

	t.Run("fragment response_mode is illegal for code", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamResponseMode, string(oauth2.ResponseModeFragment))

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorUnsupportedResponseType, result.Error)
	})

	t.Run("query response_mode is illegal for token-bearing types", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamResponseType, string(oauth2.ResponseTypeIDToken))
		p.Set(oauth2.ParamResponseMode, string(oauth2.ResponseModeQuery))
		p.Set(oauth2.ParamNonce, testNonce)

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
	})

	t.Run("form_post is legal for every response type", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamResponseMode, string(oauth2.ResponseModeFormPost))

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, oauth2.ResponseModeFormPost, result.Request.ResponseMode)
	})

	t.Run("missing scope", func(t *testing.T) {
		p := codeRequestParameters()
		p.Del(oauth2.ParamScope)

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
	})

	t.Run("id_token response types require the openid scope", func(t *testing.T) {
		for _, rt := range []oauth2.ResponseType{
			oauth2.ResponseTypeIDToken,
			oauth2.ResponseTypeIDTokenToken,
			oauth2.ResponseTypeCodeIDToken,
		} {
			p := codeRequestParameters()
			p.Set(oauth2.ParamResponseType, string(rt))
			p.Set(oauth2.ParamScope, "read")
			p.Set(oauth2.ParamNonce, testNonce)

			result, err := f.validator.ValidateProtocol(p)
			require.NoError(t, err)
			require.True(t, result.IsError, "response_type %q", rt)
			require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
		}
	})

	t.Run("openid scope requires a response_type that can carry identity", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamResponseType, string(oauth2.ResponseTypeToken))
		p.Set(oauth2.ParamScope, "openid read")

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeClient, result.ErrorType)
		require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
	})

	t.Run("id_token response types require a nonce", func(t *testing.T) {
		for _, rt := range []oauth2.ResponseType{
			oauth2.ResponseTypeIDToken,
			oauth2.ResponseTypeIDTokenToken,
			oauth2.ResponseTypeCodeIDToken,
			oauth2.ResponseTypeCodeIDTokenToken,
		} {
			p := codeRequestParameters()
			p.Set(oauth2.ParamResponseType, string(rt))

			result, err := f.validator.ValidateProtocol(p)
			require.NoError(t, err)
			require.True(t, result.IsError, "response_type %q", rt)
			require.Equal(t, oauth2.ErrorTypeClient, result.ErrorType)
			require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
		}
	})

	t.Run("unsupported prompt mode", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamPrompt, "create")

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
	})

	t.Run("malformed max_age", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamMaxAge, "-1")

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
	})

	t.Run("login_hint idp prefix becomes an idp hint", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamLoginHint, "idp:google")

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, "google", result.Request.IdP)
		require.Empty(t, result.Request.LoginHint)
	})

	t.Run("acr_values carry idp and tenant hints", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamAcrValues, "idp:azuread tenant:contoso urn:level:2")

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, "azuread", result.Request.IdP)
		require.Equal(t, "contoso", result.Request.Tenant)
		require.Equal(t, []string{"urn:level:2"}, result.Request.AcrValues)
	})

	t.Run("code_challenge is stored with its method", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamCodeChallenge, testCodeChallenge)
		p.Set(oauth2.ParamCodeChallengeMethod, string(oauth2.CodeChallengeS256))

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, testCodeChallenge, result.Request.CodeChallenge)
		require.Equal(t, oauth2.CodeChallengeS256, result.Request.CodeChallengeMethod)
	})

	t.Run("code_challenge rejected on token-only flows", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamClientID, testImplicitClientID)
		p.Set(oauth2.ParamResponseType, string(oauth2.ResponseTypeToken))
		p.Set(oauth2.ParamScope, "read")
		p.Set(oauth2.ParamCodeChallenge, testCodeChallenge)

		result, err := f.validator.ValidateProtocol(p)
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorInvalidRequest, result.Error)
	})
}

func TestAuthorizeRequestValidator_ValidateClient(t *testing.T) {
	f := setupAuthorizeFixture(t)
	ctx := context.Background()

	validate := func(t *testing.T, p url.Values) *validation.AuthorizeValidationResult {
		t.Helper()
		result, err := f.validator.Validate(ctx, p)
		require.NoError(t, err)
		return result
	}

	t.Run("valid request resolves client and scopes", func(t *testing.T) {
		result := validate(t, codeRequestParameters())
		require.False(t, result.IsError)
		require.Equal(t, testCodeClientID, result.Request.Client.ID)
		require.NotNil(t, result.Request.ValidatedScopes)
		require.Len(t, result.Request.ValidatedScopes.GrantedScopes, 3)
		require.True(t, result.Request.ValidatedScopes.ContainsOpenIDScopes)
		require.True(t, result.Request.ValidatedScopes.ContainsResourceScopes)
	})

	t.Run("unknown client is a user error", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamClientID, "nosuchclient")

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeUser, result.ErrorType)
		require.Equal(t, oauth2.ErrorUnauthorizedClient, result.Error)
	})

	t.Run("disabled client is a user error", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamClientID, "disabledclient")

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeUser, result.ErrorType)
		require.Equal(t, oauth2.ErrorUnauthorizedClient, result.Error)
	})

	t.Run("unregistered redirect_uri is a user error", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamRedirectURI, "https://evil/cb")

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeUser, result.ErrorType)
		require.Equal(t, oauth2.ErrorUnauthorizedClient, result.Error)
	})

	t.Run("response_type not permitted by client flow", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamClientID, testImplicitClientID)

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorUnauthorizedClient, result.Error)
	})

	t.Run("unknown scope", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamScope, "openid nosuchscope")

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorTypeClient, result.ErrorType)
		require.Equal(t, oauth2.ErrorInvalidScope, result.Error)
	})

	t.Run("scope outside client restrictions", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamClientID, "restrictedclient")
		p.Set(oauth2.ParamScope, "openid read")

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorInvalidScope, result.Error)
	})

	t.Run("token response_type must not carry identity scopes", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamClientID, testImplicitClientID)
		p.Set(oauth2.ParamResponseType, string(oauth2.ResponseTypeToken))
		p.Set(oauth2.ParamScope, "profile read")

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorInvalidScope, result.Error)
	})

	t.Run("id_token response_type must not carry resource scopes", func(t *testing.T) {
		p := codeRequestParameters()
		p.Set(oauth2.ParamClientID, testImplicitClientID)
		p.Set(oauth2.ParamResponseType, string(oauth2.ResponseTypeIDToken))
		p.Set(oauth2.ParamScope, "openid read")
		p.Set(oauth2.ParamNonce, testNonce)

		result := validate(t, p)
		require.True(t, result.IsError)
		require.Equal(t, oauth2.ErrorInvalidScope, result.Error)
	})
}
