package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corewell/go-identity-server/clients"
	fakeclientrepo "github.com/corewell/go-identity-server/clients/fakerepo"
	"github.com/corewell/go-identity-server/consent"
	"github.com/corewell/go-identity-server/internal/config"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/response"
	"github.com/corewell/go-identity-server/scopes"
	fakescoperepo "github.com/corewell/go-identity-server/scopes/fakerepo"
	"github.com/corewell/go-identity-server/server"
	"github.com/corewell/go-identity-server/token"
	"github.com/corewell/go-identity-server/token/repofake"
	"github.com/corewell/go-identity-server/users"
	"github.com/corewell/go-identity-server/validation"
)

const (
	testClientID     = "codeclient"
	testClientSecret = "secret"
	testRedirectURI  = "https://client.example.com/cb"
	testSubjectID    = "818727"
	testState        = "af0ifjsldkj"

	testExternalProvider   = "upstream"
	testExternalProviderID = "ext-818727"
)

type stubSubjectProvider struct {
	subject   *users.Subject
	sessionID string
}

func (p *stubSubjectProvider) Subject(*http.Request) (*users.Subject, string) {
	return p.subject, p.sessionID
}

type serverFixture struct {
	now         time.Time
	clientRepo  *fakeclientrepo.FakeClientRepo
	subjects    *stubSubjectProvider
	userService *users.InMemoryService
	server      *server.Server
}

func setupServerFixture(t *testing.T) *serverFixture {
	return setupServerFixtureWith(t, nil)
}

// setupServerFixtureWith lets a test add server options that depend on the
// fixture's services, such as external login.
func setupServerFixtureWith(t *testing.T, buildOptions func(f *serverFixture) []server.Option) *serverFixture {
	t.Helper()
	ctx := context.Background()

	f := &serverFixture{
		now:        time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
		clientRepo: fakeclientrepo.NewFakeClientRepo(),
		subjects:   &stubSubjectProvider{},
	}
	nowFunc := func() time.Time { return f.now }

	cfg := config.New()
	issuer := cfg.GetIssuer()

	scopeRepo := fakescoperepo.NewFakeScopeRepo(append(scopes.StandardScopes(),
		scopes.Scope{Name: "read", Type: scopes.TypeResource})...)

	passwordHash, err := users.HashPassword("password")
	require.NoError(t, err)
	userService := users.NewInMemoryService([]users.InMemoryUser{{
		SubjectID:    testSubjectID,
		Username:     "bob",
		PasswordHash: passwordHash,
		Enabled:      true,
		Provider:     testExternalProvider,
		ProviderID:   testExternalProviderID,
		Claims:       []users.Claim{{Type: "name", Value: "Bob Smith"}},
	}}, users.WithNowFunc(nowFunc))
	f.userService = userService

	require.NoError(t, f.clientRepo.Upsert(ctx, &clients.Client{
		ID:           testClientID,
		ClientName:   "Code Client",
		Enabled:      true,
		Secrets:      []clients.Secret{{Value: clients.HashSecret(testClientSecret)}},
		Flow:         oauth2.FlowAuthorizationCode,
		RedirectURIs: []string{testRedirectURI},
	}))
	require.NoError(t, f.clientRepo.Upsert(ctx, &clients.Client{
		ID:             "consentclient",
		ClientName:     "Consent Client",
		Enabled:        true,
		Flow:           oauth2.FlowAuthorizationCode,
		RedirectURIs:   []string{testRedirectURI},
		RequireConsent: true,
	}))

	signer := token.NewHMACSigner("server-test-signing-secret")
	handleStore := repofake.NewFakeTokenHandleStore()
	codeStore := repofake.NewFakeCodeStore()
	refreshStore := repofake.NewFakeRefreshTokenStore()

	tokenManager, err := token.NewManager(signer, userService, handleStore, issuer, token.WithNowFunc(nowFunc))
	require.NoError(t, err)
	refreshManager, err := token.NewRefreshManager(refreshStore, token.WithRefreshNowFunc(nowFunc))
	require.NoError(t, err)
	presentedTokens, err := token.NewValidator(signer, handleStore, issuer, token.WithValidatorNowFunc(nowFunc))
	require.NoError(t, err)

	authorizeValidator, err := validation.NewAuthorizeRequestValidator(f.clientRepo, scopeRepo)
	require.NoError(t, err)
	clientValidator, err := validation.NewClientSecretValidator(f.clientRepo, validation.WithClientValidatorNowFunc(nowFunc))
	require.NoError(t, err)
	tokenValidator, err := validation.NewTokenRequestValidator(scopeRepo, codeStore, refreshStore, userService,
		validation.WithTokenValidatorNowFunc(nowFunc))
	require.NoError(t, err)

	interaction, err := response.NewAuthorizeInteractionResponseGenerator(consent.NewInMemoryService(), userService,
		response.WithInteractionNowFunc(nowFunc))
	require.NoError(t, err)
	authorizeResponses, err := response.NewAuthorizeResponseGenerator(tokenManager, codeStore,
		response.WithAuthorizeNowFunc(nowFunc))
	require.NoError(t, err)
	tokenResponses, err := response.NewTokenResponseGenerator(tokenManager, refreshManager, scopeRepo,
		response.WithTokenGeneratorNowFunc(nowFunc))
	require.NoError(t, err)
	userInfo, err := response.NewUserInfoResponseGenerator(userService, scopeRepo)
	require.NoError(t, err)
	endSession, err := response.NewEndSessionResponseGenerator(presentedTokens, f.clientRepo)
	require.NoError(t, err)

	var options []server.Option
	if buildOptions != nil {
		options = buildOptions(f)
	}

	f.server, err = server.New(cfg, server.Engine{
		AuthorizeValidator: authorizeValidator,
		ClientValidator:    clientValidator,
		TokenValidator:     tokenValidator,
		Interaction:        interaction,
		AuthorizeResponses: authorizeResponses,
		TokenResponses:     tokenResponses,
		UserInfo:           userInfo,
		EndSession:         endSession,
		PresentedTokens:    presentedTokens,
	}, signer, scopeRepo, f.subjects, options...)
	require.NoError(t, err)

	return f
}

func (f *serverFixture) signIn() {
	// AuthenticationTime is on the wall clock because the server's session
	// age ceiling is checked against time.Since.
	f.subjects.subject = &users.Subject{
		SubjectID:            testSubjectID,
		Name:                 "Bob Smith",
		AuthenticationTime:   time.Now(),
		IdentityProvider:     users.LocalIdentityProvider,
		AuthenticationMethod: "password",
	}
	f.subjects.sessionID = "session-1"
}

func (f *serverFixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}

func authorizeQuery(clientID, scope, responseType string) url.Values {
	return url.Values{
		oauth2.ParamClientID:     {clientID},
		oauth2.ParamResponseType: {responseType},
		oauth2.ParamRedirectURI:  {testRedirectURI},
		oauth2.ParamScope:        {scope},
		oauth2.ParamState:        {testState},
	}
}

// authorizeForCode runs the authorize endpoint and returns the issued code.
func authorizeForCode(t *testing.T, f *serverFixture, query url.Values) string {
	t.Helper()

	w := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+query.Encode(), nil))
	require.Equal(t, http.StatusSeeOther, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, testRedirectURI, location.Scheme+"://"+location.Host+location.Path)
	require.Equal(t, testState, location.Query().Get(oauth2.ParamState))

	code := location.Query().Get(oauth2.ParamCode)
	require.NotEmpty(t, code)
	return code
}

func redeemCode(t *testing.T, f *serverFixture, code string) map[string]any {
	t.Helper()

	form := url.Values{
		oauth2.ParamGrantType:   {"authorization_code"},
		oauth2.ParamCode:        {code},
		oauth2.ParamRedirectURI: {testRedirectURI},
	}
	r := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth(testClientID, testClientSecret)

	w := f.do(r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthorizeEndpoint(t *testing.T) {
	t.Run("issues a code to an authenticated user", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		authorizeForCode(t, f, authorizeQuery(testClientID, "openid read", "code"))
	})

	t.Run("anonymous user is sent to the login page", func(t *testing.T) {
		f := setupServerFixture(t)

		w := f.do(httptest.NewRequest(http.MethodGet,
			server.RouteAuthorize+"?"+authorizeQuery(testClientID, "openid", "code").Encode(), nil))
		require.Equal(t, http.StatusSeeOther, w.Code)

		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/login", location.Path)

		message, ok := f.server.SignInMessage(location.Query().Get("signin"))
		require.True(t, ok)
		require.Equal(t, testClientID, message.ClientID)
		require.Contains(t, message.ReturnURL, oauth2.ParamClientID+"="+testClientID)
	})

	t.Run("stale login session is sent back to login", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()
		f.subjects.subject.AuthenticationTime = time.Now().Add(-time.Hour)

		w := f.do(httptest.NewRequest(http.MethodGet,
			server.RouteAuthorize+"?"+authorizeQuery(testClientID, "openid", "code").Encode(), nil))
		require.Equal(t, http.StatusSeeOther, w.Code)

		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/login", location.Path)
	})

	t.Run("missing code_challenge is rejected when pkce is required", func(t *testing.T) {
		t.Setenv("REQUIRE_PKCE", "true")
		f := setupServerFixture(t)
		f.signIn()

		w := f.do(httptest.NewRequest(http.MethodGet,
			server.RouteAuthorize+"?"+authorizeQuery(testClientID, "openid", "code").Encode(), nil))
		require.Equal(t, http.StatusSeeOther, w.Code)

		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, oauth2.ErrorInvalidRequest, location.Query().Get("error"))
	})

	t.Run("unregistered redirect uri renders locally", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		query := authorizeQuery(testClientID, "openid", "code")
		query.Set(oauth2.ParamRedirectURI, "https://evil.example.com/cb")

		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+query.Encode(), nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Empty(t, w.Header().Get("Location"))
		require.Contains(t, w.Body.String(), oauth2.ErrorUnauthorizedClient)
	})

	t.Run("unknown scope is relayed to the client", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		query := authorizeQuery(testClientID, "openid nonsense", "code")
		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+query.Encode(), nil))
		require.Equal(t, http.StatusSeeOther, w.Code)

		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, oauth2.ErrorInvalidScope, location.Query().Get("error"))
		require.Equal(t, testState, location.Query().Get(oauth2.ParamState))
	})

	t.Run("form_post mode renders an auto submitting document", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		query := authorizeQuery(testClientID, "openid", "code")
		query.Set(oauth2.ParamResponseMode, "form_post")

		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+query.Encode(), nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Header().Get("Content-Type"), "text/html")
		require.Contains(t, w.Body.String(), `action="`+testRedirectURI+`"`)
		require.Contains(t, w.Body.String(), `name="code"`)
		require.Contains(t, w.Body.String(), `name="state"`)
	})

	t.Run("consent round trip", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		query := authorizeQuery("consentclient", "openid read", "code")
		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+query.Encode(), nil))
		require.Equal(t, http.StatusSeeOther, w.Code)

		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/consent", location.Path)

		pending, ok := f.server.ConsentRequest(location.Query().Get("id"))
		require.True(t, ok)
		require.Equal(t, "Consent Client", pending.ClientName)
		require.ElementsMatch(t, []string{"openid", "read"}, pending.RequestedScopes)

		// The consent page posts the decision back with the original params.
		form, err := url.ParseQuery(strings.TrimPrefix(pending.ReturnURL, server.RouteAuthorize+"?"))
		require.NoError(t, err)
		form.Set("consent_button", "yes")
		form["scopes_consented"] = []string{"openid", "read"}

		r := httptest.NewRequest(http.MethodPost, server.RouteAuthorize, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w = f.do(r)
		require.Equal(t, http.StatusSeeOther, w.Code)

		location, err = url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.NotEmpty(t, location.Query().Get(oauth2.ParamCode))
	})
}

func TestTokenEndpoint(t *testing.T) {
	t.Run("redeems an authorization code", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		code := authorizeForCode(t, f, authorizeQuery(testClientID, "openid read", "code"))
		body := redeemCode(t, f, code)

		require.NotEmpty(t, body["access_token"])
		require.NotEmpty(t, body["id_token"])
		require.Equal(t, "bearer", body["token_type"])
	})

	t.Run("wrong client secret is unauthorized", func(t *testing.T) {
		f := setupServerFixture(t)

		form := url.Values{oauth2.ParamGrantType: {"authorization_code"}, oauth2.ParamCode: {"whatever"}}
		r := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.SetBasicAuth(testClientID, "wrong")

		w := f.do(r)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, oauth2.ErrorInvalidClient, body["error"])
	})

	t.Run("replayed code is invalid_grant", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		code := authorizeForCode(t, f, authorizeQuery(testClientID, "openid", "code"))
		redeemCode(t, f, code)

		form := url.Values{
			oauth2.ParamGrantType:   {"authorization_code"},
			oauth2.ParamCode:        {code},
			oauth2.ParamRedirectURI: {testRedirectURI},
		}
		r := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.SetBasicAuth(testClientID, testClientSecret)

		w := f.do(r)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, oauth2.ErrorInvalidGrant, body["error"])
	})
}

func TestUserInfoEndpoint(t *testing.T) {
	t.Run("returns profile claims for a bearer token", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		code := authorizeForCode(t, f, authorizeQuery(testClientID, "openid profile", "code"))
		body := redeemCode(t, f, code)
		accessToken, _ := body["access_token"].(string)

		r := httptest.NewRequest(http.MethodGet, server.RouteUserInfo, nil)
		r.Header.Set("Authorization", "Bearer "+accessToken)

		w := f.do(r)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var profile map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
		require.Equal(t, testSubjectID, profile["sub"])
		require.Equal(t, "Bob Smith", profile["name"])
	})

	t.Run("missing bearer token is unauthorized", func(t *testing.T) {
		f := setupServerFixture(t)

		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteUserInfo, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestDiscoveryEndpoints(t *testing.T) {
	t.Run("discovery document lists endpoints and scopes", func(t *testing.T) {
		f := setupServerFixture(t)

		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteDiscovery, nil))
		require.Equal(t, http.StatusOK, w.Code)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		issuer, _ := doc["issuer"].(string)
		require.NotEmpty(t, issuer)
		require.Equal(t, issuer+server.RouteToken, doc["token_endpoint"])
		require.Contains(t, doc["scopes_supported"], "openid")
		require.Contains(t, doc["response_types_supported"], "code id_token token")
	})

	t.Run("hmac signer serves an empty jwks", func(t *testing.T) {
		f := setupServerFixture(t)

		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteJWKS, nil))
		require.Equal(t, http.StatusOK, w.Code)

		var keySet map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keySet))
		require.Empty(t, keySet["keys"])
	})
}

func TestAccessTokenValidationEndpoint(t *testing.T) {
	t.Run("valid token returns its claims", func(t *testing.T) {
		f := setupServerFixture(t)
		f.signIn()

		code := authorizeForCode(t, f, authorizeQuery(testClientID, "openid read", "code"))
		body := redeemCode(t, f, code)
		accessToken, _ := body["access_token"].(string)

		w := f.do(httptest.NewRequest(http.MethodGet,
			server.RouteAccessTokenValidation+"?token="+url.QueryEscape(accessToken)+"&expectedScope=read", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var claims map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claims))
		require.Equal(t, testSubjectID, claims["sub"])
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		f := setupServerFixture(t)

		w := f.do(httptest.NewRequest(http.MethodGet, server.RouteAccessTokenValidation+"?token=garbage", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
