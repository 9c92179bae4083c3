package response_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corewell/go-identity-server/clients"
	fakeclientrepo "github.com/corewell/go-identity-server/clients/fakerepo"
	"github.com/corewell/go-identity-server/consent"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/response"
	"github.com/corewell/go-identity-server/scopes"
	fakescoperepo "github.com/corewell/go-identity-server/scopes/fakerepo"
	"github.com/corewell/go-identity-server/users"
	"github.com/corewell/go-identity-server/validation"
)

const (
	testClientID    = "codeclient"
	testRedirectURI = "https://server/cb"
	testSubjectID   = "818727"
	testState       = "af0ifjsldkj"
	testNonce       = "n-0S6_WzA2Mj"
)

type interactionFixture struct {
	now            time.Time
	clientRepo     *fakeclientrepo.FakeClientRepo
	consentService *consent.InMemoryService
	userService    *users.InMemoryService
	validator      *validation.AuthorizeRequestValidator
	generator      *response.AuthorizeInteractionResponseGenerator
}

func setupInteractionFixture(t *testing.T) *interactionFixture {
	t.Helper()

	f := &interactionFixture{
		now:        time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
		clientRepo: fakeclientrepo.NewFakeClientRepo(),
	}

	f.consentService = consent.NewInMemoryService()
	f.userService = users.NewInMemoryService([]users.InMemoryUser{{
		SubjectID: testSubjectID,
		Username:  "bob",
		Enabled:   true,
	}})

	seedInteractionClient(t, f, &clients.Client{
		ID:                   testClientID,
		Enabled:              true,
		Flow:                 oauth2.FlowAuthorizationCode,
		RedirectURIs:         []string{testRedirectURI},
		RequireConsent:       true,
		AllowRememberConsent: true,
	})

	scopeRepo := fakescoperepo.NewFakeScopeRepo(append(scopes.StandardScopes(), scopes.Scope{
		Name: "read",
		Type: scopes.TypeResource,
	})...)

	validator, err := validation.NewAuthorizeRequestValidator(f.clientRepo, scopeRepo)
	require.NoError(t, err)
	f.validator = validator

	generator, err := response.NewAuthorizeInteractionResponseGenerator(
		f.consentService,
		f.userService,
		response.WithInteractionNowFunc(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	f.generator = generator
	return f
}

func seedInteractionClient(t *testing.T, f *interactionFixture, client *clients.Client) {
	t.Helper()
	require.NoError(t, f.clientRepo.Upsert(context.Background(), client))
}

func (f *interactionFixture) subject() *users.Subject {
	return &users.Subject{
		SubjectID:            testSubjectID,
		Name:                 "bob",
		AuthenticationTime:   f.now.Add(-time.Minute),
		IdentityProvider:     users.LocalIdentityProvider,
		AuthenticationMethod: "password",
	}
}

func (f *interactionFixture) validatedRequest(t *testing.T, mutateParams func(url.Values)) *validation.ValidatedAuthorizeRequest {
	t.Helper()
	p := url.Values{
		oauth2.ParamClientID:     {testClientID},
		oauth2.ParamRedirectURI:  {testRedirectURI},
		oauth2.ParamResponseType: {string(oauth2.ResponseTypeCode)},
		oauth2.ParamScope:        {"openid read"},
		oauth2.ParamState:        {testState},
	}
	if mutateParams != nil {
		mutateParams(p)
	}
	result, err := f.validator.Validate(context.Background(), p)
	require.NoError(t, err)
	require.False(t, result.IsError)
	return result.Request
}

func TestInteractionGenerator_ProcessLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("authenticated user passes through", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, nil)
		request.Subject = f.subject()

		result, err := f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.False(t, result.IsLogin())
		require.False(t, result.IsError())
	})

	t.Run("anonymous user is sent to login", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, nil)

		result, err := f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.True(t, result.IsLogin())
		require.Equal(t, testClientID, result.SignInMessage.ClientID)
	})

	t.Run("prompt none with anonymous user fails with login_required", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamPrompt, string(oauth2.PromptNone))
		})

		result, err := f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.True(t, result.IsError())
		require.Equal(t, oauth2.ErrorLoginRequired, result.Error.Error)
		require.Equal(t, oauth2.ErrorTypeClient, result.Error.Type)
		require.Equal(t, testRedirectURI, result.Error.RedirectURI)
		require.Equal(t, testState, result.Error.State)
	})

	t.Run("prompt login forces the login page and is stripped", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamPrompt, string(oauth2.PromptLogin))
		})
		request.Subject = f.subject()

		result, err := f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.True(t, result.IsLogin())
		require.Equal(t, string(oauth2.PromptLogin), result.SignInMessage.PromptMode)
		require.Empty(t, request.Raw.Get(oauth2.ParamPrompt))
		require.Empty(t, request.PromptMode)

		// the post-login round trip must not loop back to login
		result, err = f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.False(t, result.IsLogin())
	})

	t.Run("idp mismatch forces re-login", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamLoginHint, "idp:google")
		})
		request.Subject = f.subject()

		result, err := f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.True(t, result.IsLogin())
		require.Equal(t, "google", result.SignInMessage.IdP)
	})

	t.Run("stale authentication beyond max_age forces re-login", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamMaxAge, "30")
		})
		subject := f.subject()
		subject.AuthenticationTime = f.now.Add(-time.Hour)
		request.Subject = subject

		result, err := f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.True(t, result.IsLogin())
	})

	t.Run("disabled user is sent back to login", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, nil)
		subject := f.subject()
		subject.SubjectID = "unknown-subject"
		request.Subject = subject

		result, err := f.generator.ProcessLogin(ctx, request)
		require.NoError(t, err)
		require.True(t, result.IsLogin())
	})
}

func TestInteractionGenerator_ProcessConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("consent page required for a consent client", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, nil)
		request.Subject = f.subject()

		result, err := f.generator.ProcessConsent(ctx, request, nil)
		require.NoError(t, err)
		require.True(t, result.IsConsent)
	})

	t.Run("no consent needed when the client does not require it", func(t *testing.T) {
		f := setupInteractionFixture(t)
		seedInteractionClient(t, f, &clients.Client{
			ID:           "noconsent",
			Enabled:      true,
			Flow:         oauth2.FlowAuthorizationCode,
			RedirectURIs: []string{testRedirectURI},
		})
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamClientID, "noconsent")
		})
		request.Subject = f.subject()

		result, err := f.generator.ProcessConsent(ctx, request, nil)
		require.NoError(t, err)
		require.False(t, result.IsConsent)
		require.False(t, result.IsError())
	})

	t.Run("prompt none fails with interaction_required when consent is needed", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamPrompt, string(oauth2.PromptNone))
		})
		request.Subject = f.subject()

		result, err := f.generator.ProcessConsent(ctx, request, nil)
		require.NoError(t, err)
		require.True(t, result.IsError())
		require.Equal(t, oauth2.ErrorInteractionRequired, result.Error.Error)
	})

	t.Run("denied consent fails with access_denied", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, nil)
		request.Subject = f.subject()

		result, err := f.generator.ProcessConsent(ctx, request, &consent.UserConsent{Button: "no"})
		require.NoError(t, err)
		require.True(t, result.IsError())
		require.Equal(t, oauth2.ErrorAccessDenied, result.Error.Error)
		require.Equal(t, testState, result.Error.State)
	})

	t.Run("granting no scopes re-renders the consent page", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamScope, "read")
		})
		request.Subject = f.subject()

		result, err := f.generator.ProcessConsent(ctx, request, &consent.UserConsent{Button: "yes"})
		require.NoError(t, err)
		require.True(t, result.IsConsent)
		require.Equal(t, response.MustSelectAtLeastOnePermission, result.ConsentError)
	})

	t.Run("granted consent narrows scopes and proceeds", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, nil)
		request.Subject = f.subject()

		result, err := f.generator.ProcessConsent(ctx, request, &consent.UserConsent{
			Button: "yes",
			Scopes: []string{"openid"},
		})
		require.NoError(t, err)
		require.False(t, result.IsConsent)
		require.False(t, result.IsError())
		require.True(t, request.WasConsentShown)
		require.Equal(t, []string{"openid"}, request.ValidatedScopes.GrantedScopeNames())
	})

	t.Run("remembered consent skips the page next time", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, nil)
		request.Subject = f.subject()

		result, err := f.generator.ProcessConsent(ctx, request, &consent.UserConsent{
			Button:          "yes",
			RememberConsent: true,
			Scopes:          []string{"openid", "read"},
		})
		require.NoError(t, err)
		require.False(t, result.IsConsent)

		second := f.validatedRequest(t, nil)
		second.Subject = f.subject()
		result, err = f.generator.ProcessConsent(ctx, second, nil)
		require.NoError(t, err)
		require.False(t, result.IsConsent)
		require.False(t, result.IsError())
	})

	t.Run("consent with prompt none is a contract violation", func(t *testing.T) {
		f := setupInteractionFixture(t)
		request := f.validatedRequest(t, func(p url.Values) {
			p.Set(oauth2.ParamPrompt, string(oauth2.PromptNone))
		})
		request.Subject = f.subject()

		_, err := f.generator.ProcessConsent(ctx, request, &consent.UserConsent{Button: "yes"})
		require.Error(t, err)
	})

	t.Run("unhandled login prompt is a contract violation", func(t *testing.T) {
		f := setupInteractionFixture(t)
		for _, prompt := range []oauth2.PromptMode{oauth2.PromptLogin, oauth2.PromptSelectAccount} {
			request := f.validatedRequest(t, func(p url.Values) {
				p.Set(oauth2.ParamPrompt, string(prompt))
			})
			request.Subject = f.subject()

			_, err := f.generator.ProcessConsent(ctx, request, nil)
			require.Error(t, err, "prompt %q", prompt)
		}
	})
}
