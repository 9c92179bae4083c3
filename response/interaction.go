package response

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/consent"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/users"
	"github.com/corewell/go-identity-server/validation"
)

// MustSelectAtLeastOnePermission is shown on the consent screen when the user
// approved the request but deselected every optional scope.
const MustSelectAtLeastOnePermission = "You must pick at least one permission"

// InteractionResponse tells the hosting application what has to happen before
// tokens can be issued: show the login page, show the consent page, relay a
// protocol error, or nothing (proceed to token issuance).
type InteractionResponse struct {
	// SignInMessage is set when the user must (re)authenticate.
	SignInMessage *users.SignInMessage

	// IsConsent is set when the consent page must be shown. ConsentError
	// optionally carries a message for a re-rendered consent page.
	IsConsent    bool
	ConsentError string

	// Error is set when the request must fail without further interaction.
	Error *oauth2.AuthorizeError
}

// IsLogin reports whether the user must be sent to the login page.
func (r *InteractionResponse) IsLogin() bool { return r.SignInMessage != nil }

// IsError reports whether the request failed.
func (r *InteractionResponse) IsError() bool { return r.Error != nil }

// AuthorizeInteractionResponseGenerator runs the login and consent decision
// logic between request validation and response generation.
type AuthorizeInteractionResponseGenerator struct {
	consentService consent.Service
	userService    users.Service
	nowFunc        func() time.Time
}

// InteractionGeneratorOption modifies an AuthorizeInteractionResponseGenerator.
type InteractionGeneratorOption func(*AuthorizeInteractionResponseGenerator)

// WithInteractionNowFunc sets the clock (for testing).
func WithInteractionNowFunc(now func() time.Time) InteractionGeneratorOption {
	return func(g *AuthorizeInteractionResponseGenerator) {
		g.nowFunc = now
	}
}

// NewAuthorizeInteractionResponseGenerator builds the interaction generator.
func NewAuthorizeInteractionResponseGenerator(consentService consent.Service, userService users.Service, options ...InteractionGeneratorOption) (*AuthorizeInteractionResponseGenerator, error) {
	if consentService == nil {
		return nil, errors.New("[NewAuthorizeInteractionResponseGenerator] consent service is required")
	}
	if userService == nil {
		return nil, errors.New("[NewAuthorizeInteractionResponseGenerator] user service is required")
	}
	g := &AuthorizeInteractionResponseGenerator{
		consentService: consentService,
		userService:    userService,
		nowFunc:        time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// ProcessLogin decides whether the user must authenticate (again) before the
// request can continue. It may mutate the request: an explicit prompt=login
// is stripped once honored so the post-login round trip does not loop.
func (g *AuthorizeInteractionResponseGenerator) ProcessLogin(ctx context.Context, request *validation.ValidatedAuthorizeRequest) (*InteractionResponse, error) {
	if request == nil {
		return nil, errors.New("[AuthorizeInteractionResponseGenerator.ProcessLogin] request is nil")
	}

	if request.PromptMode == oauth2.PromptLogin || request.PromptMode == oauth2.PromptSelectAccount {
		log.Debug().Str("clientID", request.ClientID).Str("prompt", string(request.PromptMode)).Msg("prompt requires login page")
		prompt := request.PromptMode
		request.PromptMode = ""
		request.Raw.Del(oauth2.ParamPrompt)
		message := g.signInMessage(request)
		message.PromptMode = string(prompt)
		return &InteractionResponse{SignInMessage: message}, nil
	}

	if !request.Subject.Authenticated() {
		return g.loginOrError(request, "user not authenticated"), nil
	}

	active, err := g.userService.IsActive(ctx, request.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizeInteractionResponseGenerator.ProcessLogin] is active")
	}
	if !active {
		return g.loginOrError(request, "user is no longer active"), nil
	}

	if request.IdP != "" && request.Subject.IdentityProvider != request.IdP {
		return g.loginOrError(request, "current idp does not match requested idp"), nil
	}

	if request.MaxAge != nil {
		expires := request.Subject.AuthenticationTime.Add(time.Duration(*request.MaxAge) * time.Second)
		if g.nowFunc().After(expires) {
			return g.loginOrError(request, "authentication is older than max_age"), nil
		}
	}

	return &InteractionResponse{}, nil
}

// ProcessConsent decides whether the consent page must be shown, and applies
// a submitted consent decision to the request's granted scopes. userConsent
// is nil on the first pass and carries the consent-page submission on the
// second. Passing consent for a prompt=none request is a programming error,
// as is a request whose prompt mode the login stage has not handled yet.
func (g *AuthorizeInteractionResponseGenerator) ProcessConsent(ctx context.Context, request *validation.ValidatedAuthorizeRequest, userConsent *consent.UserConsent) (*InteractionResponse, error) {
	if request == nil {
		return nil, errors.New("[AuthorizeInteractionResponseGenerator.ProcessConsent] request is nil")
	}
	if request.ValidatedScopes == nil {
		return nil, errors.New("[AuthorizeInteractionResponseGenerator.ProcessConsent] request has no validated scopes")
	}
	if userConsent != nil && request.PromptMode == oauth2.PromptNone {
		return nil, errors.New("[AuthorizeInteractionResponseGenerator.ProcessConsent] consent submitted for a prompt=none request")
	}
	if request.PromptMode != "" && request.PromptMode != oauth2.PromptNone && request.PromptMode != oauth2.PromptConsent {
		return nil, errors.Errorf("[AuthorizeInteractionResponseGenerator.ProcessConsent] prompt=%s must be handled by the login stage", request.PromptMode)
	}

	required, err := g.consentService.RequiresConsent(ctx, request.Client, request.Subject, request.RequestedScopeNames)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizeInteractionResponseGenerator.ProcessConsent] requires consent")
	}
	if request.PromptMode != oauth2.PromptConsent && !required {
		return &InteractionResponse{}, nil
	}

	if request.PromptMode == oauth2.PromptNone {
		log.Debug().Str("clientID", request.ClientID).Msg("consent required but prompt=none")
		return &InteractionResponse{Error: g.authorizeError(request, oauth2.ErrorInteractionRequired)}, nil
	}

	if userConsent == nil {
		return &InteractionResponse{IsConsent: true}, nil
	}

	if !userConsent.Granted() {
		log.Debug().Str("clientID", request.ClientID).Msg("user denied consent")
		return &InteractionResponse{Error: g.authorizeError(request, oauth2.ErrorAccessDenied)}, nil
	}

	request.ValidatedScopes.SetConsentedScopes(userConsent.Scopes)
	if len(request.ValidatedScopes.GrantedScopes) == 0 {
		return &InteractionResponse{IsConsent: true, ConsentError: MustSelectAtLeastOnePermission}, nil
	}

	request.WasConsentShown = true
	if request.PromptMode == oauth2.PromptConsent {
		request.PromptMode = ""
		request.Raw.Del(oauth2.ParamPrompt)
	}

	if userConsent.RememberConsent && request.Client.AllowRememberConsent {
		if err := g.consentService.UpdateConsent(ctx, request.Client, request.Subject, request.ValidatedScopes.GrantedScopeNames()); err != nil {
			return nil, errors.Wrap(err, "[AuthorizeInteractionResponseGenerator.ProcessConsent] update consent")
		}
	}

	return &InteractionResponse{}, nil
}

// Process runs the login stage and, when it passes, the consent stage.
func (g *AuthorizeInteractionResponseGenerator) Process(ctx context.Context, request *validation.ValidatedAuthorizeRequest, userConsent *consent.UserConsent) (*InteractionResponse, error) {
	result, err := g.ProcessLogin(ctx, request)
	if err != nil {
		return nil, err
	}
	if result.IsLogin() || result.IsError() {
		return result, nil
	}
	return g.ProcessConsent(ctx, request, userConsent)
}

func (g *AuthorizeInteractionResponseGenerator) loginOrError(request *validation.ValidatedAuthorizeRequest, reason string) *InteractionResponse {
	if request.PromptMode == oauth2.PromptNone {
		log.Debug().Str("clientID", request.ClientID).Str("reason", reason).Msg("login required but prompt=none")
		return &InteractionResponse{Error: g.authorizeError(request, oauth2.ErrorLoginRequired)}
	}
	log.Debug().Str("clientID", request.ClientID).Str("reason", reason).Msg("sending user to login")
	return &InteractionResponse{SignInMessage: g.signInMessage(request)}
}

func (g *AuthorizeInteractionResponseGenerator) signInMessage(request *validation.ValidatedAuthorizeRequest) *users.SignInMessage {
	return &users.SignInMessage{
		ClientID:  request.ClientID,
		ReturnURL: "?" + request.Raw.Encode(),
		IdP:       request.IdP,
		Tenant:    request.Tenant,
		LoginHint: request.LoginHint,
		AcrValues: request.AcrValues,
	}
}

func (g *AuthorizeInteractionResponseGenerator) authorizeError(request *validation.ValidatedAuthorizeRequest, errorCode string) *oauth2.AuthorizeError {
	return &oauth2.AuthorizeError{
		Type:         oauth2.ErrorTypeClient,
		Error:        errorCode,
		RedirectURI:  request.RedirectURI,
		ResponseMode: request.ResponseMode,
		State:        request.State,
	}
}
