package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/consent"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/validation"
)

// Consent decision form fields, posted back to the authorize endpoint by the
// consent page alongside the original authorize parameters.
const (
	fieldConsentButton   = "consent_button"
	fieldConsentRemember = "consent_remember"
	fieldConsentScopes   = "scopes_consented"
)

// Authorize handles the authorization endpoint. GET carries a fresh request;
// POST carries the consent page's decision together with the original
// parameters.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			renderErrorPage(w, oauth2.ErrorInvalidRequest)
			return
		}
		ctx := r.Context()

		userConsent := parseUserConsent(r)
		parameters := authorizeParameters(r.Form)

		result, err := s.engine.AuthorizeValidator.Validate(ctx, parameters)
		if err != nil {
			log.Err(err).Msg("authorize request validation failed")
			renderErrorPage(w, oauth2.ErrorServerError)
			return
		}
		if result.IsError {
			renderAuthorizeError(w, r, authorizeErrorFromResult(result))
			return
		}

		request := result.Request

		if s.config.GetRequirePKCE() && request.ResponseType.IncludesCode() && request.CodeChallenge == "" {
			renderAuthorizeError(w, r, &oauth2.AuthorizeError{
				Type:         oauth2.ErrorTypeClient,
				Error:        oauth2.ErrorInvalidRequest,
				RedirectURI:  request.RedirectURI,
				ResponseMode: request.ResponseMode,
				State:        request.State,
			})
			return
		}

		request.Subject, request.SessionID = s.subjects.Subject(r)
		if request.Subject.Authenticated() &&
			time.Since(request.Subject.AuthenticationTime) > s.config.GetMaxLoginSessionAge() {
			// The login session outlived the server-wide ceiling; treat the
			// user as anonymous so a fresh sign in happens.
			request.Subject = nil
			request.SessionID = ""
		}

		interaction, err := s.engine.Interaction.Process(ctx, request, userConsent)
		if err != nil {
			log.Err(err).Msg("authorize interaction processing failed")
			renderErrorPage(w, oauth2.ErrorServerError)
			return
		}

		switch {
		case interaction.IsError():
			renderAuthorizeError(w, r, interaction.Error)

		case interaction.IsLogin():
			if s.startExternalLogin(w, r, interaction.SignInMessage) {
				return
			}
			id := s.messages.putSignIn(interaction.SignInMessage)
			http.Redirect(w, r, s.config.GetLoginURL()+"?signin="+id, http.StatusSeeOther)

		case interaction.IsConsent:
			id := s.messages.putConsent(&PendingConsent{
				ClientID:        request.ClientID,
				ClientName:      request.Client.ClientName,
				RequestedScopes: request.RequestedScopeNames,
				ReturnURL:       RouteAuthorize + "?" + request.Raw.Encode(),
				ErrorMessage:    interaction.ConsentError,
			})
			http.Redirect(w, r, s.config.GetConsentURL()+"?id="+id, http.StatusSeeOther)

		default:
			resp, err := s.engine.AuthorizeResponses.CreateResponse(ctx, request)
			if err != nil {
				log.Err(err).Msg("creating authorize response failed")
				renderAuthorizeError(w, r, &oauth2.AuthorizeError{
					Type:         oauth2.ErrorTypeClient,
					Error:        oauth2.ErrorServerError,
					RedirectURI:  request.RedirectURI,
					ResponseMode: request.ResponseMode,
					State:        request.State,
				})
				return
			}
			renderAuthorizeResponse(w, r, resp)
		}
	}
}

// parseUserConsent extracts the consent page's decision from a POST,
// returning nil when no decision was submitted.
func parseUserConsent(r *http.Request) *consent.UserConsent {
	if r.Method != http.MethodPost {
		return nil
	}
	button := r.PostForm.Get(fieldConsentButton)
	if button == "" {
		return nil
	}
	return &consent.UserConsent{
		Button:          button,
		RememberConsent: r.PostForm.Get(fieldConsentRemember) == "true",
		Scopes:          r.PostForm[fieldConsentScopes],
	}
}

// authorizeParameters strips the consent decision fields so the validator
// sees only protocol parameters and the consent round trip stays clean.
func authorizeParameters(form url.Values) url.Values {
	parameters := url.Values{}
	for name, values := range form {
		switch name {
		case fieldConsentButton, fieldConsentRemember, fieldConsentScopes:
			continue
		}
		parameters[name] = values
	}
	return parameters
}

func authorizeErrorFromResult(result *validation.AuthorizeValidationResult) *oauth2.AuthorizeError {
	authorizeErr := &oauth2.AuthorizeError{
		Type:  result.ErrorType,
		Error: result.Error,
	}
	if result.ErrorType == oauth2.ErrorTypeClient && result.Request != nil {
		authorizeErr.RedirectURI = result.Request.RedirectURI
		authorizeErr.ResponseMode = result.Request.ResponseMode
		authorizeErr.State = result.Request.State
	}
	return authorizeErr
}
