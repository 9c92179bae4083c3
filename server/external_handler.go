package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/users"
)

// startExternalLogin hands the user off to the external provider named in the
// sign-in message. It reports false when external login is not configured or
// the provider is unknown, in which case the local login page is used.
func (s *Server) startExternalLogin(w http.ResponseWriter, r *http.Request, message *users.SignInMessage) bool {
	if s.external == nil || message.IdP == "" || !s.external.registry.Has(message.IdP) {
		return false
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	authURL, err := s.external.registry.AuthCodeURL(r.Context(), message.IdP, state, nonce)
	if err != nil {
		log.Err(err).Str("idp", message.IdP).Msg("building external provider redirect failed")
		renderErrorPage(w, oauth2.ErrorServerError)
		return true
	}

	s.messages.putExternal(state, &pendingExternal{Message: message, Nonce: nonce})
	log.Debug().Str("idp", message.IdP).Str("clientID", message.ClientID).Msg("redirecting to external provider")
	http.Redirect(w, r, authURL, http.StatusSeeOther)
	return true
}

// ExternalCallback handles the return leg from an external provider: it
// verifies the id_token, maps the external identity onto a local subject,
// starts a session for it and resumes the original authorize request.
func (s *Server) ExternalCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			renderErrorPage(w, oauth2.ErrorInvalidRequest)
			return
		}
		ctx := r.Context()

		pending, ok := s.messages.takeExternal(r.Form.Get(oauth2.ParamState))
		if !ok {
			log.Debug().Msg("external callback with unknown or expired state")
			renderErrorPage(w, oauth2.ErrorInvalidRequest)
			return
		}

		if errorCode := r.Form.Get(oauth2.ParamError); errorCode != "" {
			log.Debug().Str("idp", pending.Message.IdP).Str("error", errorCode).Msg("external provider returned an error")
			renderErrorPage(w, oauth2.ErrorAccessDenied)
			return
		}

		identity, err := s.external.registry.Callback(ctx, pending.Message.IdP, r.Form.Get(oauth2.ParamCode), pending.Nonce)
		if err != nil {
			log.Err(err).Str("idp", pending.Message.IdP).Msg("external provider callback failed")
			renderErrorPage(w, oauth2.ErrorServerError)
			return
		}

		result, err := s.external.userService.AuthenticateExternal(ctx, *identity, pending.Message)
		if err != nil {
			log.Err(err).Str("idp", pending.Message.IdP).Msg("external authentication failed")
			renderErrorPage(w, oauth2.ErrorServerError)
			return
		}
		if result.Subject == nil {
			log.Debug().Str("idp", pending.Message.IdP).Str("reason", result.ErrorMessage).Msg("external identity rejected")
			renderErrorPage(w, oauth2.ErrorAccessDenied)
			return
		}

		if err := s.external.sessions.StartSession(w, r, result.Subject); err != nil {
			log.Err(err).Msg("starting session for external login failed")
			renderErrorPage(w, oauth2.ErrorServerError)
			return
		}

		http.Redirect(w, r, RouteAuthorize+pending.Message.ReturnURL, http.StatusSeeOther)
	}
}
