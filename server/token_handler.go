package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/validation"
)

// Token handles the token endpoint: client authentication, grant validation
// and token issuance.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeTokenError(w, oauth2.ErrorInvalidRequest, http.StatusBadRequest)
			return
		}
		ctx := r.Context()

		credentials, ok := validation.ParseClientCredentials(r.Header.Get("Authorization"), r.PostForm)
		if !ok {
			unauthorizedClient(w)
			return
		}

		clientResult, err := s.engine.ClientValidator.Validate(ctx, credentials)
		if err != nil {
			log.Err(err).Msg("client validation failed")
			writeTokenError(w, oauth2.ErrorServerError, http.StatusInternalServerError)
			return
		}
		if clientResult.IsError {
			unauthorizedClient(w)
			return
		}

		result, err := s.engine.TokenValidator.Validate(ctx, r.PostForm, clientResult.Client)
		if err != nil {
			log.Err(err).Msg("token request validation failed")
			writeTokenError(w, oauth2.ErrorServerError, http.StatusInternalServerError)
			return
		}
		if result.IsError {
			writeTokenError(w, result.Error, http.StatusBadRequest)
			return
		}

		tokenResponse, err := s.engine.TokenResponses.Process(ctx, result.Request)
		if err != nil {
			log.Err(err).Msg("token response generation failed")
			writeTokenError(w, oauth2.ErrorServerError, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, tokenResponse)
	}
}

func unauthorizedClient(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	writeTokenError(w, oauth2.ErrorInvalidClient, http.StatusUnauthorized)
}
