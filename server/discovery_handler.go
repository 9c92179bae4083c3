package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/token"
)

// Discovery serves the OIDC discovery document.
func (s *Server) Discovery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.config.GetIssuer()

		var scopeNames []string
		registered, err := s.scopeStore.GetScopes(r.Context())
		if err != nil {
			log.Err(err).Msg("loading scopes for discovery document")
		}
		for _, scope := range registered {
			scopeNames = append(scopeNames, scope.Name)
		}

		responseTypes := make([]string, 0, len(oauth2.SupportedResponseTypes))
		for _, rt := range oauth2.SupportedResponseTypes {
			responseTypes = append(responseTypes, string(rt))
		}

		doc := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + RouteAuthorize,
			"token_endpoint":         issuer + RouteToken,
			"userinfo_endpoint":      issuer + RouteUserInfo,
			"end_session_endpoint":   issuer + RouteEndSession,
			"jwks_uri":               issuer + RouteJWKS,

			"scopes_supported":         scopeNames,
			"response_types_supported": responseTypes,
			"response_modes_supported": []string{"query", "fragment", "form_post"},
			"grant_types_supported": []string{
				"authorization_code",
				"implicit",
				"client_credentials",
				"password",
				"refresh_token",
			},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{s.signer.GetSigningMethod().Alg()},
			"code_challenge_methods_supported":      []string{"S256", "plain"},
			"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, doc)
	}
}

// JWKS serves the public key set. Signers without a publishable key set,
// such as HMAC signers, serve an empty set.
func (s *Server) JWKS() http.HandlerFunc {
	type jwksProvider interface {
		GetJWKS() (*token.JWKS, error)
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		keySet := &token.JWKS{Keys: []token.JWK{}}
		if provider, ok := s.signer.(jwksProvider); ok {
			published, err := provider.GetJWKS()
			if err != nil {
				log.Err(err).Msg("building jwks")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": oauth2.ErrorServerError})
				return
			}
			keySet = published
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, keySet)
	}
}

// AccessTokenValidation validates a presented access token and returns its
// claims, for resource servers that cannot verify JWTs themselves and for
// reference tokens.
func (s *Server) AccessTokenValidation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		rawToken := query.Get("token")
		if rawToken == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": oauth2.ErrorInvalidRequest})
			return
		}

		result := s.engine.PresentedTokens.ValidateAccessToken(r.Context(), rawToken, query.Get("expectedScope"))
		if result.IsError() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": result.Error})
			return
		}

		writeJSON(w, http.StatusOK, result.Claims)
	}
}
