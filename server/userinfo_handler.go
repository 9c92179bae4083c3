package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/token"
)

// UserInfo handles the userinfo endpoint. Requires a bearer access token
// carrying the openid scope.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rawToken, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": token.ValidationErrorInvalidToken})
			return
		}

		result := s.engine.PresentedTokens.ValidateAccessToken(ctx, rawToken, oauth2.ScopeOpenID)
		if result.IsError() {
			status := http.StatusUnauthorized
			if result.Error == token.ValidationErrorInsufficientScope {
				status = http.StatusForbidden
			}
			writeJSON(w, status, map[string]string{"error": result.Error})
			return
		}

		subjectID, _ := result.Claims["sub"].(string)
		profile, err := s.engine.UserInfo.Process(ctx, subjectID, scopesFromClaims(result.Claims))
		if err != nil {
			log.Err(err).Msg("userinfo generation failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": oauth2.ErrorServerError})
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// scopesFromClaims normalizes the scope claim, which arrives as a string for
// single-scope tokens and as a list otherwise (typed []any after a JWT parse).
func scopesFromClaims(claims jwt.MapClaims) []string {
	switch v := claims["scope"].(type) {
	case string:
		return oauth2.ParseScopes(v)
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}
