package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
)

var signedOutTemplate = template.Must(template.New("signed_out").Parse(`<!DOCTYPE html>
<html>
<head><title>Signed out</title></head>
<body>
<h1>You are signed out</h1>
{{if .}}<p><a href="{{.}}">Return to the application</a></p>{{end}}
</body>
</html>
`))

// EndSession handles the end-session endpoint. The id_token_hint decides
// whether a post-logout redirect may be honored; without a trustworthy hint
// the user only gets the local signed-out page.
func (s *Server) EndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		signOut, err := s.engine.EndSession.Process(
			r.Context(),
			query.Get("id_token_hint"),
			query.Get("post_logout_redirect_uri"),
			query.Get(oauth2.ParamState),
		)
		if err != nil {
			log.Err(err).Msg("end session processing failed")
			renderErrorPage(w, oauth2.ErrorServerError)
			return
		}

		var returnTo string
		if signOut.PostLogoutRedirectURI != "" {
			target, err := url.Parse(signOut.PostLogoutRedirectURI)
			if err == nil {
				if signOut.State != "" {
					q := target.Query()
					q.Set(oauth2.ParamState, signOut.State)
					target.RawQuery = q.Encode()
				}
				returnTo = target.String()
			}
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := signedOutTemplate.Execute(w, returnTo); err != nil {
			log.Err(err).Msg("rendering signed out page")
		}
	}
}
