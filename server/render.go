package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/oauth2"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// form_post response mode, per the OAuth 2.0 Form Post Response Mode spec:
// an auto-submitting document that POSTs the response to the client.
var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit this form</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{- range $name, $values := .Values}}{{range $values}}
<input type="hidden" name="{{$name}}" value="{{.}}"/>
{{- end}}{{end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

var errorPageTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Error</title></head>
<body>
<h1>Request error</h1>
<p>The authorization request could not be processed: {{.}}</p>
</body>
</html>
`))

// renderAuthorizeResponse serializes a successful authorization response to
// the client's redirect URI in the negotiated response mode.
func renderAuthorizeResponse(w http.ResponseWriter, r *http.Request, resp *oauth2.AuthorizeResponse) {
	values := url.Values{}
	if resp.Code != "" {
		values.Set(oauth2.ParamCode, resp.Code)
	}
	if resp.AccessToken != "" {
		values.Set("access_token", resp.AccessToken)
		values.Set("token_type", oauth2.TokenTypeBearer)
		values.Set("expires_in", strconv.Itoa(resp.AccessTokenLifetime))
	}
	if resp.IdentityToken != "" {
		values.Set("id_token", resp.IdentityToken)
	}
	if resp.Scope != "" {
		values.Set(oauth2.ParamScope, resp.Scope)
	}
	if resp.State != "" {
		values.Set(oauth2.ParamState, resp.State)
	}
	renderCallback(w, r, resp.RedirectURI, resp.ResponseMode, values)
}

// renderAuthorizeError serializes a failed authorization. Client errors are
// relayed to the verified redirect URI; user errors render locally because no
// trustworthy redirect target exists.
func renderAuthorizeError(w http.ResponseWriter, r *http.Request, authorizeErr *oauth2.AuthorizeError) {
	if authorizeErr.Type != oauth2.ErrorTypeClient {
		renderErrorPage(w, authorizeErr.Error)
		return
	}

	values := url.Values{}
	values.Set("error", authorizeErr.Error)
	if authorizeErr.State != "" {
		values.Set(oauth2.ParamState, authorizeErr.State)
	}
	renderCallback(w, r, authorizeErr.RedirectURI, authorizeErr.ResponseMode, values)
}

func renderCallback(w http.ResponseWriter, r *http.Request, redirectURI string, mode oauth2.ResponseMode, values url.Values) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		// The validator only passes through parseable URIs.
		renderErrorPage(w, oauth2.ErrorServerError)
		return
	}

	switch mode {
	case oauth2.ResponseModeFormPost:
		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		data := struct {
			Action string
			Values url.Values
		}{Action: target.String(), Values: values}
		if err := formPostTemplate.Execute(w, data); err != nil {
			log.Err(err).Msg("rendering form_post response")
		}

	case oauth2.ResponseModeFragment:
		// The parameter string is already percent-encoded; appending it
		// directly avoids URL.String re-escaping the fragment.
		target.Fragment = ""
		http.Redirect(w, r, target.String()+"#"+values.Encode(), http.StatusSeeOther)

	default:
		query := target.Query()
		for name, vs := range values {
			for _, v := range vs {
				query.Set(name, v)
			}
		}
		target.RawQuery = query.Encode()
		http.Redirect(w, r, target.String(), http.StatusSeeOther)
	}
}

func renderErrorPage(w http.ResponseWriter, errorCode string) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(http.StatusBadRequest)
	if err := errorPageTemplate.Execute(w, errorCode); err != nil {
		log.Err(err).Msg("rendering error page")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("writing json response")
	}
}

func writeTokenError(w http.ResponseWriter, errorCode string, status int) {
	writeJSON(w, status, oauth2.TokenErrorResponse{Error: errorCode})
}
