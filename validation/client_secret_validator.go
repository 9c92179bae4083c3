package validation

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
)

// ClientCredentials are the raw credentials a client presented, before any
// lookup or secret comparison.
type ClientCredentials struct {
	ClientID string
	Secret   string
}

// ParseClientCredentials extracts client credentials from an Authorization
// header value or, failing that, from the form body. The second return value
// is false when neither carries credentials.
func ParseClientCredentials(authorizationHeader string, form url.Values) (ClientCredentials, bool) {
	if credentials, ok := parseBasicAuthHeader(authorizationHeader); ok {
		return credentials, true
	}

	clientID := form.Get(oauth2.ParamClientID)
	secret := form.Get(oauth2.ParamClientSecret)
	if clientID != "" && secret != "" {
		return ClientCredentials{ClientID: clientID, Secret: secret}, true
	}

	return ClientCredentials{}, false
}

func parseBasicAuthHeader(header string) (ClientCredentials, bool) {
	const prefix = "Basic "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return ClientCredentials{}, false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return ClientCredentials{}, false
	}

	clientID, secret, ok := strings.Cut(string(decoded), ":")
	if !ok || clientID == "" || secret == "" {
		return ClientCredentials{}, false
	}

	id, err := url.QueryUnescape(clientID)
	if err != nil {
		return ClientCredentials{}, false
	}
	plainSecret, err := url.QueryUnescape(secret)
	if err != nil {
		return ClientCredentials{}, false
	}

	return ClientCredentials{ClientID: id, Secret: plainSecret}, true
}

// ClientSecretValidator authenticates clients against the client store. Every
// failure maps to the same invalid_client error so that client IDs cannot be
// enumerated.
type ClientSecretValidator struct {
	store   clients.Store
	nowFunc func() time.Time
}

// ClientSecretValidatorOption configures a ClientSecretValidator.
type ClientSecretValidatorOption func(*ClientSecretValidator)

// WithClientValidatorNowFunc overrides the clock used for secret expiration.
func WithClientValidatorNowFunc(nowFunc func() time.Time) ClientSecretValidatorOption {
	return func(v *ClientSecretValidator) {
		v.nowFunc = nowFunc
	}
}

// NewClientSecretValidator creates a ClientSecretValidator.
func NewClientSecretValidator(store clients.Store, options ...ClientSecretValidatorOption) (*ClientSecretValidator, error) {
	if store == nil {
		return nil, errors.New("[NewClientSecretValidator] store is nil")
	}

	validator := &ClientSecretValidator{
		store:   store,
		nowFunc: time.Now,
	}
	for _, option := range options {
		option(validator)
	}
	return validator, nil
}

// Validate authenticates the presented credentials. It returns a protocol
// error result for bad credentials and a Go error only for store failures.
func (v *ClientSecretValidator) Validate(ctx context.Context, credentials ClientCredentials) (*ClientValidationResult, error) {
	if credentials.ClientID == "" || credentials.Secret == "" {
		return clientError(), nil
	}

	client, err := v.store.FindClientByID(ctx, credentials.ClientID)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientSecretValidator.Validate] find client")
	}
	if client == nil || !client.Enabled {
		log.Debug().Str("clientID", credentials.ClientID).Msg("unknown or disabled client")
		return clientError(), nil
	}

	if !client.CheckSecret(credentials.Secret, v.nowFunc()) {
		log.Debug().Str("clientID", client.ID).Msg("client secret mismatch")
		return clientError(), nil
	}

	return &ClientValidationResult{Client: client}, nil
}

func clientError() *ClientValidationResult {
	return &ClientValidationResult{
		IsError: true,
		Error:   oauth2.ErrorInvalidClient,
	}
}
