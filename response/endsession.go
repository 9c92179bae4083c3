package response

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/token"
)

// SignOutResponse describes what the logged-out page may do after the session
// ends. PostLogoutRedirectURI is only set when an id_token_hint proved which
// client asked for the sign-out and the URI is registered for it.
type SignOutResponse struct {
	ClientID              string
	PostLogoutRedirectURI string
	State                 string
}

// EndSessionResponseGenerator validates end-session requests. Untrusted input
// never turns into a redirect: without a valid id_token_hint naming a client
// that registered the URI, the post_logout_redirect_uri is dropped.
type EndSessionResponseGenerator struct {
	tokenValidator *token.Validator
	clientStore    clients.Store
}

// NewEndSessionResponseGenerator builds an EndSessionResponseGenerator.
func NewEndSessionResponseGenerator(tokenValidator *token.Validator, clientStore clients.Store) (*EndSessionResponseGenerator, error) {
	if tokenValidator == nil {
		return nil, errors.New("[NewEndSessionResponseGenerator] token validator is required")
	}
	if clientStore == nil {
		return nil, errors.New("[NewEndSessionResponseGenerator] client store is required")
	}
	return &EndSessionResponseGenerator{
		tokenValidator: tokenValidator,
		clientStore:    clientStore,
	}, nil
}

// Process validates the end-session parameters and decides whether the
// requested post-logout redirect may be honored.
func (g *EndSessionResponseGenerator) Process(ctx context.Context, idTokenHint, postLogoutRedirectURI, state string) (*SignOutResponse, error) {
	resp := &SignOutResponse{}
	if idTokenHint == "" {
		return resp, nil
	}

	// The hint may be long expired; only signature and issuer matter here.
	result := g.tokenValidator.ValidateIdentityToken(ctx, idTokenHint, "", false)
	if result.IsError() {
		log.Debug().Str("error", result.Error).Msg("ignoring invalid id_token_hint")
		return resp, nil
	}

	clientID, _ := result.Claims["aud"].(string)
	if clientID == "" {
		return resp, nil
	}
	resp.ClientID = clientID

	if postLogoutRedirectURI == "" {
		return resp, nil
	}

	client, err := g.clientStore.FindClientByID(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "[EndSessionResponseGenerator.Process] find client")
	}
	if client == nil || !client.Enabled || !client.HasPostLogoutRedirectURI(postLogoutRedirectURI) {
		log.Debug().Str("clientID", clientID).Str("uri", postLogoutRedirectURI).Msg("post_logout_redirect_uri not registered, dropping")
		return resp, nil
	}

	resp.PostLogoutRedirectURI = postLogoutRedirectURI
	resp.State = state
	return resp, nil
}
