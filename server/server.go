// Package server is the HTTP veneer over the protocol engine. It parses
// forms, invokes the validators and response generators, and serializes their
// outputs onto the wire; all protocol decisions live in the engine packages.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/corewell/go-identity-server/idp"
	"github.com/corewell/go-identity-server/internal/config"
	"github.com/corewell/go-identity-server/response"
	"github.com/corewell/go-identity-server/scopes"
	"github.com/corewell/go-identity-server/token"
	"github.com/corewell/go-identity-server/users"
	"github.com/corewell/go-identity-server/validation"
)

// SubjectProvider resolves the authenticated user for an incoming request,
// typically from a session cookie. A nil subject means anonymous. The second
// return value is the authentication session identifier, when one exists.
type SubjectProvider interface {
	Subject(r *http.Request) (*users.Subject, string)
}

// SubjectProviderFunc adapts a function to the SubjectProvider interface.
type SubjectProviderFunc func(r *http.Request) (*users.Subject, string)

func (f SubjectProviderFunc) Subject(r *http.Request) (*users.Subject, string) {
	return f(r)
}

// SessionStarter establishes a local login session for a subject an external
// provider just authenticated, typically by issuing a session cookie that the
// SubjectProvider resolves on subsequent requests.
type SessionStarter interface {
	StartSession(w http.ResponseWriter, r *http.Request, subject *users.Subject) error
}

// SessionStarterFunc adapts a function to the SessionStarter interface.
type SessionStarterFunc func(w http.ResponseWriter, r *http.Request, subject *users.Subject) error

func (f SessionStarterFunc) StartSession(w http.ResponseWriter, r *http.Request, subject *users.Subject) error {
	return f(w, r, subject)
}

type externalLogin struct {
	registry    *idp.Registry
	userService users.Service
	sessions    SessionStarter
}

// Option modifies a Server during construction.
type Option func(*Server)

// WithExternalLogin enables the hand-off to external OpenID Connect providers
// for authorize requests that carry an idp hint. The registry resolves the
// provider, userService maps the returned identity onto a local subject, and
// sessions signs the subject in before the authorize request resumes.
func WithExternalLogin(registry *idp.Registry, userService users.Service, sessions SessionStarter) Option {
	return func(s *Server) {
		s.external = &externalLogin{
			registry:    registry,
			userService: userService,
			sessions:    sessions,
		}
	}
}

// Engine bundles the protocol components the server drives. All fields are
// required.
type Engine struct {
	AuthorizeValidator *validation.AuthorizeRequestValidator
	ClientValidator    *validation.ClientSecretValidator
	TokenValidator     *validation.TokenRequestValidator

	Interaction        *response.AuthorizeInteractionResponseGenerator
	AuthorizeResponses *response.AuthorizeResponseGenerator
	TokenResponses     *response.TokenResponseGenerator
	UserInfo           *response.UserInfoResponseGenerator
	EndSession         *response.EndSessionResponseGenerator

	// PresentedTokens validates bearer tokens presented back to the server.
	PresentedTokens *token.Validator
}

func (e Engine) validate() error {
	switch {
	case e.AuthorizeValidator == nil,
		e.ClientValidator == nil,
		e.TokenValidator == nil,
		e.Interaction == nil,
		e.AuthorizeResponses == nil,
		e.TokenResponses == nil,
		e.UserInfo == nil,
		e.EndSession == nil,
		e.PresentedTokens == nil:
		return errors.New("[Engine.validate] all engine components are required")
	}
	return nil
}

// Server hosts the protocol endpoints.
type Server struct {
	router     *mux.Router
	config     config.Config
	engine     Engine
	signer     token.Signer
	scopeStore scopes.Store
	subjects   SubjectProvider
	messages   *messageStore
	external   *externalLogin
}

// New wires the endpoints. signer is used to publish the JWK set; a signer
// without a public key set (such as an HMAC signer) serves an empty one.
func New(cfg config.Config, engine Engine, signer token.Signer, scopeStore scopes.Store, subjects SubjectProvider, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config cannot be nil")
	}
	if err := engine.validate(); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, errors.New("[server.New] signer cannot be nil")
	}
	if scopeStore == nil {
		return nil, errors.New("[server.New] scope store cannot be nil")
	}
	if subjects == nil {
		return nil, errors.New("[server.New] subject provider cannot be nil")
	}

	s := &Server{
		router:     mux.NewRouter(),
		config:     cfg,
		engine:     engine,
		signer:     signer,
		scopeStore: scopeStore,
		subjects:   subjects,
		messages:   newMessageStore(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.external != nil &&
		(s.external.registry == nil || s.external.userService == nil || s.external.sessions == nil) {
		return nil, errors.New("[server.New] external login needs a registry, user service and session starter")
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.router.HandleFunc(RouteDiscovery, s.Discovery()).Methods(http.MethodGet)
	s.router.HandleFunc(RouteJWKS, s.JWKS()).Methods(http.MethodGet)
	s.router.HandleFunc(RouteAuthorize, s.Authorize()).Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc(RouteToken, s.Token()).Methods(http.MethodPost)
	s.router.HandleFunc(RouteUserInfo, s.UserInfo()).Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc(RouteEndSession, s.EndSession()).Methods(http.MethodGet)
	s.router.HandleFunc(RouteAccessTokenValidation, s.AccessTokenValidation()).Methods(http.MethodGet)
	if s.external != nil {
		s.router.HandleFunc(RouteExternalCallback, s.ExternalCallback()).Methods(http.MethodGet, http.MethodPost)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SignInMessage returns the pending sign-in message stored under id, for the
// hosting application's login page. The message stays retrievable for
// messageLifetime, so the page may be reloaded.
func (s *Server) SignInMessage(id string) (*users.SignInMessage, bool) {
	return s.messages.getSignIn(id)
}

// ConsentRequest returns the pending consent request stored under id, for the
// hosting application's consent page.
func (s *Server) ConsentRequest(id string) (*PendingConsent, bool) {
	return s.messages.getConsent(id)
}
