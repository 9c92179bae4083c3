package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"

	"github.com/corewell/go-identity-server/consent"
	"github.com/corewell/go-identity-server/idp"
	"github.com/corewell/go-identity-server/internal/config"
	"github.com/corewell/go-identity-server/response"
	"github.com/corewell/go-identity-server/scopes"
	"github.com/corewell/go-identity-server/server"
	"github.com/corewell/go-identity-server/store/sqlite"
	"github.com/corewell/go-identity-server/token"
	"github.com/corewell/go-identity-server/token/repofake"
	"github.com/corewell/go-identity-server/users"
	"github.com/corewell/go-identity-server/validation"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	handler, closeStores, err := buildServer(c)
	if err != nil {
		return err
	}
	defer closeStores()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(c config.Config) (*server.Server, func(), error) {
	if err := os.MkdirAll(c.GetDataFolder(), 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating data folder: %w", err)
	}
	db, err := sqlite.Open(filepath.Join(c.GetDataFolder(), "identity.db"))
	if err != nil {
		return nil, nil, err
	}
	closeStores := func() { _ = db.Close() }

	clientStore, err := sqlite.NewClientStore(db)
	if err != nil {
		return nil, nil, err
	}
	scopeStore, err := sqlite.NewScopeStore(db)
	if err != nil {
		return nil, nil, err
	}
	if err := bootstrapScopes(scopeStore); err != nil {
		return nil, nil, err
	}

	signer, err := buildSigner(c)
	if err != nil {
		return nil, nil, err
	}

	// Codes, refresh tokens and reference token handles are short-lived
	// server state; the in-memory stores suit a single-node deployment.
	codeStore := repofake.NewFakeCodeStore()
	refreshStore := repofake.NewFakeRefreshTokenStore()
	handleStore := repofake.NewFakeTokenHandleStore()

	// The hosting application replaces these with its own user directory
	// and consent storage.
	userService := users.NewInMemoryService(nil)
	consentService := consent.NewInMemoryService()

	issuer := c.GetIssuer()
	tokenManager, err := token.NewManager(signer, userService, handleStore, issuer)
	if err != nil {
		return nil, nil, err
	}
	refreshManager, err := token.NewRefreshManager(refreshStore)
	if err != nil {
		return nil, nil, err
	}
	presentedTokens, err := token.NewValidator(signer, handleStore, issuer)
	if err != nil {
		return nil, nil, err
	}

	authorizeValidator, err := validation.NewAuthorizeRequestValidator(clientStore, scopeStore)
	if err != nil {
		return nil, nil, err
	}
	clientValidator, err := validation.NewClientSecretValidator(clientStore)
	if err != nil {
		return nil, nil, err
	}
	tokenValidator, err := validation.NewTokenRequestValidator(scopeStore, codeStore, refreshStore, userService)
	if err != nil {
		return nil, nil, err
	}

	interaction, err := response.NewAuthorizeInteractionResponseGenerator(consentService, userService)
	if err != nil {
		return nil, nil, err
	}
	authorizeResponses, err := response.NewAuthorizeResponseGenerator(tokenManager, codeStore)
	if err != nil {
		return nil, nil, err
	}
	tokenResponses, err := response.NewTokenResponseGenerator(tokenManager, refreshManager, scopeStore)
	if err != nil {
		return nil, nil, err
	}
	userInfo, err := response.NewUserInfoResponseGenerator(userService, scopeStore)
	if err != nil {
		return nil, nil, err
	}
	endSession, err := response.NewEndSessionResponseGenerator(presentedTokens, clientStore)
	if err != nil {
		return nil, nil, err
	}

	// The hosting application replaces this with its own session management.
	sessions := newCookieSessions()

	var options []server.Option
	if idpIssuer := config.GetEnv("IDP_ISSUER", ""); idpIssuer != "" {
		registry, err := idp.NewRegistry(idp.ProviderConfig{
			Name:         config.GetEnv("IDP_NAME", "external"),
			Issuer:       idpIssuer,
			ClientID:     config.GetEnv("IDP_CLIENT_ID", ""),
			ClientSecret: config.GetEnv("IDP_CLIENT_SECRET", ""),
			RedirectURL:  issuer + server.RouteExternalCallback,
		})
		if err != nil {
			return nil, nil, err
		}
		options = append(options, server.WithExternalLogin(registry, userService, sessions))
	}

	srv, err := server.New(c, server.Engine{
		AuthorizeValidator: authorizeValidator,
		ClientValidator:    clientValidator,
		TokenValidator:     tokenValidator,
		Interaction:        interaction,
		AuthorizeResponses: authorizeResponses,
		TokenResponses:     tokenResponses,
		UserInfo:           userInfo,
		EndSession:         endSession,
		PresentedTokens:    presentedTokens,
	}, signer, scopeStore, sessions, options...)
	if err != nil {
		return nil, nil, err
	}
	return srv, closeStores, nil
}

// bootstrapScopes registers the standard OIDC scopes on first start.
func bootstrapScopes(store *sqlite.ScopeStore) error {
	ctx := context.Background()
	existing, err := store.GetScopes(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, scope := range scopes.StandardScopes() {
		if err := store.Upsert(ctx, scope); err != nil {
			return err
		}
	}
	log.Printf("Registered %d standard scopes\n", len(scopes.StandardScopes()))
	return nil
}

func buildSigner(c config.Config) (*token.KeyPairSigner, error) {
	if file := c.GetSigningKeyFile(); file != "" {
		pemBytes, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading signing key: %w", err)
		}
		keyPair, err := token.LoadRSAKeyPairFromPEM(c.GetSigningKeyID(), string(pemBytes))
		if err != nil {
			return nil, err
		}
		return token.NewKeyPairSigner(keyPair), nil
	}

	log.Printf("No signing key configured, generating a throwaway key pair\n")
	keyPair, err := token.GenerateRSAKeyPair(c.GetSigningKeyID(), c.GetSigningKeyBits())
	if err != nil {
		return nil, err
	}
	return token.NewKeyPairSigner(keyPair), nil
}

func listenAndServe(httpServer *http.Server) error {
	log.Printf("Server listening on %s\n", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
