package users

import "context"

// Service is the user backend contract the engine depends on. Implementations
// wrap whatever credential and profile stores the hosting application uses.
type Service interface {
	// PreAuthenticate runs before the login page is shown and may authenticate
	// the user without interaction (e.g. client certificates). A nil result
	// means no pre-authentication happened.
	PreAuthenticate(ctx context.Context, message *SignInMessage) (*AuthenticateResult, error)

	// AuthenticateLocal checks local username/password credentials.
	AuthenticateLocal(ctx context.Context, username, password string, message *SignInMessage) (*AuthenticateResult, error)

	// AuthenticateExternal maps an externally-authenticated identity onto a
	// local subject.
	AuthenticateExternal(ctx context.Context, external ExternalIdentity, message *SignInMessage) (*AuthenticateResult, error)

	// IsActive reports whether the subject is still a valid, signed-in-capable
	// user (not deactivated or deleted since the session was established).
	IsActive(ctx context.Context, subject *Subject) (bool, error)

	// GetProfileData returns the subject's claim values for the requested
	// claim types; all claims when requestedClaimTypes is empty.
	GetProfileData(ctx context.Context, subject *Subject, requestedClaimTypes []string) ([]Claim, error)

	// SignOut notifies the backend that the subject signed out.
	SignOut(ctx context.Context, subject *Subject) error
}
