package consent

import (
	"context"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/users"
)

// UserConsent is the outcome of a consent screen submission. It is transient
// input to the interaction generator; persistence of remembered consent is the
// Service's concern.
type UserConsent struct {
	// Button is "yes" when the user approved the request.
	Button string

	// RememberConsent persists the scope decision for future requests,
	// when the client allows it.
	RememberConsent bool

	// Scopes is the subset of requested scopes the user granted.
	Scopes []string
}

// Granted reports whether the user approved the request.
func (c *UserConsent) Granted() bool {
	return c != nil && c.Button == "yes"
}

// Service decides whether a consent screen is needed and records remembered
// consent decisions.
type Service interface {
	// RequiresConsent reports whether the client/subject/scopes combination
	// needs an interactive consent screen.
	RequiresConsent(ctx context.Context, client *clients.Client, subject *users.Subject, requestedScopes []string) (bool, error)

	// UpdateConsent stores the subject's scope decision for the client.
	// An empty scope set remembers the denial of everything beyond what was
	// previously consented.
	UpdateConsent(ctx context.Context, client *clients.Client, subject *users.Subject, grantedScopes []string) error
}
