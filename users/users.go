package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Claim is a single typed claim value belonging to a subject.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Subject is the authenticated end user as seen by the protocol engine:
// a stable identifier plus authentication metadata and claims.
type Subject struct {
	// SubjectID is the stable unique identifier ("sub" claim).
	SubjectID string

	// Name is a display name for the user.
	Name string

	// AuthenticationTime is when the user last actively authenticated.
	// Compared against max_age for freshness checks.
	AuthenticationTime time.Time

	// IdentityProvider names the provider that authenticated the user;
	// "idsrv" for local logins.
	IdentityProvider string

	// AuthenticationMethod records how the user authenticated (e.g. "password").
	AuthenticationMethod string

	Claims []Claim
}

// LocalIdentityProvider is the IdentityProvider value for local logins.
const LocalIdentityProvider = "idsrv"

// Authenticated reports whether s represents an authenticated user.
func (s *Subject) Authenticated() bool {
	return s != nil && s.SubjectID != ""
}

// ClaimValue returns the first claim value of the given type, or "".
func (s *Subject) ClaimValue(claimType string) string {
	if s == nil {
		return ""
	}
	for _, c := range s.Claims {
		if c.Type == claimType {
			return c.Value
		}
	}
	return ""
}

// SignInMessage carries everything the login page needs to render and resume
// an authorization request. The interaction generator builds it; the hosting
// application round-trips it through the sign-in UI.
type SignInMessage struct {
	ClientID    string
	ReturnURL   string
	IdP         string
	Tenant      string
	LoginHint   string
	DisplayMode string
	UILocales   string
	AcrValues   []string

	// PromptMode is carried only while it still needs to influence the login
	// UI; a forced-login request strips it so the return trip does not loop.
	PromptMode string
}

// ExternalIdentity describes a user authenticated by an external provider.
type ExternalIdentity struct {
	Provider   string
	ProviderID string
	Claims     []Claim
}

// AuthenticateResult is the outcome of an authentication attempt: either an
// authenticated subject or a user-displayable error message.
type AuthenticateResult struct {
	Subject      *Subject
	ErrorMessage string
}

// Success reports whether the attempt produced an authenticated subject.
func (r *AuthenticateResult) Success() bool {
	return r != nil && r.ErrorMessage == "" && r.Subject.Authenticated()
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a plaintext password against a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
