package token

import "context"

// AuthorizationCodeStore persists authorization codes between the authorize
// and token endpoints. Get is destructive: it removes the code as it reads,
// and the store must make the read-then-delete atomic so that concurrent
// redemptions of the same id yield exactly one success.
type AuthorizationCodeStore interface {
	Store(ctx context.Context, id string, code *AuthorizationCode) error

	// Get returns the code for id and removes it, or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*AuthorizationCode, error)

	Remove(ctx context.Context, id string) error
}

// RefreshTokenStore persists refresh tokens by handle. Get is non-destructive;
// rotation is the caller's responsibility via Store/Remove.
type RefreshTokenStore interface {
	Store(ctx context.Context, handle string, refreshToken *RefreshToken) error

	// Get returns the token for handle, or (nil, nil) when absent.
	Get(ctx context.Context, handle string) (*RefreshToken, error)

	Remove(ctx context.Context, handle string) error

	// GetBySubject enumerates all refresh tokens held for a subject.
	GetBySubject(ctx context.Context, subjectID string) ([]*RefreshToken, error)

	// RevokeBySubjectAndClient removes every refresh token the subject holds
	// for the given client.
	RevokeBySubjectAndClient(ctx context.Context, subjectID, clientID string) error
}

// TokenHandleStore persists reference access tokens by handle, with the same
// enumeration/revocation surface as the refresh token store.
type TokenHandleStore interface {
	Store(ctx context.Context, handle string, token *Token) error
	Get(ctx context.Context, handle string) (*Token, error)
	Remove(ctx context.Context, handle string) error
	GetBySubject(ctx context.Context, subjectID string) ([]*Token, error)
	RevokeBySubjectAndClient(ctx context.Context, subjectID, clientID string) error
}
