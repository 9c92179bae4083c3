package scopes

import "context"

// Store is the scope registry contract the engine depends on.
type Store interface {
	// GetScopes returns all registered scopes.
	GetScopes(ctx context.Context) ([]Scope, error)

	// FindScopes returns the registered scopes matching names, in no
	// particular order. Unknown names are silently absent from the result.
	FindScopes(ctx context.Context, names []string) ([]Scope, error)
}

// Repo extends Store with registration, for the hosting application.
type Repo interface {
	Store
	Upsert(ctx context.Context, scope Scope) error
	Delete(ctx context.Context, name string) error
}
