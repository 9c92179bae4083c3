package clients

import "context"

// Store is the narrow lookup contract the protocol engine depends on.
// A missing client is (nil, nil); errors are reserved for store failures.
type Store interface {
	FindClientByID(ctx context.Context, clientID string) (*Client, error)
}

// Repo is the full client registry contract, as used by the hosting
// application for administration.
type Repo interface {
	Store
	Upsert(ctx context.Context, clientData *Client) error
	Delete(ctx context.Context, clientID string) error
	List(ctx context.Context, offset, limit int) ([]*Client, error)
}
