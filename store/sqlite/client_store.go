package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/corewell/go-identity-server/clients"
)

var _ clients.Repo = (*ClientStore)(nil)

// ClientStore persists registered clients as JSON documents.
type ClientStore struct {
	db *DB
}

// NewClientStore returns a client registry backed by db.
func NewClientStore(db *DB) (*ClientStore, error) {
	if db == nil {
		return nil, errors.New("[NewClientStore] db cannot be nil")
	}
	return &ClientStore{db: db}, nil
}

func (s *ClientStore) Upsert(ctx context.Context, clientData *clients.Client) error {
	if clientData == nil {
		return errors.New("[ClientStore.Upsert] client cannot be nil")
	}
	defaulted := clientData.Defaulted()
	document, err := json.Marshal(defaulted)
	if err != nil {
		return errors.Wrap(err, "[ClientStore.Upsert] encoding client")
	}

	_, err = s.db.db.ExecContext(ctx,
		`INSERT INTO clients (id, document) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET document = excluded.document`,
		defaulted.ID, string(document))
	if err != nil {
		return errors.Wrap(err, "[ClientStore.Upsert] writing client")
	}
	return nil
}

func (s *ClientStore) Delete(ctx context.Context, clientID string) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, clientID)
	if err != nil {
		return errors.Wrap(err, "[ClientStore.Delete] deleting client")
	}
	return nil
}

func (s *ClientStore) FindClientByID(ctx context.Context, clientID string) (*clients.Client, error) {
	var document string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT document FROM clients WHERE id = ?`, clientID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[ClientStore.FindClientByID] reading client")
	}

	var client clients.Client
	if err := json.Unmarshal([]byte(document), &client); err != nil {
		return nil, errors.Wrap(err, "[ClientStore.FindClientByID] decoding client")
	}
	return &client, nil
}

func (s *ClientStore) List(ctx context.Context, offset, limit int) ([]*clients.Client, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT document FROM clients ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientStore.List] querying clients")
	}
	defer rows.Close()

	var result []*clients.Client
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, errors.Wrap(err, "[ClientStore.List] scanning row")
		}
		var client clients.Client
		if err := json.Unmarshal([]byte(document), &client); err != nil {
			return nil, errors.Wrap(err, "[ClientStore.List] decoding client")
		}
		result = append(result, &client)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "[ClientStore.List] iterating rows")
	}
	return result, nil
}
