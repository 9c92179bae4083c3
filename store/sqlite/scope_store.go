package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/corewell/go-identity-server/scopes"
)

var _ scopes.Repo = (*ScopeStore)(nil)

// ScopeStore persists the scope registry as JSON documents.
type ScopeStore struct {
	db *DB
}

// NewScopeStore returns a scope registry backed by db.
func NewScopeStore(db *DB) (*ScopeStore, error) {
	if db == nil {
		return nil, errors.New("[NewScopeStore] db cannot be nil")
	}
	return &ScopeStore{db: db}, nil
}

func (s *ScopeStore) Upsert(ctx context.Context, scope scopes.Scope) error {
	if scope.Name == "" {
		return errors.New("[ScopeStore.Upsert] scope name cannot be empty")
	}
	document, err := json.Marshal(scope)
	if err != nil {
		return errors.Wrap(err, "[ScopeStore.Upsert] encoding scope")
	}

	_, err = s.db.db.ExecContext(ctx,
		`INSERT INTO scopes (name, document) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET document = excluded.document`,
		scope.Name, string(document))
	if err != nil {
		return errors.Wrap(err, "[ScopeStore.Upsert] writing scope")
	}
	return nil
}

func (s *ScopeStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM scopes WHERE name = ?`, name)
	if err != nil {
		return errors.Wrap(err, "[ScopeStore.Delete] deleting scope")
	}
	return nil
}

func (s *ScopeStore) GetScopes(ctx context.Context) ([]scopes.Scope, error) {
	return s.query(ctx, `SELECT document FROM scopes ORDER BY name`)
}

func (s *ScopeStore) FindScopes(ctx context.Context, names []string) ([]scopes.Scope, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}
	return s.query(ctx,
		`SELECT document FROM scopes WHERE name IN (`+placeholders+`) ORDER BY name`,
		args...)
}

func (s *ScopeStore) query(ctx context.Context, stmt string, args ...any) ([]scopes.Scope, error) {
	rows, err := s.db.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "[ScopeStore] querying scopes")
	}
	defer rows.Close()

	var result []scopes.Scope
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, errors.Wrap(err, "[ScopeStore] scanning row")
		}
		var scope scopes.Scope
		if err := json.Unmarshal([]byte(document), &scope); err != nil {
			return nil, errors.Wrap(err, "[ScopeStore] decoding scope")
		}
		result = append(result, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "[ScopeStore] iterating rows")
	}
	return result, nil
}
