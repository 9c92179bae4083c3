package fakescoperepo

import (
	"context"
	"sort"
	"sync"

	"github.com/corewell/go-identity-server/scopes"
)

var _ scopes.Repo = (*FakeScopeRepo)(nil)

type FakeScopeRepo struct {
	scopes map[string]scopes.Scope
	lock   sync.RWMutex
}

// NewFakeScopeRepo returns a store seeded with the given scopes.
func NewFakeScopeRepo(seed ...scopes.Scope) *FakeScopeRepo {
	r := &FakeScopeRepo{scopes: make(map[string]scopes.Scope)}
	for _, s := range seed {
		r.scopes[s.Name] = s
	}
	return r
}

func (r *FakeScopeRepo) Upsert(_ context.Context, scope scopes.Scope) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.scopes[scope.Name] = scope
	return nil
}

func (r *FakeScopeRepo) Delete(_ context.Context, name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.scopes, name)
	return nil
}

func (r *FakeScopeRepo) GetScopes(_ context.Context) ([]scopes.Scope, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	all := make([]scopes.Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (r *FakeScopeRepo) FindScopes(_ context.Context, names []string) ([]scopes.Scope, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	found := make([]scopes.Scope, 0, len(names))
	for _, n := range names {
		if s, ok := r.scopes[n]; ok {
			found = append(found, s)
		}
	}
	return found, nil
}
