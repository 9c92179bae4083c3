package repofake

import (
	"context"
	"sync"

	"github.com/corewell/go-identity-server/token"
)

var _ token.AuthorizationCodeStore = (*FakeCodeStore)(nil)

// FakeCodeStore is an in-memory AuthorizationCodeStore. The mutex makes the
// read-then-delete in Get atomic, so concurrent redemptions of one id see
// exactly one success.
type FakeCodeStore struct {
	codes map[string]*token.AuthorizationCode
	lock  sync.Mutex
}

func NewFakeCodeStore() *FakeCodeStore {
	return &FakeCodeStore{codes: make(map[string]*token.AuthorizationCode)}
}

func (s *FakeCodeStore) Store(_ context.Context, id string, code *token.AuthorizationCode) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.codes[id] = code
	return nil
}

func (s *FakeCodeStore) Get(_ context.Context, id string) (*token.AuthorizationCode, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	code, ok := s.codes[id]
	if !ok {
		return nil, nil
	}
	delete(s.codes, id)
	return code, nil
}

func (s *FakeCodeStore) Remove(_ context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.codes, id)
	return nil
}
