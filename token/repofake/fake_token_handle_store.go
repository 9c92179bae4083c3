package repofake

import (
	"context"
	"sync"

	"github.com/corewell/go-identity-server/token"
)

var _ token.TokenHandleStore = (*FakeTokenHandleStore)(nil)

type FakeTokenHandleStore struct {
	tokens map[string]*token.Token
	lock   sync.RWMutex
}

func NewFakeTokenHandleStore() *FakeTokenHandleStore {
	return &FakeTokenHandleStore{tokens: make(map[string]*token.Token)}
}

func (s *FakeTokenHandleStore) Store(_ context.Context, handle string, t *token.Token) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tokens[handle] = t
	return nil
}

func (s *FakeTokenHandleStore) Get(_ context.Context, handle string) (*token.Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	t, ok := s.tokens[handle]
	if !ok {
		return nil, nil
	}
	return t, nil
}

func (s *FakeTokenHandleStore) Remove(_ context.Context, handle string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.tokens, handle)
	return nil
}

func (s *FakeTokenHandleStore) GetBySubject(_ context.Context, subjectID string) ([]*token.Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var list []*token.Token
	for _, t := range s.tokens {
		if t.SubjectID() == subjectID {
			list = append(list, t)
		}
	}
	return list, nil
}

func (s *FakeTokenHandleStore) RevokeBySubjectAndClient(_ context.Context, subjectID, clientID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for handle, t := range s.tokens {
		if t.SubjectID() == subjectID && t.Client != nil && t.Client.ID == clientID {
			delete(s.tokens, handle)
		}
	}
	return nil
}
