package repofake

import (
	"context"
	"sync"

	"github.com/corewell/go-identity-server/token"
)

var _ token.RefreshTokenStore = (*FakeRefreshTokenStore)(nil)

type FakeRefreshTokenStore struct {
	tokens map[string]*token.RefreshToken
	lock   sync.RWMutex
}

func NewFakeRefreshTokenStore() *FakeRefreshTokenStore {
	return &FakeRefreshTokenStore{tokens: make(map[string]*token.RefreshToken)}
}

func (s *FakeRefreshTokenStore) Store(_ context.Context, handle string, refreshToken *token.RefreshToken) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	copied := *refreshToken
	copied.Handle = handle
	s.tokens[handle] = &copied
	return nil
}

func (s *FakeRefreshTokenStore) Get(_ context.Context, handle string) (*token.RefreshToken, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	rt, ok := s.tokens[handle]
	if !ok {
		return nil, nil
	}
	return rt, nil
}

func (s *FakeRefreshTokenStore) Remove(_ context.Context, handle string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.tokens, handle)
	return nil
}

func (s *FakeRefreshTokenStore) GetBySubject(_ context.Context, subjectID string) ([]*token.RefreshToken, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var list []*token.RefreshToken
	for _, rt := range s.tokens {
		if rt.SubjectID() == subjectID {
			list = append(list, rt)
		}
	}
	return list, nil
}

func (s *FakeRefreshTokenStore) RevokeBySubjectAndClient(_ context.Context, subjectID, clientID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for handle, rt := range s.tokens {
		if rt.SubjectID() == subjectID && rt.ClientID == clientID {
			delete(s.tokens, handle)
		}
	}
	return nil
}
