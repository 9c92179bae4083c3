package consent

import (
	"context"
	"sync"

	"github.com/corewell/go-identity-server/clients"
	"github.com/corewell/go-identity-server/oauth2"
	"github.com/corewell/go-identity-server/users"
)

// InMemoryService remembers consent decisions in a map keyed by
// subject and client. A reference/test implementation of Service.
type InMemoryService struct {
	consents map[consentKey][]string
	lock     sync.RWMutex
}

type consentKey struct {
	subjectID string
	clientID  string
}

func NewInMemoryService() *InMemoryService {
	return &InMemoryService{consents: make(map[consentKey][]string)}
}

var _ Service = (*InMemoryService)(nil)

func (s *InMemoryService) RequiresConsent(_ context.Context, client *clients.Client, subject *users.Subject, requestedScopes []string) (bool, error) {
	if !client.RequireConsent {
		return false, nil
	}
	if !client.AllowRememberConsent {
		return true, nil
	}

	s.lock.RLock()
	defer s.lock.RUnlock()
	remembered, ok := s.consents[consentKey{subjectID: subject.SubjectID, clientID: client.ID}]
	if !ok {
		return true, nil
	}
	for _, scope := range requestedScopes {
		if !oauth2.ScopesContain(remembered, scope) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryService) UpdateConsent(_ context.Context, client *clients.Client, subject *users.Subject, grantedScopes []string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := consentKey{subjectID: subject.SubjectID, clientID: client.ID}
	if grantedScopes == nil {
		delete(s.consents, key)
		return nil
	}
	stored := make([]string, len(grantedScopes))
	copy(stored, grantedScopes)
	s.consents[key] = stored
	return nil
}
