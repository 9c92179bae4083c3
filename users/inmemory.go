package users

import (
	"context"
	"sync"
	"time"
)

// InMemoryUser is a user record for the in-memory service.
type InMemoryUser struct {
	SubjectID    string
	Username     string
	PasswordHash string
	Enabled      bool

	// Provider/ProviderID link an external identity to this user.
	Provider   string
	ProviderID string

	Claims []Claim
}

// InMemoryService is a reference implementation of Service backed by a static
// user list. It is a test double, not a production credential store.
type InMemoryService struct {
	users   []InMemoryUser
	nowFunc func() time.Time
	lock    sync.RWMutex
}

// InMemoryServiceOption modifies an InMemoryService.
type InMemoryServiceOption func(*InMemoryService)

// WithNowFunc sets the clock (for testing authentication_time).
func WithNowFunc(now func() time.Time) InMemoryServiceOption {
	return func(s *InMemoryService) {
		s.nowFunc = now
	}
}

// NewInMemoryService builds a service over the given users.
func NewInMemoryService(userList []InMemoryUser, options ...InMemoryServiceOption) *InMemoryService {
	s := &InMemoryService{
		users:   userList,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var _ Service = (*InMemoryService)(nil)

func (s *InMemoryService) PreAuthenticate(context.Context, *SignInMessage) (*AuthenticateResult, error) {
	return nil, nil
}

func (s *InMemoryService) AuthenticateLocal(_ context.Context, username, password string, _ *SignInMessage) (*AuthenticateResult, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for i := range s.users {
		u := &s.users[i]
		if u.Username != username {
			continue
		}
		if !u.Enabled || !CheckPasswordHash(password, u.PasswordHash) {
			break
		}
		return &AuthenticateResult{Subject: s.subjectFor(u, LocalIdentityProvider, "password")}, nil
	}
	return &AuthenticateResult{ErrorMessage: "invalid username or password"}, nil
}

func (s *InMemoryService) AuthenticateExternal(_ context.Context, external ExternalIdentity, _ *SignInMessage) (*AuthenticateResult, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for i := range s.users {
		u := &s.users[i]
		if u.Provider != external.Provider || u.ProviderID != external.ProviderID {
			continue
		}
		if !u.Enabled {
			break
		}
		return &AuthenticateResult{Subject: s.subjectFor(u, external.Provider, "external")}, nil
	}
	return &AuthenticateResult{ErrorMessage: "unknown external identity"}, nil
}

func (s *InMemoryService) IsActive(_ context.Context, subject *Subject) (bool, error) {
	if !subject.Authenticated() {
		return false, nil
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	for i := range s.users {
		if s.users[i].SubjectID == subject.SubjectID {
			return s.users[i].Enabled, nil
		}
	}
	return false, nil
}

func (s *InMemoryService) GetProfileData(_ context.Context, subject *Subject, requestedClaimTypes []string) ([]Claim, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var source []Claim
	for i := range s.users {
		if s.users[i].SubjectID == subject.SubjectID {
			source = append([]Claim{{Type: "sub", Value: s.users[i].SubjectID}}, s.users[i].Claims...)
			break
		}
	}
	if len(requestedClaimTypes) == 0 {
		return source, nil
	}

	requested := make(map[string]bool, len(requestedClaimTypes))
	for _, t := range requestedClaimTypes {
		requested[t] = true
	}
	filtered := make([]Claim, 0, len(source))
	for _, c := range source {
		if requested[c.Type] {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (s *InMemoryService) SignOut(context.Context, *Subject) error {
	return nil
}

func (s *InMemoryService) subjectFor(u *InMemoryUser, idp, method string) *Subject {
	name := u.Username
	for _, c := range u.Claims {
		if c.Type == "name" {
			name = c.Value
		}
	}
	return &Subject{
		SubjectID:            u.SubjectID,
		Name:                 name,
		AuthenticationTime:   s.nowFunc(),
		IdentityProvider:     idp,
		AuthenticationMethod: method,
		Claims:               u.Claims,
	}
}
