package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corewell/go-identity-server/users"
)

const sessionCookieName = "identity_session"

// cookieSessions is a minimal in-memory session layer for the bare binary: a
// random cookie value maps to the signed-in subject. A hosting application
// replaces it with its own session management.
type cookieSessions struct {
	lock     sync.RWMutex
	subjects map[string]*users.Subject
}

func newCookieSessions() *cookieSessions {
	return &cookieSessions{subjects: make(map[string]*users.Subject)}
}

func (s *cookieSessions) Subject(r *http.Request) (*users.Subject, string) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, ""
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.subjects[cookie.Value], cookie.Value
}

func (s *cookieSessions) StartSession(w http.ResponseWriter, _ *http.Request, subject *users.Subject) error {
	if subject.AuthenticationTime.IsZero() {
		subject.AuthenticationTime = time.Now()
	}
	id := uuid.NewString()
	s.lock.Lock()
	s.subjects[id] = subject
	s.lock.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
