package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corewell/go-identity-server/users"
)

// messageLifetime bounds how long an unresolved interactive round trip is
// kept before its state is dropped.
const messageLifetime = 15 * time.Minute

// PendingConsent is what the consent page needs to render: the client and
// scopes under decision, the URL the decision posts back to, and an optional
// error from a previous submission.
type PendingConsent struct {
	ClientID        string
	ClientName      string
	RequestedScopes []string
	ReturnURL       string
	ErrorMessage    string
}

// pendingExternal tracks an authorize request handed off to an external
// provider, keyed by the state parameter until the callback returns.
type pendingExternal struct {
	Message *users.SignInMessage
	Nonce   string
}

type signInEntry struct {
	message  *users.SignInMessage
	storedAt time.Time
}

type consentEntry struct {
	pending  *PendingConsent
	storedAt time.Time
}

type externalEntry struct {
	pending  *pendingExternal
	storedAt time.Time
}

// messageStore keeps sign-in, consent and external-login state between the
// authorize request and the interactive step that resolves it. Entries are
// keyed by an opaque id carried in the page URL, never by request
// parameters, and expire after messageLifetime so abandoned round trips do
// not accumulate.
type messageStore struct {
	lock     sync.Mutex
	nowFunc  func() time.Time
	signIn   map[string]signInEntry
	consent  map[string]consentEntry
	external map[string]externalEntry
}

func newMessageStore() *messageStore {
	return &messageStore{
		nowFunc:  time.Now,
		signIn:   make(map[string]signInEntry),
		consent:  make(map[string]consentEntry),
		external: make(map[string]externalEntry),
	}
}

func (m *messageStore) putSignIn(message *users.SignInMessage) string {
	id := uuid.NewString()
	m.lock.Lock()
	defer m.lock.Unlock()
	m.purge()
	m.signIn[id] = signInEntry{message: message, storedAt: m.nowFunc()}
	return id
}

func (m *messageStore) getSignIn(id string) (*users.SignInMessage, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	entry, ok := m.signIn[id]
	if !ok || m.expired(entry.storedAt) {
		return nil, false
	}
	return entry.message, true
}

func (m *messageStore) putConsent(pending *PendingConsent) string {
	id := uuid.NewString()
	m.lock.Lock()
	defer m.lock.Unlock()
	m.purge()
	m.consent[id] = consentEntry{pending: pending, storedAt: m.nowFunc()}
	return id
}

func (m *messageStore) getConsent(id string) (*PendingConsent, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	entry, ok := m.consent[id]
	if !ok || m.expired(entry.storedAt) {
		return nil, false
	}
	return entry.pending, true
}

func (m *messageStore) putExternal(state string, pending *pendingExternal) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.purge()
	m.external[state] = externalEntry{pending: pending, storedAt: m.nowFunc()}
}

// takeExternal removes the entry on retrieval: the state parameter is single
// use.
func (m *messageStore) takeExternal(state string) (*pendingExternal, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	entry, ok := m.external[state]
	if !ok {
		return nil, false
	}
	delete(m.external, state)
	if m.expired(entry.storedAt) {
		return nil, false
	}
	return entry.pending, true
}

// purge drops expired entries. Called under the lock on every put.
func (m *messageStore) purge() {
	for id, entry := range m.signIn {
		if m.expired(entry.storedAt) {
			delete(m.signIn, id)
		}
	}
	for id, entry := range m.consent {
		if m.expired(entry.storedAt) {
			delete(m.consent, id)
		}
	}
	for state, entry := range m.external {
		if m.expired(entry.storedAt) {
			delete(m.external, state)
		}
	}
}

func (m *messageStore) expired(storedAt time.Time) bool {
	return m.nowFunc().Sub(storedAt) > messageLifetime
}
