// Package application contains use-case orchestration services.
package application

import (
	"sync"

	"github.com/ewhitmore/nbcrhub/internal/domain/port/driven"
)

// Session holds the authenticated actor context: the remote source client and
// the actor identity all fetches and configuration writes are scoped to. It
// replaces ambient globals with an explicitly owned lifecycle; Init and
// Teardown may be called at runtime when credentials appear or are revoked.
type Session struct {
	mu     sync.RWMutex
	client driven.SourceClient
	actor  string
}

// NewSession creates an empty, not-yet-ready session.
func NewSession() *Session {
	return &Session{}
}

// Init installs the source client and actor identity. The next Snapshot call
// observes the new values.
func (s *Session) Init(client driven.SourceClient, actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
	s.actor = actor
}

// Teardown clears the session. Subsequent operations behave as not ready.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.actor = ""
}

// Snapshot returns the current client and actor. ok is false when either is
// missing, meaning the session is not ready and operations should no-op.
func (s *Session) Snapshot() (client driven.SourceClient, actor string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.actor, s.client != nil && s.actor != ""
}

// Ready reports whether both a client and an actor are present.
func (s *Session) Ready() bool {
	_, _, ok := s.Snapshot()
	return ok
}

// Actor returns the current actor identity, or empty when not ready.
func (s *Session) Actor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actor
}
