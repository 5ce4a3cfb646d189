package auth

import (
	"sync"
	"time"
)

// RevocationRegistry remembers revoked access tokens and the last logout of
// each user. Revoked tokens are never removed; access tokens expire on their
// own within the hour, so the set stays bounded by logout traffic.
type RevocationRegistry struct {
	mu      sync.RWMutex
	tokens  map[string]struct{}
	logouts map[string]time.Time
}

func NewRevocationRegistry() *RevocationRegistry {
	return &RevocationRegistry{
		tokens:  make(map[string]struct{}),
		logouts: make(map[string]time.Time),
	}
}

func (r *RevocationRegistry) Revoke(rawToken string) {
	if rawToken == "" {
		return
	}

	r.mu.Lock()
	r.tokens[rawToken] = struct{}{}
	r.mu.Unlock()
}

func (r *RevocationRegistry) IsRevoked(rawToken string) bool {
	r.mu.RLock()
	_, ok := r.tokens[rawToken]
	r.mu.RUnlock()
	return ok
}

// RevokeUser records that the user identified by email logged out at the
// given time. The most recent logout wins.
func (r *RevocationRegistry) RevokeUser(email string, at time.Time) error {
	if email == "" {
		return ErrUnknownSubject
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.logouts[email]; !ok || at.After(prev) {
		r.logouts[email] = at.UTC()
	}
	return nil
}

func (r *RevocationRegistry) LoggedOutAt(email string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.logouts[email]
	return at, ok
}

func (r *RevocationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
