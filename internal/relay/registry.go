package relay

import "sync"

// Registry maps an owner to at most one active session. It is the only
// mutable structure shared between transfer goroutines, so every operation
// holds its mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Admit atomically registers the session unless the owner already has one.
func (r *Registry) Admit(ownerID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[ownerID]; ok {
		return false
	}

	r.sessions[ownerID] = s

	return true
}

// Release removes the owner's session. Releasing an absent owner is a no-op,
// so terminal paths may call it unconditionally.
func (r *Registry) Release(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, ownerID)
}

// Get returns the owner's active session, if any.
func (r *Registry) Get(ownerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[ownerID]

	return s, ok
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// RequestCancel flags the owner's session for cancellation. Only the owner
// may cancel their own transfer.
func (r *Registry) RequestCancel(ownerID, requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[ownerID]
	if !ok {
		return &CancelDeniedError{OwnerID: ownerID, RequesterID: requesterID, Reason: CancelDeniedNoActiveSession}
	}

	if requesterID != s.OwnerID {
		return &CancelDeniedError{OwnerID: ownerID, RequesterID: requesterID, Reason: CancelDeniedUnauthorized}
	}

	s.RequestCancel()

	return nil
}
