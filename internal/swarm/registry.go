package swarm

import "sync"

// Registry is the process-wide map from info hash to live session record. It
// is the only shared mutable state besides the torrent client handle; the
// Manager is its only writer. The backing map is never exposed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// InsertIfAbsent atomically registers s under its info hash. If a session
// already exists for the hash, the existing record is returned and loaded is
// true; s is discarded. This upholds the at-most-one-session-per-identifier
// invariant under concurrent callers.
func (r *Registry) InsertIfAbsent(s *Session) (existing *Session, loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.infoHash]; ok {
		return cur, true
	}
	r.sessions[s.infoHash] = s
	return s, false
}

func (r *Registry) Get(infoHash string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[infoHash]
	return s, ok
}

func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Delete(infoHash string) {
	r.mu.Lock()
	delete(r.sessions, infoHash)
	r.mu.Unlock()
}

// Clear empties the registry at process stop.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
