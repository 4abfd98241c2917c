package interpreter

// Session is the persistent variable store backing one interpreter
// session: variables assigned in one Execute call are visible to the next
// Execute call against the same Session. Exclusive access across
// concurrent Execute calls against the same Session is the caller's
// responsibility (pkg/session.Manager serializes per session ID).
type Session struct {
	vars  map[string]any
	cache *MemoCache
}

// NewSession creates an empty variable store with its own memoization
// cache: Execute results are memoized per session, since the cache key
// already folds in that session's variable snapshot.
func NewSession() *Session {
	cache, _ := NewMemoCache(256)
	return &Session{vars: make(map[string]any), cache: cache}
}

// Snapshot returns a shallow copy of the current variable bindings.
func (s *Session) Snapshot() map[string]any {
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Merge overlays vars onto the session's variable store, overwriting any
// existing binding of the same name. Used to apply a single Execute call's
// context_overrides before running its code.
func (s *Session) Merge(vars map[string]any) {
	for k, v := range vars {
		s.vars[k] = v
	}
}

// Reset clears all bound variables.
func (s *Session) Reset() {
	s.vars = make(map[string]any)
}
