package interpreter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoCache memoizes Execute results keyed by the snippet's source together
// with a hash of the session's variable bindings at call time: the same
// code run against a differently-populated session is a cache miss, since
// its result can legitimately differ.
type MemoCache struct {
	cache *lru.Cache[string, *Result]
}

// NewMemoCache builds a memoization cache holding up to size entries.
func NewMemoCache(size int) (*MemoCache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, fmt.Errorf("interpreter: new memo cache: %w", err)
	}
	return &MemoCache{cache: c}, nil
}

// Key derives the memoization key for a (code, session-state) pair.
func Key(code string, sess *Session) string {
	h := sha256.New()
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(stableSnapshot(sess)))
	return hex.EncodeToString(h.Sum(nil))
}

// stableSnapshot relies on encoding/json's guarantee that map[string]any
// keys are emitted in sorted order, so two sessions with identical bindings
// always produce identical bytes regardless of insertion order.
func stableSnapshot(sess *Session) string {
	if sess == nil {
		return ""
	}
	data, err := json.Marshal(sess.Snapshot())
	if err != nil {
		return ""
	}
	return string(data)
}

// Get returns a cached Result for key, if present.
func (m *MemoCache) Get(key string) (*Result, bool) {
	if m == nil || m.cache == nil {
		return nil, false
	}
	return m.cache.Get(key)
}

// Put stores res under key.
func (m *MemoCache) Put(key string, res *Result) {
	if m == nil || m.cache == nil {
		return
	}
	m.cache.Add(key, res)
}
