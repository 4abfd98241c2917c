package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	defaultCapacity = 512
	defaultTTL      = 30 * time.Minute
	sweepInterval   = time.Minute
)

// Manager owns every live Session, evicting the least-recently-used entry
// once capacity is exceeded and sweeping sessions idle past ttl on a
// background ticker.
type Manager struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	ttl      time.Duration
	logger   zerolog.Logger

	stop   chan struct{}
	stopMu sync.Mutex
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the idle eviction window (default 30 minutes).
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithLogger attaches a logger used for sweep/eviction diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager constructs a Manager capped at capacity concurrently live
// sessions and starts its background idle-sweep goroutine. Call Close to
// stop the sweep.
func NewManager(capacity int, opts ...Option) (*Manager, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	m := &Manager{ttl: defaultTTL, logger: zerolog.Nop(), stop: make(chan struct{})}
	for _, opt := range opts {
		opt(m)
	}

	cache, err := lru.NewWithEvict[string, *Session](capacity, func(key string, value *Session) {
		_ = value.Close()
		m.logger.Debug().Str("session_id", key).Msg("session evicted: capacity exceeded")
	})
	if err != nil {
		return nil, fmt.Errorf("session: new manager: %w", err)
	}
	m.sessions = cache

	go m.sweepLoop()
	return m, nil
}

// GetOrCreate returns the existing session for id, or creates one.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions.Get(id); ok {
		sess.Touch()
		return sess, nil
	}
	sess := newSession(id)
	m.sessions.Add(id, sess)
	return sess, nil
}

// Destroy closes and removes a session.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions.Get(id)
	if !ok {
		return fmt.Errorf("session: %s not found", id)
	}
	m.sessions.Remove(id)
	return sess.Close()
}

// List returns the IDs of every currently live session.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Keys()
}

// Execute runs fn against the named session's interpreter store with the
// session's exclusive lock held, creating the session if it does not yet
// exist.
func (m *Manager) Execute(ctx context.Context, id string, fn func(*Session) error) error {
	sess, err := m.GetOrCreate(id)
	if err != nil {
		return err
	}
	return sess.WithLock(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return fn(sess)
	})
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.sessions.Keys() {
		sess, ok := m.sessions.Peek(id)
		if !ok {
			continue
		}
		if sess.idleSince(now) >= m.ttl {
			m.sessions.Remove(id)
			_ = sess.Close()
			m.logger.Debug().Str("session_id", id).Msg("session evicted: idle ttl exceeded")
		}
	}
}

// Close stops the background sweep and closes every live session.
func (m *Manager) Close() error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.sessions.Keys() {
		if sess, ok := m.sessions.Peek(id); ok {
			_ = sess.Close()
		}
	}
	return nil
}
