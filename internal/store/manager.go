package store

import (
	"sync"
	"time"

	"log/slog"
)

const managerSweepInterval = time.Minute

// Manager owns one Store per authenticated principal and closes stores
// that have gone idle so their bus subscriptions are released.
type Manager struct {
	deps    Deps
	opts    Options
	idleTTL time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	stopCh   chan struct{}
	once     sync.Once
}

type session struct {
	store    *Store
	lastSeen time.Time
}

// NewManager constructs a Manager and starts its idle sweeper.
func NewManager(deps Deps, opts Options, idleTTL time.Duration, logger *slog.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	m := &Manager{
		deps:     deps,
		opts:     opts,
		idleTTL:  idleTTL,
		logger:   logger,
		sessions: make(map[string]*session),
		stopCh:   make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Acquire returns the principal's store, creating it on first use.
func (m *Manager) Acquire(p Principal) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[p.UserID]; ok {
		sess.lastSeen = time.Now()
		return sess.store
	}
	st := New(p, m.deps, m.opts, m.logger.With("user_id", p.UserID))
	m.sessions[p.UserID] = &session{store: st, lastSeen: time.Now()}
	return st
}

// Release drops a principal's session and closes its store.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		if err := sess.store.Close(); err != nil {
			m.logger.Warn("closing session store failed", "user_id", userID, "error", err)
		}
	}
}

// Close stops the sweeper and closes every session store.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()
	for userID, sess := range sessions {
		if err := sess.store.Close(); err != nil {
			m.logger.Warn("closing session store failed", "user_id", userID, "error", err)
		}
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(managerSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep(time.Now())
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	var expired []*session
	for userID, sess := range m.sessions {
		if now.Sub(sess.lastSeen) > m.idleTTL {
			expired = append(expired, sess)
			delete(m.sessions, userID)
		}
	}
	m.mu.Unlock()
	for _, sess := range expired {
		if err := sess.store.Close(); err != nil {
			m.logger.Warn("closing idle session failed", "error", err)
		}
	}
}
