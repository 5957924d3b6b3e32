package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type sessionKey struct {
	auditor string
	audit   string
}

type managedSession struct {
	session  *Session
	lastUsed time.Time
}

// SessionManager keeps one Session per auditor and audit for the HTTP
// layer and closes sessions that sit idle.
type SessionManager struct {
	svc    *AuditService
	idle   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*managedSession
}

func NewSessionManager(svc *AuditService, idle time.Duration, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &SessionManager{
		svc:      svc,
		idle:     idle,
		logger:   logger,
		now:      time.Now,
		sessions: map[sessionKey]*managedSession{},
	}
}

// Get returns the open session for auditor on audit, opening it if needed.
func (m *SessionManager) Get(ctx context.Context, auditorID, auditID string) (*Session, error) {
	key := sessionKey{auditor: auditorID, audit: auditID}
	m.mu.Lock()
	if ms, ok := m.sessions[key]; ok {
		ms.lastUsed = m.now()
		m.mu.Unlock()
		return ms.session, nil
	}
	m.mu.Unlock()

	sess, err := m.svc.OpenSession(ctx, auditID, auditorID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if ms, ok := m.sessions[key]; ok {
		ms.lastUsed = m.now()
		m.mu.Unlock()
		_ = sess.Close()
		return ms.session, nil
	}
	m.sessions[key] = &managedSession{session: sess, lastUsed: m.now()}
	m.mu.Unlock()
	return sess, nil
}

// Release closes and forgets the session, flushing its pending edits.
func (m *SessionManager) Release(auditorID, auditID string) error {
	key := sessionKey{auditor: auditorID, audit: auditID}
	m.mu.Lock()
	ms, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return ms.session.Close()
}

// Open returns the number of live sessions.
func (m *SessionManager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the configured timeout.
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.idle)
	m.mu.Lock()
	var stale []*Session
	for k, ms := range m.sessions {
		if ms.lastUsed.Before(cutoff) {
			stale = append(stale, ms.session)
			delete(m.sessions, k)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		if err := s.Close(); err != nil {
			m.logger.Warn("idle session closed with error", "audit", s.AuditID(), "error", err)
		}
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is done.
func (m *SessionManager) Run(ctx context.Context) {
	interval := m.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("idle sessions closed", "count", n)
			}
		}
	}
}

// CloseAll flushes and closes every session.
func (m *SessionManager) CloseAll() int {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for k, ms := range m.sessions {
		all = append(all, ms.session)
		delete(m.sessions, k)
	}
	m.mu.Unlock()
	for _, s := range all {
		if err := s.Close(); err != nil {
			m.logger.Warn("session closed with error", "audit", s.AuditID(), "error", err)
		}
	}
	return len(all)
}
