package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/observability"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

// Session is one browsing session bound to an owner's conversation.
type Session struct {
	ID             string    `json:"session_id"`
	Owner          string    `json:"owner"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Dependencies are shared by every router the manager builds.
type Dependencies struct {
	Persister    conversation.Persister
	Analyzer     analysis.Analyzer
	Materializer complaint.Materializer
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

type entry struct {
	sess   Session
	router *triage.Router
	// ctx ends with the session; in-flight sends are scoped to it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager owns the active sessions. An owner has at most one active session, so each
// persisted conversation has a single writer.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	sessionByOwner    map[string]string
	inactivityTimeout time.Duration
	endedRetention    time.Duration
	onExpire          func(*Session)

	deps Dependencies
}

func NewManager(inactivityTimeout time.Duration, deps Dependencies) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		sessionByOwner:    make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		endedRetention:    10 * time.Minute,
		deps:              deps,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetEndedRetention controls how long ended sessions remain visible to Get.
func (m *Manager) SetEndedRetention(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.endedRetention = d
	}
}

// Create returns the owner's active session, or starts one by restoring the owner's
// persisted conversation. token is the credential forwarded to the classifier.
func (m *Manager) Create(ctx context.Context, owner, token string) (*Session, bool) {
	m.mu.Lock()
	if id, ok := m.sessionByOwner[owner]; ok {
		if e, ok := m.sessions[id]; ok && e.sess.Status == StatusActive {
			e.sess.LastActivityAt = time.Now().UTC()
			e.router.SetToken(token)
			s := e.sess
			m.mu.Unlock()
			return &s, false
		}
	}
	m.mu.Unlock()

	logger := m.deps.Logger.With(zap.String("owner", owner))
	store := conversation.NewStore(conversation.Key(owner), m.deps.Persister, logger)
	restored := store.Restore(ctx)

	now := time.Now().UTC()
	sctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		sess: Session{
			ID:             uuid.NewString(),
			Owner:          owner,
			Status:         StatusActive,
			StartedAt:      now,
			LastActivityAt: now,
		},
		ctx:    sctx,
		cancel: cancel,
	}
	e.router = triage.New(triage.Config{
		Store:        store,
		Analyzer:     m.deps.Analyzer,
		Materializer: m.deps.Materializer,
		Token:        token,
		Metrics:      m.deps.Metrics,
		Logger:       logger.With(zap.String("session_id", e.sess.ID)),
	})

	m.mu.Lock()
	if id, ok := m.sessionByOwner[owner]; ok {
		// Lost a race with a concurrent Create for the same owner.
		if existing, ok := m.sessions[id]; ok && existing.sess.Status == StatusActive {
			s := existing.sess
			m.mu.Unlock()
			cancel()
			return &s, false
		}
	}
	m.sessions[e.sess.ID] = e
	m.sessionByOwner[owner] = e.sess.ID
	s := e.sess
	m.mu.Unlock()

	logger.Info("session created", zap.String("session_id", s.ID), zap.Int("restored_turns", restored))
	return &s, true
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s := e.sess
	return &s, nil
}

// Router returns the session's router and records activity.
func (m *Manager) Router(sessionID string) (*triage.Router, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if e.sess.Status != StatusActive {
		return nil, ErrEnded
	}
	e.sess.LastActivityAt = time.Now().UTC()
	return e.router, nil
}

// Scope derives a context that is cancelled when parent is done or the session ends.
func (m *Manager) Scope(parent context.Context, sessionID string) (context.Context, context.CancelFunc, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(e.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// Touch records activity so the janitor keeps the session alive.
func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if e.sess.Status != StatusActive {
		return ErrEnded
	}
	e.sess.LastActivityAt = time.Now().UTC()
	return nil
}

// End closes the session. A reply still pending is discarded; the persisted conversation
// is kept so the next session restores it.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	m.endLocked(e, time.Now().UTC())
	s := e.sess
	m.mu.Unlock()
	return &s, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.sess.Status == StatusActive {
			count++
		}
	}
	return count
}

// Shutdown ends every active session.
func (m *Manager) Shutdown() {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.sessions {
		if e.sess.Status == StatusActive {
			m.endLocked(e, now)
		}
	}
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, e := range m.sessions {
		if e.sess.Status != StatusActive {
			if now.Sub(e.sess.LastActivityAt) >= m.endedRetention {
				delete(m.sessions, id)
			}
			continue
		}
		if now.Sub(e.sess.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		// A reply still in flight counts as activity.
		if e.router.State() == triage.StateAwaitingResponse {
			continue
		}
		m.endLocked(e, now)
		s := e.sess
		expired = append(expired, &s)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, s := range expired {
		m.deps.Logger.Info("session expired", zap.String("session_id", s.ID), zap.String("owner", s.Owner))
	}
	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func (m *Manager) endLocked(e *entry, now time.Time) {
	if e.sess.Status == StatusEnded {
		return
	}
	e.sess.Status = StatusEnded
	e.sess.LastActivityAt = now
	e.cancel()
	if m.sessionByOwner[e.sess.Owner] == e.sess.ID {
		delete(m.sessionByOwner, e.sess.Owner)
	}
}
