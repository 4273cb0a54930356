package conversation

import (
	"context"
	"sync"
	"time"

	"pdbot/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// SessionStore persists one session per sender key. Get returns nil, nil
// when the sender has no live session.
type SessionStore interface {
	Get(ctx context.Context, key string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps sessions in process memory and expires idle ones.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	idle     time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewMemoryStore creates a store that drops sessions idle for longer than idle.
func NewMemoryStore(idle time.Duration, logger *zap.Logger) *MemoryStore {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		idle:     idle,
		now:      time.Now,
		logger:   logger.Named("sessions"),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	if m.expired(sess) {
		delete(m.sessions, key)
		return nil, nil
	}
	return cloneSession(sess), nil
}

func (m *MemoryStore) Save(_ context.Context, sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = m.now().UTC()
	}
	m.sessions[sess.SenderKey] = cloneSession(sess)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) expired(sess *models.Session) bool {
	return m.now().Sub(sess.UpdatedAt) > m.idle
}

// StartSweeper removes idle sessions periodically until ctx is done.
func (m *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go m.sweepLoop(ctx, interval)
}

func (m *MemoryStore) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *MemoryStore) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, sess := range m.sessions {
		if m.expired(sess) {
			delete(m.sessions, key)
			n++
		}
	}
	return n
}

func cloneSession(sess *models.Session) *models.Session {
	c := *sess
	if sess.Fields != nil {
		c.Fields = make(map[string]string, len(sess.Fields))
		for k, v := range sess.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}
