package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pdbot/internal/redis"

	"go.uber.org/zap"
)

const (
	DefaultWindow          = 10 * time.Minute
	DefaultPerSender       = 128
	DefaultCleanupInterval = time.Minute
	redisKeyPrefix         = "dedup:"
)

// Deduper reports whether a message id was already seen for a sender.
// Seen records the id as a side effect. Forget drops a recorded id so a
// redelivery of a message that failed to process is handled again.
type Deduper interface {
	Seen(ctx context.Context, sender, messageID string) (bool, error)
	Forget(ctx context.Context, sender, messageID string) error
}

type senderWindow struct {
	seen  map[string]time.Time
	order []string
}

// Memory keeps recent message ids per sender in process memory.
type Memory struct {
	mu        sync.Mutex
	window    time.Duration
	perSender int
	senders   map[string]*senderWindow
	now       func() time.Time
	logger    *zap.Logger
}

// NewMemory creates an in-memory deduper. Non-positive arguments take defaults.
func NewMemory(window time.Duration, perSender int, logger *zap.Logger) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	if perSender <= 0 {
		perSender = DefaultPerSender
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		window:    window,
		perSender: perSender,
		senders:   make(map[string]*senderWindow),
		now:       time.Now,
		logger:    logger.Named("dedup"),
	}
}

// Seen implements Deduper. An empty id is never considered a duplicate.
func (m *Memory) Seen(_ context.Context, sender, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.senders[sender]
	if !ok {
		w = &senderWindow{seen: make(map[string]time.Time)}
		m.senders[sender] = w
	}
	m.expire(w, now)
	if _, dup := w.seen[messageID]; dup {
		return true, nil
	}
	w.seen[messageID] = now
	w.order = append(w.order, messageID)
	for len(w.order) > m.perSender {
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
	return false, nil
}

// Forget implements Deduper.
func (m *Memory) Forget(_ context.Context, sender, messageID string) error {
	if messageID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.senders[sender]
	if !ok {
		return nil
	}
	if _, ok := w.seen[messageID]; !ok {
		return nil
	}
	delete(w.seen, messageID)
	for i, id := range w.order {
		if id == messageID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) expire(w *senderWindow, now time.Time) {
	cutoff := now.Add(-m.window)
	idx := 0
	for _, id := range w.order {
		if w.seen[id].After(cutoff) {
			break
		}
		delete(w.seen, id)
		idx++
	}
	if idx > 0 {
		w.order = w.order[idx:]
	}
}

// StartCleaner drops idle senders until ctx is done.
func (m *Memory) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go m.cleanupLoop(ctx, interval)
}

func (m *Memory) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("dropped idle senders", zap.Int("count", n))
			}
		}
	}
}

func (m *Memory) sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for sender, w := range m.senders {
		m.expire(w, now)
		if len(w.order) == 0 {
			delete(m.senders, sender)
			dropped++
		}
	}
	return dropped
}

// Redis shares the seen-set across instances with SETNX and a TTL.
type Redis struct {
	client *redis.Client
	window time.Duration
}

// NewRedis creates a redis backed deduper.
func NewRedis(client *redis.Client, window time.Duration) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, window: window}
}

// Seen implements Deduper.
func (r *Redis) Seen(ctx context.Context, sender, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	written, err := r.client.SetNX(ctx, redisKeyPrefix+sender+":"+messageID, r.window)
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !written, nil
}

// Forget implements Deduper.
func (r *Redis) Forget(ctx context.Context, sender, messageID string) error {
	if messageID == "" {
		return nil
	}
	if err := r.client.Del(ctx, redisKeyPrefix+sender+":"+messageID); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}
