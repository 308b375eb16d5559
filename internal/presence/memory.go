package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-messaging-service/internal/domain/model"
)

// MemoryStore is an in-process Store with the same TTL semantics as the
// Redis one. It backs single-node runs without Redis and the unit tests.
type MemoryStore struct {
	mu        sync.Mutex
	online    map[uuid.UUID]time.Time
	queues    map[uuid.UUID][]model.QueuedPointer
	queueExp  map[uuid.UUID]time.Time
	onlineTTL time.Duration
	queueTTL  time.Duration
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption adjusts a MemoryStore; used by tests to pin the clock.
type MemoryOption func(*MemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(onlineTTL, queueTTL time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		online:    make(map[uuid.UUID]time.Time),
		queues:    make(map[uuid.UUID][]model.QueuedPointer),
		queueExp:  make(map[uuid.UUID]time.Time),
		onlineTTL: onlineTTL,
		queueTTL:  queueTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) MarkOnline(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = s.now().Add(s.onlineTTL)
	return nil
}

func (s *MemoryStore) MarkOffline(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, userID)
	return nil
}

func (s *MemoryStore) IsOnline(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOnlineLocked(userID), nil
}

func (s *MemoryStore) Refresh(ctx context.Context, userID uuid.UUID) error {
	return s.MarkOnline(ctx, userID)
}

func (s *MemoryStore) Partition(_ context.Context, userIDs []uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var online, offline []uuid.UUID
	for _, id := range userIDs {
		if s.isOnlineLocked(id) {
			online = append(online, id)
		} else {
			offline = append(offline, id)
		}
	}
	return online, offline, nil
}

func (s *MemoryStore) Enqueue(_ context.Context, userID uuid.UUID, ptr model.QueuedPointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireQueueLocked(userID)
	s.queues[userID] = append(s.queues[userID], ptr)
	s.queueExp[userID] = s.now().Add(s.queueTTL)
	return nil
}

func (s *MemoryStore) Drain(_ context.Context, userID uuid.UUID) ([]model.QueuedPointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireQueueLocked(userID)

	queue := s.queues[userID]
	if len(queue) == 0 {
		return nil, nil
	}
	out := make([]model.QueuedPointer, len(queue))
	copy(out, queue)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, userID)
	delete(s.queueExp, userID)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) isOnlineLocked(userID uuid.UUID) bool {
	exp, ok := s.online[userID]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.online, userID)
		return false
	}
	return true
}

func (s *MemoryStore) expireQueueLocked(userID uuid.UUID) {
	if exp, ok := s.queueExp[userID]; ok && s.now().After(exp) {
		delete(s.queues, userID)
		delete(s.queueExp, userID)
	}
}
