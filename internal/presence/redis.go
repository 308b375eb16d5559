package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/webitel/im-messaging-service/internal/domain/model"
)

// RedisStore keeps presence in Redis so every process of the cluster shares
// one view of who is online and one queue per user.
type RedisStore struct {
	client    *redis.Client
	onlineTTL time.Duration
	queueTTL  time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, onlineTTL, queueTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		onlineTTL: onlineTTL,
		queueTTL:  queueTTL,
	}
}

func (s *RedisStore) MarkOnline(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Set(ctx, onlineKey(userID), "1", s.onlineTTL).Err(); err != nil {
		return fmt.Errorf("presence: mark online %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) MarkOffline(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, onlineKey(userID)).Err(); err != nil {
		return fmt.Errorf("presence: mark offline %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence: is online %s: %w", userID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Refresh(ctx context.Context, userID uuid.UUID) error {
	// SET with EX instead of EXPIRE: a heartbeat from a live socket must
	// resurrect a marker that already timed out.
	return s.MarkOnline(ctx, userID)
}

func (s *RedisStore) Partition(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, onlineKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("presence: partition: %w", err)
	}

	var online, offline []uuid.UUID
	for i, id := range userIDs {
		if cmds[i].Val() > 0 {
			online = append(online, id)
		} else {
			offline = append(offline, id)
		}
	}
	return online, offline, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, userID uuid.UUID, ptr model.QueuedPointer) error {
	data, err := json.Marshal(ptr)
	if err != nil {
		return fmt.Errorf("presence: encode pointer: %w", err)
	}

	key := queueKey(userID)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.Expire(ctx, key, s.queueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: enqueue for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Drain(ctx context.Context, userID uuid.UUID) ([]model.QueuedPointer, error) {
	raw, err := s.client.LRange(ctx, queueKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: drain %s: %w", userID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// LPUSH makes LRANGE newest-first; walk it backwards to hand out the
	// queue in arrival order. Entries that fail to decode are dropped, the
	// rest of the queue still flows.
	ptrs := make([]model.QueuedPointer, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var ptr model.QueuedPointer
		if err := json.Unmarshal([]byte(raw[i]), &ptr); err != nil {
			continue
		}
		ptrs = append(ptrs, ptr)
	}
	return ptrs, nil
}

func (s *RedisStore) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, queueKey(userID)).Err(); err != nil {
		return fmt.Errorf("presence: clear queue %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
