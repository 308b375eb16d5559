package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/webitel/im-messaging-service/internal/domain/model"
)

// breakerStore decorates a Store with a circuit breaker so a dead database
// fails fast instead of stalling every connection on pool timeouts. An open
// breaker surfaces as an ordinary store fault to the callers.
type breakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a shared circuit breaker.
func NewBreakerStore(next Store) Store {
	return &breakerStore{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "message-store",
			MaxRequests: 3,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
		}),
	}
}

func (s *breakerStore) exec(fn func() (any, error)) (any, error) {
	return s.cb.Execute(fn)
}

func (s *breakerStore) SaveMessage(ctx context.Context, m model.Message) error {
	_, err := s.exec(func() (any, error) { return nil, s.next.SaveMessage(ctx, m) })
	return err
}

func (s *breakerStore) Message(ctx context.Context, id uuid.UUID) (model.Message, error) {
	v, err := s.exec(func() (any, error) { return s.next.Message(ctx, id) })
	if err != nil {
		return model.Message{}, err
	}
	return v.(model.Message), nil
}

func (s *breakerStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.exec(func() (any, error) { return nil, s.next.MarkDelivered(ctx, id, at) })
	return err
}

func (s *breakerStore) MarkRead(ctx context.Context, id, readerID uuid.UUID, at time.Time) (bool, error) {
	v, err := s.exec(func() (any, error) { return s.next.MarkRead(ctx, id, readerID, at) })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *breakerStore) SenderOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	v, err := s.exec(func() (any, error) { return s.next.SenderOf(ctx, id) })
	if err != nil {
		return uuid.Nil, err
	}
	return v.(uuid.UUID), nil
}

func (s *breakerStore) UnreadMessages(ctx context.Context, userID uuid.UUID) ([]model.Message, error) {
	v, err := s.exec(func() (any, error) { return s.next.UnreadMessages(ctx, userID) })
	if err != nil {
		return nil, err
	}
	return v.([]model.Message), nil
}

func (s *breakerStore) SaveGroupMessage(ctx context.Context, m model.GroupMessage) error {
	_, err := s.exec(func() (any, error) { return nil, s.next.SaveGroupMessage(ctx, m) })
	return err
}

func (s *breakerStore) GroupMessage(ctx context.Context, id uuid.UUID) (model.GroupMessage, error) {
	v, err := s.exec(func() (any, error) { return s.next.GroupMessage(ctx, id) })
	if err != nil {
		return model.GroupMessage{}, err
	}
	return v.(model.GroupMessage), nil
}

func (s *breakerStore) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	v, err := s.exec(func() (any, error) { return s.next.GroupMembers(ctx, groupID) })
	if err != nil {
		return nil, err
	}
	return v.([]uuid.UUID), nil
}

func (s *breakerStore) MemberRole(ctx context.Context, groupID, userID uuid.UUID) (model.MemberRole, error) {
	v, err := s.exec(func() (any, error) { return s.next.MemberRole(ctx, groupID, userID) })
	if err != nil {
		return "", err
	}
	return v.(model.MemberRole), nil
}

func (s *breakerStore) MarkGroupRead(ctx context.Context, messageID, userID uuid.UUID, at time.Time) error {
	_, err := s.exec(func() (any, error) { return nil, s.next.MarkGroupRead(ctx, messageID, userID, at) })
	return err
}

func (s *breakerStore) Username(ctx context.Context, userID uuid.UUID) (string, error) {
	v, err := s.exec(func() (any, error) { return s.next.Username(ctx, userID) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *breakerStore) Ping(ctx context.Context) error {
	_, err := s.exec(func() (any, error) { return nil, s.next.Ping(ctx) })
	return err
}
