package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/webitel/im-messaging-service/internal/storage"
)

// Resolver turns user ids into display names for frames rebuilt from storage.
// Live sends never need it; the sender's own session carries the name.
type Resolver interface {
	Username(ctx context.Context, userID uuid.UUID) (string, error)
}

type UsernameResolver struct {
	store storage.Store
	cache *expirable.LRU[uuid.UUID, string]
}

// NewUsernameResolver provides a thread-safe resolver with a short-lived LRU
// cache in front of the store, so hot senders resolve without a round trip.
func NewUsernameResolver(store storage.Store) *UsernameResolver {
	return &UsernameResolver{
		store: store,
		cache: expirable.NewLRU[uuid.UUID, string](10000, nil, 5*time.Minute),
	}
}

func (r *UsernameResolver) Username(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", nil
	}

	if name, ok := r.cache.Get(userID); ok {
		return name, nil
	}

	name, err := r.store.Username(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted sender; an empty name keeps the message moving.
			return "", nil
		}
		return "", err
	}

	r.cache.Add(userID, name)
	return name, nil
}
