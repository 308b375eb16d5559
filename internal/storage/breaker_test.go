package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/storage"
	"github.com/webitel/im-messaging-service/internal/storage/memstore"
)

// flaky wraps a real store and fails lookups on demand.
type flaky struct {
	storage.Store
	fail error
}

func (f *flaky) Message(ctx context.Context, id uuid.UUID) (model.Message, error) {
	if f.fail != nil {
		return model.Message{}, f.fail
	}
	return f.Store.Message(ctx, id)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flaky{Store: memstore.NewStore(), fail: errors.New("connection refused")}
	store := storage.NewBreakerStore(inner)

	for i := 0; i < 5; i++ {
		_, err := store.Message(context.Background(), uuid.New())
		require.Error(t, err)
		require.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, err := store.Message(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	inner := &flaky{Store: memstore.NewStore()}
	store := storage.NewBreakerStore(inner)

	for i := 0; i < 20; i++ {
		_, err := store.Message(context.Background(), uuid.New())
		require.ErrorIs(t, err, storage.ErrNotFound)
	}

	// Misses are business outcomes, not faults: the circuit stays closed.
	_, err := store.Message(context.Background(), uuid.New())
	assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
}
