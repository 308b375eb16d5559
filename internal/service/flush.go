package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/domain/wire"
	"github.com/webitel/im-messaging-service/internal/monitoring"
	"github.com/webitel/im-messaging-service/internal/presence"
	"github.com/webitel/im-messaging-service/internal/storage"
)

// Flusher drains a user's offline queue into their fresh session.
type Flusher interface {
	DeliverPending(ctx context.Context, conn *registry.Conn) error
}

type OfflineFlusher struct {
	store    storage.Store
	presence presence.Store
	names    Resolver
	logger   *slog.Logger

	sendTimeout time.Duration
}

func NewOfflineFlusher(
	store storage.Store,
	pres presence.Store,
	names Resolver,
	logger *slog.Logger,
	cfg *config.Config,
) *OfflineFlusher {
	return &OfflineFlusher{
		store:       store,
		presence:    pres,
		names:       names,
		logger:      logger,
		sendTimeout: cfg.Delivery.FlushTimeout,
	}
}

// DeliverPending resolves every queued pointer, sends one messages.offline
// batch and clears the queue. The queue is cleared only after the session
// accepted the batch; any earlier failure leaves it intact, so the next
// connect retries. Pointers whose row disappeared are skipped without losing
// the rest.
func (f *OfflineFlusher) DeliverPending(ctx context.Context, conn *registry.Conn) error {
	userID := conn.UserID()

	pointers, err := f.presence.Drain(ctx, userID)
	if err != nil {
		return fmt.Errorf("flush: drain: %w", err)
	}
	if len(pointers) == 0 {
		return nil
	}

	// Resolve bodies concurrently, keep queue order by index.
	resolved := make([]any, len(pointers))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, ptr := range pointers {
		g.Go(func() error {
			item, err := f.resolve(gCtx, ptr)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					f.logger.Warn("FLUSH_DANGLING_POINTER", "message_id", ptr.MessageID, "user_id", userID)
					return nil
				}
				return err
			}
			resolved[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("flush: resolve: %w", err)
	}

	messages := make([]any, 0, len(resolved))
	var deliveredDirect []uuid.UUID
	for i, item := range resolved {
		if item == nil {
			continue
		}
		messages = append(messages, item)
		if pointers[i].Kind == model.PointerDirect {
			deliveredDirect = append(deliveredDirect, pointers[i].MessageID)
		}
	}

	if len(messages) > 0 {
		batch := wire.OfflineBatch{Type: wire.TypeOfflineBatch, Messages: messages, Count: len(messages)}
		if !conn.Send(wire.MustEncode(batch), f.sendTimeout) {
			return errors.New("flush: session did not accept the batch")
		}
		monitoring.FramesOut.WithLabelValues(wire.TypeOfflineBatch).Inc()
		monitoring.FlushBatchSize.Observe(float64(len(messages)))

		now := time.Now().UTC()
		for _, id := range deliveredDirect {
			if err := f.store.MarkDelivered(ctx, id, now); err != nil {
				f.logger.Warn("FLUSH_MARK_DELIVERED_FAILED", "message_id", id, "err", err)
			}
		}
	}

	if err := f.presence.Clear(ctx, userID); err != nil {
		return fmt.Errorf("flush: clear queue: %w", err)
	}

	f.logger.Info("OFFLINE_FLUSH_DONE", "user_id", userID, "count", len(messages), "dangling", len(pointers)-len(messages))
	return nil
}

func (f *OfflineFlusher) resolve(ctx context.Context, ptr model.QueuedPointer) (any, error) {
	switch ptr.Kind {
	case model.PointerGroup:
		gm, err := f.store.GroupMessage(ctx, ptr.MessageID)
		if err != nil {
			return nil, err
		}
		return wire.GroupMessageNew{
			Type:        wire.TypeGroupMessageNew,
			MessageID:   gm.ID.String(),
			GroupID:     gm.GroupID.String(),
			SenderID:    gm.SenderID.String(),
			Content:     gm.Content,
			MessageType: gm.Kind,
			CreatedAt:   wire.Stamp(gm.CreatedAt),
		}, nil

	default:
		msg, err := f.store.Message(ctx, ptr.MessageID)
		if err != nil {
			return nil, err
		}
		username, err := f.names.Username(ctx, msg.SenderID)
		if err != nil {
			username = "" // name is decoration, the message still goes out
		}
		return wire.MessageNew{
			Type:           wire.TypeMessageNew,
			MessageID:      msg.ID.String(),
			SenderID:       msg.SenderID.String(),
			SenderUsername: username,
			Content:        msg.Content,
			MessageType:    msg.Kind,
			CreatedAt:      wire.Stamp(msg.CreatedAt),
		}, nil
	}
}
