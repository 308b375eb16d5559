package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/internal/adapter/relay"
	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/domain/wire"
	"github.com/webitel/im-messaging-service/internal/monitoring"
	"github.com/webitel/im-messaging-service/internal/presence"
	"github.com/webitel/im-messaging-service/internal/storage"
)

// maxContentRunes bounds a single message body. Protocol constant, not
// configuration.
const maxContentRunes = 10000

// Messenger is the primary interface for transport handlers: one method per
// client command that carries business meaning.
type Messenger interface {
	DirectSend(ctx context.Context, conn *registry.Conn, env wire.Envelope) error
	GroupSend(ctx context.Context, conn *registry.Conn, env wire.Envelope) error
	MarkRead(ctx context.Context, conn *registry.Conn, env wire.Envelope) error
	Typing(ctx context.Context, conn *registry.Conn, env wire.Envelope) error
}

// Engine routes messages between live sockets, the offline queue and the
// store. One instance serves every connection.
type Engine struct {
	reg      *registry.Registry
	store    storage.Store
	presence presence.Store
	relay    relay.Publisher
	logger   *slog.Logger

	sendTimeout    time.Duration
	persistTimeout time.Duration
}

func NewEngine(
	reg *registry.Registry,
	store storage.Store,
	pres presence.Store,
	relayPub relay.Publisher,
	logger *slog.Logger,
	cfg *config.Config,
) *Engine {
	return &Engine{
		reg:            reg,
		store:          store,
		presence:       pres,
		relay:          relayPub,
		logger:         logger,
		sendTimeout:    cfg.Hub.SendTimeout,
		persistTimeout: cfg.Delivery.PersistTimeout,
	}
}

// DirectSend handles message.send. The recipient's presence marker picks the
// path: live fan-out with asynchronous persistence, or synchronous
// persistence plus a queue pointer. A positive marker with zero accepting
// sockets falls through to the offline path so the message survives.
func (e *Engine) DirectSend(ctx context.Context, conn *registry.Conn, env wire.Envelope) error {
	if err := validateContent(env.Content); err != nil {
		return err
	}
	recipientID, err := uuid.Parse(env.RecipientID)
	if err != nil {
		return newFault(wire.CodeMissingRecipient, "recipient_id is required")
	}

	kind := env.MessageType
	if kind == "" {
		kind = model.KindText
	}
	msg := model.Message{
		ID:          uuid.New(),
		SenderID:    conn.UserID(),
		RecipientID: recipientID,
		Content:     env.Content,
		Kind:        kind,
		CreatedAt:   time.Now().UTC(),
	}

	frame := wire.MustEncode(wire.MessageNew{
		Type:           wire.TypeMessageNew,
		MessageID:      msg.ID.String(),
		SenderID:       msg.SenderID.String(),
		SenderUsername: conn.Username(),
		Content:        msg.Content,
		MessageType:    msg.Kind,
		CreatedAt:      wire.Stamp(msg.CreatedAt),
	})

	online, err := e.presence.IsOnline(ctx, recipientID)
	if err != nil {
		e.logger.Warn("PRESENCE_LOOKUP_FAILED", "user_id", recipientID, "err", err)
		online = false
	}

	if online {
		if accepted := e.reg.Broadcast(recipientID, frame); accepted > 0 {
			monitoring.FramesOut.WithLabelValues(wire.TypeMessageNew).Add(float64(accepted))

			delivered := msg
			delivered.DeliveredAt = &delivered.CreatedAt
			e.persistAsync("direct", func(ctx context.Context) error {
				return e.store.SaveMessage(ctx, delivered)
			})

			monitoring.DeliveryOutcomes.WithLabelValues("direct", "delivered").Inc()
			e.push(conn, wire.TypeAck, wire.NewAck(msg.ID.String(), true, false, msg.CreatedAt))
			return nil
		}
	}

	// Offline path. The row must exist before the pointer does, so this
	// persist is synchronous.
	if err := e.store.SaveMessage(ctx, msg); err != nil {
		e.logger.Error("OFFLINE_PERSIST_FAILED", "message_id", msg.ID, "err", err)
		monitoring.PersistFailures.WithLabelValues("direct").Inc()
		monitoring.DeliveryOutcomes.WithLabelValues("direct", "failed").Inc()
		e.push(conn, wire.TypeAck, wire.NewAck(msg.ID.String(), false, false, msg.CreatedAt))
		return newFault(wire.CodeInternalError, "Failed to store message")
	}

	ptr := model.QueuedPointer{MessageID: msg.ID, Kind: model.PointerDirect}
	if err := e.presence.Enqueue(ctx, recipientID, ptr); err != nil {
		e.logger.Error("OFFLINE_ENQUEUE_FAILED", "message_id", msg.ID, "err", err)
		monitoring.DeliveryOutcomes.WithLabelValues("direct", "failed").Inc()
		e.push(conn, wire.TypeAck, wire.NewAck(msg.ID.String(), false, false, msg.CreatedAt))
		return newFault(wire.CodeInternalError, "Failed to queue message")
	}

	// The recipient may be live on a peer node; the queue already guarantees
	// durability either way.
	e.relayOut(ctx, recipientID, frame)

	monitoring.DeliveryOutcomes.WithLabelValues("direct", "queued").Inc()
	e.push(conn, wire.TypeAck, wire.NewAck(msg.ID.String(), false, true, msg.CreatedAt))
	return nil
}

// GroupSend handles message.group.send: membership gate, one presence
// partition for all members, live fan-out to the online part, queue pointers
// for the rest.
func (e *Engine) GroupSend(ctx context.Context, conn *registry.Conn, env wire.Envelope) error {
	if err := validateContent(env.Content); err != nil {
		return err
	}
	groupID, err := uuid.Parse(env.GroupID)
	if err != nil {
		return newFault(wire.CodeMissingGroup, "group_id is required")
	}

	members, err := e.store.GroupMembers(ctx, groupID)
	if err != nil {
		e.logger.Error("GROUP_LOOKUP_FAILED", "group_id", groupID, "err", err)
		return newFault(wire.CodeInternalError, "Failed to resolve group")
	}

	sender := conn.UserID()
	targets := make([]uuid.UUID, 0, len(members))
	isMember := false
	for _, m := range members {
		if m == sender {
			isMember = true
			continue
		}
		targets = append(targets, m)
	}
	if !isMember {
		return newFault(wire.CodeNotMember, "You are not a member of this group")
	}

	kind := env.MessageType
	if kind == "" {
		kind = model.KindText
	}
	msg := model.GroupMessage{
		ID:        uuid.New(),
		GroupID:   groupID,
		SenderID:  sender,
		Content:   env.Content,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}

	frame := wire.MustEncode(wire.GroupMessageNew{
		Type:        wire.TypeGroupMessageNew,
		MessageID:   msg.ID.String(),
		GroupID:     msg.GroupID.String(),
		SenderID:    msg.SenderID.String(),
		Content:     msg.Content,
		MessageType: msg.Kind,
		CreatedAt:   wire.Stamp(msg.CreatedAt),
	})

	online, offline, err := e.presence.Partition(ctx, targets)
	if err != nil {
		e.logger.Warn("PRESENCE_PARTITION_FAILED", "group_id", groupID, "err", err)
		online, offline = nil, targets
	}

	deliveredCount := 0
	queueTargets := offline
	for _, m := range online {
		if accepted := e.reg.Broadcast(m, frame); accepted > 0 {
			deliveredCount++
			monitoring.FramesOut.WithLabelValues(wire.TypeGroupMessageNew).Add(float64(accepted))
			continue
		}
		queueTargets = append(queueTargets, m)
	}

	ptr := model.QueuedPointer{MessageID: msg.ID, Kind: model.PointerGroup, GroupID: &groupID}
	for _, m := range queueTargets {
		if err := e.presence.Enqueue(ctx, m, ptr); err != nil {
			e.logger.Error("OFFLINE_ENQUEUE_FAILED", "message_id", msg.ID, "user_id", m, "err", err)
		}
		e.relayOut(ctx, m, frame)
	}

	e.persistAsync("group", func(ctx context.Context) error {
		return e.store.SaveGroupMessage(ctx, msg)
	})

	outcome := "queued"
	if deliveredCount > 0 {
		outcome = "delivered"
	}
	monitoring.DeliveryOutcomes.WithLabelValues("group", outcome).Inc()
	e.push(conn, wire.TypeAck, wire.NewGroupAck(msg.ID.String(), deliveredCount, msg.CreatedAt))
	return nil
}

// MarkRead handles message.read. Direct messages flip read_at exactly once
// and notify the sender; group messages keep an idempotent per-member read
// record and notify nobody.
func (e *Engine) MarkRead(ctx context.Context, conn *registry.Conn, env wire.Envelope) error {
	messageID, err := uuid.Parse(env.MessageID)
	if err != nil {
		return newFault(wire.CodeMissingMessageID, "message_id is required")
	}

	readAt := time.Now().UTC()
	updated, err := e.store.MarkRead(ctx, messageID, conn.UserID(), readAt)
	if err != nil {
		e.logger.Error("MARK_READ_FAILED", "message_id", messageID, "err", err)
		return newFault(wire.CodeInternalError, "Failed to mark message as read")
	}

	if updated {
		senderID, err := e.store.SenderOf(ctx, messageID)
		if err != nil {
			e.logger.Warn("RECEIPT_SENDER_LOOKUP_FAILED", "message_id", messageID, "err", err)
			return nil
		}
		frame := wire.MustEncode(wire.ReadReceipt{
			Type:      wire.TypeReadReceipt,
			MessageID: messageID.String(),
			ReaderID:  conn.UserID().String(),
			ReadAt:    wire.Stamp(readAt),
		})
		if accepted := e.reg.Broadcast(senderID, frame); accepted > 0 {
			monitoring.FramesOut.WithLabelValues(wire.TypeReadReceipt).Add(float64(accepted))
		} else {
			e.relayOut(ctx, senderID, frame)
		}
		return nil
	}

	// No direct-message transition: the row is already read, addressed to
	// someone else, or the id names a group message.
	if _, err := e.store.Message(ctx, messageID); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("MESSAGE_LOOKUP_FAILED", "message_id", messageID, "err", err)
		return nil
	}

	gm, err := e.store.GroupMessage(ctx, messageID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("GROUP_MESSAGE_LOOKUP_FAILED", "message_id", messageID, "err", err)
		}
		return nil
	}
	if _, err := e.store.MemberRole(ctx, gm.GroupID, conn.UserID()); err != nil {
		return nil // non-members leave no trace
	}
	if err := e.store.MarkGroupRead(ctx, messageID, conn.UserID(), readAt); err != nil {
		e.logger.Warn("GROUP_READ_RECORD_FAILED", "message_id", messageID, "err", err)
	}
	return nil
}

// Typing handles typing. Pure relay: nothing persists, nothing queues, no
// ack. Malformed or unauthorized targets drop the frame silently.
func (e *Engine) Typing(ctx context.Context, conn *registry.Conn, env wire.Envelope) error {
	ev := wire.TypingEvent{
		Type:     wire.TypeTyping,
		UserID:   conn.UserID().String(),
		IsTyping: env.Typing(),
	}

	switch {
	case env.RecipientID != "":
		recipientID, err := uuid.Parse(env.RecipientID)
		if err != nil {
			return nil
		}
		ev.RecipientID = recipientID.String()
		frame := wire.MustEncode(ev)
		if accepted := e.reg.Broadcast(recipientID, frame); accepted > 0 {
			monitoring.FramesOut.WithLabelValues(wire.TypeTyping).Add(float64(accepted))
		} else {
			e.relayOut(ctx, recipientID, frame)
		}

	case env.GroupID != "":
		groupID, err := uuid.Parse(env.GroupID)
		if err != nil {
			return nil
		}
		members, err := e.store.GroupMembers(ctx, groupID)
		if err != nil {
			e.logger.Warn("GROUP_LOOKUP_FAILED", "group_id", groupID, "err", err)
			return nil
		}
		sender := conn.UserID()
		if !slices.Contains(members, sender) {
			return nil
		}
		ev.GroupID = groupID.String()
		frame := wire.MustEncode(ev)
		for _, m := range members {
			if m == sender {
				continue
			}
			if accepted := e.reg.Broadcast(m, frame); accepted > 0 {
				monitoring.FramesOut.WithLabelValues(wire.TypeTyping).Add(float64(accepted))
			} else {
				e.relayOut(ctx, m, frame)
			}
		}
	}
	return nil
}

// push writes a frame back to the calling session.
func (e *Engine) push(conn *registry.Conn, frameType string, frame any) {
	if conn.Send(wire.MustEncode(frame), e.sendTimeout) {
		monitoring.FramesOut.WithLabelValues(frameType).Inc()
	} else {
		monitoring.DroppedFrames.Inc()
	}
}

// persistAsync runs a store write detached from the request. A closing
// connection must not cancel an accepted message.
func (e *Engine) persistAsync(kind string, save func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
		defer cancel()

		if err := save(ctx); err != nil {
			e.logger.Error("ASYNC_PERSIST_FAILED", "kind", kind, "err", err)
			monitoring.PersistFailures.WithLabelValues(kind).Inc()
		}
	}()
}

func (e *Engine) relayOut(ctx context.Context, userID uuid.UUID, frame []byte) {
	if err := e.relay.PublishFrame(ctx, userID, frame); err != nil {
		e.logger.Warn("RELAY_PUBLISH_FAILED", "user_id", userID, "err", err)
	}
}

func validateContent(content string) error {
	if content == "" {
		return newFault(wire.CodeEmptyContent, "Message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return newFault(wire.CodeEmptyContent, "Message content exceeds 10000 characters")
	}
	return nil
}
