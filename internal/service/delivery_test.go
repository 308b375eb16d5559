package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/internal/adapter/relay"
	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/domain/wire"
	"github.com/webitel/im-messaging-service/internal/presence"
	"github.com/webitel/im-messaging-service/internal/storage"
	"github.com/webitel/im-messaging-service/internal/storage/memstore"
)

type captureSocket struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *captureSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *captureSocket) SetWriteDeadline(time.Time) error { return nil }
func (s *captureSocket) Close() error                     { return nil }

func (s *captureSocket) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

// decoded returns every written frame as a generic JSON object.
func (s *captureSocket) decoded(t *testing.T) []map[string]any {
	t.Helper()
	frames := s.sent()
	out := make([]map[string]any, len(frames))
	for i, f := range frames {
		require.NoError(t, json.Unmarshal(f, &out[i]))
	}
	return out
}

func waitFrames(t *testing.T, sock *captureSocket, n int) []map[string]any {
	t.Helper()
	require.Eventually(t, func() bool { return len(sock.sent()) >= n },
		2*time.Second, 5*time.Millisecond)
	return sock.decoded(t)
}

type fixture struct {
	reg    *registry.Registry
	store  *memstore.Store
	pres   *presence.MemoryStore
	engine *Engine
}

func testConfig() *config.Config {
	return &config.Config{
		Presence: config.Presence{OnlineTTL: 300 * time.Second, QueueTTL: time.Hour},
		Hub:      config.Hub{SendTimeout: time.Second},
		Delivery: config.Delivery{PersistTimeout: 5 * time.Second, FlushTimeout: time.Second},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg:   registry.New(),
		store: memstore.NewStore(),
		pres:  presence.NewMemoryStore(300*time.Second, time.Hour),
	}
	f.engine = NewEngine(f.reg, f.store, f.pres, relay.NoopPublisher{}, slog.Default(), testConfig())
	t.Cleanup(f.reg.Shutdown)
	return f
}

// connect attaches a session and marks the user online, the way a live
// handshake would.
func (f *fixture) connect(t *testing.T, username string) (*registry.Conn, *captureSocket) {
	t.Helper()
	sock := &captureSocket{}
	identity := model.Identity{UserID: uuid.New(), Username: username}
	conn, err := f.reg.Attach(identity, sock)
	require.NoError(t, err)
	require.NoError(t, f.pres.MarkOnline(context.Background(), identity.UserID))
	f.store.AddUser(identity.UserID, username)
	return conn, sock
}

func TestDirectSendOnline(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bob, bobSock := f.connect(t, "bob")

	err := f.engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: bob.UserID().String(),
		Content:     "hi",
	})
	require.NoError(t, err)

	got := waitFrames(t, bobSock, 1)
	assert.Equal(t, wire.TypeMessageNew, got[0]["type"])
	assert.Equal(t, "hi", got[0]["content"])
	assert.Equal(t, alice.UserID().String(), got[0]["sender_id"])
	assert.Equal(t, "alice", got[0]["sender_username"])
	assert.Equal(t, "text", got[0]["message_type"])

	acks := waitFrames(t, aliceSock, 1)
	assert.Equal(t, wire.TypeAck, acks[0]["type"])
	assert.Equal(t, true, acks[0]["delivered"])
	assert.Equal(t, false, acks[0]["queued"])

	// The live path persists in the background, with delivered_at pre-set.
	msgID := uuid.MustParse(got[0]["message_id"].(string))
	require.Eventually(t, func() bool {
		m, err := f.store.Message(context.Background(), msgID)
		return err == nil && m.DeliveredAt != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDirectSendOfflineQueues(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bobID := uuid.New()

	err := f.engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: bobID.String(),
		Content:     "hi",
	})
	require.NoError(t, err)

	acks := waitFrames(t, aliceSock, 1)
	assert.Equal(t, false, acks[0]["delivered"])
	assert.Equal(t, true, acks[0]["queued"])

	ptrs, err := f.pres.Drain(context.Background(), bobID)
	require.NoError(t, err)
	require.Len(t, ptrs, 1)
	assert.Equal(t, model.PointerDirect, ptrs[0].Kind)

	// Synchronous persist: the row is already there, not yet delivered.
	m, err := f.store.Message(context.Background(), ptrs[0].MessageID)
	require.NoError(t, err)
	assert.Equal(t, "hi", m.Content)
	assert.Nil(t, m.DeliveredAt)
}

func TestDirectSendStaleMarkerFallsThrough(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")

	// Online marker with no sockets anywhere: a client that crashed less
	// than a TTL ago. The send must still end up durable.
	bobID := uuid.New()
	require.NoError(t, f.pres.MarkOnline(context.Background(), bobID))

	err := f.engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: bobID.String(),
		Content:     "anyone home?",
	})
	require.NoError(t, err)

	acks := waitFrames(t, aliceSock, 1)
	assert.Equal(t, false, acks[0]["delivered"])
	assert.Equal(t, true, acks[0]["queued"])

	ptrs, err := f.pres.Drain(context.Background(), bobID)
	require.NoError(t, err)
	assert.Len(t, ptrs, 1)
}

func TestDirectSendValidation(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")

	err := f.engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: uuid.NewString(),
	})
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, wire.CodeEmptyContent, fault.Code)

	err = f.engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:    wire.TypeMessageSend,
		Content: "hi",
	})
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, wire.CodeMissingRecipient, fault.Code)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, aliceSock.sent(), "rejected sends produce no ack")
}

func TestDirectSendContentBound(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bobID := uuid.New()

	// Runes, not bytes: a multi-byte body at the limit must still pass.
	atLimit := strings.Repeat("ї", maxContentRunes)
	err := f.engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: bobID.String(),
		Content:     atLimit,
	})
	require.NoError(t, err)

	acks := waitFrames(t, aliceSock, 1)
	assert.Equal(t, true, acks[0]["queued"])

	err = f.engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: bobID.String(),
		Content:     strings.Repeat("a", maxContentRunes+1),
	})
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, wire.CodeEmptyContent, fault.Code)

	ptrs, err := f.pres.Drain(context.Background(), bobID)
	require.NoError(t, err)
	assert.Len(t, ptrs, 1, "only the in-bound message was queued")
}

// brokenStore fails direct-message inserts; everything else passes through.
type brokenStore struct {
	storage.Store
	saveErr error
}

func (s *brokenStore) SaveMessage(ctx context.Context, m model.Message) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.SaveMessage(ctx, m)
}

// brokenPresence fails queue pushes; everything else passes through.
type brokenPresence struct {
	presence.Store
	enqueueErr error
}

func (p *brokenPresence) Enqueue(ctx context.Context, userID uuid.UUID, ptr model.QueuedPointer) error {
	if p.enqueueErr != nil {
		return p.enqueueErr
	}
	return p.Store.Enqueue(ctx, userID, ptr)
}

func TestOfflineSendPersistFailure(t *testing.T) {
	f := newFixture(t)
	store := &brokenStore{Store: f.store, saveErr: errors.New("connection refused")}
	engine := NewEngine(f.reg, store, f.pres, relay.NoopPublisher{}, slog.Default(), testConfig())

	alice, aliceSock := f.connect(t, "alice")
	bobID := uuid.New()

	err := engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: bobID.String(),
		Content:     "hi",
	})
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, wire.CodeInternalError, fault.Code)

	// The sender learns the message went nowhere: neither delivered nor
	// queued.
	got := waitFrames(t, aliceSock, 1)
	require.Len(t, got, 1)
	assert.Equal(t, wire.TypeAck, got[0]["type"])
	assert.Equal(t, false, got[0]["delivered"])
	assert.Equal(t, false, got[0]["queued"])

	// No pointer may reference a row that never landed.
	ptrs, err := f.pres.Drain(context.Background(), bobID)
	require.NoError(t, err)
	assert.Empty(t, ptrs)
}

func TestOfflineSendEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	pres := &brokenPresence{Store: f.pres, enqueueErr: errors.New("connection refused")}
	engine := NewEngine(f.reg, f.store, pres, relay.NoopPublisher{}, slog.Default(), testConfig())

	alice, aliceSock := f.connect(t, "alice")
	bobID := uuid.New()

	err := engine.DirectSend(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeMessageSend,
		RecipientID: bobID.String(),
		Content:     "hi",
	})
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, wire.CodeInternalError, fault.Code)

	got := waitFrames(t, aliceSock, 1)
	require.Len(t, got, 1)
	assert.Equal(t, false, got[0]["delivered"])
	assert.Equal(t, false, got[0]["queued"])

	ptrs, err := f.pres.Drain(context.Background(), bobID)
	require.NoError(t, err)
	assert.Empty(t, ptrs)
}

func TestGroupSendPartitionsRecipients(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bob, bobSock := f.connect(t, "bob")
	carolID := uuid.New()

	groupID := uuid.New()
	f.store.AddMember(groupID, alice.UserID(), model.RoleCreator)
	f.store.AddMember(groupID, bob.UserID(), model.RoleMember)
	f.store.AddMember(groupID, carolID, model.RoleMember)

	err := f.engine.GroupSend(context.Background(), alice, wire.Envelope{
		Type:    wire.TypeGroupMessageSend,
		GroupID: groupID.String(),
		Content: "hello",
	})
	require.NoError(t, err)

	got := waitFrames(t, bobSock, 1)
	assert.Equal(t, wire.TypeGroupMessageNew, got[0]["type"])
	assert.Equal(t, groupID.String(), got[0]["group_id"])
	assert.Equal(t, "hello", got[0]["content"])

	acks := waitFrames(t, aliceSock, 1)
	assert.Equal(t, true, acks[0]["delivered"])
	assert.Equal(t, false, acks[0]["queued"])
	assert.Equal(t, float64(1), acks[0]["delivered_count"])

	ptrs, err := f.pres.Drain(context.Background(), carolID)
	require.NoError(t, err)
	require.Len(t, ptrs, 1)
	assert.Equal(t, model.PointerGroup, ptrs[0].Kind)
	require.NotNil(t, ptrs[0].GroupID)
	assert.Equal(t, groupID, *ptrs[0].GroupID)

	require.Eventually(t, func() bool {
		_, err := f.store.GroupMessage(context.Background(), ptrs[0].MessageID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGroupSendRejectsNonMembers(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, bobSock := f.connect(t, "bob")

	groupID := uuid.New()
	f.store.AddMember(groupID, bob.UserID(), model.RoleCreator)

	err := f.engine.GroupSend(context.Background(), alice, wire.Envelope{
		Type:    wire.TypeGroupMessageSend,
		GroupID: groupID.String(),
		Content: "let me in",
	})
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, wire.CodeNotMember, fault.Code)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, bobSock.sent())
}

func TestMarkReadEmitsReceiptOnce(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")

	msg := model.Message{
		ID:          uuid.New(),
		SenderID:    alice.UserID(),
		RecipientID: bob.UserID(),
		Content:     "hi",
		Kind:        model.KindText,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveMessage(context.Background(), msg))

	env := wire.Envelope{Type: wire.TypeMessageRead, MessageID: msg.ID.String()}
	require.NoError(t, f.engine.MarkRead(context.Background(), bob, env))

	got := waitFrames(t, aliceSock, 1)
	assert.Equal(t, wire.TypeReadReceipt, got[0]["type"])
	assert.Equal(t, msg.ID.String(), got[0]["message_id"])
	assert.Equal(t, bob.UserID().String(), got[0]["reader_id"])

	stored, err := f.store.Message(context.Background(), msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReadAt)

	// read_at is set-once; a replay changes nothing and emits nothing.
	require.NoError(t, f.engine.MarkRead(context.Background(), bob, env))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, aliceSock.sent(), 1)

	after, err := f.store.Message(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ReadAt, after.ReadAt)
}

func TestMarkReadIgnoresNonRecipients(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	eve, _ := f.connect(t, "eve")

	msg := model.Message{
		ID:          uuid.New(),
		SenderID:    alice.UserID(),
		RecipientID: bob.UserID(),
		Content:     "secret",
		Kind:        model.KindText,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveMessage(context.Background(), msg))

	env := wire.Envelope{Type: wire.TypeMessageRead, MessageID: msg.ID.String()}
	require.NoError(t, f.engine.MarkRead(context.Background(), eve, env))

	stored, err := f.store.Message(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ReadAt)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, aliceSock.sent())
}

func TestTypingIsEphemeral(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bob, bobSock := f.connect(t, "bob")

	err := f.engine.Typing(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeTyping,
		RecipientID: bob.UserID().String(),
	})
	require.NoError(t, err)

	got := waitFrames(t, bobSock, 1)
	assert.Equal(t, wire.TypeTyping, got[0]["type"])
	assert.Equal(t, alice.UserID().String(), got[0]["user_id"])
	assert.Equal(t, true, got[0]["is_typing"])

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, aliceSock.sent(), "typing has no ack")
}

func TestTypingToOfflineUserIsDropped(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bobID := uuid.New()

	err := f.engine.Typing(context.Background(), alice, wire.Envelope{
		Type:        wire.TypeTyping,
		RecipientID: bobID.String(),
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, aliceSock.sent())

	ptrs, err := f.pres.Drain(context.Background(), bobID)
	require.NoError(t, err)
	assert.Empty(t, ptrs, "typing never queues")
}

func TestGroupTypingSkipsSender(t *testing.T) {
	f := newFixture(t)
	alice, aliceSock := f.connect(t, "alice")
	bob, bobSock := f.connect(t, "bob")

	groupID := uuid.New()
	f.store.AddMember(groupID, alice.UserID(), model.RoleCreator)
	f.store.AddMember(groupID, bob.UserID(), model.RoleMember)

	stop := false
	err := f.engine.Typing(context.Background(), alice, wire.Envelope{
		Type:     wire.TypeTyping,
		GroupID:  groupID.String(),
		IsTyping: &stop,
	})
	require.NoError(t, err)

	got := waitFrames(t, bobSock, 1)
	assert.Equal(t, wire.TypeTyping, got[0]["type"])
	assert.Equal(t, groupID.String(), got[0]["group_id"])
	assert.Equal(t, false, got[0]["is_typing"])

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, aliceSock.sent())
}
