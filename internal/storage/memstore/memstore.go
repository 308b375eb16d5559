// Package memstore is an in-memory message store with the same contract as
// the PostgreSQL facade. It backs unit tests and database-less dev runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/storage"
)

type readKey struct {
	messageID uuid.UUID
	userID    uuid.UUID
}

type Store struct {
	mu        sync.Mutex
	messages  map[uuid.UUID]model.Message
	groupMsgs map[uuid.UUID]model.GroupMessage
	members   map[uuid.UUID][]model.GroupMember
	reads     map[readKey]time.Time
	usernames map[uuid.UUID]string
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		messages:  make(map[uuid.UUID]model.Message),
		groupMsgs: make(map[uuid.UUID]model.GroupMessage),
		members:   make(map[uuid.UUID][]model.GroupMember),
		reads:     make(map[readKey]time.Time),
		usernames: make(map[uuid.UUID]string),
	}
}

// AddUser registers a display name for lookups.
func (s *Store) AddUser(id uuid.UUID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usernames[id] = username
}

// AddMember appends a group membership; duplicates are ignored.
func (s *Store) AddMember(groupID, userID uuid.UUID, role model.MemberRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[groupID] {
		if m.UserID == userID {
			return
		}
	}
	s.members[groupID] = append(s.members[groupID], model.GroupMember{
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	})
}

func (s *Store) SaveMessage(_ context.Context, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = m
	return nil
}

func (s *Store) Message(_ context.Context, id uuid.UUID) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return model.Message{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.DeliveredAt != nil {
		return nil
	}
	m.DeliveredAt = &at
	s.messages[id] = m
	return nil
}

func (s *Store) MarkRead(_ context.Context, id, readerID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.RecipientID != readerID || m.ReadAt != nil {
		return false, nil
	}
	m.ReadAt = &at
	s.messages[id] = m
	return true, nil
}

func (s *Store) SenderOf(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return uuid.Nil, storage.ErrNotFound
	}
	return m.SenderID, nil
}

func (s *Store) UnreadMessages(_ context.Context, userID uuid.UUID) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, m := range s.messages {
		if m.RecipientID == userID && m.ReadAt == nil {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SaveGroupMessage(_ context.Context, m model.GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupMsgs[m.ID] = m
	return nil
}

func (s *Store) GroupMessage(_ context.Context, id uuid.UUID) (model.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.groupMsgs[id]
	if !ok {
		return model.GroupMessage{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) GroupMembers(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.members[groupID]
	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		out = append(out, m.UserID)
	}
	return out, nil
}

func (s *Store) MemberRole(_ context.Context, groupID, userID uuid.UUID) (model.MemberRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[groupID] {
		if m.UserID == userID {
			return m.Role, nil
		}
	}
	return "", storage.ErrNotFound
}

func (s *Store) MarkGroupRead(_ context.Context, messageID, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := readKey{messageID: messageID, userID: userID}
	if _, ok := s.reads[key]; !ok {
		s.reads[key] = at
	}
	return nil
}

func (s *Store) Username(_ context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.usernames[userID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return name, nil
}

func (s *Store) Ping(context.Context) error { return nil }
