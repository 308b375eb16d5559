// Package postgres implements the message store facade on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/storage"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) SaveMessage(ctx context.Context, m model.Message) error {
	const q = `
		INSERT INTO messages (id, sender_id, recipient_id, content, message_type, created_at, delivered_at)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		m.ID.String(), m.SenderID.String(), m.RecipientID.String(),
		m.Content, m.Kind, m.CreatedAt, m.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save message %s: %w", m.ID, err)
	}
	return nil
}

func (s *Store) Message(ctx context.Context, id uuid.UUID) (model.Message, error) {
	const q = `
		SELECT id::text, sender_id::text, recipient_id::text, content, message_type,
		       created_at, delivered_at, read_at
		FROM messages
		WHERE id = $1::uuid`

	var (
		m                   model.Message
		mID, sID, rID       string
		deliveredAt, readAt *time.Time
	)
	err := s.pool.QueryRow(ctx, q, id.String()).Scan(
		&mID, &sID, &rID, &m.Content, &m.Kind, &m.CreatedAt, &deliveredAt, &readAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("postgres: fetch message %s: %w", id, err)
	}

	if m.ID, err = uuid.Parse(mID); err != nil {
		return model.Message{}, fmt.Errorf("postgres: message %s: %w", id, err)
	}
	if m.SenderID, err = uuid.Parse(sID); err != nil {
		return model.Message{}, fmt.Errorf("postgres: message %s: %w", id, err)
	}
	if m.RecipientID, err = uuid.Parse(rID); err != nil {
		return model.Message{}, fmt.Errorf("postgres: message %s: %w", id, err)
	}
	m.DeliveredAt = deliveredAt
	m.ReadAt = readAt
	return m, nil
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `
		UPDATE messages SET delivered_at = $2
		WHERE id = $1::uuid AND delivered_at IS NULL`

	if _, err := s.pool.Exec(ctx, q, id.String(), at); err != nil {
		return fmt.Errorf("postgres: mark delivered %s: %w", id, err)
	}
	return nil
}

func (s *Store) MarkRead(ctx context.Context, id, readerID uuid.UUID, at time.Time) (bool, error) {
	const q = `
		UPDATE messages SET read_at = $3
		WHERE id = $1::uuid AND recipient_id = $2::uuid AND read_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, id.String(), readerID.String(), at)
	if err != nil {
		return false, fmt.Errorf("postgres: mark read %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) SenderOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT sender_id::text FROM messages WHERE id = $1::uuid`

	var raw string
	err := s.pool.QueryRow(ctx, q, id.String()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, storage.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("postgres: sender of %s: %w", id, err)
	}
	return uuid.Parse(raw)
}

func (s *Store) UnreadMessages(ctx context.Context, userID uuid.UUID) ([]model.Message, error) {
	const q = `
		SELECT id::text, sender_id::text, recipient_id::text, content, message_type,
		       created_at, delivered_at, read_at
		FROM messages
		WHERE recipient_id = $1::uuid AND read_at IS NULL
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, userID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: unread for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m                   model.Message
			mID, sID, rID       string
			deliveredAt, readAt *time.Time
		)
		if err := rows.Scan(&mID, &sID, &rID, &m.Content, &m.Kind, &m.CreatedAt, &deliveredAt, &readAt); err != nil {
			return nil, fmt.Errorf("postgres: unread for %s: %w", userID, err)
		}
		if m.ID, err = uuid.Parse(mID); err != nil {
			return nil, err
		}
		if m.SenderID, err = uuid.Parse(sID); err != nil {
			return nil, err
		}
		if m.RecipientID, err = uuid.Parse(rID); err != nil {
			return nil, err
		}
		m.DeliveredAt = deliveredAt
		m.ReadAt = readAt
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: unread for %s: %w", userID, err)
	}
	return out, nil
}

func (s *Store) SaveGroupMessage(ctx context.Context, m model.GroupMessage) error {
	const q = `
		INSERT INTO group_messages (id, group_id, sender_id, content, message_type, created_at)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q,
		m.ID.String(), m.GroupID.String(), m.SenderID.String(),
		m.Content, m.Kind, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save group message %s: %w", m.ID, err)
	}
	return nil
}

func (s *Store) GroupMessage(ctx context.Context, id uuid.UUID) (model.GroupMessage, error) {
	const q = `
		SELECT id::text, group_id::text, sender_id::text, content, message_type, created_at
		FROM group_messages
		WHERE id = $1::uuid`

	var (
		m             model.GroupMessage
		mID, gID, sID string
	)
	err := s.pool.QueryRow(ctx, q, id.String()).Scan(&mID, &gID, &sID, &m.Content, &m.Kind, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.GroupMessage{}, storage.ErrNotFound
	}
	if err != nil {
		return model.GroupMessage{}, fmt.Errorf("postgres: fetch group message %s: %w", id, err)
	}

	if m.ID, err = uuid.Parse(mID); err != nil {
		return model.GroupMessage{}, err
	}
	if m.GroupID, err = uuid.Parse(gID); err != nil {
		return model.GroupMessage{}, err
	}
	if m.SenderID, err = uuid.Parse(sID); err != nil {
		return model.GroupMessage{}, err
	}
	return m, nil
}

func (s *Store) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
		SELECT user_id::text FROM group_members
		WHERE group_id = $1::uuid
		ORDER BY joined_at`

	rows, err := s.pool.Query(ctx, q, groupID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: members of %s: %w", groupID, err)
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: members of %s: %w", groupID, err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: members of %s: %w", groupID, err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: members of %s: %w", groupID, err)
	}
	return members, nil
}

func (s *Store) MemberRole(ctx context.Context, groupID, userID uuid.UUID) (model.MemberRole, error) {
	const q = `
		SELECT role FROM group_members
		WHERE group_id = $1::uuid AND user_id = $2::uuid`

	var role model.MemberRole
	err := s.pool.QueryRow(ctx, q, groupID.String(), userID.String()).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: role of %s in %s: %w", userID, groupID, err)
	}
	return role, nil
}

func (s *Store) MarkGroupRead(ctx context.Context, messageID, userID uuid.UUID, at time.Time) error {
	const q = `
		INSERT INTO group_message_reads (message_id, user_id, read_at)
		VALUES ($1::uuid, $2::uuid, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q, messageID.String(), userID.String(), at); err != nil {
		return fmt.Errorf("postgres: mark group read %s: %w", messageID, err)
	}
	return nil
}

func (s *Store) Username(ctx context.Context, userID uuid.UUID) (string, error) {
	const q = `SELECT username FROM users WHERE id = $1::uuid`

	var username string
	err := s.pool.QueryRow(ctx, q, userID.String()).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: username of %s: %w", userID, err)
	}
	return username, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
