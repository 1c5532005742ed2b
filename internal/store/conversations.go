package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/convstore/internal/domain"
)

// InsertConversation writes a conversation as given. ID and timestamps are
// filled in when zero. Participants must already be a valid set.
func (s *Session) InsertConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	if len(c.Participants) == 0 {
		return domain.Conversation{}, domain.NewInvalidParticipantsError("participant set is empty")
	}
	if c.ID == "" {
		c.ID = s.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO conversations (id, participants, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, c.ID, c.Participants, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// CreateConversation validates the participant identifiers and creates a
// new conversation for them. Used by collaborators once the grouped model
// is live; supports any number of participants.
func (s *Session) CreateConversation(ctx context.Context, participantIDs ...string) (domain.Conversation, error) {
	participants, err := domain.NewParticipants(participantIDs...)
	if err != nil {
		return domain.Conversation{}, err
	}
	return s.InsertConversation(ctx, domain.Conversation{Participants: participants})
}

// GetConversation retrieves a conversation by ID.
// Returns a NOT_FOUND error if absent.
func (s *Session) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var c domain.Conversation
	err := s.QueryRowContext(ctx, `
		SELECT id, participants, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(&c.ID, &c.Participants, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, domain.NewNotFoundError("conversation", id)
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns all conversations ordered by created_at then id.
func (s *Session) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, participants, created_at, updated_at
		FROM conversations
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []domain.Conversation{}
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Participants, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

// CountConversations returns the number of conversations.
func (s *Session) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}
