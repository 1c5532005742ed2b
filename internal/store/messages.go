package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/convstore/internal/domain"
)

// InsertLegacyMessage writes a message in the point-to-point shape.
// ID and timestamps are filled in when zero. Only valid while the messages
// table still has sender_id/receiver_id.
func (s *Session) InsertLegacyMessage(ctx context.Context, m domain.LegacyMessage) (domain.LegacyMessage, error) {
	if m.ID == "" {
		m.ID = s.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO messages
		(id, content, created_at, updated_at, is_read, sender_id, receiver_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		m.Content,
		m.CreatedAt,
		m.UpdatedAt,
		m.Read,
		m.SenderID,
		m.ReceiverID,
	)
	if err != nil {
		return domain.LegacyMessage{}, fmt.Errorf("insert legacy message: %w", err)
	}
	return m, nil
}

// InsertMessage writes a message into an existing conversation and bumps the
// conversation's updated_at. Only valid once the messages table is in its
// grouped shape.
func (s *Session) InsertMessage(ctx context.Context, conversationID, content string) (domain.Message, error) {
	now := s.Now()
	m := domain.Message{
		ID:             s.NewID(),
		Content:        content,
		ConversationID: conversationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO messages
		(id, content, created_at, updated_at, is_read, conversation_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.CreatedAt, m.UpdatedAt, m.Read, m.ConversationID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return domain.Message{}, domain.NewNotFoundError("conversation", conversationID)
		}
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := s.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, now, conversationID); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: touch conversation: %w", err)
	}
	return m, nil
}

// UnlinkedMessages returns every message whose conversation_id is NULL,
// ordered by created_at then id.
//
// Rows are fully read before returning so the session is free for writes.
func (s *Session) UnlinkedMessages(ctx context.Context) ([]domain.LegacyMessage, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, content, sender_id, receiver_id, is_read, created_at, updated_at
		FROM messages
		WHERE conversation_id IS NULL
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unlinked messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.LegacyMessage{}
	for rows.Next() {
		var m domain.LegacyMessage
		var sender, receiver sql.NullString
		if err := rows.Scan(&m.ID, &m.Content, &sender, &receiver, &m.Read, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan unlinked message: %w", err)
		}
		m.SenderID = sender.String
		m.ReceiverID = receiver.String
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unlinked messages: %w", err)
	}
	return messages, nil
}

// AssignConversation links every still-unlinked message exchanged between a
// and b, in either direction, to conversationID. Returns the number of rows
// updated.
func (s *Session) AssignConversation(ctx context.Context, conversationID, a, b string) (int64, error) {
	result, err := s.ExecContext(ctx, `
		UPDATE messages
		SET conversation_id = ?
		WHERE conversation_id IS NULL
		  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
	`, conversationID, a, b, b, a)
	if err != nil {
		return 0, fmt.Errorf("assign conversation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("assign conversation: rows affected: %w", err)
	}
	return n, nil
}

// CountUnlinked returns the number of messages with a NULL conversation_id.
func (s *Session) CountUnlinked(ctx context.Context) (int64, error) {
	var n int64
	err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unlinked messages: %w", err)
	}
	return n, nil
}

// CountUnpaired returns the number of messages missing a sender or receiver.
func (s *Session) CountUnpaired(ctx context.Context) (int64, error) {
	var n int64
	err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE sender_id IS NULL OR receiver_id IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unpaired messages: %w", err)
	}
	return n, nil
}

// SetLegacyPair fills sender_id/receiver_id for the messages of one
// conversation that do not have them yet. Returns the number of rows updated.
func (s *Session) SetLegacyPair(ctx context.Context, conversationID, sender, receiver string) (int64, error) {
	result, err := s.ExecContext(ctx, `
		UPDATE messages
		SET sender_id = ?, receiver_id = ?
		WHERE conversation_id = ?
		  AND (sender_id IS NULL OR receiver_id IS NULL)
	`, sender, receiver, conversationID)
	if err != nil {
		return 0, fmt.Errorf("set legacy pair: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set legacy pair: rows affected: %w", err)
	}
	return n, nil
}

// ConversationAssignments maps every message ID to its conversation ID.
// Unlinked messages map to "".
func (s *Session) ConversationAssignments(ctx context.Context) (map[string]string, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, conversation_id FROM messages ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id string
		var conv sql.NullString
		if err := rows.Scan(&id, &conv); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out[id] = conv.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

// ListMessages returns a conversation's messages, oldest first.
// Only valid once the messages table has conversation_id.
func (s *Session) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, content, is_read, conversation_id, created_at, updated_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Read, &m.ConversationID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ReadLegacyMessage retrieves one message in its point-to-point shape.
// Returns a NOT_FOUND error if absent.
func (s *Session) ReadLegacyMessage(ctx context.Context, id string) (domain.LegacyMessage, error) {
	var m domain.LegacyMessage
	var sender, receiver sql.NullString
	err := s.QueryRowContext(ctx, `
		SELECT id, content, sender_id, receiver_id, is_read, created_at, updated_at
		FROM messages
		WHERE id = ?
	`, id).Scan(&m.ID, &m.Content, &sender, &receiver, &m.Read, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LegacyMessage{}, domain.NewNotFoundError("message", id)
	}
	if err != nil {
		return domain.LegacyMessage{}, fmt.Errorf("read legacy message: %w", err)
	}
	m.SenderID = sender.String
	m.ReceiverID = receiver.String
	return m, nil
}

// MarkRead sets is_read on a message. Returns NOT_FOUND if absent.
func (s *Session) MarkRead(ctx context.Context, id string) error {
	result, err := s.ExecContext(ctx, `
		UPDATE messages SET is_read = ?, updated_at = ? WHERE id = ?
	`, true, s.Now(), id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark read: rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("message", id)
	}
	return nil
}

// ConversationForMessage returns the conversation a message belongs to.
// Returns NOT_FOUND if the message does not exist or is not linked yet.
func (s *Session) ConversationForMessage(ctx context.Context, messageID string) (domain.Conversation, error) {
	var c domain.Conversation
	err := s.QueryRowContext(ctx, `
		SELECT c.id, c.participants, c.created_at, c.updated_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.id = ?
	`, messageID).Scan(&c.ID, &c.Participants, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, domain.NewNotFoundError("conversation for message", messageID)
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("conversation for message: %w", err)
	}
	return c, nil
}
