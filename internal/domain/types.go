package domain

import "time"

// LegacyMessage is a message row in its point-to-point shape.
// ConversationID is empty until consolidation assigns one.
type LegacyMessage struct {
	ID             string
	Content        string
	SenderID       string
	ReceiverID     string
	Read           bool
	ConversationID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is a message row in its conversation-grouped shape.
type Message struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Conversation groups messages exchanged between a set of participants.
type Conversation struct {
	ID           string       `json:"id"`
	Participants Participants `json:"participants"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Post is the parent content item that tags attach to.
type Post struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is a label. Name is always stored in normalized form (see NormalizeTagName).
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TagAssociation links a Tag to a Post.
type TagAssociation struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	TagID     string    `json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
}
