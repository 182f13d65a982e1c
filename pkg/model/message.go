package model

import "time"

type Role string

const (
	RoleCandidate Role = "candidate"
	RoleEmployer  Role = "employer"
	RoleAdmin     Role = "admin"
	RoleService   Role = "service"
)

// Identity is the minimal view of a user the messaging core reads. It is
// resolved once per connection and never changes for its lifetime.
type Identity struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

// Conversation pairs exactly two participants. The pair is unordered and
// unique; LastMessageID is a display pointer only.
type Conversation struct {
	ID            int64      `json:"id,string"`
	ParticipantA  string     `json:"participant_a"`
	ParticipantB  string     `json:"participant_b"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	LastMessageID int64      `json:"last_message_id,string,omitempty"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// PairKey returns the canonical key for an unordered pair of users. It is
// the uniqueness key for conversations.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

type Message struct {
	ID             int64      `json:"id,string"`
	ConversationID int64      `json:"conversation_id,string"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

func (m *Message) Deleted() bool { return m.DeletedAt != nil }

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ConversationID int64     `json:"conversation_id,string"`
	UserID         string    `json:"user_id"`
	OtherUserID    string    `json:"other_user_id"`
	LastUpdated    time.Time `json:"last_updated"`
	UnreadCount    int64     `json:"unread_count"`
}
