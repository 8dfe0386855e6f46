package models

import "time"

// Chat represents a private conversation between exactly two users.
// User1ID is always the smaller id of the pair.
type Chat struct {
	ID            int       `db:"id" json:"id"`
	User1ID       int       `db:"user1_id" json:"user1_id"`
	User2ID       int       `db:"user2_id" json:"user2_id"`
	LastMessageID *int      `db:"last_message_id" json:"-"`
	LastMessage   *Message  `db:"-" json:"last_message"`
	UnreadCount   int       `db:"unread_count" json:"unread_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// PeerOf returns the other participant of the chat.
func (c Chat) PeerOf(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID is one of the two chat members.
func (c Chat) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// PairKey is the canonical, order independent key of a user pair.
type PairKey struct {
	Low  int
	High int
}

// NewPairKey orders the two ids so that (a, b) and (b, a) map to the same key.
func NewPairKey(a, b int) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// ChatSummary provides API-friendly view of a chat for a user.
type ChatSummary struct {
	ID          int         `json:"id"`
	User1ID     int         `json:"user1_id"`
	User2ID     int         `json:"user2_id"`
	OtherUser   UserProfile `json:"other_user"`
	LastMessage *Message    `json:"last_message"`
	UnreadCount int         `json:"unread_count"`
	Online      bool        `json:"online"`
}
