package models

import "time"

// Message represents a direct message. Only IsRead changes after creation.
type Message struct {
	ID         int       `db:"id" json:"id"`
	ChatID     int       `db:"chat_id" json:"-"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID int       `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	Timestamp  time.Time `db:"created_at" json:"timestamp"`
	IsRead     bool      `db:"is_read" json:"is_read"`
}

// Event types exchanged over websockets.
const (
	EventTypeMessage    = "message"
	EventTypeNewMessage = "new_message"
	EventTypeError      = "error"
)

// InboundEvent is a frame received from a client.
type InboundEvent struct {
	Type       string `json:"type"`
	ReceiverID int    `json:"receiver_id"`
	Content    string `json:"content"`
}

// ChatEvent is pushed to a recipient's websocket.
type ChatEvent struct {
	Type           string   `json:"type"`
	ConversationID int      `json:"conversation_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
	Error          string   `json:"error,omitempty"`
}
