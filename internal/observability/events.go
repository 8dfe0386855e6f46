package observability

import (
	"context"
	"time"
)

// Routing keys on the events exchange.
const (
	RoutingMessageSent = "chat_events.message_sent"
	RoutingWSEvents    = "ws_events.chats"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// MessageSentPayload describes a durably recorded message.
type MessageSentPayload struct {
	ConversationID int       `json:"conversation_id"`
	MessageID      int       `json:"message_id"`
	SenderID       int       `json:"sender_id"`
	ReceiverID     int       `json:"receiver_id"`
	Delivered      bool      `json:"delivered"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConnEvent describes a websocket lifecycle transition.
type ConnEvent struct {
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	UserID     int    `json:"user_id"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// PublishConnEvent counts the event and forwards it to the events exchange.
func PublishConnEvent(ctx context.Context, ev ConnEvent, requestID, traceID string) error {
	IncWSEvent(ev.Event)
	return PublishEvent(ctx, RoutingWSEvents, EventEnvelope{
		EventType: "ws_events",
		EventName: ev.Event,
		Payload:   ev,
	}, BuildHeaders(requestID, traceID))
}

// PublishMessageSent announces a stored message.
func PublishMessageSent(ctx context.Context, payload MessageSentPayload, requestID string) error {
	return PublishEvent(ctx, RoutingMessageSent, EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload:   payload,
	}, BuildHeaders(requestID, ""))
}
