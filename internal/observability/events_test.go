package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	routingKeys []string
	messages    []interface{}
	headers     []map[string]string
	err         error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, routingKey string, message interface{}, headers map[string]string) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	p.messages = append(p.messages, message)
	p.headers = append(p.headers, headers)
	return p.err
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), "k", "v", nil))
}

func TestPublishMessageSent(t *testing.T) {
	pub := &recordingPublisher{}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	err := PublishMessageSent(context.Background(), MessageSentPayload{ConversationID: 3, MessageID: 9, SenderID: 1, ReceiverID: 2}, "req-1")
	require.NoError(t, err)

	require.Len(t, pub.routingKeys, 1)
	assert.Equal(t, RoutingMessageSent, pub.routingKeys[0])
	envelope, ok := pub.messages[0].(EventEnvelope)
	require.True(t, ok)
	assert.Equal(t, "message_sent", envelope.EventName)
	assert.Equal(t, "req-1", pub.headers[0]["x-request-id"])
	_, hasTrace := pub.headers[0]["trace_id"]
	assert.False(t, hasTrace)
}

func TestPublishConnEventPropagatesError(t *testing.T) {
	pub := &recordingPublisher{err: assert.AnError}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	err := PublishConnEvent(context.Background(), ConnEvent{Event: "ws_connect", UserID: 1}, "", "trace")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, RoutingWSEvents, pub.routingKeys[0])
	assert.Equal(t, "trace", pub.headers[0]["trace_id"])
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", IPFromRequest(req))
}

func TestRequestIDRoundTripsThroughContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
