package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/chat"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

type stubValidator map[string]int

func (v stubValidator) ValidateToken(_ context.Context, token string) (int, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return 0, errors.New("bad token")
}

type stubInbound struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (s *stubInbound) HandleInboundEvent(_ context.Context, _ int, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, string(raw))
	return s.err
}

func (s *stubInbound) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestServeSendsErrorFrameAndKeepsConnection(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	inbound := &stubInbound{err: chat.ErrRecipientNotFound}
	h := NewChatWebSocketHandler(hub, stubValidator{}, inbound, zerolog.Nop())

	client, conn := newTestClient(4)
	h.Serve(context.Background(), client)
	require.True(t, hub.IsOnline(4))

	conn.inbound <- []byte(`{"type":"message","receiver_id":99,"content":"hi"}`)
	ev := nextEvent(t, conn)
	assert.Equal(t, models.EventTypeError, ev.Type)
	assert.Equal(t, "recipient not found", ev.Error)
	assert.Equal(t, StateOpen, client.State())

	conn.inbound <- []byte(`garbage`)
	assert.Eventually(t, func() bool { return inbound.count() == 2 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline(4))
}

func TestServeUnregistersOnReadError(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewChatWebSocketHandler(hub, stubValidator{}, &stubInbound{}, zerolog.Nop())

	client, conn := newTestClient(4)
	h.Serve(context.Background(), client)
	require.True(t, hub.IsOnline(4))

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsOnline(4) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateClosed, client.State())
}

func TestReplacedConnectionCloseKeepsNewer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewChatWebSocketHandler(hub, stubValidator{}, &stubInbound{}, zerolog.Nop())

	old, oldConn := newTestClient(4)
	h.Serve(context.Background(), old)
	fresh, _ := newTestClient(4)
	h.Serve(context.Background(), fresh)
	t.Cleanup(func() { fresh.Close("done") })

	oldConn.Close()
	assert.Eventually(t, func() bool { return old.State() == StateClosed }, time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	got, ok := hub.Lookup(4)
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func newWSServer(t *testing.T, hub *Hub, inbound InboundHandler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewChatWebSocketHandler(hub, stubValidator{"good": 5}, inbound, zerolog.Nop())
	router := gin.New()
	router.GET("/ws", h.Handle)
	router.GET("/ws/:user_id", h.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleRejectsBadTokens(t *testing.T) {
	srv := newWSServer(t, NewHub(zerolog.Nop()), &stubInbound{})

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws?token=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws/6?token=good")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleUpgradesAndPushes(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := newWSServer(t, hub, &stubInbound{err: chat.ErrInvalidPayload})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/5"

	header := http.Header{}
	header.Set("Authorization", "Bearer good")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.IsOnline(5) }, time.Second, 10*time.Millisecond)

	msg := models.Message{ID: 1, SenderID: 2, ReceiverID: 5, Content: "hello"}
	require.True(t, hub.Push(5, models.ChatEvent{Type: models.EventTypeNewMessage, ConversationID: 1, Message: &msg}))

	var ev models.ChatEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventTypeNewMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hello", ev.Message.Content)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{`)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventTypeError, ev.Type)
	assert.Equal(t, "invalid payload", ev.Error)

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsOnline(5) }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleAcceptsLongestEscapedMessage(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zerolog.Nop())
	users := repositories.NewMemoryUserRepo()
	messages := repositories.NewMemoryMessageRepo()
	chats := repositories.NewMemoryChatRepo(messages)
	recipient, err := users.Create(ctx, models.NewUser{Username: "bob", Email: "bob@example.com"})
	require.NoError(t, err)
	service := chat.NewService(users, chats, messages, hub, zerolog.Nop())

	srv := newWSServer(t, hub, service)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/5?token=good"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.IsOnline(5) }, time.Second, 10*time.Millisecond)

	// ASCII-only JSON encoders escape every non-ASCII rune as \uXXXX
	content := strings.Repeat(`\u00e9`, chat.MaxContentLength)
	frame := fmt.Sprintf(`{"type":"message","receiver_id":%d,"content":"%s"}`, recipient.ID, content)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	require.Eventually(t, func() bool {
		stored, err := messages.ListBetween(ctx, 5, recipient.ID)
		return err == nil && len(stored) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stored, err := messages.ListBetween(ctx, 5, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", chat.MaxContentLength), stored[0].Content)
	assert.True(t, hub.IsOnline(5))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{`)))
	var ev models.ChatEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventTypeError, ev.Type)
}
