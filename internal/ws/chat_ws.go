package ws

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-backend/internal/chat"
	"chat-backend/internal/models"
	"chat-backend/internal/observability"
)

// TokenValidator resolves a bearer token to an active user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int, error)
}

// InboundHandler processes frames read from a user's connection.
type InboundHandler interface {
	HandleInboundEvent(ctx context.Context, senderID int, raw []byte) error
}

// ChatWebSocketHandler upgrades authenticated requests and runs the per-connection loops.
type ChatWebSocketHandler struct {
	hub      *Hub
	auth     TokenValidator
	inbound  InboundHandler
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, auth TokenValidator, inbound InboundHandler, logger zerolog.Logger) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		hub:     hub,
		auth:    auth,
		inbound: inbound,
		logger:  logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws and GET /ws/:user_id.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-backend/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.auth.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if raw := c.Param("user_id"); raw != "" {
		pathID, err := strconv.Atoi(raw)
		if err != nil || pathID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "token does not match user"})
			return
		}
	}
	span.SetAttributes(attribute.Int("chat.user_id", userID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Int("user_id", userID).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    c.GetHeader("X-Device-ID"),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   c.GetString(observability.RequestIDKey),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info, h.logger)

	// the request context ends when this handler returns
	connCtx := trace.ContextWithSpanContext(context.Background(), span.SpanContext())
	connCtx = observability.ContextWithRequestID(connCtx, info.RequestID)

	h.Serve(connCtx, client)
}

// Serve registers client and starts its pumps. It returns immediately.
func (h *ChatWebSocketHandler) Serve(ctx context.Context, client *Client) {
	info := client.Info()
	h.hub.Register(info.UserID, client)
	observability.IncWSActive()
	h.publish(ctx, "ws_connect", info, "")
	h.logger.Info().Str("conn_id", info.ConnID).Int("user_id", info.UserID).Msg("websocket connected")

	go client.WritePump()
	go h.readLoop(ctx, client)
}

func (h *ChatWebSocketHandler) readLoop(ctx context.Context, client *Client) {
	info := client.Info()
	err := client.ReadLoop(func(data []byte) {
		h.dispatch(ctx, client, data)
	})

	// a reason is already set when the server side closed the connection
	reason := client.CloseReason()
	if reason == "" {
		reason = err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			h.publish(ctx, "ws_error", info, reason)
		}
	}

	client.Close(reason)
	h.hub.Unregister(info.UserID, client)
	observability.DecWSActive()
	h.publish(ctx, "ws_disconnect", info, reason)
	h.logger.Info().Str("conn_id", info.ConnID).Int("user_id", info.UserID).Str("reason", reason).Msg("websocket disconnected")
}

func (h *ChatWebSocketHandler) dispatch(ctx context.Context, client *Client, data []byte) {
	err := h.inbound.HandleInboundEvent(ctx, client.UserID(), data)
	if err == nil {
		return
	}

	event := h.logger.Error()
	if chat.IsClientError(err) {
		event = h.logger.Warn()
	}
	event.Err(err).Int("user_id", client.UserID()).Msg("inbound event rejected")

	client.SendEvent(models.ChatEvent{Type: models.EventTypeError, Error: chat.Reason(err)})
}

func (h *ChatWebSocketHandler) publish(ctx context.Context, event string, info ConnInfo, reason string) {
	ev := observability.ConnEvent{
		Event:    event,
		ConnID:   info.ConnID,
		UserID:   info.UserID,
		DeviceID: info.DeviceID,
		IP:       info.IP,
		Reason:   reason,
	}
	if event != "ws_connect" {
		ev.DurationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	if err := observability.PublishConnEvent(ctx, ev, info.RequestID, info.TraceID); err != nil {
		h.logger.Debug().Err(err).Str("event", event).Msg("publish connection event failed")
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}
