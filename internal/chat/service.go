package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
)

const (
	MaxContentLength = 4000
	lockStripes      = 64
)

// Pusher delivers events to connected users. Push reports whether the event
// was handed to a live connection.
type Pusher interface {
	Push(userID int, event any) bool
	IsOnline(userID int) bool
}

// Limiter throttles senders. Allow reports whether userID may send now.
type Limiter interface {
	Allow(ctx context.Context, userID int) (bool, error)
}

// Service accepts messages, records them and pushes them to recipients.
type Service struct {
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	pusher   Pusher
	limiter  Limiter
	logger   zerolog.Logger
	tracer   trace.Tracer

	// pair locks keep ledger order and push order identical for a pair
	locks [lockStripes]sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter enables per-sender rate limiting.
func WithLimiter(l Limiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

// NewService builds the coordinator. Pusher is usually the websocket hub.
func NewService(
	users repositories.UserRepository,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	pusher Pusher,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		users:    users,
		chats:    chats,
		messages: messages,
		pusher:   pusher,
		logger:   logger.With().Str("component", "chat").Logger(),
		tracer:   otel.Tracer("chat-backend/chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) pairLock(a, b int) *sync.Mutex {
	key := models.NewPairKey(a, b)
	h := uint64(key.Low)*1000003 ^ uint64(key.High)
	return &s.locks[h%lockStripes]
}

// SendMessage records a message from senderID to receiverID and pushes it to
// the recipient when connected. The message is durable once this returns nil.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID int, content string) (models.Message, error) {
	return s.send(ctx, senderID, receiverID, content, "http")
}

func (s *Service) send(ctx context.Context, senderID, receiverID int, content, source string) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.send_message", trace.WithAttributes(
		attribute.Int("chat.sender_id", senderID),
		attribute.Int("chat.receiver_id", receiverID),
		attribute.String("chat.source", source),
	))
	defer span.End()

	msg, delivered, chatID, err := s.deliver(ctx, senderID, receiverID, content)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Message{}, err
	}
	span.SetAttributes(attribute.Int("chat.message_id", msg.ID), attribute.Bool("chat.delivered", delivered))

	observability.IncMessageSent(source)
	if err := observability.PublishMessageSent(ctx, observability.MessageSentPayload{
		ConversationID: chatID,
		MessageID:      msg.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Delivered:      delivered,
		Timestamp:      msg.Timestamp,
	}, observability.RequestIDFromContext(ctx)); err != nil {
		s.logger.Warn().Err(err).Int("message_id", msg.ID).Msg("publish message_sent failed")
	}
	return msg, nil
}

func (s *Service) deliver(ctx context.Context, senderID, receiverID int, content string) (models.Message, bool, int, error) {
	if err := validateContent(content); err != nil {
		return models.Message{}, false, 0, err
	}
	if senderID == receiverID {
		return models.Message{}, false, 0, repositories.ErrSelfChat
	}
	if err := s.checkRate(ctx, senderID); err != nil {
		return models.Message{}, false, 0, err
	}

	recipient, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.Message{}, false, 0, ErrRecipientNotFound
		}
		return models.Message{}, false, 0, fmt.Errorf("lookup recipient: %w", err)
	}
	if !recipient.IsActive {
		return models.Message{}, false, 0, ErrRecipientNotFound
	}

	lock := s.pairLock(senderID, receiverID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.chats.GetOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return models.Message{}, false, 0, fmt.Errorf("get conversation: %w", err)
	}

	msg, err := s.messages.Append(ctx, conv.ID, senderID, receiverID, content)
	if err != nil {
		return models.Message{}, false, 0, fmt.Errorf("append message: %w", err)
	}

	if err := s.chats.RecordDelivery(ctx, conv.ID, msg, receiverID); err != nil {
		s.logger.Error().Err(err).Int("chat_id", conv.ID).Int("message_id", msg.ID).Msg("update conversation summary failed")
	}

	delivered := s.pusher.Push(receiverID, models.ChatEvent{
		Type:           models.EventTypeNewMessage,
		ConversationID: conv.ID,
		Message:        &msg,
	})
	if !delivered {
		s.logger.Debug().Int("receiver_id", receiverID).Int("message_id", msg.ID).Msg("recipient offline, message stored")
	}
	return msg, delivered, conv.ID, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" || utf8.RuneCountInString(content) > MaxContentLength {
		return ErrInvalidContent
	}
	return nil
}

func (s *Service) checkRate(ctx context.Context, userID int) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		// fail open
		s.logger.Warn().Err(err).Int("user_id", userID).Msg("rate limiter unavailable")
		return nil
	}
	if !allowed {
		s.logger.Warn().Str("event", "rate_limit_exceeded").Int("user_id", userID).Msg("rate limit exceeded")
		return ErrRateLimited
	}
	return nil
}

// GetHistory returns the conversation between readerID and peerID in ledger
// order and marks the messages addressed to readerID as read.
func (s *Service) GetHistory(ctx context.Context, readerID, peerID int) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.get_history", trace.WithAttributes(
		attribute.Int("chat.reader_id", readerID),
		attribute.Int("chat.peer_id", peerID),
	))
	defer span.End()

	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		return nil, err
	}

	lock := s.pairLock(readerID, peerID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.chats.GetOrCreate(ctx, readerID, peerID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListBetween(ctx, readerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var unread []int
	for _, m := range msgs {
		if m.ReceiverID == readerID && !m.IsRead {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) == 0 {
		return msgs, nil
	}

	n, err := s.messages.MarkRead(ctx, unread, readerID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if n > 0 {
		if err := s.chats.MarkRead(ctx, conv.ID, readerID, n); err != nil {
			s.logger.Error().Err(err).Int("chat_id", conv.ID).Msg("decrement unread count failed")
		}
	}
	for i := range msgs {
		if msgs[i].ReceiverID == readerID {
			msgs[i].IsRead = true
		}
	}
	span.SetAttributes(attribute.Int("chat.marked_read", n))
	return msgs, nil
}

// HandleInboundEvent processes one websocket frame from senderID. Unknown
// event types are ignored.
func (s *Service) HandleInboundEvent(ctx context.Context, senderID int, raw []byte) error {
	var ev models.InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch ev.Type {
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidPayload)
	case models.EventTypeMessage:
		if ev.ReceiverID <= 0 {
			return fmt.Errorf("%w: missing receiver_id", ErrInvalidPayload)
		}
		_, err := s.send(ctx, senderID, ev.ReceiverID, ev.Content, "ws")
		return err
	default:
		s.logger.Debug().Str("type", ev.Type).Int("user_id", senderID).Msg("ignoring unknown event type")
		return nil
	}
}

// StartChat returns the conversation between userID and otherID, creating it if needed.
func (s *Service) StartChat(ctx context.Context, userID, otherID int) (models.ChatSummary, error) {
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	if !other.IsActive {
		return models.ChatSummary{}, repositories.ErrUserNotFound
	}

	conv, err := s.chats.GetOrCreate(ctx, userID, otherID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	return s.summarize(conv, other), nil
}

// ListChats returns the caller's conversations, newest activity first.
func (s *Service) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	convs, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if len(convs) == 0 {
		return []models.ChatSummary{}, nil
	}

	peerIDs := make([]int, 0, len(convs))
	for _, c := range convs {
		peerIDs = append(peerIDs, c.PeerOf(userID))
	}
	peers, err := s.users.GetByIDs(ctx, peerIDs)
	if err != nil {
		return nil, fmt.Errorf("load chat peers: %w", err)
	}
	byID := make(map[int]models.User, len(peers))
	for _, p := range peers {
		byID[p.ID] = p
	}

	out := make([]models.ChatSummary, 0, len(convs))
	for _, c := range convs {
		peer, ok := byID[c.PeerOf(userID)]
		if !ok {
			peer = models.User{ID: c.PeerOf(userID)}
		}
		out = append(out, s.summarize(c, peer))
	}
	return out, nil
}

func (s *Service) summarize(conv models.Chat, other models.User) models.ChatSummary {
	return models.ChatSummary{
		ID:          conv.ID,
		User1ID:     conv.User1ID,
		User2ID:     conv.User2ID,
		OtherUser:   other.Profile(),
		LastMessage: conv.LastMessage,
		UnreadCount: conv.UnreadCount,
		Online:      s.pusher.IsOnline(other.ID),
	}
}
