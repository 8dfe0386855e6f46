package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

// ChatRepository is the conversation directory: one chat per unordered user pair.
type ChatRepository interface {
	GetOrCreate(ctx context.Context, userA int, userB int) (models.Chat, error)
	Get(ctx context.Context, chatID int) (models.Chat, error)
	ListForUser(ctx context.Context, userID int) ([]models.Chat, error)
	RecordDelivery(ctx context.Context, chatID int, msg models.Message, incomingTo int) error
	MarkRead(ctx context.Context, chatID int, readerID int, count int) error
}

const chatColumns = `id, user1_id, user2_id, last_message_id, unread_count, created_at, updated_at`

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// GetOrCreate returns the chat for the pair, creating it on first contact.
// The UNIQUE(user1_id, user2_id) index makes concurrent first contacts converge:
// the losing insert does nothing and falls through to the lookup.
func (r *ChatRepo) GetOrCreate(ctx context.Context, userA int, userB int) (models.Chat, error) {
	if userA == userB {
		return models.Chat{}, ErrSelfChat
	}
	key := models.NewPairKey(userA, userB)

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2)
        ON CONFLICT (user1_id, user2_id) DO NOTHING RETURNING `+chatColumns, key.Low, key.High)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	if err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2`, key.Low, key.High); err != nil {
		return models.Chat{}, err
	}
	if err := r.attachLastMessages(ctx, []*models.Chat{&chat}); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// Get fetches a chat by id.
func (r *ChatRepo) Get(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	if err := r.attachLastMessages(ctx, []*models.Chat{&chat}); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// ListForUser returns the user's chats, most recently active first.
func (r *ChatRepo) ListForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats
        WHERE user1_id=$1 OR user2_id=$1
        ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*models.Chat, 0, len(chats))
	for i := range chats {
		ptrs = append(ptrs, &chats[i])
	}
	if err := r.attachLastMessages(ctx, ptrs); err != nil {
		return nil, err
	}
	return chats, nil
}

// RecordDelivery points the chat at its newest message and bumps the unread counter.
func (r *ChatRepo) RecordDelivery(ctx context.Context, chatID int, msg models.Message, incomingTo int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET last_message_id=$2, unread_count = unread_count + 1, updated_at = NOW()
        WHERE id=$1 AND (user1_id=$3 OR user2_id=$3)`, chatID, msg.ID, incomingTo)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrChatNotFound)
}

// MarkRead lowers the unread counter by count, never below zero.
func (r *ChatRepo) MarkRead(ctx context.Context, chatID int, readerID int, count int) error {
	if count <= 0 {
		return nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET unread_count = GREATEST(unread_count - $3, 0)
        WHERE id=$1 AND (user1_id=$2 OR user2_id=$2)`, chatID, readerID, count)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrChatNotFound)
}

func (r *ChatRepo) attachLastMessages(ctx context.Context, chats []*models.Chat) error {
	ids := make([]int64, 0, len(chats))
	for _, chat := range chats {
		if chat.LastMessageID != nil {
			ids = append(ids, int64(*chat.LastMessageID))
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return err
	}
	byID := make(map[int]models.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	for _, chat := range chats {
		if chat.LastMessageID == nil {
			continue
		}
		if m, ok := byID[*chat.LastMessageID]; ok {
			chat.LastMessage = &m
		}
	}
	return nil
}

func expectAffected(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
