package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

// MessageRepository is the append-only message ledger.
type MessageRepository interface {
	Append(ctx context.Context, chatID int, senderID int, receiverID int, content string) (models.Message, error)
	ListBetween(ctx context.Context, userA int, userB int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageIDs []int, readerID int) (int, error)
}

const messageColumns = `id, chat_id, sender_id, receiver_id, content, is_read, created_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores a message. The insert returning is the durability point.
func (r *MessageRepo) Append(ctx context.Context, chatID int, senderID int, receiverID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `INSERT INTO messages (chat_id, sender_id, receiver_id, content)
        VALUES ($1, $2, $3, $4) RETURNING `+messageColumns, chatID, senderID, receiverID, content)
	return msg, err
}

// ListBetween returns the conversation of two users in history order.
func (r *MessageRepo) ListBetween(ctx context.Context, userA int, userB int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`, userA, userB)
	return msgs, err
}

// MarkRead flags the reader's unread messages among messageIDs and reports how many flipped.
func (r *MessageRepo) MarkRead(ctx context.Context, messageIDs []int, readerID int) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, int64(id))
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE id = ANY($1) AND receiver_id=$2 AND is_read = FALSE`, pq.Array(ids), readerID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}
