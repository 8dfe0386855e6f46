package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-backend/internal/models"
)

// MemoryUserRepo keeps users in process memory. A single mutex serializes
// writes, so exactly one of two racing duplicate creates wins.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	nextID int
	users  map[int]models.User
	nowFn  func() time.Time
}

// NewMemoryUserRepo creates an empty MemoryUserRepo.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[int]models.User), nowFn: time.Now}
}

func (r *MemoryUserRepo) Create(_ context.Context, user models.NewUser) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return models.User{}, &DuplicateError{Field: "username"}
		}
		if existing.Email == user.Email {
			return models.User{}, &DuplicateError{Field: "email"}
		}
	}

	r.nextID++
	now := r.nowFn().UTC()
	created := models.User{
		ID:           r.nextID,
		Username:     user.Username,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		ProfileImage: user.ProfileImage,
		PasswordHash: user.PasswordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[created.ID] = created
	return created, nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id int) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepo) GetByUsername(_ context.Context, username string) (models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r *MemoryUserRepo) GetByIDs(_ context.Context, ids []int) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]models.User, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if user, ok := r.users[id]; ok {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUserRepo) List(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]models.User, 0, len(r.users))
	for _, user := range r.users {
		if user.IsActive {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUserRepo) Update(_ context.Context, id int, update models.UserUpdate) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	if update.Email != nil && *update.Email != user.Email {
		for _, existing := range r.users {
			if existing.ID != id && existing.Email == *update.Email {
				return models.User{}, &DuplicateError{Field: "email"}
			}
		}
		user.Email = *update.Email
	}
	if update.FirstName != nil {
		user.FirstName = update.FirstName
	}
	if update.LastName != nil {
		user.LastName = update.LastName
	}
	if update.ProfileImage != nil {
		user.ProfileImage = update.ProfileImage
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}
	user.UpdatedAt = r.nowFn().UTC()
	r.users[id] = user
	return user, nil
}

func (r *MemoryUserRepo) find(match func(models.User) bool) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if match(user) {
			return user, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

// MemoryMessageRepo is an in-process message ledger.
type MemoryMessageRepo struct {
	mu       sync.RWMutex
	messages []models.Message // index i holds id i+1
	lastTS   time.Time
	nowFn    func() time.Time
}

// NewMemoryMessageRepo creates an empty ledger.
func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{nowFn: time.Now}
}

// Append assigns the next id and a timestamp that never goes backwards.
func (r *MemoryMessageRepo) Append(_ context.Context, chatID int, senderID int, receiverID int, content string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.nowFn().UTC()
	if ts.Before(r.lastTS) {
		ts = r.lastTS
	}
	r.lastTS = ts

	msg := models.Message{
		ID:         len(r.messages) + 1,
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  ts,
	}
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *MemoryMessageRepo) ListBetween(_ context.Context, userA int, userB int) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := []models.Message{}
	for _, m := range r.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

func (r *MemoryMessageRepo) MarkRead(_ context.Context, messageIDs []int, readerID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marked := 0
	for _, id := range messageIDs {
		if id < 1 || id > len(r.messages) {
			continue
		}
		m := &r.messages[id-1]
		if m.ReceiverID == readerID && !m.IsRead {
			m.IsRead = true
			marked++
		}
	}
	return marked, nil
}

func (r *MemoryMessageRepo) get(id int) (models.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 1 || id > len(r.messages) {
		return models.Message{}, false
	}
	return r.messages[id-1], true
}

// MemoryChatRepo is an in-process conversation directory keyed by the canonical pair.
type MemoryChatRepo struct {
	mu       sync.Mutex
	nextID   int
	chats    map[int]*models.Chat
	byPair   map[models.PairKey]int
	messages *MemoryMessageRepo
	nowFn    func() time.Time
}

// NewMemoryChatRepo creates an empty directory. When messages is set, last
// messages are resolved from the ledger so their read state stays current.
func NewMemoryChatRepo(messages *MemoryMessageRepo) *MemoryChatRepo {
	return &MemoryChatRepo{
		chats:    make(map[int]*models.Chat),
		byPair:   make(map[models.PairKey]int),
		messages: messages,
		nowFn:    time.Now,
	}
}

func (r *MemoryChatRepo) GetOrCreate(_ context.Context, userA int, userB int) (models.Chat, error) {
	if userA == userB {
		return models.Chat{}, ErrSelfChat
	}
	key := models.NewPairKey(userA, userB)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPair[key]; ok {
		return r.snapshot(r.chats[id]), nil
	}

	r.nextID++
	now := r.nowFn().UTC()
	chat := &models.Chat{ID: r.nextID, User1ID: key.Low, User2ID: key.High, CreatedAt: now, UpdatedAt: now}
	r.chats[chat.ID] = chat
	r.byPair[key] = chat.ID
	return r.snapshot(chat), nil
}

func (r *MemoryChatRepo) Get(_ context.Context, chatID int) (models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	return r.snapshot(chat), nil
}

func (r *MemoryChatRepo) ListForUser(_ context.Context, userID int) ([]models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chats := []models.Chat{}
	for _, chat := range r.chats {
		if chat.HasParticipant(userID) {
			chats = append(chats, r.snapshot(chat))
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		return chats[i].ID > chats[j].ID
	})
	return chats, nil
}

func (r *MemoryChatRepo) RecordDelivery(_ context.Context, chatID int, msg models.Message, incomingTo int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok || !chat.HasParticipant(incomingTo) {
		return ErrChatNotFound
	}
	id := msg.ID
	last := msg
	chat.LastMessageID = &id
	chat.LastMessage = &last
	chat.UnreadCount++
	chat.UpdatedAt = r.nowFn().UTC()
	return nil
}

func (r *MemoryChatRepo) MarkRead(_ context.Context, chatID int, readerID int, count int) error {
	if count <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok || !chat.HasParticipant(readerID) {
		return ErrChatNotFound
	}
	chat.UnreadCount -= count
	if chat.UnreadCount < 0 {
		chat.UnreadCount = 0
	}
	return nil
}

func (r *MemoryChatRepo) snapshot(chat *models.Chat) models.Chat {
	out := *chat
	if chat.LastMessage != nil {
		last := *chat.LastMessage
		if r.messages != nil {
			if current, ok := r.messages.get(last.ID); ok {
				last = current
			}
		}
		out.LastMessage = &last
	}
	return out
}

var (
	_ UserRepository    = (*MemoryUserRepo)(nil)
	_ ChatRepository    = (*MemoryChatRepo)(nil)
	_ MessageRepository = (*MemoryMessageRepo)(nil)
	_ UserRepository    = (*UserRepo)(nil)
	_ ChatRepository    = (*ChatRepo)(nil)
	_ MessageRepository = (*MessageRepo)(nil)
)
