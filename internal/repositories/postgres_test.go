package repositories

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/db"
	"chat-backend/internal/models"
)

func TestTranslateUniqueViolation(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name      string
		err       error
		wantField string
		want      error
	}{
		{
			name:      "username",
			err:       &pq.Error{Code: "23505", Constraint: "users_username_key"},
			wantField: "username",
		},
		{
			name:      "email",
			err:       &pq.Error{Code: "23505", Constraint: "users_email_key"},
			wantField: "email",
		},
		{
			name:      "other constraint",
			err:       &pq.Error{Code: "23505", Constraint: "users_pkey"},
			wantField: "users_pkey",
		},
		{
			name: "not a unique violation",
			err:  &pq.Error{Code: "23503", Constraint: "users_username_key"},
		},
		{
			name: "not a postgres error",
			err:  other,
			want: other,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateUniqueViolation(tt.err)
			if tt.wantField == "" {
				assert.NotErrorIs(t, got, ErrDuplicate)
				if tt.want != nil {
					assert.Same(t, tt.want, got)
				}
				return
			}
			var dup *DuplicateError
			require.ErrorAs(t, got, &dup)
			assert.Equal(t, tt.wantField, dup.Field)
			assert.ErrorIs(t, got, ErrDuplicate)
		})
	}
}

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	database, err := db.Connect(context.Background(), dsn, zerolog.Nop())
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createTestUser(t *testing.T, repo *UserRepo) models.User {
	t.Helper()
	name := "test-" + uuid.NewString()
	user, err := repo.Create(context.Background(), models.NewUser{Username: name, Email: name + "@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	return user
}

func TestUserRepoDuplicateUsername(t *testing.T) {
	repo := NewUserRepo(setupTestDB(t))
	existing := createTestUser(t, repo)

	_, err := repo.Create(context.Background(), models.NewUser{
		Username:     existing.Username,
		Email:        "test-" + uuid.NewString() + "@example.com",
		PasswordHash: "x",
	})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "username", dup.Field)
}

func TestUserRepoRacingCreates(t *testing.T) {
	repo := NewUserRepo(setupTestDB(t))
	name := "test-" + uuid.NewString()

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Create(context.Background(), models.NewUser{Username: name, Email: name + "@example.com", PasswordHash: "x"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicate)
	}
	assert.Equal(t, 1, succeeded)
}

func TestChatRepoGetOrCreateConcurrent(t *testing.T) {
	database := setupTestDB(t)
	users := NewUserRepo(database)
	chats := NewChatRepo(database)
	a := createTestUser(t, users)
	b := createTestUser(t, users)

	const callers = 16
	ids := make([]int, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 0 {
				x, y = y, x
			}
			chat, err := chats.GetOrCreate(context.Background(), x, y)
			ids[i], errs[i] = chat.ID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	list, err := chats.ListForUser(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
