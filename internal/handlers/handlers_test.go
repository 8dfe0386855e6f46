package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/auth"
	"chat-backend/internal/chat"
	"chat-backend/internal/middleware"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
	"chat-backend/internal/ws"
)

type testEnv struct {
	router *gin.Engine
	auth   *auth.Service
	users  *repositories.MemoryUserRepo
	hub    *ws.Hub
}

func newTestEnv(t *testing.T, opts ...chat.Option) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := repositories.NewMemoryUserRepo()
	messages := repositories.NewMemoryMessageRepo()
	chats := repositories.NewMemoryChatRepo(messages)
	authSvc := auth.NewService(users, auth.NewPasswordHasherWithCost(bcrypt.MinCost), auth.NewJWTManager("secret", time.Hour, "test"))
	hub := ws.NewHub(zerolog.Nop())
	chatSvc := chat.NewService(users, chats, messages, hub, zerolog.Nop(), opts...)

	router := gin.New()
	router.Use(observability.RequestID())
	RegisterAPIRoutes(router,
		middleware.AuthMiddleware(authSvc),
		NewAuthHandler(authSvc, nil, zerolog.Nop()),
		NewUserHandler(users, authSvc, nil, zerolog.Nop()),
		NewChatHandler(chatSvc, zerolog.Nop()),
	)
	return &testEnv{router: router, auth: authSvc, users: users, hub: hub}
}

// signup registers a user and returns its id and a bearer token.
func (e *testEnv) signup(t *testing.T, username string) (int, string) {
	t.Helper()
	ctx := context.Background()
	user, err := e.auth.Register(ctx, auth.RegisterInput{Username: username, Email: username + "@example.com", Password: "secret-pw"})
	require.NoError(t, err)
	token, _, err := e.auth.Login(ctx, user.Email, "secret-pw")
	require.NoError(t, err)
	return user.ID, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
