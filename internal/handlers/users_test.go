package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAndGetUsers(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.signup(t, "alice")
	bobID, _ := env.signup(t, "bob")

	rec := env.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]map[string]any](t, rec)
	require.Len(t, users, 2)
	assert.EqualValues(t, aliceID, users[0]["id"])

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d", bobID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", decode[map[string]any](t, rec)["username"])

	rec = env.do(t, http.MethodGet, "/api/users/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOwnProfile(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.signup(t, "alice")
	env.signup(t, "bob")

	path := fmt.Sprintf("/api/users/%d", aliceID)
	rec := env.do(t, http.MethodPut, path, token, map[string]string{"first_name": "Ally", "password": "new-password"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ally", decode[map[string]any](t, rec)["first_name"])

	rec = env.do(t, http.MethodPost, "/api/auth/logon", "", map[string]string{"email": "alice@example.com", "password": "new-password"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, path, token, map[string]string{"email": "bob@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decode[map[string]string](t, rec)["field"])

	rec = env.do(t, http.MethodPut, path, token, map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCannotModifyOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "alice")
	bobID, _ := env.signup(t, "bob")

	path := fmt.Sprintf("/api/users/%d", bobID)
	rec := env.do(t, http.MethodPut, path, token, map[string]string{"first_name": "Mallory"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteDeactivatesAccount(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signup(t, "alice")
	_, bobToken := env.signup(t, "bob")

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", aliceID), aliceToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users/me", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d", aliceID), bobToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", aliceID), bobToken, map[string]string{"content": "hello?"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/logon", "", map[string]string{"email": "alice@example.com", "password": "secret-pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
