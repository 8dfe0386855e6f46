package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-backend/internal/auth"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// UserHandler manages user accounts. Accounts can only be changed by their owner.
type UserHandler struct {
	users  repositories.UserRepository
	auth   *auth.Service
	audit  *telemetry.AuditEmitter
	logger zerolog.Logger
}

// NewUserHandler wires the user endpoints.
func NewUserHandler(users repositories.UserRepository, authService *auth.Service, audit *telemetry.AuditEmitter, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, auth: authService, audit: audit, logger: logger}
}

// ListUsers returns every active user.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// Me returns the caller's own profile.
func (h *UserHandler) Me(c *gin.Context) {
	h.respondUser(c, currentUserID(c))
}

// GetUser returns an active user by id; deactivated users answer 404.
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	h.respondUser(c, id)
}

func (h *UserHandler) respondUser(c *gin.Context, id int) {
	user, err := h.users.GetByID(c.Request.Context(), id)
	if errors.Is(err, repositories.ErrUserNotFound) || (err == nil && !user.IsActive) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", id).Msg("get user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateUserRequest struct {
	Email        *string `json:"email" binding:"omitempty,email"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	ProfileImage *string `json:"profile_image"`
	Password     *string `json:"password" binding:"omitempty,min=1"`
}

// UpdateUser applies a partial update to the caller's own account.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := h.ownAccount(c)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := models.UserUpdate{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ProfileImage: req.ProfileImage,
	}
	if req.Password != nil {
		hash, err := h.auth.HashPassword(*req.Password)
		if err != nil {
			h.logger.Error().Err(err).Msg("hash password")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update user"})
			return
		}
		update.PasswordHash = &hash
	}

	user, err := h.users.Update(c.Request.Context(), id, update)
	if err != nil {
		h.writeUpdateError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user_updated", "user profile updated", requestIDFromContext(c), id)
	c.JSON(http.StatusOK, user)
}

// DeleteUser deactivates the caller's own account.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.ownAccount(c)
	if !ok {
		return
	}

	inactive := false
	if _, err := h.users.Update(c.Request.Context(), id, models.UserUpdate{IsActive: &inactive}); err != nil {
		h.writeUpdateError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user_deactivated", "user account deactivated", requestIDFromContext(c), id)
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) ownAccount(c *gin.Context) (int, bool) {
	id, ok := parseUserIDParam(c)
	if !ok {
		return 0, false
	}
	if id != currentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot modify another user"})
		return 0, false
	}
	return id, true
}

func (h *UserHandler) writeUpdateError(c *gin.Context, err error) {
	var dup *repositories.DuplicateError
	switch {
	case errors.As(err, &dup):
		c.JSON(http.StatusBadRequest, gin.H{"error": dup.Error(), "field": dup.Field})
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		h.logger.Error().Err(err).Msg("update user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update user"})
	}
}
