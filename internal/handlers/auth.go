package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-backend/internal/auth"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	auth   *auth.Service
	audit  *telemetry.AuditEmitter
	logger zerolog.Logger
}

func NewAuthHandler(authService *auth.Service, audit *telemetry.AuditEmitter, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, audit: audit, logger: logger}
}

type registerRequest struct {
	Username  string  `json:"username" binding:"required,max=50"`
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Register creates an account and returns it without credentials.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		var dup *repositories.DuplicateError
		if errors.As(err, &dup) {
			c.JSON(http.StatusBadRequest, gin.H{"error": dup.Error(), "field": dup.Field})
			return
		}
		h.logger.Error().Err(err).Msg("register user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register user"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user_registered", "user registered", requestIDFromContext(c), user.ID)
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges email and password for a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.audit.Emit(c.Request.Context(), "WARN", "login_failed", "login failed for "+req.Email, requestIDFromContext(c), 0)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user_login", "user logged in", requestIDFromContext(c), user.ID)
	c.JSON(http.StatusOK, gin.H{"token": token, "token_type": "bearer"})
}
