package handlers

import (
	"errors"
	"net/http"

	"immortal-nexus-api/internal/auth"
	"immortal-nexus-api/internal/models"
	"immortal-nexus-api/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Login handles the login endpoint. Unknown usernames are registered on
// first login; known ones must present the matching password.
// POST /api/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. Username and password are required.",
		})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.FindUserByUsername(ctx, req.Username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		user, err = h.register(c, req)
		if err != nil {
			return
		}
	case err != nil:
		h.logger.Error("failed to look up user", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
		return
	case !auth.CheckPassword(user.Password, req.Password):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		h.logger.Error("failed to issue token", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Message:  "Login successful",
	})
}

func (h *Handler) register(c *gin.Context, req LoginRequest) (models.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return models.User{}, err
	}
	user, err := h.store.CreateUser(c.Request.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		} else {
			h.logger.Error("failed to create user", zap.String("username", req.Username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		}
		return models.User{}, err
	}
	h.logger.Info("registered user", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}
