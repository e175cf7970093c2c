package handler

import (
	"net/http"
	"time"

	"bookbridge/internal/usecase/user"
	apperrors "bookbridge/pkg/errors"
	"bookbridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	uc  user.Usecase
	log *zap.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(uc user.Usecase, log *zap.Logger) *UserHandler {
	return &UserHandler{
		uc:  uc,
		log: log,
	}
}

// CreateUserRequest represents the HTTP request body for registering a user.
// Shape rules are enforced by the usecase so every transport shares them.
type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Age   *int   `json:"age,omitempty"`
}

// UserResponse represents the HTTP response for user data
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Age       *int      `json:"age,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateUser handles POST /usuarios
func (h *UserHandler) CreateUser(c *gin.Context) {
	log := logger.WithContext(c.Request.Context(), h.log)

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid create user body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: apperrors.NewValidationError("body", "request body must be a JSON object with email, name and optional integer age").Error(),
		})
		return
	}

	created, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{
		Email: req.Email,
		Name:  req.Name,
		Age:   req.Age,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(*created))
}

// ListUsers handles GET /usuarios
func (h *UserHandler) ListUsers(c *gin.Context) {
	resp, err := h.uc.ListUsers(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	users := make([]UserResponse, len(resp.Users))
	for i, u := range resp.Users {
		users[i] = toResponse(u)
	}

	c.JSON(http.StatusOK, users)
}

// handleError converts usecase errors to HTTP responses. Storage internals
// never reach the client.
func (h *UserHandler) handleError(c *gin.Context, err error) {
	code := apperrors.HTTPStatusOf(err)
	log := logger.WithContext(c.Request.Context(), h.log)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		log.Info("request rejected", zap.String("path", c.FullPath()), zap.Int("status", code), zap.Error(err))
	}

	c.JSON(code, ErrorResponse{Error: apperrors.MessageOf(err)})
}

func toResponse(u user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Age:       u.Age,
		CreatedAt: u.CreatedAt,
	}
}
