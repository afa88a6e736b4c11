package http

import (
	"net/http"
	"strings"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/internal/infrastructure/middleware"
	"livestream/pkg/errors"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService ports.UserService
}

func NewUserHandler(userService ports.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

func (h *UserHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/users", h.CreateUser)
	api.POST("/users/:id/subscriptions", middleware.RequireUser(), h.Subscribe)
}

type createUserRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"max=254"`
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), domain.UserAttributes{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(strings.ToLower(req.Email)),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Subscribe makes the caller a subscriber of the user named in the path.
func (h *UserHandler) Subscribe(c *gin.Context) {
	streamer := domain.UserID(c.Param("id"))
	if err := h.userService.Subscribe(c.Request.Context(), middleware.CallerID(c), streamer); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
