// Package http provides HTTP handlers for user account operations.
// Email addresses are encrypted at rest and located through a blind index,
// so handlers only ever see plaintext on the way in and out.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/piivault/internal/httputil"
	"github.com/allisson/piivault/internal/user/http/dto"
	userUseCase "github.com/allisson/piivault/internal/user/usecase"
	customValidation "github.com/allisson/piivault/internal/validation"
)

// UserHandler handles HTTP requests for user account operations.
type UserHandler struct {
	userUseCase userUseCase.UseCase
	logger      *slog.Logger
}

// NewUserHandler creates a new user handler with required dependencies.
func NewUserHandler(useCase userUseCase.UseCase, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		userUseCase: useCase,
		logger:      logger,
	}
}

// RegisterHandler creates a new user account.
// POST /v1/users
// Returns 201 Created with the user representation.
func (h *UserHandler) RegisterHandler(c *gin.Context) {
	var req dto.RegisterUserRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	user, err := h.userUseCase.RegisterUser(c.Request.Context(), userUseCase.RegisterUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapUserToResponse(user))
}

// GetHandler retrieves a user by id with the email decrypted.
// GET /v1/users/:id
func (h *UserHandler) GetHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid user id: must be a valid UUID"),
			h.logger,
		)
		return
	}

	user, err := h.userUseCase.GetUserByID(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapUserToResponse(user))
}

// LookupHandler finds a user by exact email match.
// GET /v1/users/lookup?email=<address>
// The lookup goes through the blind index, so case and surrounding
// whitespace differences in the query still match.
func (h *UserHandler) LookupHandler(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("email query parameter is required"),
			h.logger,
		)
		return
	}

	user, err := h.userUseCase.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapUserToResponse(user))
}

// UpdateEmailHandler replaces a user's email address.
// PUT /v1/users/:id/email
func (h *UserHandler) UpdateEmailHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid user id: must be a valid UUID"),
			h.logger,
		)
		return
	}

	var req dto.UpdateUserEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	user, err := h.userUseCase.UpdateUserEmail(c.Request.Context(), id, req.Email)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapUserToResponse(user))
}

// RegisterRoutes attaches the user routes to the given router group.
func (h *UserHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/users", h.RegisterHandler)
	group.GET("/users/lookup", h.LookupHandler)
	group.GET("/users/:id", h.GetHandler)
	group.PUT("/users/:id/email", h.UpdateEmailHandler)
}
