package handlers

import (
	"strings"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/middleware"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/social"
	"alumnichat/server/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler serves registration, login and the current user
type AuthHandler struct {
	users  social.Directory
	tokens *utils.JWTManager
	ttl    time.Duration
	secure bool
	log    *zap.Logger
}

func NewAuthHandler(users social.Directory, tokens *utils.JWTManager, ttl time.Duration, secure bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, ttl: ttl, secure: secure, log: log.Named("auth")}
}

// RegisterRequest represents registration request body
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
	FullName string  `json:"fullName" validate:"required,max=100"`
	Role     string  `json:"role" validate:"omitempty,oneof=student alumni"`
	Company  *string `json:"company" validate:"omitempty,max=100"`
	Batch    *string `json:"batch" validate:"omitempty,max=20"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register handles user registration
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return respondError(c, h.log, apperror.Internal("Failed to hash password", err))
	}

	user := &models.User{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		FullName: strings.TrimSpace(req.FullName),
		Password: hashedPassword,
		Role:     req.Role,
		Company:  req.Company,
		Batch:    req.Batch,
	}
	if err := h.users.CreateUser(c.UserContext(), user); err != nil {
		return respondError(c, h.log, err)
	}

	token, err := h.issue(c, user)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":  user.ToResponse(),
			"token": token,
		},
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	user, err := h.users.UserByEmail(c.UserContext(), strings.ToLower(strings.TrimSpace(req.Email)))
	if apperror.Is(err, apperror.KindNotFound) {
		return respondError(c, h.log, apperror.Authentication("Invalid email or password"))
	}
	if err != nil {
		return respondError(c, h.log, err)
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		return respondError(c, h.log, apperror.Authentication("Invalid email or password"))
	}
	if !user.IsActive {
		return respondError(c, h.log, apperror.Authentication("Account is deactivated"))
	}

	token, err := h.issue(c, user)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":  user.ToResponse(),
			"token": token,
		},
	})
}

// issue signs a token for user and sets it as an HTTP-only cookie.
func (h *AuthHandler) issue(c *fiber.Ctx, user *models.User) (string, error) {
	token, err := h.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", apperror.Internal("Failed to generate token", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    token,
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: "Lax",
		MaxAge:   int(h.ttl.Seconds()),
	})
	return token, nil
}

// GetMe returns current authenticated user
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.users.UserByID(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    user.ToResponse(),
	})
}

// Logout clears the token cookie
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    "",
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: "Lax",
		MaxAge:   -1, // Delete cookie
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}
