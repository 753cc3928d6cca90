package controllers

import (
	"errors"

	"prepxiq_go/database"
	"prepxiq_go/middleware"
	"prepxiq_go/models"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AuthController struct{}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a staff account
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=20"`
	Role     string `json:"role" validate:"required,oneof=owner admin counselor teacher"`
}

func userResponse(u *models.User) fiber.Map {
	return fiber.Map{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"phone":    u.Phone,
		"role":     u.Role,
		"status":   u.Status,
	}
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	var user models.User
	if err := database.DB.WithContext(c.UserContext()).
		Where("username = ? AND status = ?", req.Username, "active").
		First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	token, err := middleware.GenerateToken(&user)
	if err != nil {
		logrus.WithError(err).Error("Failed to generate token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	c.Locals("user", &user)
	middleware.LogActivity(c, "LOGIN", "auth", user.ID, fiber.Map{
		"username": user.Username,
		"role":     user.Role,
	})

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    userResponse(&user),
	})
}

// Logout revokes the current token for the rest of its lifetime.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return respondError(c, utils.ErrSession)
	}
	if err := middleware.BlacklistToken(c.UserContext(), claims); err != nil {
		// Logout still succeeds client-side.
		logrus.WithError(err).Warn("Failed to blacklist token")
	}
	middleware.LogActivity(c, "LOGOUT", "auth", claims.UserID, fiber.Map{"username": claims.Username})
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// Register creates a new staff account (owner/admin only)
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	current, err := middleware.GetCurrentUser(c)
	if err != nil {
		return respondError(c, utils.ErrSession)
	}
	// Only an owner may create another owner.
	if req.Role == models.RoleOwner && current.Role != models.RoleOwner {
		return respondError(c, utils.PermissionError("create owner account"))
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to hash password"})
	}

	user := models.User{
		Username: utils.SanitizeString(req.Username),
		Password: hashedPassword,
		Email:    req.Email,
		Phone:    utils.SanitizeString(req.Phone),
		Role:     req.Role,
		Status:   "active",
	}
	if err := database.DB.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	middleware.LogActivity(c, "CREATE", "users", user.ID, fiber.Map{
		"username": user.Username,
		"role":     user.Role,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    userResponse(&user),
	})
}

// GetProfile returns the current user's profile
func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return respondError(c, utils.ErrSession)
	}
	return c.JSON(fiber.Map{"user": userResponse(user)})
}

// ChangePassword allows users to change their password
func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return respondError(c, utils.ErrSession)
	}

	var req struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,min=6"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	if err := utils.CheckPassword(req.CurrentPassword, user.Password); err != nil {
		return badRequest(c, "Current password is incorrect")
	}

	hashedPassword, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to hash password"})
	}

	res := database.DB.WithContext(c.UserContext()).Model(user).Update("password", hashedPassword)
	if res.Error != nil {
		return respondError(c, utils.TranslateDBError(res.Error))
	}
	if res.RowsAffected == 0 {
		return respondError(c, utils.TranslateDBError(gorm.ErrRecordNotFound))
	}

	middleware.LogActivity(c, "UPDATE", "users", user.ID, fiber.Map{"action": "password_change"})
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}

// isNotFound is shared by controllers that look records up directly.
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
