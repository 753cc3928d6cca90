package controllers

import (
	"strings"

	"prepxiq_go/database"
	"prepxiq_go/middleware"
	"prepxiq_go/models"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
)

type UserController struct{}

var userSortColumns = map[string]string{
	"username":   "username",
	"role":       "role",
	"created_at": "created_at",
}

// GetUsers lists staff accounts. Counselor dropdowns call it with role=counselor.
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	p := utils.ParsePageParams(c, "username", utils.ListPageOptions)
	if c.Query("sort_order") == "" {
		p.SortOrder = "asc"
	}

	query := database.DB.WithContext(c.UserContext()).Model(&models.User{})
	if role := c.Query("role"); role != "" {
		if !utils.IsValidRole(role) {
			return badRequest(c, "Invalid role")
		}
		query = query.Where("role = ?", role)
	}
	query = query.Where("status = ?", c.Query("status", "active"))
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := utils.ContainsPattern(search)
		query = query.Where("(username LIKE ? ESCAPE '!' OR email LIKE ? ESCAPE '!')", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	var users []models.User
	if err := query.Order(p.OrderClause(userSortColumns, "username")).
		Offset(p.Offset()).Limit(p.Limit()).Find(&users).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	rows := make([]fiber.Map, len(users))
	for i := range users {
		rows[i] = userResponse(&users[i])
	}
	return c.JSON(fiber.Map{
		"users": rows,
		"pagination": fiber.Map{
			"page":        p.Page,
			"page_size":   p.PageSize,
			"total":       total,
			"total_pages": utils.TotalPages(total, p.PageSize),
		},
	})
}

// GetUser returns a specific user by ID
func (uc *UserController) GetUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var user models.User
	if err := database.DB.WithContext(c.UserContext()).First(&user, id).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	return c.JSON(fiber.Map{"user": userResponse(&user)})
}

// UpdateUser changes contact details, role or status of a staff account.
func (uc *UserController) UpdateUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Email  *string `json:"email" validate:"omitempty,email"`
		Phone  *string `json:"phone" validate:"omitempty,max=20"`
		Role   *string `json:"role" validate:"omitempty,oneof=owner admin counselor teacher"`
		Status *string `json:"status" validate:"omitempty,oneof=active inactive"`
	}
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
	var user models.User
	if err := database.DB.WithContext(c.UserContext()).First(&user, id).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	touchesOwner := user.Role == models.RoleOwner || (req.Role != nil && *req.Role == models.RoleOwner)
	if touchesOwner && current.Role != models.RoleOwner {
		return respondError(c, utils.PermissionError("modify owner account"))
	}
	if user.ID == current.ID && req.Status != nil && *req.Status != "active" {
		return badRequest(c, "You cannot deactivate your own account")
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = utils.SanitizeString(*req.Phone)
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) > 0 {
		if err := database.DB.WithContext(c.UserContext()).Model(&user).Updates(updates).Error; err != nil {
			return respondError(c, utils.TranslateDBError(err))
		}
	}
	return c.JSON(fiber.Map{"message": "User updated successfully", "user": userResponse(&user)})
}

// DeleteUser deactivates an account. Leads keep their counselor reference.
func (uc *UserController) DeleteUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	current, err := middleware.GetCurrentUser(c)
	if err != nil {
		return respondError(c, utils.ErrSession)
	}
	if current.ID == id {
		return badRequest(c, "You cannot delete your own account")
	}

	var user models.User
	if err := database.DB.WithContext(c.UserContext()).First(&user, id).Error; err != nil {
		if isNotFound(err) {
			return respondError(c, utils.ErrNotFound)
		}
		return respondError(c, utils.TranslateDBError(err))
	}
	if user.Role == models.RoleOwner && current.Role != models.RoleOwner {
		return respondError(c, utils.PermissionError("delete owner account"))
	}
	if err := database.DB.WithContext(c.UserContext()).Model(&user).Update("status", "inactive").Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	return c.JSON(fiber.Map{"message": "User deactivated successfully"})
}
