package controllers

import (
	"strings"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/database"
	"prepxiq_go/models"
	"prepxiq_go/services/sms"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
)

type StudentController struct{}

var studentSortColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
}

// GetStudents returns students with pagination
func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	p := utils.ParsePageParams(c, "name", utils.ListPageOptions)
	query := database.DB.WithContext(c.UserContext()).Model(&models.Student{})

	if batchID, err := queryUint(c, "batch_id"); err != nil {
		return respondError(c, err)
	} else if batchID != nil {
		query = query.Where("batch_id = ?", *batchID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := utils.ContainsPattern(search)
		query = query.Where("(name LIKE ? ESCAPE '!' OR phone LIKE ? ESCAPE '!' OR parent_phone LIKE ? ESCAPE '!')", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	var students []models.Student
	if err := query.Preload("Batch").
		Order(p.OrderClause(studentSortColumns, "name")).
		Offset(p.Offset()).Limit(p.Limit()).
		Find(&students).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	if students == nil {
		students = []models.Student{}
	}

	return c.JSON(fiber.Map{
		"students": students,
		"pagination": fiber.Map{
			"page":        p.Page,
			"page_size":   p.PageSize,
			"total":       total,
			"total_pages": utils.TotalPages(total, p.PageSize),
		},
	})
}

// GetStudent returns a specific student by ID
func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var student models.Student
	if err := database.DB.WithContext(c.UserContext()).Preload("Batch").First(&student, id).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	return c.JSON(fiber.Map{"student": student})
}

type updateStudentRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Phone       *string `json:"phone" validate:"omitempty,max=20"`
	Email       *string `json:"email" validate:"omitempty,email,max=191"`
	DateOfBirth *string `json:"date_of_birth"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=male female other"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	ParentName  *string `json:"parent_name" validate:"omitempty,max=200"`
	ParentPhone *string `json:"parent_phone" validate:"omitempty,max=20"`
	BatchID     *uint   `json:"batch_id"`
	Status      *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// UpdateStudent edits the contact details the notification engine texts.
func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req updateStudentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	var student models.Student
	if err := database.DB.WithContext(ctx).First(&student, id).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	updates := map[string]interface{}{}
	setString := func(column string, v *string) {
		if v != nil {
			updates[column] = utils.SanitizeString(*v)
		}
	}
	setString("name", req.Name)
	setString("email", req.Email)
	setString("gender", req.Gender)
	setString("address", req.Address)
	setString("parent_name", req.ParentName)
	setString("status", req.Status)
	if req.Phone != nil {
		updates["phone"] = sms.NormalizePhone(*req.Phone)
	}
	if req.ParentPhone != nil {
		updates["parent_phone"] = sms.NormalizePhone(*req.ParentPhone)
	}
	if req.DateOfBirth != nil {
		if raw := strings.TrimSpace(*req.DateOfBirth); raw == "" {
			updates["date_of_birth"] = nil
		} else {
			loc := config.AppConfig.Location()
			dob, err := utils.ParseDateLocal(raw, loc)
			if err != nil {
				return respondError(c, utils.ValidationError("date_of_birth must be a date in YYYY-MM-DD format"))
			}
			if dob.After(time.Now().In(loc)) {
				return respondError(c, utils.ValidationError("date_of_birth cannot be in the future"))
			}
			updates["date_of_birth"] = dob
		}
	}
	if req.BatchID != nil {
		var batch models.Batch
		if err := database.DB.WithContext(ctx).First(&batch, *req.BatchID).Error; err != nil {
			if isNotFound(err) {
				return respondError(c, utils.ValidationError("batch %d does not exist", *req.BatchID))
			}
			return respondError(c, utils.TranslateDBError(err))
		}
		updates["batch_id"] = *req.BatchID
	}

	if len(updates) > 0 {
		if err := database.DB.WithContext(ctx).Model(&student).Updates(updates).Error; err != nil {
			return respondError(c, utils.TranslateDBError(err))
		}
	}
	if err := database.DB.WithContext(ctx).Preload("Batch").First(&student, id).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	return c.JSON(fiber.Map{"message": "Student updated successfully", "student": student})
}
