package controllers

import (
	"strings"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/database"
	"prepxiq_go/models"
	"prepxiq_go/services/notifications"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

// AttendanceController records daily attendance and texts parents of absent students.
type AttendanceController struct {
	engine NotificationEngine
}

func NewAttendanceController(engine NotificationEngine) *AttendanceController {
	return &AttendanceController{engine: engine}
}

type attendanceEntry struct {
	StudentID uint   `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=present absent late"`
}

type markAttendanceRequest struct {
	BatchID uint              `json:"batch_id" validate:"required"`
	Date    string            `json:"date"`
	Notify  *bool             `json:"notify"`
	Entries []attendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// MarkAttendance POST /api/attendance. Existing rows for the same student and
// day are overwritten. Absent students trigger an alert unless notify is false.
func (ac *AttendanceController) MarkAttendance(c *fiber.Ctx) error {
	var req markAttendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	loc := config.AppConfig.Location()
	date := utils.StartOfDay(time.Now(), loc)
	if raw := strings.TrimSpace(req.Date); raw != "" {
		d, err := utils.ParseDateLocal(raw, loc)
		if err != nil {
			return respondError(c, utils.ValidationError("date must be a date in YYYY-MM-DD format"))
		}
		date = d
	}
	if date.After(utils.StartOfDay(time.Now(), loc)) {
		return respondError(c, utils.ValidationError("attendance cannot be marked for a future date"))
	}

	ctx := c.UserContext()
	var batch models.Batch
	if err := database.DB.WithContext(ctx).First(&batch, req.BatchID).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	ids := make([]uint, 0, len(req.Entries))
	for _, e := range req.Entries {
		ids = append(ids, e.StudentID)
	}
	var students []models.Student
	if err := database.DB.WithContext(ctx).Where("id IN ? AND status = ?", ids, "active").Find(&students).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	byID := make(map[uint]models.Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}

	rows := make([]models.Attendance, 0, len(req.Entries))
	for _, e := range req.Entries {
		if _, ok := byID[e.StudentID]; !ok {
			return respondError(c, utils.ValidationError("student %d is not an active student", e.StudentID))
		}
		batchID := batch.ID
		rows = append(rows, models.Attendance{StudentID: e.StudentID, BatchID: &batchID, Date: date, Status: e.Status})
	}
	if err := database.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"batch_id", "status", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	// Upserted rows do not report reliable ids on MySQL, so read them back.
	var saved []models.Attendance
	if err := database.DB.WithContext(ctx).
		Where("student_id IN ? AND date = ?", ids, date.Format(utils.DateLayout)).
		Find(&saved).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	alerts := notifications.NotificationResult{Type: models.MessageTypeAbsent, Errors: []string{}}
	if req.Notify == nil || *req.Notify {
		alerts = ac.alertAbsent(c, saved, byID, batch.Name, date)
	}

	return c.JSON(fiber.Map{
		"message": "Attendance saved",
		"date":    date.Format(utils.DateLayout),
		"marked":  len(rows),
		"alerts":  alerts,
	})
}

func (ac *AttendanceController) alertAbsent(c *fiber.Ctx, rows []models.Attendance, students map[uint]models.Student, batchName string, date time.Time) notifications.NotificationResult {
	total := notifications.NotificationResult{Type: models.MessageTypeAbsent, Errors: []string{}}
	for _, row := range rows {
		if row.Status != models.AttendanceAbsent {
			continue
		}
		s := students[row.StudentID]
		attendanceID := row.ID
		res, err := ac.engine.TriggerAbsentAlert(c.UserContext(), notifications.AbsentAlertInput{
			StudentID:    s.ID,
			StudentName:  s.Name,
			ParentPhone:  firstNonEmpty(s.ParentPhone, s.Phone),
			BatchName:    batchName,
			AttendanceID: &attendanceID,
			Date:         date,
		})
		if err != nil {
			// Disabled alerts or a missing provider must not fail attendance.
			logrus.WithError(err).WithField("student_id", s.ID).Warn("Absent alert not sent")
			total.Errors = append(total.Errors, utils.UserMessage(err))
			continue
		}
		total.Total += res.Total
		total.Sent += res.Sent
		total.Failed += res.Failed
		total.Skipped += res.Skipped
		total.Errors = append(total.Errors, res.Errors...)
	}
	return total
}

// GetAttendance GET /api/attendance?batch_id=&date=
func (ac *AttendanceController) GetAttendance(c *fiber.Ctx) error {
	batchID, err := queryUint(c, "batch_id")
	if err != nil {
		return respondError(c, err)
	}
	date, err := queryDate(c, "date")
	if err != nil {
		return respondError(c, err)
	}
	if date == nil {
		d := utils.StartOfDay(time.Now(), config.AppConfig.Location())
		date = &d
	}

	q := database.DB.WithContext(c.UserContext()).Preload("Student").
		Where("date = ?", date.Format(utils.DateLayout))
	if batchID != nil {
		q = q.Where("batch_id = ?", *batchID)
	}
	var rows []models.Attendance
	if err := q.Order("student_id").Find(&rows).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	if rows == nil {
		rows = []models.Attendance{}
	}
	return c.JSON(fiber.Map{"date": date.Format(utils.DateLayout), "attendance": rows})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
