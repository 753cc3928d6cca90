package controllers

import (
	"context"
	"strings"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/middleware"
	"prepxiq_go/models"
	"prepxiq_go/services/notifications"
	"prepxiq_go/services/sms"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// NotificationEngine is the part of the engine the API triggers.
type NotificationEngine interface {
	RunAllNotifications(ctx context.Context, trigger models.TriggerSource) (notifications.BatchNotificationResult, error)
	ProcessCategory(ctx context.Context, t models.MessageType, trigger models.TriggerSource) (notifications.NotificationResult, error)
	TriggerAbsentAlert(ctx context.Context, in notifications.AbsentAlertInput) (notifications.NotificationResult, error)
}

// NotificationController drives manual runs and notification settings.
type NotificationController struct {
	engine   NotificationEngine
	settings *notifications.GormSettingsStore
	sms      *notifications.SMSSettingsStore
	logs     *notifications.GormLogStore
}

func NewNotificationController(engine NotificationEngine, settings *notifications.GormSettingsStore, smsSettings *notifications.SMSSettingsStore, logs *notifications.GormLogStore) *NotificationController {
	return &NotificationController{engine: engine, settings: settings, sms: smsSettings, logs: logs}
}

// RunAll POST /api/notifications/run
func (nc *NotificationController) RunAll(c *fiber.Ctx) error {
	result, err := nc.engine.RunAllNotifications(c.UserContext(), models.TriggerManual)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "RUN", "notifications", 0, fiber.Map{
		"total_sent":   result.TotalSent,
		"total_failed": result.TotalFailed,
	})
	return c.JSON(result)
}

// RunCategory POST /api/notifications/run/:category
func (nc *NotificationController) RunCategory(c *fiber.Ctx) error {
	category := models.MessageType(strings.ToLower(c.Params("category")))
	result, err := nc.engine.ProcessCategory(c.UserContext(), category, models.TriggerManual)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// SendAbsentAlert POST /api/notifications/absent
func (nc *NotificationController) SendAbsentAlert(c *fiber.Ctx) error {
	var req struct {
		notifications.AbsentAlertInput
		Date string `json:"date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	in := req.AbsentAlertInput
	if raw := strings.TrimSpace(req.Date); raw != "" {
		d, err := utils.ParseDateLocal(raw, config.AppConfig.Location())
		if err != nil {
			return respondError(c, utils.ValidationError("date must be a date in YYYY-MM-DD format"))
		}
		in.Date = d
	}
	result, err := nc.engine.TriggerAbsentAlert(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// GetSettings GET /api/notifications/settings
func (nc *NotificationController) GetSettings(c *fiber.Ctx) error {
	s, err := nc.settings.Get(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s)
}

// UpdateSettings PUT /api/notifications/settings
func (nc *NotificationController) UpdateSettings(c *fiber.Ctx) error {
	var in notifications.UpdateSettingsInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	s, err := nc.settings.Update(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Notification settings updated", "settings": s})
}

// GetSMSSettings GET /api/notifications/sms-settings. Secrets are masked.
func (nc *NotificationController) GetSMSSettings(c *fiber.Ctx) error {
	cfg, err := nc.sms.MaskedConfig(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cfg)
}

// UpdateSMSSettings PUT /api/notifications/sms-settings
func (nc *NotificationController) UpdateSMSSettings(c *fiber.Ctx) error {
	var in notifications.SMSSettingsInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := nc.sms.Save(c.UserContext(), in); err != nil {
		return respondError(c, err)
	}
	cfg, err := nc.sms.MaskedConfig(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "SMS settings updated", "settings": cfg})
}

// TestSMS POST /api/notifications/test-sms sends one message with the stored credentials.
// Nothing is written to the communication log.
func (nc *NotificationController) TestSMS(c *fiber.Ctx) error {
	var req struct {
		Phone   string `json:"phone" validate:"required,max=20"`
		Message string `json:"message" validate:"max=500"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	phone := sms.NormalizePhone(req.Phone)
	if len(utils.DigitsOnly(phone)) < 7 {
		return respondError(c, utils.ValidationError("phone is not a valid phone number"))
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "Test message from PrepX IQ"
	}

	provider, err := nc.sms.Provider(c.UserContext())
	if err != nil {
		return respondError(c, utils.ValidationError("SMS provider is not configured: %v", err))
	}
	res := provider.Send(c.UserContext(), phone, message)
	logrus.WithFields(logrus.Fields{
		"provider": provider.Name(),
		"success":  res.Success,
	}).Info("Test SMS sent")
	status := fiber.StatusOK
	if !res.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"provider": provider.Name(), "result": res})
}

// GetLogs GET /api/notifications/logs
func (nc *NotificationController) GetLogs(c *fiber.Ctx) error {
	f := notifications.LogFilter{
		MessageType:    models.MessageType(c.Query("message_type")),
		DeliveryStatus: models.DeliveryStatus(c.Query("delivery_status")),
		TriggeredBy:    models.TriggerSource(c.Query("triggered_by")),
		Search:         utils.SanitizeString(c.Query("search")),
	}
	var err error
	if f.StudentID, err = queryUint(c, "student_id"); err != nil {
		return respondError(c, err)
	}
	if f.DateFrom, err = queryDate(c, "date_from"); err != nil {
		return respondError(c, err)
	}
	if f.DateTo, err = queryDate(c, "date_to"); err != nil {
		return respondError(c, err)
	}

	p := utils.ParsePageParams(c, "created_at", utils.ListPageOptions)
	rows, total, err := nc.logs.List(c.UserContext(), f, p)
	if err != nil {
		return respondError(c, err)
	}
	if rows == nil {
		rows = []models.CommunicationLog{}
	}
	return c.JSON(fiber.Map{
		"logs":        rows,
		"total":       total,
		"page":        p.Page,
		"page_size":   p.PageSize,
		"total_pages": utils.TotalPages(total, p.PageSize),
	})
}

// GetTodayStats GET /api/notifications/stats counts today's sends per category and status.
func (nc *NotificationController) GetTodayStats(c *fiber.Ctx) error {
	loc := config.AppConfig.Location()
	from := utils.StartOfDay(time.Now(), loc)
	counts, err := nc.logs.StatusCounts(c.UserContext(), from, from.AddDate(0, 0, 1))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"date": from.Format(utils.DateLayout), "counts": counts})
}
