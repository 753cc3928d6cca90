package controllers

import (
	"encoding/json"
	"strings"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/database"
	"prepxiq_go/middleware"
	"prepxiq_go/models"
	"prepxiq_go/services"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
)

// LogController serves the staff audit trail and communication log archives.
type LogController struct {
	archiver      *services.CommunicationLogArchiver
	retentionDays int
}

func NewLogController(archiver *services.CommunicationLogArchiver, retentionDays int) *LogController {
	return &LogController{archiver: archiver, retentionDays: retentionDays}
}

// LogResponse represents a log entry response
type LogResponse struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Username   string                 `json:"username,omitempty"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
}

type activityRow struct {
	models.ActivityLog
	Username string
}

func (r activityRow) response() LogResponse {
	out := LogResponse{
		ID:         r.ID,
		UserID:     r.UserID,
		Username:   r.Username,
		Action:     r.Action,
		Resource:   r.Resource,
		ResourceID: r.ResourceID,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		CreatedAt:  r.CreatedAt,
	}
	if !r.Details.IsNull() {
		var details map[string]interface{}
		if err := json.Unmarshal(r.Details, &details); err == nil {
			out.Details = details
		}
	}
	return out
}

var activitySortColumns = map[string]string{
	"created_at": "activity_logs.created_at",
	"action":     "activity_logs.action",
	"resource":   "activity_logs.resource",
}

// GetLogs retrieves paginated activity logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	p := utils.ParsePageParams(c, "created_at", utils.ListPageOptions)

	query := database.DB.WithContext(c.UserContext()).
		Table("activity_logs").
		Joins("LEFT JOIN users ON users.id = activity_logs.user_id").
		Where("activity_logs.deleted_at IS NULL")

	if userID, err := queryUint(c, "user_id"); err != nil {
		return respondError(c, err)
	} else if userID != nil {
		query = query.Where("activity_logs.user_id = ?", *userID)
	}
	if action := strings.ToUpper(c.Query("action")); action != "" {
		query = query.Where("activity_logs.action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("activity_logs.resource = ?", resource)
	}
	from, err := queryDate(c, "start_date")
	if err != nil {
		return respondError(c, err)
	}
	if from != nil {
		query = query.Where("activity_logs.created_at >= ?", *from)
	}
	to, err := queryDate(c, "end_date")
	if err != nil {
		return respondError(c, err)
	}
	if to != nil {
		query = query.Where("activity_logs.created_at < ?", to.AddDate(0, 0, 1))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	var rows []activityRow
	if err := query.Select("activity_logs.*, users.username AS username").
		Order(p.OrderClause(activitySortColumns, "created_at")).
		Offset(p.Offset()).Limit(p.Limit()).
		Scan(&rows).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}

	logs := make([]LogResponse, len(rows))
	for i, r := range rows {
		logs[i] = r.response()
	}
	return c.JSON(fiber.Map{
		"logs":        logs,
		"total":       total,
		"page":        p.Page,
		"page_size":   p.PageSize,
		"total_pages": utils.TotalPages(total, p.PageSize),
	})
}

// GetLogStats breaks today's and this month's activity down by action and resource.
func (lc *LogController) GetLogStats(c *fiber.Ctx) error {
	loc := config.AppConfig.Location()
	today := utils.StartOfDay(time.Now(), loc)
	thisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	db := database.DB.WithContext(c.UserContext())

	var total, totalToday, totalMonth int64
	if err := db.Model(&models.ActivityLog{}).Count(&total).Error; err != nil {
		return respondError(c, utils.TranslateDBError(err))
	}
	db.Model(&models.ActivityLog{}).Where("created_at >= ?", today).Count(&totalToday)
	db.Model(&models.ActivityLog{}).Where("created_at >= ?", thisMonth).Count(&totalMonth)

	breakdown := func(column string) map[string]int64 {
		var rows []struct {
			Key   string
			Count int64
		}
		db.Model(&models.ActivityLog{}).
			Select(column+" AS `key`, COUNT(*) AS count").
			Where("created_at >= ?", thisMonth).
			Group(column).
			Scan(&rows)
		out := make(map[string]int64, len(rows))
		for _, r := range rows {
			out[r.Key] = r.Count
		}
		return out
	}

	return c.JSON(fiber.Map{
		"total":              total,
		"total_today":        totalToday,
		"total_this_month":   totalMonth,
		"action_breakdown":   breakdown("action"),
		"resource_breakdown": breakdown("resource"),
	})
}

// GetArchives GET /api/logs/archives
func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.archiver.ListArchives(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if archives == nil {
		archives = []models.LogArchive{}
	}
	return c.JSON(fiber.Map{"archives": archives})
}

// DownloadArchive GET /api/logs/archives/:id/download
func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	body, fileName, err := lc.archiver.DownloadArchive(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	c.Attachment(fileName)
	c.Set(fiber.HeaderContentType, "application/zip")
	// fasthttp closes the reader once the body is written.
	return c.SendStream(body)
}

// RunCleanup POST /api/logs/cleanup archives and deletes expired communication logs now.
func (lc *LogController) RunCleanup(c *fiber.Ctx) error {
	days := c.QueryInt("days", lc.retentionDays)
	report, err := lc.archiver.Cleanup(c.UserContext(), days)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CLEANUP", "communication_logs", 0, report)
	return c.JSON(fiber.Map{"message": "Log cleanup completed", "report": report})
}
