package routes

import (
	"prepxiq_go/controllers"
	"prepxiq_go/handlers"
	"prepxiq_go/middleware"
	"prepxiq_go/services/websocket"

	"github.com/gofiber/fiber/v2"
)

// Controllers groups the wired controllers so main builds them once.
type Controllers struct {
	Auth          *controllers.AuthController
	Users         *controllers.UserController
	Students      *controllers.StudentController
	Leads         *controllers.LeadController
	Notifications *controllers.NotificationController
	Attendance    *controllers.AttendanceController
	Logs          *controllers.LogController
	Health        *controllers.HealthController
	LineWebhook   *handlers.LineWebhookHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, wsHub *websocket.Hub, ctl Controllers) {
	wsController := controllers.NewWebSocketController(wsHub)

	app.Get("/health", ctl.Health.GetHealthStatus)

	// LINE platform callback, authenticated by its signature header
	app.Post("/line/webhook", ctl.LineWebhook.Handle)

	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", ctl.Auth.Login)
	auth.Get("/profile", middleware.JWTMiddleware(), ctl.Auth.GetProfile)
	auth.Post("/logout", middleware.JWTMiddleware(), ctl.Auth.Logout)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())

	protected.Get("/profile", ctl.Auth.GetProfile)
	protected.Put("/profile/password", ctl.Auth.ChangePassword)

	// Staff accounts
	users := protected.Group("/users")
	users.Get("/", middleware.RequireStaff(), ctl.Users.GetUsers)
	users.Get("/:id", middleware.RequireStaff(), ctl.Users.GetUser)
	users.Post("/", middleware.RequireOwnerOrAdmin(), ctl.Auth.Register)
	users.Put("/:id", middleware.RequireOwnerOrAdmin(), ctl.Users.UpdateUser)
	users.Delete("/:id", middleware.RequireOwnerOrAdmin(), ctl.Users.DeleteUser)

	// Admission funnel. Per-lead rules live in the service policy.
	leads := protected.Group("/leads", middleware.RequireStaff())
	leads.Get("/", ctl.Leads.GetLeads)
	leads.Get("/stats", ctl.Leads.GetStats)
	leads.Get("/trend", ctl.Leads.GetTrend)
	leads.Get("/check-phone", ctl.Leads.CheckPhone)
	leads.Get("/export.csv", ctl.Leads.ExportCSV)
	leads.Get("/export.xlsx", ctl.Leads.ExportXLSX)
	leads.Get("/:id", ctl.Leads.GetLead)
	leads.Post("/", ctl.Leads.CreateLead)
	leads.Put("/:id", ctl.Leads.UpdateLead)
	leads.Patch("/:id/stage", ctl.Leads.UpdateStage)
	leads.Patch("/:id/counselor", ctl.Leads.AssignCounselor)
	leads.Patch("/:id/follow-up", ctl.Leads.SetFollowUp)
	leads.Post("/:id/convert", ctl.Leads.ConvertLead)
	leads.Post("/:id/lost", ctl.Leads.MarkLost)
	leads.Delete("/:id", ctl.Leads.DeleteLead)

	// Students, created through lead conversion
	students := protected.Group("/students")
	students.Get("/", ctl.Students.GetStudents)
	students.Get("/:id", ctl.Students.GetStudent)
	students.Put("/:id", middleware.RequireStaff(), ctl.Students.UpdateStudent)

	// Attendance, teachers included
	attendance := protected.Group("/attendance")
	attendance.Get("/", ctl.Attendance.GetAttendance)
	attendance.Post("/", ctl.Attendance.MarkAttendance)

	// Notification engine (owner/admin only)
	notifications := protected.Group("/notifications", middleware.RequireOwnerOrAdmin())
	notifications.Post("/run", ctl.Notifications.RunAll)
	notifications.Post("/run/:category", ctl.Notifications.RunCategory)
	notifications.Post("/absent", ctl.Notifications.SendAbsentAlert)
	notifications.Get("/settings", ctl.Notifications.GetSettings)
	notifications.Put("/settings", ctl.Notifications.UpdateSettings)
	notifications.Get("/sms-settings", ctl.Notifications.GetSMSSettings)
	notifications.Put("/sms-settings", ctl.Notifications.UpdateSMSSettings)
	notifications.Post("/test-sms", ctl.Notifications.TestSMS)
	notifications.Get("/logs", ctl.Notifications.GetLogs)
	notifications.Get("/stats", ctl.Notifications.GetTodayStats)

	// Log management routes (Admin/Owner only)
	logs := protected.Group("/logs", middleware.RequireOwnerOrAdmin())
	logs.Get("/", ctl.Logs.GetLogs)
	logs.Get("/stats", ctl.Logs.GetLogStats)
	logs.Get("/archives", ctl.Logs.GetArchives)
	logs.Get("/archives/:id/download", ctl.Logs.DownloadArchive)
	logs.Post("/cleanup", ctl.Logs.RunCleanup)

	protected.Get("/ws/stats", middleware.RequireOwnerOrAdmin(), wsController.GetWebSocketStats)

	// WebSocket connection endpoint
	app.Use("/ws", wsController.Upgrade)
	app.Get("/ws", wsController.WebSocketHandler())
}
