package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/controllers"
	"prepxiq_go/database"
	"prepxiq_go/database/seeders"
	"prepxiq_go/handlers"
	"prepxiq_go/middleware"
	"prepxiq_go/routes"
	"prepxiq_go/services"
	"prepxiq_go/services/notifications"
	"prepxiq_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "PrepX IQ API"
	serviceVersion = "1.0.0"
)

func main() {
	config.LoadConfig()
	setupLogging()

	database.Connect()
	defer database.Close()
	if config.AppConfig.Seed {
		seeders.SeedAll()
	}

	cfg := config.AppConfig
	loc := cfg.Location()
	db := database.GetDB()
	rdb := database.GetRedisClient()

	stopHub := make(chan struct{})
	wsHub := websocket.NewHub()
	go wsHub.Run(stopHub)

	// Staff LINE group: configured id wins, otherwise the one learned from a join event.
	groupID := cfg.LineStaffGroupID
	if groupID == "" {
		groupID = handlers.LoadStaffGroupID(context.Background(), db)
	}
	line := services.NewLineMessagingService(cfg.LineChannelSecret, cfg.LineChannelToken, groupID)

	// Notification engine
	settingsStore := notifications.NewGormSettingsStore(db)
	smsSettings := notifications.NewSMSSettingsStore(db, cfg.SMSHTTPTimeout, cfg.AppEnv == "development")
	logStore := notifications.NewGormLogStore(db)
	engineOpts := []notifications.Option{
		notifications.WithLocation(loc),
		notifications.WithObserver(notifications.PublishObserver{Publisher: wsHub}),
		notifications.WithObserver(line),
	}
	if cfg.UseRedisDedupe {
		if guard := notifications.NewRedisSendGuard(rdb); guard != nil {
			engineOpts = append(engineOpts, notifications.WithGuard(guard))
		} else {
			logrus.Warn("USE_REDIS_DEDUPE set but Redis is unavailable; relying on the database")
		}
	}
	engine := notifications.NewEngine(settingsStore, notifications.NewGormRecipientSource(db), logStore, smsSettings, engineOpts...)

	// Communication log retention
	objects := services.NewS3ObjectStore(context.Background(), cfg.AWSRegion, cfg.S3BucketName)
	var objectStore services.ObjectStore
	if objects != nil {
		objectStore = objects
	}
	archiver := services.NewCommunicationLogArchiver(db, logStore, objectStore)

	var scheduler *services.NotificationScheduler
	if cfg.EnableScheduler {
		scheduler = services.NewNotificationScheduler(engine, archiver, services.SchedulerConfig{
			NotificationSpec: cfg.NotificationCron,
			CleanupSpec:      cfg.LogCleanupCron,
			RetentionDays:    cfg.LogRetentionDays,
			Location:         loc,
		})
		if err := scheduler.Start(); err != nil {
			logrus.WithError(err).Fatal("Failed to start notification scheduler")
		}
	} else {
		logrus.Info("Notification scheduler disabled (ENABLE_SCHEDULER=false)")
	}

	// Lead pipeline
	leadOpts := []services.LeadOption{
		services.WithLeadEvents(wsHub),
		services.WithLeadLocation(loc),
	}
	if smsCfg, err := smsSettings.Load(context.Background()); err == nil && smsCfg.CountryCode != "" {
		leadOpts = append(leadOpts, services.WithCountryCode(smsCfg.CountryCode))
	}
	leadService := services.NewLeadService(services.NewGormLeadStore(db), leadOpts...)

	health := services.NewHealthService(services.HealthOptions{
		ServiceName:   serviceName,
		Version:       serviceVersion,
		Environment:   cfg.AppEnv,
		DB:            db,
		Redis:         rdb,
		RedisRequired: cfg.UseRedisDedupe,
		Flags: services.HealthFlags{
			SkipMigrate:     cfg.SkipMigrate,
			UseRedisDedupe:  cfg.UseRedisDedupe,
			EnableScheduler: cfg.EnableScheduler,
		},
		NextRuns: func() []time.Time {
			if scheduler == nil {
				return nil
			}
			return scheduler.Entries()
		},
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		AppName:      serviceName,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	routes.SetupRoutes(app, wsHub, routes.Controllers{
		Auth:          &controllers.AuthController{},
		Users:         &controllers.UserController{},
		Students:      &controllers.StudentController{},
		Leads:         controllers.NewLeadController(leadService),
		Notifications: controllers.NewNotificationController(engine, settingsStore, smsSettings, logStore),
		Attendance:    controllers.NewAttendanceController(engine),
		Logs:          controllers.NewLogController(archiver, cfg.LogRetentionDays),
		Health:        controllers.NewHealthController(health),
		LineWebhook:   handlers.NewLineWebhookHandler(db, line, cfg.LineChannelSecret),
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.AppEnv,
			"version":     serviceVersion,
		}).Info("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(ctx)
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	close(stopHub)
}

// setupLogging configures the logging system
func setupLogging() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(config.AppConfig.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if config.AppConfig.AppEnv == "development" || config.AppConfig.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(config.AppConfig.LogFile), 0755); err != nil {
		logrus.WithError(err).Warn("Could not create log directory, logging to stdout")
		return
	}
	file, err := os.OpenFile(config.AppConfig.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.WithError(err).Warn("Could not open log file, logging to stdout")
		return
	}
	logrus.SetOutput(file)
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":      err.Error(),
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"status":     code,
		"request_id": c.Locals("request_id"),
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
