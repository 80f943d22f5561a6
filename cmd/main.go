package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"salesreport-service/internal/handler"
	"salesreport-service/internal/middleware"
	"salesreport-service/internal/service"
	"salesreport-service/pkg/config"
	"salesreport-service/pkg/database"
	"salesreport-service/pkg/filestore"
	"salesreport-service/pkg/jwtutil"
	"salesreport-service/pkg/logger"
	"salesreport-service/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting sales report service...", zap.String("environment", cfg.Server.Env))

	// Initialize database (includes migrations)
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// Seed the initial admin account; registration itself is admin-gated
	if err := service.EnsureAdmin(database.GetDB(), cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Fatal("Failed to seed admin account", zap.Error(err))
	}

	// Initialize the card file store
	store, err := filestore.New(cfg.Storage.UploadDir)
	if err != nil {
		log.Fatal("Failed to initialize file store", zap.Error(err))
	}

	// Initialize JWT utility and handlers
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:     cfg.JWT.SigningKey,
		ExpirationTime: cfg.JWT.ExpirationTime,
	})
	handler.Init(database.GetDB(), store, jwtUtil, log)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/", handler.Hello)
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", prometheus.HandlerFunc())
	e.POST("/users/login", handler.Login)

	auth := middleware.AuthMiddleware(jwtUtil)

	// User directory routes
	users := e.Group("/users", auth)
	users.POST("/register", handler.Register)
	users.GET("/me", handler.Me)
	users.PUT("/me", handler.UpdateMe)
	users.GET("", handler.ListUsers)
	users.PUT("/:id", handler.UpdateUser)

	// Lead routes
	leads := e.Group("/leads", auth)
	leads.GET("", handler.ListLeads)
	leads.GET("/search", handler.SearchLeads)
	leads.POST("", handler.CreateLead)
	leads.POST("/import", handler.ImportLeads)
	leads.PUT("/:id", handler.UpdateLead)
	leads.DELETE("/:id", handler.DeleteLead)
	leads.POST("/:id/follow-up", handler.AddLeadFollowUp)
	leads.POST("/:id/assign", handler.AssignLead)
	leads.POST("/:id/unassign", handler.UnassignLead)

	// Report routes
	reports := e.Group("/reports", auth)
	reports.POST("", handler.CreateReport)
	reports.GET("", handler.ListReports)
	reports.GET("/export", handler.ExportReports)
	reports.GET("/summary", handler.Summary)
	reports.GET("/summary/export", handler.ExportSummary)
	reports.GET("/:id", handler.GetReport)
	reports.PUT("/:id", handler.UpdateReport)
	reports.DELETE("/:id", handler.DeleteReport)
	reports.POST("/:id/follow-up", handler.AddReportFollowUp)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
