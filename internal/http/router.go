package http

import (
	"html/template"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/metrics"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// The kosync and WebDAV surfaces use their own header-based auth and
// skip sessions and CSRF entirely; the dashboard and JSON API run the
// full session stack.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(auth.SecurityHeadersMiddleware())

	// Controllers
	health := NewHealthController(cfg.Database, cfg.Version)
	kosync := NewKosyncController(cfg.AuthService, cfg.UsersRepo, cfg.ProgressRepo, cfg.DevicesRepo, cfg.BooksRepo, cfg.Auditor)
	booksController := NewBooksController(cfg.BooksRepo, cfg.CoverStore, cfg.TaskClient, cfg.Auditor, cfg.Storage)
	syncAPI := NewSyncAPIController(cfg.ProgressRepo, cfg.DevicesRepo)
	devicesController := NewDevicesController(cfg.DevicesRepo, cfg.Auditor)
	statsController := NewStatisticsController(cfg.StatsRepo)
	opdsController := NewOPDSController(cfg.BooksRepo, cfg.OPDS)
	usersController := NewUsersController(cfg.UsersRepo, cfg.AuthService, cfg.Auditor)
	auditController := NewAuditController(cfg.Auditor)
	dashboard := NewDashboardController(cfg.UsersRepo, cfg.BooksRepo, cfg.DevicesRepo, cfg.ProgressRepo, cfg.StatsRepo)

	// Public endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	router.GET("/metrics", metrics.Handler())

	// OPDS catalog. KOReader browses it anonymously; downloads go
	// through the flexible-auth book endpoints.
	opdsGroup := router.Group("/opds")
	opdsGroup.GET("", opdsController.Root)
	opdsGroup.GET("/all", opdsController.All)
	opdsGroup.GET("/recent", opdsController.Recent)
	opdsGroup.GET("/popular", opdsController.Popular)
	opdsGroup.GET("/search", opdsController.Search)

	// kosync protocol endpoints
	router.POST("/users/create", kosync.CreateUser)
	kosyncGroup := router.Group("", cfg.AuthMiddleware.KosyncAuth())
	if cfg.LoginLimiter != nil {
		// Brute-force protection keyed on the x-auth-user header.
		kosyncGroup.POST("/users/auth",
			cfg.LoginLimiter.LoginRateLimitMiddleware(auth.HeaderUsername),
			kosync.AuthUser)
	} else {
		kosyncGroup.POST("/users/auth", kosync.AuthUser)
	}
	kosyncGroup.PUT("/syncs/progress", kosync.UpdateProgress)
	kosyncGroup.GET("/syncs/progress/:document", kosync.GetProgress)

	// WebDAV for the statistics plugin
	if cfg.WebDAVFS != nil && cfg.WebDAV.Enabled {
		webdavController := NewWebDAVController(cfg.WebDAVFS, cfg.TaskClient, cfg.Auditor, cfg.WebDAV)
		webdavController.RegisterRoutes(router, "/webdav", cfg.AuthMiddleware)
	}

	// Book file endpoints accept any credential type so both browsers
	// and OPDS clients can download.
	fileGroup := router.Group("", cfg.AuthMiddleware.FlexibleAuth("kompanion"))
	fileGroup.GET("/api/books/:id/download", booksController.Download)
	fileGroup.GET("/api/books/:id/cover", booksController.Cover)

	// Dashboard and JSON API behind sessions, CSRF and bearer auth
	web := router.Group("")
	if len(cfg.CSRFSecret) > 0 {
		// CSRF must run before session so that session context is preserved.
		web.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.AuthService))
	}
	if cfg.SessionManager != nil {
		web.Use(cfg.SessionManager.SessionLoadSave())
	}
	web.Use(cfg.AuthMiddleware.Handler())

	if cfg.AuthService != nil && cfg.AuthService.IsAuthEnabled() {
		authController, err := auth.NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.TemplatesPath, cfg.AuthConfig)
		if err == nil {
			authController.RegisterRoutes(web)

			tokenController := auth.NewAPITokenController(cfg.AuthService)
			web.POST("/api/auth/token", tokenController.GenerateToken)
			web.DELETE("/api/auth/token", tokenController.RevokeToken)
		}
	}

	// Dashboard pages
	web.GET("/", dashboard.Overview)
	web.GET("/books", dashboard.Books)
	web.GET("/devices", dashboard.Devices)
	web.GET("/statistics", dashboard.Statistics)

	// Books API
	web.POST("/api/books/upload", booksController.Upload)
	web.GET("/api/books", booksController.List)
	web.GET("/api/books/stats", booksController.Stats)
	web.GET("/api/books/:id", booksController.Get)
	web.PUT("/api/books/:id", cfg.AuthMiddleware.RequireAdmin(), booksController.Update)
	web.DELETE("/api/books/:id", cfg.AuthMiddleware.RequireAdmin(), booksController.Delete)

	// Sync API
	web.GET("/api/syncs/progress", syncAPI.ListProgress)
	web.GET("/api/syncs/progress/:id", syncAPI.GetProgressByID)
	web.PUT("/api/syncs/progress/:id", syncAPI.UpdateProgressByID)
	web.DELETE("/api/syncs/progress/:id", syncAPI.DeleteProgressByID)
	web.GET("/api/syncs/devices", syncAPI.DeviceSummary)

	// Devices API
	web.GET("/api/devices", devicesController.List)
	web.POST("/api/devices", devicesController.Register)
	web.PATCH("/api/devices/:id", devicesController.Patch)
	web.DELETE("/api/devices/:id", devicesController.Delete)

	// Statistics API
	web.GET("/api/statistics", statsController.List)
	web.GET("/api/statistics/summary", statsController.Summary)

	// Admin API
	admin := web.Group("", cfg.AuthMiddleware.RequireAdmin())
	admin.GET("/api/users", usersController.List)
	admin.POST("/api/users", usersController.Create)
	admin.POST("/api/users/:id/deactivate", usersController.Deactivate)
	admin.DELETE("/api/users/:id", usersController.Delete)
	admin.GET("/api/audit", auditController.List)

	// Templates and static assets
	if cfg.TemplatesPath != "" {
		if pages, err := filepath.Glob(filepath.Join(cfg.TemplatesPath, "*.html")); err == nil && len(pages) > 0 {
			tmpl := template.Must(template.ParseGlob(filepath.Join(cfg.TemplatesPath, "*.html")))
			router.SetHTMLTemplate(tmpl)
		}
	}
	if cfg.StaticPath != "" {
		router.Static("/static", cfg.StaticPath)
	}

	return router
}
