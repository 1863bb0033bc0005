package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/covers"
	"github.com/kompanion/kompanion/internal/database"
	auditrepo "github.com/kompanion/kompanion/internal/database/audit"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/database/devices"
	"github.com/kompanion/kompanion/internal/database/progress"
	"github.com/kompanion/kompanion/internal/database/statistics"
	"github.com/kompanion/kompanion/internal/database/users"
	http_controllers "github.com/kompanion/kompanion/internal/http"
	"github.com/kompanion/kompanion/internal/scheduler"
	"github.com/kompanion/kompanion/internal/tasks"
	"github.com/kompanion/kompanion/internal/webdav"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop cron and task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Kompanion v%s", version)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	usersRepo := users.NewRepository(db.DB)
	booksRepo := books.NewRepository(db.DB)
	devicesRepo := devices.NewRepository(db.DB)
	progressRepo := progress.NewRepository(db.DB)
	statsRepo := statistics.NewRepository(db.DB)
	auditor := audit.NewService(auditrepo.NewRepository(db.DB))

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		log.Fatalf("Failed to create storage directory %s: %v", cfg.Storage.Dir, err)
	}

	coverStore, err := covers.NewStore(filepath.Join(cfg.Storage.Dir, "covers"))
	if err != nil {
		log.Fatalf("Failed to initialize cover store: %v", err)
	}

	// WebDAV filesystem for the KOReader statistics plugin
	var webdavFS *webdav.Filesystem
	if cfg.WebDAV.Enabled {
		webdavFS, err = webdav.NewFilesystem(cfg.WebDAV.RootDir)
		if err != nil {
			log.Fatalf("Failed to initialize WebDAV root %s: %v", cfg.WebDAV.RootDir, err)
		}
		log.Printf("WebDAV endpoint enabled at /webdav (root %s)", cfg.WebDAV.RootDir)
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewExtractMetadataQueue(booksRepo, coverStore),
			tasks.NewCleanupAuditEventsQueue(auditor),
			tasks.NewCleanupStaleProgressQueue(progressRepo),
		)
		if webdavFS != nil {
			taskClient.Register(tasks.NewParseStatisticsQueue(webdavFS, statsRepo, booksRepo, devicesRepo))
		}

		// Start task workers in background
		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// Nightly retention cron; it only enqueues tasks, workers do the work.
	var cleanupScheduler *scheduler.CleanupScheduler
	if taskClient != nil && cfg.Cleanup.Enabled {
		cleanupScheduler = scheduler.NewCleanupScheduler(taskClient, cfg.Cleanup)
		if err := cleanupScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start cleanup scheduler: %v", err)
		}
	}

	// Auth service and middleware are always built; in "none" mode the
	// middleware injects a synthetic admin user instead of challenging.
	authService := auth.NewService(db.DB, cfg.Auth)

	var authMiddleware *auth.Middleware
	var sessionManager *auth.SessionManager
	var csrfSecret []byte

	if cfg.Auth.Mode == config.AuthModeLocal {
		log.Printf("Authentication mode: local")

		// Get underlying SQL DB for session store
		sqlDB, err := db.DB.DB()
		if err != nil {
			log.Fatalf("Failed to get SQL DB for sessions: %v", err)
		}

		sessionManager, err = auth.NewSessionManager(sqlDB, cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to initialize session manager: %v", err)
		}

		// Generate or use configured CSRF secret
		if cfg.Auth.SessionSecret != "" {
			csrfSecret, err = hex.DecodeString(cfg.Auth.SessionSecret)
			if err != nil {
				// Not hex, use as raw bytes
				csrfSecret = []byte(cfg.Auth.SessionSecret)
			}
		} else {
			secret, err := auth.GenerateSessionSecret()
			if err != nil {
				log.Fatalf("Failed to generate CSRF secret: %v", err)
			}
			csrfSecret, _ = hex.DecodeString(secret)
			log.Printf("Generated session secret (set KOMPANION_AUTH_SESSION_SECRET to persist)")
		}

		hasUsers, _ := authService.HasUsers()
		if !hasUsers {
			log.Printf("No users found. Visit /setup to create an administrator account.")
		}
	} else {
		log.Printf("Authentication mode: none (no authentication required)")
	}

	authMiddleware = auth.NewMiddleware(authService, sessionManager, cfg.Auth)

	loginLimiter := auth.NewRateLimiter(auth.DefaultRateLimitConfig())

	routerCfg := http_controllers.RouterConfig{
		Database:       db,
		Auditor:        auditor,
		UsersRepo:      usersRepo,
		BooksRepo:      booksRepo,
		DevicesRepo:    devicesRepo,
		ProgressRepo:   progressRepo,
		StatsRepo:      statsRepo,
		AuthService:    authService,
		AuthMiddleware: authMiddleware,
		SessionManager: sessionManager,
		AuthConfig:     cfg.Auth,
		CSRFSecret:     csrfSecret,
		SecureCookies:  cfg.Auth.SecureCookies,
		LoginLimiter:   loginLimiter,
		CoverStore:     coverStore,
		WebDAVFS:       webdavFS,
		TaskClient:     taskClient,
		Storage:        cfg.Storage,
		WebDAV:         cfg.WebDAV,
		OPDS:           cfg.OPDS,
		TemplatesPath:  cfg.UI.TemplatesPath,
		StaticPath:     cfg.UI.StaticPath,
		Version:        version,
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if cleanupScheduler != nil {
			cleanupScheduler.Stop()
		}
		loginLimiter.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
