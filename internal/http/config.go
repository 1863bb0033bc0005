package http

import (
	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/covers"
	"github.com/kompanion/kompanion/internal/database"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/database/devices"
	"github.com/kompanion/kompanion/internal/database/progress"
	"github.com/kompanion/kompanion/internal/database/statistics"
	"github.com/kompanion/kompanion/internal/database/users"
	"github.com/kompanion/kompanion/internal/tasks"
	"github.com/kompanion/kompanion/internal/webdav"
)

// RouterConfig contains all dependencies and configuration needed to
// create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Auditor  *audit.Service

	// Repositories
	UsersRepo    *users.Repository
	BooksRepo    *books.Repository
	DevicesRepo  *devices.Repository
	ProgressRepo *progress.Repository
	StatsRepo    *statistics.Repository

	// Authentication
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	SessionManager *auth.SessionManager
	AuthConfig     config.Auth
	CSRFSecret     []byte
	SecureCookies  bool
	LoginLimiter   *auth.RateLimiter

	// File handling
	CoverStore *covers.Store
	WebDAVFS   *webdav.Filesystem

	// Task queue client (optional)
	TaskClient *tasks.Client

	// Catalog and storage settings
	Storage config.Storage
	WebDAV  config.WebDAV
	OPDS    config.OPDS

	// UI paths
	TemplatesPath string
	StaticPath    string

	// Application info
	Version string
}
