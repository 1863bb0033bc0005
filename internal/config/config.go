package config

import (
	"time"

	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone  AuthMode = "none"  // No authentication required (development only)
	AuthModeLocal AuthMode = "local" // Local user database with kosync credentials and sessions
)

type (
	Config struct {
		HTTP
		Global
		Database
		Storage
		WebDAV
		OPDS
		UI
		Tasks
		Auth
		Cleanup
	}

	HTTP struct {
		Port int32
		Host string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}

	Database struct {
		Path string
	}

	Storage struct {
		// Root directory for uploaded book files and covers.
		Dir         string
		MaxFileSize int64 // Upload limit in bytes
	}

	WebDAV struct {
		Enabled     bool
		RootDir     string
		MaxFileSize int64
	}

	OPDS struct {
		Title    string
		Subtitle string
		Author   string
		PageSize int
	}

	UI struct {
		TemplatesPath string
		StaticPath    string
	}

	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}

	Auth struct {
		Mode            AuthMode
		SessionSecret   string
		SessionLifetime time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}

	Cleanup struct {
		Enabled            bool
		Schedule           string // Cron format: "0 3 * * *" = daily at 03:00
		AuditRetentionDays int
		StaleProgressDays  int // Progress rows untouched for this many days are pruned
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix("kompanion")
	v.AutomaticEnv()

	v.SetDefault("http_port", 8080)
	v.SetDefault("http_host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", "./data/kompanion.db")
	v.SetDefault("storage_dir", "./data/storage")
	v.SetDefault("storage_max_file_size", 500*1024*1024)
	v.SetDefault("webdav_enabled", true)
	v.SetDefault("webdav_root_dir", "./data/webdav")
	v.SetDefault("webdav_max_file_size", 100*1024*1024)
	v.SetDefault("opds_title", "Kompanion Library")
	v.SetDefault("opds_subtitle", "KOReader compatible book catalog")
	v.SetDefault("opds_author", "Kompanion")
	v.SetDefault("opds_page_size", 20)
	v.SetDefault("templates_path", "./templates")
	v.SetDefault("static_path", "./static")

	// Auth defaults
	v.SetDefault("auth_mode", "local")
	v.SetDefault("auth_session_secret", "") // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h")
	v.SetDefault("auth_bcrypt_cost", 12)
	v.SetDefault("auth_secure_cookies", true)
	v.SetDefault("auth_max_login_attempts", 5)
	v.SetDefault("auth_rate_limit_window", "15m")
	v.SetDefault("auth_lockout_duration", "30m")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	// Cleanup defaults
	v.SetDefault("cleanup_enabled", true)
	v.SetDefault("cleanup_schedule", "0 3 * * *")
	v.SetDefault("audit_retention_days", 30)
	v.SetDefault("stale_progress_days", 365)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("http_port"),
			Host: v.GetString("http_host"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("shutdown_timeout_in_seconds"),
		},
		Database: Database{
			Path: v.GetString("database_path"),
		},
		Storage: Storage{
			Dir:         v.GetString("storage_dir"),
			MaxFileSize: v.GetInt64("storage_max_file_size"),
		},
		WebDAV: WebDAV{
			Enabled:     v.GetBool("webdav_enabled"),
			RootDir:     v.GetString("webdav_root_dir"),
			MaxFileSize: v.GetInt64("webdav_max_file_size"),
		},
		OPDS: OPDS{
			Title:    v.GetString("opds_title"),
			Subtitle: v.GetString("opds_subtitle"),
			Author:   v.GetString("opds_author"),
			PageSize: v.GetInt("opds_page_size"),
		},
		UI: UI{
			TemplatesPath: v.GetString("templates_path"),
			StaticPath:    v.GetString("static_path"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("tasks_enabled"),
			Workers:           v.GetInt("task_workers"),
			MaxRetries:        v.GetInt("task_max_retries"),
			RetryDelay:        v.GetDuration("task_retry_delay"),
			TaskTimeout:       v.GetDuration("task_timeout"),
			ReleaseAfter:      v.GetDuration("task_release_after"),
			CleanupInterval:   v.GetDuration("task_cleanup_interval"),
			RetentionDuration: v.GetDuration("task_retention_duration"),
		},
		Auth: Auth{
			Mode:             AuthMode(v.GetString("auth_mode")),
			SessionSecret:    v.GetString("auth_session_secret"),
			SessionLifetime:  v.GetDuration("auth_session_lifetime"),
			BcryptCost:       v.GetInt("auth_bcrypt_cost"),
			SecureCookies:    v.GetBool("auth_secure_cookies"),
			MaxLoginAttempts: v.GetInt("auth_max_login_attempts"),
			RateLimitWindow:  v.GetDuration("auth_rate_limit_window"),
			LockoutDuration:  v.GetDuration("auth_lockout_duration"),
		},
		Cleanup: Cleanup{
			Enabled:            v.GetBool("cleanup_enabled"),
			Schedule:           v.GetString("cleanup_schedule"),
			AuditRetentionDays: v.GetInt("audit_retention_days"),
			StaleProgressDays:  v.GetInt("stale_progress_days"),
		},
	}
}
