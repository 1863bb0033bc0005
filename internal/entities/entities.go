package entities

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// User holds kosync-compatible credentials. PasswordMD5 is the unsalted
// MD5 digest the KOReader sync plugin sends as X-Auth-Key; PasswordHash
// is an optional bcrypt hash used for dashboard logins.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:64" json:"username"`
	Email        string         `gorm:"size:255" json:"email,omitempty"`
	PasswordMD5  string         `gorm:"column:password_md5;size:32" json:"-"`
	PasswordHash string         `gorm:"size:100" json:"-"`
	Token        string         `gorm:"index;size:64" json:"-"` // SHA-256 of the API token
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	IsAdmin      bool           `gorm:"default:false" json:"is_admin"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Device is a KOReader installation that syncs against this server.
// DeviceName is what kosync sends in the "device" field.
type Device struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"index" json:"user_id"`
	DeviceName      string     `gorm:"index;size:100" json:"device_name"`
	DeviceID        string     `gorm:"index;size:100" json:"device_id,omitempty"`
	Model           string     `gorm:"size:50" json:"model,omitempty"`
	FirmwareVersion string     `gorm:"size:50" json:"firmware_version,omitempty"`
	AppVersion      string     `gorm:"size:50" json:"app_version,omitempty"`
	IsActive        bool       `gorm:"default:true" json:"is_active"`
	SyncEnabled     bool       `gorm:"default:true" json:"sync_enabled"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	SyncCount       int        `json:"sync_count"`
	User            User       `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsRecentlyActive reports whether the device synced within the last week.
func (d *Device) IsRecentlyActive() bool {
	if d.LastSyncAt == nil {
		return false
	}
	return time.Since(*d.LastSyncAt) <= 7*24*time.Hour
}

type Book struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"index;size:512" json:"title"`
	Author        string     `gorm:"index;size:256" json:"author,omitempty"`
	ISBN          string     `gorm:"index;size:20" json:"isbn,omitempty"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	Publisher     string     `gorm:"size:256" json:"publisher,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Language      string     `gorm:"size:10" json:"language,omitempty"`
	Genre         string     `gorm:"size:100" json:"genre,omitempty"`
	Series        string     `gorm:"size:200" json:"series,omitempty"`
	SeriesIndex   int        `json:"series_index,omitempty"`

	// File information
	Filename    string `gorm:"size:512" json:"filename"`
	FileFormat  string `gorm:"index;size:10" json:"file_format"`
	FileSize    int64  `json:"file_size"`
	FileHash    string `gorm:"index;size:64" json:"file_hash"` // SHA-256 hex
	StoragePath string `gorm:"size:1024" json:"-"`

	// Cover
	HasCover      bool   `gorm:"default:false" json:"has_cover"`
	CoverPath     string `gorm:"size:1024" json:"-"`
	ThumbnailPath string `gorm:"size:1024" json:"-"`

	IsAvailable      bool       `gorm:"default:true" json:"is_available"`
	DownloadCount    int        `json:"download_count"`
	LastDownloadedAt *time.Time `json:"last_downloaded_at,omitempty"`

	UploadedByID uint           `gorm:"index" json:"uploaded_by_id,omitempty"`
	UploadedBy   User           `gorm:"foreignKey:UploadedByID" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// DisplayTitle includes the series prefix when the book belongs to one.
func (b *Book) DisplayTitle() string {
	if b.Series != "" && b.SeriesIndex > 0 {
		return fmt.Sprintf("%s #%d: %s", b.Series, b.SeriesIndex, b.Title)
	}
	return b.Title
}

// Progress is a kosync reading-progress record, one per (user, document).
// Document is the key KOReader derives from the book file; Position is
// the opaque progress string (an XPath for EPUB, a page for PDF).
type Progress struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	UserID     uint    `gorm:"index:idx_progress_user_document,unique" json:"user_id"`
	Document   string  `gorm:"index:idx_progress_user_document,unique;size:512" json:"document"`
	Position   string  `gorm:"size:200" json:"progress"`
	Percentage float64 `json:"percentage"`

	DeviceID   *uint  `gorm:"index" json:"device_id,omitempty"`
	BookID     *uint  `gorm:"index" json:"book_id,omitempty"`
	DeviceName string `gorm:"size:100" json:"device_name,omitempty"`

	Page    int    `json:"page,omitempty"`
	Pos     string `gorm:"size:200" json:"pos,omitempty"`
	Chapter string `gorm:"size:512" json:"chapter,omitempty"`

	SyncCount  int       `json:"sync_count"`
	LastSyncAt time.Time `json:"last_sync_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsFinished reports whether the document was read to the end.
func (p *Progress) IsFinished() bool {
	return p.Percentage >= 100.0
}

// ReadingStatistic is a parsed KOReader statistics upload received over
// WebDAV. Links to user/device/book are best effort.
type ReadingStatistic struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	UserID   *uint `gorm:"index" json:"user_id,omitempty"`
	DeviceID *uint `gorm:"index" json:"device_id,omitempty"`
	BookID   *uint `gorm:"index" json:"book_id,omitempty"`

	DeviceName string `gorm:"index;size:100" json:"device_name,omitempty"`
	BookTitle  string `gorm:"index;size:512" json:"book_title,omitempty"`
	BookAuthor string `gorm:"size:256" json:"book_author,omitempty"`
	FilePath   string `gorm:"size:512" json:"file_path,omitempty"`

	TotalPages       int        `json:"total_pages,omitempty"`
	CurrentPage      int        `json:"current_page,omitempty"`
	ReadPages        int        `json:"read_pages,omitempty"`
	ProgressPercent  float64    `json:"progress_percent"`
	TotalReadSeconds int64      `json:"total_read_seconds"`
	LastReadAt       *time.Time `json:"last_read_at,omitempty"`

	Highlights int `json:"highlights,omitempty"`
	Notes      int `json:"notes,omitempty"`

	RawPayload string     `gorm:"type:text" json:"-"` // Original JSON as uploaded
	WebDAVPath string     `gorm:"column:webdav_path;index;size:512" json:"webdav_path,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuditEventType string

const (
	AuditEventLogin       AuditEventType = "login"
	AuditEventLoginFailed AuditEventType = "login_failed"
	AuditEventRegister    AuditEventType = "register"
	AuditEventUpload      AuditEventType = "upload"
	AuditEventDownload    AuditEventType = "download"
	AuditEventDelete      AuditEventType = "delete"
	AuditEventSync        AuditEventType = "sync"
	AuditEventWebDAVPut   AuditEventType = "webdav_put"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditEvent records a security-relevant action for the audit trail.
type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	EventType   AuditEventType `gorm:"index;size:30" json:"event_type"`
	Action      string         `gorm:"size:100" json:"action"`
	Description string         `gorm:"size:512" json:"description,omitempty"`
	IP          string         `gorm:"size:45" json:"ip,omitempty"`
	Status      AuditStatus    `gorm:"size:10" json:"status"`
	ErrorMsg    string         `gorm:"size:512" json:"error_msg,omitempty"`
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"` // JSON blob
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (User) TableName() string             { return "users" }
func (Device) TableName() string           { return "devices" }
func (Book) TableName() string             { return "books" }
func (Progress) TableName() string         { return "sync_progress" }
func (ReadingStatistic) TableName() string { return "reading_statistics" }
func (AuditEvent) TableName() string       { return "audit_events" }
