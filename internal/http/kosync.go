package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/database/devices"
	"github.com/kompanion/kompanion/internal/database/progress"
	"github.com/kompanion/kompanion/internal/database/users"
	"github.com/kompanion/kompanion/internal/entities"
	"github.com/kompanion/kompanion/internal/metrics"
)

// KosyncController implements the sync protocol the KOReader progress
// sync plugin speaks. Request and response shapes follow the reference
// sync server, including its quirks (402 for duplicate users, string
// timestamps).
type KosyncController struct {
	authService  *auth.Service
	usersRepo    *users.Repository
	progressRepo *progress.Repository
	deviceRepo   *devices.Repository
	booksRepo    *books.Repository
	auditor      *audit.Service
}

func NewKosyncController(authService *auth.Service, usersRepo *users.Repository, progressRepo *progress.Repository, deviceRepo *devices.Repository, booksRepo *books.Repository, auditor *audit.Service) *KosyncController {
	return &KosyncController{
		authService:  authService,
		usersRepo:    usersRepo,
		progressRepo: progressRepo,
		deviceRepo:   deviceRepo,
		booksRepo:    booksRepo,
		auditor:      auditor,
	}
}

type kosyncRegisterRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// CreateUser handles POST /users/create.
func (k *KosyncController) CreateUser(c *gin.Context) {
	var req kosyncRegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	user, err := k.authService.RegisterKosyncUser(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			// The KOReader plugin expects 402 for a taken username.
			c.JSON(http.StatusPaymentRequired, gin.H{"message": "Username is already registered"})
		case errors.Is(err, auth.ErrUsernameRequired),
			errors.Is(err, auth.ErrPasswordRequired),
			errors.Is(err, auth.ErrUsernameInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		default:
			respondInternalError(c, err, "kosync register")
		}
		return
	}

	if k.auditor != nil {
		k.auditor.LogRegister(user.ID, user.Username, c.ClientIP())
	}
	c.JSON(http.StatusCreated, gin.H{"username": user.Username})
}

// AuthUser handles POST /users/auth. The KosyncAuth middleware has
// already verified the credentials by the time this runs.
func (k *KosyncController) AuthUser(c *gin.Context) {
	if userID := GetUserID(c); userID > 0 && k.usersRepo != nil {
		_ = k.usersRepo.TouchLastLogin(userID)
	}
	if k.auditor != nil {
		k.auditor.LogLogin(GetUserID(c), auth.GetUsername(c), c.ClientIP(), true)
	}
	c.JSON(http.StatusOK, gin.H{"authorized": "OK"})
}

type kosyncProgressRequest struct {
	Document   string  `json:"document" form:"document"`
	Progress   string  `json:"progress" form:"progress"`
	Percentage float64 `json:"percentage" form:"percentage"`
	Device     string  `json:"device" form:"device"`
	DeviceID   string  `json:"device_id" form:"device_id"`
	Page       int     `json:"page" form:"page"`
	Pos        string  `json:"pos" form:"pos"`
	Chapter    string  `json:"chapter" form:"chapter"`
}

// UpdateProgress handles PUT /syncs/progress.
func (k *KosyncController) UpdateProgress(c *gin.Context) {
	var req kosyncProgressRequest
	if err := c.ShouldBind(&req); err != nil || req.Document == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid progress data"})
		return
	}

	userID := GetUserID(c)
	update := &entities.Progress{
		UserID:     userID,
		Document:   req.Document,
		Position:   req.Progress,
		Percentage: req.Percentage,
		DeviceName: req.Device,
		Page:       req.Page,
		Pos:        req.Pos,
		Chapter:    req.Chapter,
	}

	if req.Device != "" {
		device, err := k.deviceRepo.GetOrCreate(userID, req.Device, req.DeviceID)
		if err == nil {
			update.DeviceID = &device.ID
			_ = k.deviceRepo.TouchSync(device.ID)
		}
	}

	// KOReader documents are content hashes or filenames; linking to a
	// library book is best effort.
	if book, err := k.booksRepo.FindByTitleFragment(req.Document); err == nil {
		update.BookID = &book.ID
	}

	saved, err := k.progressRepo.Upsert(update)
	if err != nil {
		if k.auditor != nil {
			k.auditor.LogSync(userID, req.Document, req.Device, err)
		}
		respondInternalError(c, err, "kosync progress update")
		return
	}

	metrics.CountSync()
	if k.auditor != nil {
		k.auditor.LogSync(userID, req.Document, req.Device, nil)
	}
	c.JSON(http.StatusOK, gin.H{
		"document":  saved.Document,
		"timestamp": strconv.FormatInt(saved.LastSyncAt.Unix(), 10),
	})
}

// GetProgress handles GET /syncs/progress/:document.
func (k *KosyncController) GetProgress(c *gin.Context) {
	document := c.Param("document")
	if document == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid document"})
		return
	}

	record, err := k.progressRepo.GetProgress(GetUserID(c), document)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Document not found"})
			return
		}
		respondInternalError(c, err, "kosync progress fetch")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document":   record.Document,
		"progress":   record.Position,
		"percentage": record.Percentage,
		"device":     record.DeviceName,
		"timestamp":  strconv.FormatInt(record.LastSyncAt.Unix(), 10),
	})
}
