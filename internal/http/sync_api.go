package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/database/devices"
	"github.com/kompanion/kompanion/internal/database/progress"
)

// SyncAPIController exposes a JSON view over the kosync progress data
// for the dashboard and API clients.
type SyncAPIController struct {
	progressRepo *progress.Repository
	deviceRepo   *devices.Repository
}

func NewSyncAPIController(progressRepo *progress.Repository, deviceRepo *devices.Repository) *SyncAPIController {
	return &SyncAPIController{
		progressRepo: progressRepo,
		deviceRepo:   deviceRepo,
	}
}

// ListProgress handles GET /api/syncs/progress.
func (s *SyncAPIController) ListProgress(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 100)

	records, total, err := s.progressRepo.List(progress.ListOptions{
		UserID:   GetUserID(c),
		Document: c.Query("document"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondInternalError(c, err, "list progress")
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(records)) < total,
	})
}

// GetProgressByID handles GET /api/syncs/progress/:id.
func (s *SyncAPIController) GetProgressByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	record, err := s.progressRepo.GetByID(GetUserID(c), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "progress record")
			return
		}
		respondInternalError(c, err, "get progress")
		return
	}
	c.JSON(http.StatusOK, record)
}

type updateProgressRequest struct {
	Progress   *string  `json:"progress"`
	Percentage *float64 `json:"percentage"`
	Page       *int     `json:"page"`
	Chapter    *string  `json:"chapter"`
}

// UpdateProgressByID handles PUT /api/syncs/progress/:id. Manual
// corrections from the dashboard; kosync pushes go through the upsert
// endpoint instead.
func (s *SyncAPIController) UpdateProgressByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	record, err := s.progressRepo.GetByID(GetUserID(c), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "progress record")
			return
		}
		respondInternalError(c, err, "get progress")
		return
	}

	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if req.Progress != nil {
		record.Position = *req.Progress
	}
	if req.Percentage != nil {
		record.Percentage = *req.Percentage
	}
	if req.Page != nil {
		record.Page = *req.Page
	}
	if req.Chapter != nil {
		record.Chapter = *req.Chapter
	}

	if err := s.progressRepo.Save(record); err != nil {
		respondInternalError(c, err, "update progress")
		return
	}
	c.JSON(http.StatusOK, record)
}

// DeleteProgressByID handles DELETE /api/syncs/progress/:id.
func (s *SyncAPIController) DeleteProgressByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.progressRepo.DeleteByID(GetUserID(c), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "progress record")
			return
		}
		respondInternalError(c, err, "delete progress")
		return
	}
	respondSuccess(c, "progress deleted")
}

// DeviceSummary handles GET /api/syncs/devices: per-device sync status
// for the current user.
func (s *SyncAPIController) DeviceSummary(c *gin.Context) {
	userID := GetUserID(c)
	userDevices, err := s.deviceRepo.GetDevicesForUser(userID)
	if err != nil {
		respondInternalError(c, err, "device summary")
		return
	}

	type deviceStatus struct {
		ID             uint   `json:"id"`
		DeviceName     string `json:"device_name"`
		SyncEnabled    bool   `json:"sync_enabled"`
		SyncCount      int    `json:"sync_count"`
		LastSyncAt     any    `json:"last_sync_at"`
		RecentlyActive bool   `json:"recently_active"`
	}

	summary := make([]deviceStatus, 0, len(userDevices))
	for i := range userDevices {
		d := &userDevices[i]
		summary = append(summary, deviceStatus{
			ID:             d.ID,
			DeviceName:     d.DeviceName,
			SyncEnabled:    d.SyncEnabled,
			SyncCount:      d.SyncCount,
			LastSyncAt:     d.LastSyncAt,
			RecentlyActive: d.IsRecentlyActive(),
		})
	}

	documents, err := s.progressRepo.CountForUser(userID)
	if err != nil {
		respondInternalError(c, err, "device summary")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"devices":   summary,
		"documents": documents,
	})
}
