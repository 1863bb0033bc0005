package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/database/devices"
)

// DevicesController manages the KOReader installations registered for
// a user.
type DevicesController struct {
	repo    *devices.Repository
	auditor *audit.Service
}

func NewDevicesController(repo *devices.Repository, auditor *audit.Service) *DevicesController {
	return &DevicesController{repo: repo, auditor: auditor}
}

// List handles GET /api/devices.
func (d *DevicesController) List(c *gin.Context) {
	userDevices, err := d.repo.GetDevicesForUser(GetUserID(c))
	if err != nil {
		respondInternalError(c, err, "list devices")
		return
	}

	type deviceView struct {
		ID              uint   `json:"id"`
		DeviceName      string `json:"device_name"`
		DeviceID        string `json:"device_id,omitempty"`
		Model           string `json:"model,omitempty"`
		FirmwareVersion string `json:"firmware_version,omitempty"`
		AppVersion      string `json:"app_version,omitempty"`
		IsActive        bool   `json:"is_active"`
		SyncEnabled     bool   `json:"sync_enabled"`
		SyncCount       int    `json:"sync_count"`
		LastSyncAt      any    `json:"last_sync_at"`
		RecentlyActive  bool   `json:"recently_active"`
	}

	views := make([]deviceView, 0, len(userDevices))
	for i := range userDevices {
		dev := &userDevices[i]
		views = append(views, deviceView{
			ID:              dev.ID,
			DeviceName:      dev.DeviceName,
			DeviceID:        dev.DeviceID,
			Model:           dev.Model,
			FirmwareVersion: dev.FirmwareVersion,
			AppVersion:      dev.AppVersion,
			IsActive:        dev.IsActive,
			SyncEnabled:     dev.SyncEnabled,
			SyncCount:       dev.SyncCount,
			LastSyncAt:      dev.LastSyncAt,
			RecentlyActive:  dev.IsRecentlyActive(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": views})
}

type registerDeviceRequest struct {
	DeviceName      string `json:"device_name" binding:"required"`
	DeviceID        string `json:"device_id"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	AppVersion      string `json:"app_version"`
}

// Register handles POST /api/devices: creates the device on first
// sight, refreshes metadata otherwise.
func (d *DevicesController) Register(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "device_name is required")
		return
	}

	if req.DeviceID == "" {
		req.DeviceID = uuid.NewString()
	}

	device, err := d.repo.GetOrCreate(GetUserID(c), req.DeviceName, req.DeviceID)
	if err != nil {
		respondInternalError(c, err, "register device")
		return
	}

	changed := false
	if req.Model != "" && device.Model != req.Model {
		device.Model = req.Model
		changed = true
	}
	if req.FirmwareVersion != "" && device.FirmwareVersion != req.FirmwareVersion {
		device.FirmwareVersion = req.FirmwareVersion
		changed = true
	}
	if req.AppVersion != "" && device.AppVersion != req.AppVersion {
		device.AppVersion = req.AppVersion
		changed = true
	}
	if changed {
		if err := d.repo.UpdateDevice(device); err != nil {
			respondInternalError(c, err, "update device")
			return
		}
	}

	respondCreated(c, device)
}

type patchDeviceRequest struct {
	SyncEnabled *bool `json:"sync_enabled"`
	IsActive    *bool `json:"is_active"`
}

// Patch handles PATCH /api/devices/:id.
func (d *DevicesController) Patch(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	device, err := d.repo.GetDeviceByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "device")
			return
		}
		respondInternalError(c, err, "get device")
		return
	}
	if device.UserID != GetUserID(c) {
		respondNotFound(c, "device")
		return
	}

	var req patchDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if req.SyncEnabled != nil {
		device.SyncEnabled = *req.SyncEnabled
	}
	if req.IsActive != nil {
		device.IsActive = *req.IsActive
	}
	if err := d.repo.UpdateDevice(device); err != nil {
		respondInternalError(c, err, "update device")
		return
	}

	c.JSON(http.StatusOK, device)
}

// Delete handles DELETE /api/devices/:id.
func (d *DevicesController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	device, err := d.repo.GetDeviceByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "device")
			return
		}
		respondInternalError(c, err, "get device")
		return
	}
	if device.UserID != GetUserID(c) {
		respondNotFound(c, "device")
		return
	}

	if err := d.repo.DeleteDevice(id); err != nil {
		respondInternalError(c, err, "delete device")
		return
	}

	if d.auditor != nil {
		d.auditor.LogDelete(GetUserID(c), "device", device.ID, device.DeviceName)
	}
	respondSuccess(c, "device deleted")
}
