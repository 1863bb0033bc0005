// Package devices provides database operations for KOReader devices.
package devices

import (
	"time"

	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/entities"
)

// Repository handles all device database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new devices repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreate finds a device for the user by name, creating it on first
// sight. KOReader identifies devices by the name the user configured in
// the sync plugin.
func (r *Repository) GetOrCreate(userID uint, deviceName, deviceID string) (*entities.Device, error) {
	var device entities.Device
	err := r.db.Where("user_id = ? AND device_name = ?", userID, deviceName).First(&device).Error
	if err == gorm.ErrRecordNotFound {
		device = entities.Device{
			UserID:      userID,
			DeviceName:  deviceName,
			DeviceID:    deviceID,
			IsActive:    true,
			SyncEnabled: true,
		}
		if err := r.db.Create(&device).Error; err != nil {
			return nil, err
		}
		return &device, nil
	}
	if err != nil {
		return nil, err
	}
	if deviceID != "" && device.DeviceID != deviceID {
		device.DeviceID = deviceID
		if err := r.db.Save(&device).Error; err != nil {
			return nil, err
		}
	}
	return &device, nil
}

// TouchSync bumps the sync counter and timestamp for a device.
func (r *Repository) TouchSync(deviceID uint) error {
	now := time.Now()
	return r.db.Model(&entities.Device{}).Where("id = ?", deviceID).
		Updates(map[string]interface{}{
			"last_sync_at": &now,
			"sync_count":   gorm.Expr("sync_count + 1"),
		}).Error
}

// GetDeviceByID retrieves a device by ID.
func (r *Repository) GetDeviceByID(id uint) (*entities.Device, error) {
	var device entities.Device
	err := r.db.First(&device, id).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// GetDevicesForUser retrieves all devices belonging to a user, most
// recently synced first.
func (r *Repository) GetDevicesForUser(userID uint) ([]entities.Device, error) {
	var devices []entities.Device
	err := r.db.Where("user_id = ?", userID).
		Order("last_sync_at DESC").Find(&devices).Error
	return devices, err
}

// GetAllDevices retrieves devices across all users for the admin view.
func (r *Repository) GetAllDevices() ([]entities.Device, error) {
	var devices []entities.Device
	err := r.db.Preload("User").Order("last_sync_at DESC").Find(&devices).Error
	return devices, err
}

// UpdateDevice saves changes to an existing device.
func (r *Repository) UpdateDevice(device *entities.Device) error {
	return r.db.Save(device).Error
}

// SetSyncEnabled toggles whether the device may push progress updates.
func (r *Repository) SetSyncEnabled(deviceID uint, enabled bool) error {
	return r.db.Model(&entities.Device{}).Where("id = ?", deviceID).
		Update("sync_enabled", enabled).Error
}

// DeleteDevice removes a device record.
func (r *Repository) DeleteDevice(id uint) error {
	return r.db.Delete(&entities.Device{}, id).Error
}

// CountActiveSince counts devices that synced after the given time.
func (r *Repository) CountActiveSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Device{}).
		Where("last_sync_at > ?", since).Count(&count).Error
	return count, err
}
