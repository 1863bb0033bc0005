// Package progress provides database operations for kosync reading
// progress. One row per (user, document) pair; pushes upsert in place.
package progress

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/entities"
)

// Repository handles all reading progress database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new progress repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert stores a progress update. If a row for the (user, document)
// pair exists it is overwritten with the incoming position, otherwise a
// new row is created. Returns the stored record.
func (r *Repository) Upsert(update *entities.Progress) (*entities.Progress, error) {
	var existing entities.Progress
	err := r.db.Where("user_id = ? AND document = ?", update.UserID, update.Document).
		First(&existing).Error

	now := time.Now()
	if err == gorm.ErrRecordNotFound {
		update.SyncCount = 1
		update.LastSyncAt = now
		if err := r.db.Create(update).Error; err != nil {
			return nil, err
		}
		return update, nil
	}
	if err != nil {
		return nil, err
	}

	existing.Position = update.Position
	existing.Percentage = update.Percentage
	existing.DeviceName = update.DeviceName
	existing.DeviceID = update.DeviceID
	existing.BookID = update.BookID
	existing.Page = update.Page
	existing.Pos = update.Pos
	existing.Chapter = update.Chapter
	existing.SyncCount++
	existing.LastSyncAt = now

	if err := r.db.Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetProgress retrieves the stored progress for a user's document.
func (r *Repository) GetProgress(userID uint, document string) (*entities.Progress, error) {
	var progress entities.Progress
	err := r.db.Where("user_id = ? AND document = ?", userID, document).
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListOptions control pagination and filtering of progress listings.
type ListOptions struct {
	UserID   uint
	Document string // substring match on document or chapter
	Limit    int
	Offset   int
}

// List retrieves paginated progress records matching the options, most
// recently synced first, plus the total count before pagination.
func (r *Repository) List(opts ListOptions) ([]entities.Progress, int64, error) {
	var records []entities.Progress
	var total int64

	query := r.db.Model(&entities.Progress{}).Where("user_id = ?", opts.UserID)
	if opts.Document != "" {
		pattern := "%" + strings.ToLower(opts.Document) + "%"
		query = query.Where("LOWER(document) LIKE ? OR LOWER(chapter) LIKE ?", pattern, pattern)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	err := query.Order("last_sync_at DESC").Limit(limit).Offset(opts.Offset).Find(&records).Error
	return records, total, err
}

// GetProgressForUser retrieves all progress records for a user, most
// recently synced first.
func (r *Repository) GetProgressForUser(userID uint, limit, offset int) ([]entities.Progress, int64, error) {
	return r.List(ListOptions{UserID: userID, Limit: limit, Offset: offset})
}

// GetProgressForBook retrieves all users' progress rows linked to a book.
func (r *Repository) GetProgressForBook(bookID uint) ([]entities.Progress, error) {
	var records []entities.Progress
	err := r.db.Where("book_id = ?", bookID).
		Order("last_sync_at DESC").Find(&records).Error
	return records, err
}

// GetByID retrieves a progress record by ID, scoped to a user.
func (r *Repository) GetByID(userID, id uint) (*entities.Progress, error) {
	var progress entities.Progress
	err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// Save persists changes to an existing progress record.
func (r *Repository) Save(record *entities.Progress) error {
	return r.db.Save(record).Error
}

// DeleteByID removes a progress record by ID, scoped to a user.
func (r *Repository) DeleteByID(userID, id uint) error {
	result := r.db.Where("user_id = ? AND id = ?", userID, id).Delete(&entities.Progress{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteProgress removes the stored progress for a user's document.
func (r *Repository) DeleteProgress(userID uint, document string) error {
	return r.db.Where("user_id = ? AND document = ?", userID, document).
		Delete(&entities.Progress{}).Error
}

// DeleteStale removes progress rows that have not synced since the
// cutoff. Returns the number of rows removed.
func (r *Repository) DeleteStale(before time.Time) (int64, error) {
	result := r.db.Where("last_sync_at < ?", before).Delete(&entities.Progress{})
	return result.RowsAffected, result.Error
}

// CountForUser returns the number of documents a user has synced.
func (r *Repository) CountForUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Progress{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
