// Package statistics provides database operations for parsed KOReader
// reading statistics uploaded over WebDAV.
package statistics

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/entities"
)

// Repository handles all reading statistics database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new statistics repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert stores a statistics record, keyed by the WebDAV path it was
// uploaded to so re-uploads of the same file update in place.
func (r *Repository) Upsert(stat *entities.ReadingStatistic) (*entities.ReadingStatistic, error) {
	if stat.WebDAVPath == "" {
		if err := r.db.Create(stat).Error; err != nil {
			return nil, err
		}
		return stat, nil
	}

	var existing entities.ReadingStatistic
	err := r.db.Where("webdav_path = ?", stat.WebDAVPath).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if err := r.db.Create(stat).Error; err != nil {
			return nil, err
		}
		return stat, nil
	}
	if err != nil {
		return nil, err
	}

	stat.ID = existing.ID
	stat.CreatedAt = existing.CreatedAt
	if err := r.db.Save(stat).Error; err != nil {
		return nil, err
	}
	return stat, nil
}

// GetByID retrieves a statistics record by ID.
func (r *Repository) GetByID(id uint) (*entities.ReadingStatistic, error) {
	var stat entities.ReadingStatistic
	err := r.db.First(&stat, id).Error
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// ListOptions control pagination and filtering of statistics listings.
// A nil UserID lists records across all users.
type ListOptions struct {
	UserID *uint
	Device string // substring match on device name
	Title  string // substring match on book title
	Limit  int
	Offset int
}

// List retrieves paginated statistics matching the options, most
// recently read first, plus the total count before pagination.
func (r *Repository) List(opts ListOptions) ([]entities.ReadingStatistic, int64, error) {
	var stats []entities.ReadingStatistic
	var total int64

	query := r.db.Model(&entities.ReadingStatistic{})
	if opts.UserID != nil {
		query = query.Where("user_id = ?", *opts.UserID)
	}
	if opts.Device != "" {
		query = query.Where("LOWER(device_name) LIKE ?", "%"+strings.ToLower(opts.Device)+"%")
	}
	if opts.Title != "" {
		query = query.Where("LOWER(book_title) LIKE ?", "%"+strings.ToLower(opts.Title)+"%")
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	err := query.Order("last_read_at DESC").Limit(limit).Offset(opts.Offset).Find(&stats).Error
	return stats, total, err
}

// GetForUser retrieves paginated statistics for a user, most recently
// read first.
func (r *Repository) GetForUser(userID uint, limit, offset int) ([]entities.ReadingStatistic, int64, error) {
	return r.List(ListOptions{UserID: &userID, Limit: limit, Offset: offset})
}

// GetForBook retrieves statistics linked to a library book.
func (r *Repository) GetForBook(bookID uint) ([]entities.ReadingStatistic, error) {
	var stats []entities.ReadingStatistic
	err := r.db.Where("book_id = ?", bookID).
		Order("last_read_at DESC").Find(&stats).Error
	return stats, err
}

// Summary aggregates reading time and book counts for a user.
type Summary struct {
	TotalBooks       int64
	FinishedBooks    int64
	TotalReadSeconds int64
	TotalReadPages   int64
}

// GetSummaryForUser computes aggregate reading numbers for the dashboard.
func (r *Repository) GetSummaryForUser(userID uint) (*Summary, error) {
	var s Summary
	base := r.db.Model(&entities.ReadingStatistic{}).Where("user_id = ?", userID)

	if err := base.Session(&gorm.Session{}).Count(&s.TotalBooks).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("progress_percent >= ?", 100.0).Count(&s.FinishedBooks).Error; err != nil {
		return nil, err
	}
	row := base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(total_read_seconds), 0), COALESCE(SUM(read_pages), 0)").Row()
	if err := row.Scan(&s.TotalReadSeconds, &s.TotalReadPages); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteOlderThan removes statistics not updated since the cutoff.
func (r *Repository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("updated_at < ?", before).Delete(&entities.ReadingStatistic{})
	return result.RowsAffected, result.Error
}
