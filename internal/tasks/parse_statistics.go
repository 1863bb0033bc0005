package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/database/devices"
	"github.com/kompanion/kompanion/internal/database/statistics"
	"github.com/kompanion/kompanion/internal/entities"
	"github.com/kompanion/kompanion/internal/stats"
	"github.com/kompanion/kompanion/internal/webdav"
)

// ParseStatisticsTask parses a statistics export uploaded over WebDAV
// and stores the reading data it contains.
type ParseStatisticsTask struct {
	UserID     uint   `json:"user_id"`
	DeviceName string `json:"device_name,omitempty"`
	WebDAVPath string `json:"webdav_path"`
}

// Config returns the queue configuration for statistics parsing tasks.
func (t ParseStatisticsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "parse_statistics",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ParseStatisticsProcessor creates a processor function for ParseStatisticsTask.
// It re-reads the uploaded file from the WebDAV store so retries always
// see the latest version.
func ParseStatisticsProcessor(fs *webdav.Filesystem, statsRepo *statistics.Repository, booksRepo *books.Repository, devicesRepo *devices.Repository) backlite.QueueProcessor[ParseStatisticsTask] {
	return func(ctx context.Context, task ParseStatisticsTask) error {
		payload, err := fs.Read(task.UserID, task.WebDAVPath)
		if err != nil {
			return fmt.Errorf("read statistics file %s: %w", task.WebDAVPath, err)
		}

		parsed, err := stats.Parse(payload)
		if err != nil {
			return fmt.Errorf("parse statistics file %s: %w", task.WebDAVPath, err)
		}

		now := time.Now()
		for i, book := range parsed {
			// Re-uploads overwrite in place, keyed by path. Multi-book
			// exports get a per-book suffix so entries don't clobber
			// each other.
			storePath := task.WebDAVPath
			if len(parsed) > 1 {
				key := book.MD5
				if key == "" {
					key = fmt.Sprintf("%d", i)
				}
				storePath = task.WebDAVPath + "#" + key
			}

			record := &entities.ReadingStatistic{
				UserID:           &task.UserID,
				DeviceName:       task.DeviceName,
				BookTitle:        book.Title,
				BookAuthor:       book.Authors,
				FilePath:         book.FilePath,
				TotalPages:       book.Pages,
				CurrentPage:      book.CurrentPage,
				ReadPages:        book.ReadPages,
				ProgressPercent:  book.ProgressPercent(),
				TotalReadSeconds: book.TotalReadSeconds,
				LastReadAt:       book.LastOpen,
				Highlights:       book.Highlights,
				Notes:            book.Notes,
				WebDAVPath:       storePath,
				UploadedAt:       &now,
			}
			if len(parsed) == 1 {
				record.RawPayload = string(payload)
			}

			// The export's device_id names the reading device; the
			// User-Agent captured at upload is only a fallback.
			if book.DeviceID != "" {
				record.DeviceName = book.DeviceID
				if device, err := devicesRepo.GetOrCreate(task.UserID, book.DeviceID, book.DeviceID); err == nil {
					record.DeviceID = &device.ID
				} else {
					log.Printf("[TASK] Statistics device lookup failed for %q: %v", book.DeviceID, err)
				}
			}

			if book.Title != "" {
				if match, err := booksRepo.FindByTitleFragment(book.Title); err == nil {
					record.BookID = &match.ID
					if record.FilePath == "" {
						record.FilePath = match.StoragePath
					}
				} else if err != gorm.ErrRecordNotFound {
					log.Printf("[TASK] Statistics book lookup failed for %q: %v", book.Title, err)
				}
			}

			if _, err := statsRepo.Upsert(record); err != nil {
				return fmt.Errorf("store statistics for %q: %w", book.Title, err)
			}
		}

		log.Printf("[TASK] Parsed %d statistics record(s) from %s for user %d",
			len(parsed), task.WebDAVPath, task.UserID)
		return nil
	}
}

// NewParseStatisticsQueue creates a backlite queue for statistics parsing tasks.
func NewParseStatisticsQueue(fs *webdav.Filesystem, statsRepo *statistics.Repository, booksRepo *books.Repository, devicesRepo *devices.Repository) backlite.Queue {
	return backlite.NewQueue(ParseStatisticsProcessor(fs, statsRepo, booksRepo, devicesRepo))
}
