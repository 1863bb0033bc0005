package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/kompanion/kompanion/internal/covers"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/epub"
)

// ExtractMetadataTask reads embedded metadata and the cover image out of
// an uploaded EPUB and fills in the book record. UserFields lists the
// fields the uploader set explicitly; those are never overwritten.
type ExtractMetadataTask struct {
	BookID     uint     `json:"book_id"`
	UserFields []string `json:"user_fields,omitempty"`
}

// Config returns the queue configuration for metadata extraction tasks.
func (t ExtractMetadataTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "extract_metadata",
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

// ExtractMetadataProcessor creates a processor function for ExtractMetadataTask.
func ExtractMetadataProcessor(booksRepo *books.Repository, coverStore *covers.Store) backlite.QueueProcessor[ExtractMetadataTask] {
	return func(ctx context.Context, task ExtractMetadataTask) error {
		book, err := booksRepo.GetBookByID(task.BookID)
		if err != nil {
			return fmt.Errorf("load book %d: %w", task.BookID, err)
		}

		if book.FileFormat != "epub" {
			log.Printf("[TASK] Book %d is %s, skipping metadata extraction", book.ID, book.FileFormat)
			return nil
		}

		meta, err := epub.Extract(book.StoragePath)
		if err != nil {
			return fmt.Errorf("extract metadata from book %d: %w", task.BookID, err)
		}

		userSet := make(map[string]bool, len(task.UserFields))
		for _, f := range task.UserFields {
			userSet[f] = true
		}

		// Embedded metadata wins over filename guesses, but never blanks
		// out a field the file doesn't carry and never replaces a value
		// the uploader typed in.
		if meta.Title != "" && !userSet["title"] {
			book.Title = meta.Title
		}
		if meta.Author != "" && !userSet["author"] {
			book.Author = meta.Author
		}
		if meta.Language != "" {
			book.Language = meta.Language
		}
		if meta.ISBN != "" {
			book.ISBN = meta.ISBN
		}
		if meta.Publisher != "" {
			book.Publisher = meta.Publisher
		}
		if meta.Description != "" {
			book.Description = meta.Description
		}
		if meta.Series != "" && !userSet["series"] {
			book.Series = meta.Series
			book.SeriesIndex = meta.SeriesIndex
		}
		if meta.PublishedDate != nil {
			book.PublishedDate = meta.PublishedDate
		}

		if data, _, err := epub.ExtractCover(book.StoragePath); err == nil {
			coverPath, thumbPath, err := coverStore.Save(book.ID, data)
			if err != nil {
				log.Printf("[TASK] Cover processing failed for book %d: %v", book.ID, err)
			} else {
				book.HasCover = true
				book.CoverPath = coverPath
				book.ThumbnailPath = thumbPath
			}
		} else if !errors.Is(err, epub.ErrNoCover) {
			log.Printf("[TASK] Cover extraction failed for book %d: %v", book.ID, err)
		}

		if err := booksRepo.UpdateBook(book); err != nil {
			return fmt.Errorf("update book %d: %w", task.BookID, err)
		}

		log.Printf("[TASK] Extracted metadata for book %d (%s)", book.ID, book.Title)
		return nil
	}
}

// NewExtractMetadataQueue creates a backlite queue for metadata extraction tasks.
func NewExtractMetadataQueue(booksRepo *books.Repository, coverStore *covers.Store) backlite.Queue {
	return backlite.NewQueue(ExtractMetadataProcessor(booksRepo, coverStore))
}
