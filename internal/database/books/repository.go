// Package books provides database operations for the book library.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, err := repo.GetBookByID(123)
package books

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/entities"
)

// ListOptions control pagination, filtering and ordering of book listings.
type ListOptions struct {
	Query  string // case-insensitive match on title, author, series, genre, description, publisher
	Author string
	Format string
	Genre  string
	Sort   string // "recent", "popular", "title", "author"
	Limit  int
	Offset int
}

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateBook inserts a new book record.
func (r *Repository) CreateBook(book *entities.Book) error {
	return r.db.Create(book).Error
}

// GetBookByID retrieves a book by its ID.
func (r *Repository) GetBookByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBookByHash retrieves a book by its file content hash. Used for
// duplicate detection on upload.
func (r *Repository) GetBookByHash(hash string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Where("file_hash = ?", hash).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// ListBooks retrieves books matching the options plus the total count
// before pagination.
func (r *Repository) ListBooks(opts ListOptions) ([]entities.Book, int64, error) {
	query := r.db.Model(&entities.Book{})

	if opts.Query != "" {
		pattern := "%" + strings.ToLower(opts.Query) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(series) LIKE ?"+
				" OR LOWER(genre) LIKE ? OR LOWER(description) LIKE ? OR LOWER(publisher) LIKE ?",
			pattern, pattern, pattern, pattern, pattern, pattern,
		)
	}
	if opts.Author != "" {
		query = query.Where("LOWER(author) = LOWER(?)", opts.Author)
	}
	if opts.Format != "" {
		query = query.Where("file_format = ?", strings.ToLower(opts.Format))
	}
	if opts.Genre != "" {
		query = query.Where("LOWER(genre) = LOWER(?)", opts.Genre)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch opts.Sort {
	case "recent":
		query = query.Order("created_at DESC")
	case "popular":
		query = query.Order("download_count DESC, title ASC")
	case "author":
		query = query.Order("author ASC, series ASC, series_index ASC, title ASC")
	default:
		query = query.Order("title ASC")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query = query.Limit(limit)
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var books []entities.Book
	err := query.Find(&books).Error
	return books, total, err
}

// UpdateBook saves changes to an existing book.
func (r *Repository) UpdateBook(book *entities.Book) error {
	return r.db.Save(book).Error
}

// TouchDownload bumps the download counter and timestamp for a book.
func (r *Repository) TouchDownload(bookID uint) error {
	now := time.Now()
	return r.db.Model(&entities.Book{}).Where("id = ?", bookID).
		Updates(map[string]interface{}{
			"last_downloaded_at": &now,
			"download_count":     gorm.Expr("download_count + 1"),
		}).Error
}

// DeleteBook soft-deletes a book. The stored file is removed separately.
func (r *Repository) DeleteBook(id uint) error {
	return r.db.Delete(&entities.Book{}, id).Error
}

// FindByTitleFragment looks up a book whose title loosely matches the
// fragment. KOReader statistics carry titles, not library IDs, so this
// match is best effort.
func (r *Repository) FindByTitleFragment(title string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Where("LOWER(title) = LOWER(?)", title).First(&book).Error
	if err == gorm.ErrRecordNotFound {
		pattern := "%" + strings.ToLower(title) + "%"
		err = r.db.Where("LOWER(title) LIKE ?", pattern).First(&book).Error
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetStats returns library-wide counters for the dashboard.
func (r *Repository) GetStats() (totalBooks int64, totalDownloads int64, totalBytes int64, err error) {
	err = r.db.Model(&entities.Book{}).Count(&totalBooks).Error
	if err != nil {
		return
	}
	row := r.db.Model(&entities.Book{}).
		Select("COALESCE(SUM(download_count), 0), COALESCE(SUM(file_size), 0)").Row()
	err = row.Scan(&totalDownloads, &totalBytes)
	return
}

// FormatCount is a per-format book tally.
type FormatCount struct {
	Format string `json:"format"`
	Count  int64  `json:"count"`
}

// CountByFormat returns book counts grouped by file format.
func (r *Repository) CountByFormat() ([]FormatCount, error) {
	var counts []FormatCount
	err := r.db.Model(&entities.Book{}).
		Select("file_format AS format, COUNT(*) AS count").
		Group("file_format").Order("count DESC").
		Scan(&counts).Error
	return counts, err
}

// AuthorCount is a per-author book tally.
type AuthorCount struct {
	Author string `json:"author"`
	Count  int64  `json:"count"`
}

// TopAuthors returns the authors with the most books, busiest first.
func (r *Repository) TopAuthors(limit int) ([]AuthorCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var counts []AuthorCount
	err := r.db.Model(&entities.Book{}).
		Select("author, COUNT(*) AS count").
		Where("author <> ''").
		Group("author").Order("count DESC").Limit(limit).
		Scan(&counts).Error
	return counts, err
}
