package http

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/covers"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/entities"
	"github.com/kompanion/kompanion/internal/metrics"
	"github.com/kompanion/kompanion/internal/tasks"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BooksController serves the library management API: upload, listing,
// download and covers.
type BooksController struct {
	repo       *books.Repository
	coverStore *covers.Store
	taskClient *tasks.Client
	auditor    *audit.Service
	storage    config.Storage
}

func NewBooksController(repo *books.Repository, coverStore *covers.Store, taskClient *tasks.Client, auditor *audit.Service, storage config.Storage) *BooksController {
	return &BooksController{
		repo:       repo,
		coverStore: coverStore,
		taskClient: taskClient,
		auditor:    auditor,
		storage:    storage,
	}
}

// Upload handles POST /api/books/upload (multipart).
func (b *BooksController) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "file is required")
		return
	}

	if b.storage.MaxFileSize > 0 && fileHeader.Size > b.storage.MaxFileSize {
		respondError(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileHeader.Filename)), ".")
	if !config.IsSupportedFormat(format) {
		respondBadRequest(c, fmt.Sprintf("unsupported file format %q", format))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		respondInternalError(c, err, "open upload")
		return
	}
	defer src.Close()

	hasher := sha256.New()
	data, err := io.ReadAll(io.TeeReader(src, hasher))
	if err != nil {
		respondInternalError(c, err, "read upload")
		return
	}
	hash := hex.EncodeToString(hasher.Sum(nil))

	if existing, err := b.repo.GetBookByHash(hash); err == nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "book already exists",
			Code:    "duplicate",
			Details: gin.H{"book_id": existing.ID},
		})
		return
	}

	if err := os.MkdirAll(b.storage.Dir, 0755); err != nil {
		respondInternalError(c, err, "storage dir")
		return
	}

	storagePath := filepath.Join(b.storage.Dir, hash[:16]+"_"+sanitizeFilename(fileHeader.Filename))
	if err := os.WriteFile(storagePath, data, 0644); err != nil {
		respondInternalError(c, err, "store upload")
		return
	}

	book := &entities.Book{
		Title:        strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename)),
		Filename:     fileHeader.Filename,
		FileFormat:   format,
		FileSize:     fileHeader.Size,
		FileHash:     hash,
		StoragePath:  storagePath,
		IsAvailable:  true,
		UploadedByID: GetUserID(c),
	}

	// Explicit form fields win over anything extracted later.
	var userFields []string
	if v := c.PostForm("title"); v != "" {
		book.Title = v
		userFields = append(userFields, "title")
	}
	if v := c.PostForm("author"); v != "" {
		book.Author = v
		userFields = append(userFields, "author")
	}
	book.Genre = c.PostForm("genre")
	if v := c.PostForm("series"); v != "" {
		book.Series = v
		userFields = append(userFields, "series")
	}

	if err := b.repo.CreateBook(book); err != nil {
		os.Remove(storagePath)
		respondInternalError(c, err, "create book")
		return
	}

	if b.taskClient != nil && format == "epub" {
		task := tasks.ExtractMetadataTask{BookID: book.ID, UserFields: userFields}
		if _, err := b.taskClient.Add(task).Save(); err != nil {
			respondInternalError(c, err, "enqueue metadata extraction")
			return
		}
	}

	metrics.CountUpload(format)
	if b.auditor != nil {
		b.auditor.LogUpload(GetUserID(c), book.ID, book.Title, c.ClientIP(), nil)
	}
	respondCreated(c, book)
}

// List handles GET /api/books.
func (b *BooksController) List(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 100)
	opts := books.ListOptions{
		Query:  c.Query("q"),
		Author: c.Query("author"),
		Format: c.Query("format"),
		Genre:  c.Query("genre"),
		Sort:   c.Query("sort"),
		Limit:  limit,
		Offset: offset,
	}

	items, total, err := b.repo.ListBooks(opts)
	if err != nil {
		respondInternalError(c, err, "list books")
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(items)) < total,
	})
}

// Get handles GET /api/books/:id.
func (b *BooksController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := b.repo.GetBookByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "book")
			return
		}
		respondInternalError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	ISBN        *string `json:"isbn"`
	Description *string `json:"description"`
	Publisher   *string `json:"publisher"`
	Language    *string `json:"language"`
	Genre       *string `json:"genre"`
	Series      *string `json:"series"`
	SeriesIndex *int    `json:"series_index"`
	IsAvailable *bool   `json:"is_available"`
}

// Update handles PUT /api/books/:id.
func (b *BooksController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := b.repo.GetBookByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "book")
			return
		}
		respondInternalError(c, err, "get book")
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if req.Title != nil {
		book.Title = *req.Title
	}
	if req.Author != nil {
		book.Author = *req.Author
	}
	if req.ISBN != nil {
		book.ISBN = *req.ISBN
	}
	if req.Description != nil {
		book.Description = *req.Description
	}
	if req.Publisher != nil {
		book.Publisher = *req.Publisher
	}
	if req.Language != nil {
		book.Language = *req.Language
	}
	if req.Genre != nil {
		book.Genre = *req.Genre
	}
	if req.Series != nil {
		book.Series = *req.Series
	}
	if req.SeriesIndex != nil {
		book.SeriesIndex = *req.SeriesIndex
	}
	if req.IsAvailable != nil {
		book.IsAvailable = *req.IsAvailable
	}

	if err := b.repo.UpdateBook(book); err != nil {
		respondInternalError(c, err, "update book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// Delete handles DELETE /api/books/:id. With ?purge=true the stored
// file and covers are removed as well.
func (b *BooksController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := b.repo.GetBookByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "book")
			return
		}
		respondInternalError(c, err, "get book")
		return
	}

	if err := b.repo.DeleteBook(id); err != nil {
		respondInternalError(c, err, "delete book")
		return
	}

	if c.Query("purge") == "true" {
		if book.StoragePath != "" {
			_ = os.Remove(book.StoragePath)
		}
		if b.coverStore != nil {
			_ = b.coverStore.Remove(book.ID)
		}
	}

	if b.auditor != nil {
		b.auditor.LogDelete(GetUserID(c), "book", book.ID, book.Title)
	}
	respondSuccess(c, "book deleted")
}

// Download handles GET /api/books/:id/download.
func (b *BooksController) Download(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := b.repo.GetBookByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "book")
			return
		}
		respondInternalError(c, err, "get book")
		return
	}

	if !book.IsAvailable {
		respondError(c, http.StatusForbidden, "book is not available for download")
		return
	}
	if _, err := os.Stat(book.StoragePath); err != nil {
		respondNotFound(c, "book file")
		return
	}

	_ = b.repo.TouchDownload(book.ID)
	metrics.CountDownload(book.FileFormat)
	if b.auditor != nil {
		b.auditor.LogDownload(GetUserID(c), book.ID, book.Title, c.ClientIP())
	}

	c.Header("Content-Type", config.MimeTypeFor(book.FileFormat))
	c.Header("Content-Disposition", contentDisposition(book.Filename))
	c.File(book.StoragePath)
}

// Cover handles GET /api/books/:id/cover. Pass ?thumb=1 or
// ?size=thumbnail for the small variant.
func (b *BooksController) Cover(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := b.repo.GetBookByID(id)
	if err != nil || !book.HasCover {
		respondNotFound(c, "cover")
		return
	}

	path := book.CoverPath
	if c.Query("thumb") == "1" || c.Query("size") == "thumbnail" {
		path = book.ThumbnailPath
	}
	if _, err := os.Stat(path); err != nil {
		respondNotFound(c, "cover")
		return
	}

	c.Header("Content-Type", "image/jpeg")
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(path)
}

// Stats handles GET /api/books/stats.
func (b *BooksController) Stats(c *gin.Context) {
	totalBooks, totalDownloads, totalBytes, err := b.repo.GetStats()
	if err != nil {
		respondInternalError(c, err, "book stats")
		return
	}
	formats, err := b.repo.CountByFormat()
	if err != nil {
		respondInternalError(c, err, "book formats")
		return
	}
	authors, err := b.repo.TopAuthors(10)
	if err != nil {
		respondInternalError(c, err, "top authors")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_books":     totalBooks,
		"total_downloads": totalDownloads,
		"total_bytes":     totalBytes,
		"formats":         formats,
		"top_authors":     authors,
	})
}

// sanitizeFilename strips characters that are unsafe in stored filenames.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > 200 {
		name = name[len(name)-200:]
	}
	return name
}

// contentDisposition builds an attachment header with an RFC 5987
// encoded filename for non-ASCII names.
func contentDisposition(filename string) string {
	ascii := unsafeFilenameChars.ReplaceAllString(filename, "_")
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		ascii, url.PathEscape(filename))
}
