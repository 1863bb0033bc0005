package books

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kompanion/kompanion/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	dbPath := "./test_books_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.User{}, &entities.Book{})
	require.NoError(t, err)

	repo := NewRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, cleanup
}

func seedBooks(t *testing.T, repo *Repository) {
	t.Helper()
	for _, b := range []entities.Book{
		{Title: "Dune", Author: "Frank Herbert", Genre: "science fiction", Publisher: "Ace Books", Description: "A desert planet novel.", FileFormat: "epub", FileHash: "hash-dune", FileSize: 1024, DownloadCount: 10, IsAvailable: true},
		{Title: "Dune Messiah", Author: "Frank Herbert", Genre: "science fiction", Publisher: "Putnam", FileFormat: "epub", FileHash: "hash-messiah", FileSize: 2048, DownloadCount: 3, IsAvailable: true},
		{Title: "Neuromancer", Author: "William Gibson", Genre: "cyberpunk", Publisher: "Ace Books", FileFormat: "mobi", FileHash: "hash-neuro", FileSize: 4096, DownloadCount: 7, IsAvailable: true},
	} {
		book := b
		require.NoError(t, repo.CreateBook(&book))
	}
}

func TestRepository_GetBookByHash(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	book, err := repo.GetBookByHash("hash-dune")

	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
}

func TestRepository_GetBookByHash_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetBookByHash("missing")

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_ListBooks_Search(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	books, total, err := repo.ListBooks(ListOptions{Query: "dune"})

	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, books, 2)
}

func TestRepository_ListBooks_SearchDescriptionAndPublisher(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	books, total, err := repo.ListBooks(ListOptions{Query: "desert planet"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)

	books, total, err = repo.ListBooks(ListOptions{Query: "ace books"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, books, 2)
}

func TestRepository_ListBooks_SearchGenre(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	books, total, err := repo.ListBooks(ListOptions{Query: "cyberpunk"})

	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, books, 1)
	assert.Equal(t, "Neuromancer", books[0].Title)
}

func TestRepository_ListBooks_GenreFilter(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	books, total, err := repo.ListBooks(ListOptions{Genre: "Science Fiction"})

	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, books, 2)
}

func TestRepository_ListBooks_FormatFilter(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	books, total, err := repo.ListBooks(ListOptions{Format: "mobi"})

	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, books, 1)
	assert.Equal(t, "Neuromancer", books[0].Title)
}

func TestRepository_ListBooks_PopularSort(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	books, _, err := repo.ListBooks(ListOptions{Sort: "popular"})

	require.NoError(t, err)
	require.Len(t, books, 3)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Neuromancer", books[1].Title)
}

func TestRepository_ListBooks_Pagination(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	page1, total, err := repo.ListBooks(ListOptions{Sort: "title", Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page1, 2)

	page2, _, err := repo.ListBooks(ListOptions{Sort: "title", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "Neuromancer", page2[0].Title)
}

func TestRepository_TouchDownload(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	book, err := repo.GetBookByHash("hash-messiah")
	require.NoError(t, err)

	require.NoError(t, repo.TouchDownload(book.ID))

	updated, err := repo.GetBookByID(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.DownloadCount)
	assert.NotNil(t, updated.LastDownloadedAt)
}

func TestRepository_FindByTitleFragment(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	book, err := repo.FindByTitleFragment("neuromancer")
	require.NoError(t, err)
	assert.Equal(t, "Neuromancer", book.Title)

	book, err = repo.FindByTitleFragment("Messiah")
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", book.Title)
}

func TestRepository_DeleteBook_SoftDeletes(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	book, err := repo.GetBookByHash("hash-dune")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteBook(book.ID))

	_, err = repo.GetBookByID(book.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, total, err := repo.ListBooks(ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestRepository_GetStats(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	totalBooks, totalDownloads, totalBytes, err := repo.GetStats()

	require.NoError(t, err)
	assert.EqualValues(t, 3, totalBooks)
	assert.EqualValues(t, 20, totalDownloads)
	assert.EqualValues(t, 7168, totalBytes)
}

func TestRepository_CountByFormat(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	counts, err := repo.CountByFormat()

	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "epub", counts[0].Format)
	assert.EqualValues(t, 2, counts[0].Count)
	assert.Equal(t, "mobi", counts[1].Format)
	assert.EqualValues(t, 1, counts[1].Count)
}

func TestRepository_TopAuthors(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedBooks(t, repo)

	authors, err := repo.TopAuthors(5)

	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Frank Herbert", authors[0].Author)
	assert.EqualValues(t, 2, authors[0].Count)
}
