package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/database"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/entities"
)

func setupOPDSTest(t *testing.T) (*gin.Engine, *books.Repository, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := "./test_opds_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	repo := books.NewRepository(db.DB)
	controller := NewOPDSController(repo, config.OPDS{
		Title:    "Test Library",
		Subtitle: "Testing",
		Author:   "Tester",
		PageSize: 20,
	})

	router := gin.New()
	router.GET("/opds", controller.Root)
	router.GET("/opds/all", controller.All)
	router.GET("/opds/recent", controller.Recent)
	router.GET("/opds/popular", controller.Popular)
	router.GET("/opds/search", controller.Search)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return router, repo, cleanup
}

func TestOPDSController_Root(t *testing.T) {
	router, _, cleanup := setupOPDSTest(t)
	defer cleanup()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/opds", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/atom+xml")
	assert.Contains(t, w.Body.String(), "Test Library")
	assert.Contains(t, w.Body.String(), "/opds/all")
	assert.Contains(t, w.Body.String(), "/opds/recent")
}

func TestOPDSController_All(t *testing.T) {
	router, repo, cleanup := setupOPDSTest(t)
	defer cleanup()

	book := entities.Book{
		Title:       "Dune",
		Author:      "Frank Herbert",
		FileFormat:  "epub",
		FileHash:    "h1",
		IsAvailable: true,
	}
	require.NoError(t, repo.CreateBook(&book))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/opds/all", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Dune")
	assert.Contains(t, body, "Frank Herbert")
	assert.Contains(t, body, "application/epub+zip")
	assert.Contains(t, body, "/api/books/1/download")
}

func TestOPDSController_Search(t *testing.T) {
	router, repo, cleanup := setupOPDSTest(t)
	defer cleanup()

	for _, title := range []string{"Dune", "Hyperion"} {
		book := entities.Book{Title: title, FileFormat: "epub", FileHash: title, IsAvailable: true}
		require.NoError(t, repo.CreateBook(&book))
	}

	t.Run("matches by title", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/opds/search?q=dune", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Dune")
		assert.NotContains(t, w.Body.String(), "Hyperion")
	})

	t.Run("empty query returns an empty feed", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/opds/search", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "Dune")
	})
}
