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
	"golang.org/x/crypto/bcrypt"

	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/database"
	"github.com/kompanion/kompanion/internal/webdav"
)

func setupWebDAVTest(t *testing.T) (*gin.Engine, func()) {
	return setupWebDAVTestWithConfig(t, config.WebDAV{
		Enabled:     true,
		MaxFileSize: 1024 * 1024,
	})
}

func setupWebDAVTestWithConfig(t *testing.T, cfg config.WebDAV) (*gin.Engine, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := "./test_webdav_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	authCfg := config.Auth{
		Mode:       config.AuthModeLocal,
		BcryptCost: bcrypt.MinCost,
	}
	authService := auth.NewService(db.DB, authCfg)
	_, err = authService.RegisterKosyncUser("reader", auth.KosyncHash("secret"))
	require.NoError(t, err)

	fs, err := webdav.NewFilesystem(t.TempDir())
	require.NoError(t, err)

	controller := NewWebDAVController(fs, nil, nil, cfg)

	router := gin.New()
	controller.RegisterRoutes(router, "/webdav", auth.NewMiddleware(authService, nil, authCfg))

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return router, cleanup
}

func davRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	req.SetBasicAuth("reader", "secret")
	return req
}

func TestWebDAVController_Auth(t *testing.T) {
	router, cleanup := setupWebDAVTest(t)
	defer cleanup()

	t.Run("challenges anonymous requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/webdav/statistics.json", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/webdav/statistics.json", nil)
		req.SetBasicAuth("reader", "wrong")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("accepts kosync headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("OPTIONS", "/webdav/", nil)
		req.Header.Set("X-Auth-User", "reader")
		req.Header.Set("X-Auth-Key", auth.KosyncHash("secret"))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestWebDAVController_Options(t *testing.T) {
	router, cleanup := setupWebDAVTest(t)
	defer cleanup()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, davRequest("OPTIONS", "/webdav/", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1, 2", w.Header().Get("DAV"))
	assert.Contains(t, w.Header().Get("Allow"), "PROPFIND")
}

func TestWebDAVController_PutGetDelete(t *testing.T) {
	router, cleanup := setupWebDAVTest(t)
	defer cleanup()

	payload := `[{"title": "Dune", "authors": "Frank Herbert", "pages": 500}]`

	t.Run("first put creates", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("PUT", "/webdav/statistics.json", payload))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("second put overwrites", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("PUT", "/webdav/statistics.json", payload))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("get returns the stored bytes", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("GET", "/webdav/statistics.json", ""))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, payload, w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	})

	t.Run("delete removes the file", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("DELETE", "/webdav/statistics.json", ""))
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("GET", "/webdav/statistics.json", ""))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete on a missing file is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("DELETE", "/webdav/never-existed.json", ""))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("path escape attempts are rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("PUT", "/webdav/..%2f..%2fescape.txt", "x"))
		assert.NotEqual(t, http.StatusCreated, w.Code)
	})
}

func TestWebDAVController_PutUnlimitedSize(t *testing.T) {
	router, cleanup := setupWebDAVTestWithConfig(t, config.WebDAV{Enabled: true})
	defer cleanup()

	payload := `{"title": "Dune", "pages": 500}`

	w := httptest.NewRecorder()
	router.ServeHTTP(w, davRequest("PUT", "/webdav/statistics.json", payload))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, davRequest("GET", "/webdav/statistics.json", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, w.Body.String())
}

func TestWebDAVController_PutTooLarge(t *testing.T) {
	router, cleanup := setupWebDAVTestWithConfig(t, config.WebDAV{Enabled: true, MaxFileSize: 8})
	defer cleanup()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, davRequest("PUT", "/webdav/statistics.json", strings.Repeat("x", 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestWebDAVController_Propfind(t *testing.T) {
	router, cleanup := setupWebDAVTest(t)
	defer cleanup()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, davRequest("PUT", "/webdav/statistics.json", `{}`))
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("depth 1 lists the collection", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := davRequest("PROPFIND", "/webdav/", "")
		req.Header.Set("Depth", "1")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusMultiStatus, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
		assert.Contains(t, w.Body.String(), "multistatus")
		assert.Contains(t, w.Body.String(), "statistics.json")
	})

	t.Run("depth 0 on a file returns its props", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := davRequest("PROPFIND", "/webdav/statistics.json", "")
		req.Header.Set("Depth", "0")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusMultiStatus, w.Code)
		assert.Contains(t, w.Body.String(), "getcontentlength")
		assert.Contains(t, w.Body.String(), "creationdate")
	})

	t.Run("missing resource is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := davRequest("PROPFIND", "/webdav/nope.txt", "")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWebDAVController_Mkcol(t *testing.T) {
	router, cleanup := setupWebDAVTest(t)
	defer cleanup()

	t.Run("creates a collection", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("MKCOL", "/webdav/stats", ""))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("existing collection is 405", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("MKCOL", "/webdav/stats", ""))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("missing parent is 409", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, davRequest("MKCOL", "/webdav/a/b/c", ""))
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
