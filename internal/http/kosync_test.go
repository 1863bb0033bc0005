package http

import (
	"encoding/json"
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
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/database/devices"
	"github.com/kompanion/kompanion/internal/database/progress"
	"github.com/kompanion/kompanion/internal/database/users"
)

func setupKosyncTest(t *testing.T) (*gin.Engine, *auth.Service, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := "./test_kosync_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	authCfg := config.Auth{
		Mode:       config.AuthModeLocal,
		BcryptCost: bcrypt.MinCost,
	}
	authService := auth.NewService(db.DB, authCfg)
	middleware := auth.NewMiddleware(authService, nil, authCfg)

	controller := NewKosyncController(
		authService,
		users.NewRepository(db.DB),
		progress.NewRepository(db.DB),
		devices.NewRepository(db.DB),
		books.NewRepository(db.DB),
		nil,
	)

	router := gin.New()
	router.POST("/users/create", controller.CreateUser)
	authed := router.Group("", middleware.KosyncAuth())
	authed.POST("/users/auth", controller.AuthUser)
	authed.PUT("/syncs/progress", controller.UpdateProgress)
	authed.GET("/syncs/progress/:document", controller.GetProgress)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return router, authService, cleanup
}

func kosyncRequest(method, path, body string) *http.Request {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestKosyncController_CreateUser(t *testing.T) {
	t.Run("registers a new user", func(t *testing.T) {
		router, _, cleanup := setupKosyncTest(t)
		defer cleanup()

		w := httptest.NewRecorder()
		body := `{"username": "reader", "password": "` + auth.KosyncHash("secret") + `"}`
		router.ServeHTTP(w, kosyncRequest("POST", "/users/create", body))

		assert.Equal(t, http.StatusCreated, w.Code)

		var response map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "reader", response["username"])
	})

	t.Run("returns 402 for duplicate username", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()

		_, err := svc.RegisterKosyncUser("reader", auth.KosyncHash("secret"))
		require.NoError(t, err)

		w := httptest.NewRecorder()
		body := `{"username": "reader", "password": "` + auth.KosyncHash("other") + `"}`
		router.ServeHTTP(w, kosyncRequest("POST", "/users/create", body))

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Contains(t, w.Body.String(), "already registered")
	})

	t.Run("returns 400 for empty username", func(t *testing.T) {
		router, _, cleanup := setupKosyncTest(t)
		defer cleanup()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, kosyncRequest("POST", "/users/create", `{"username": "", "password": "x"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestKosyncController_AuthUser(t *testing.T) {
	t.Run("accepts valid credentials", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()

		_, err := svc.RegisterKosyncUser("reader", auth.KosyncHash("secret"))
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := kosyncRequest("POST", "/users/auth", "")
		req.Header.Set("X-Auth-User", "reader")
		req.Header.Set("X-Auth-Key", auth.KosyncHash("secret"))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"authorized":"OK"`)
	})

	t.Run("records the login time", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()

		created, err := svc.RegisterKosyncUser("reader", auth.KosyncHash("secret"))
		require.NoError(t, err)
		require.Nil(t, created.LastLoginAt)

		w := httptest.NewRecorder()
		req := kosyncRequest("POST", "/users/auth", "")
		req.Header.Set("X-Auth-User", "reader")
		req.Header.Set("X-Auth-Key", auth.KosyncHash("secret"))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		user, err := svc.GetUserByID(created.ID)
		require.NoError(t, err)
		assert.NotNil(t, user.LastLoginAt)
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()

		_, err := svc.RegisterKosyncUser("reader", auth.KosyncHash("secret"))
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := kosyncRequest("POST", "/users/auth", "")
		req.Header.Set("X-Auth-User", "reader")
		req.Header.Set("X-Auth-Key", auth.KosyncHash("wrong"))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Unauthorized")
	})

	t.Run("rejects missing headers", func(t *testing.T) {
		router, _, cleanup := setupKosyncTest(t)
		defer cleanup()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, kosyncRequest("POST", "/users/auth", ""))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestKosyncController_Progress(t *testing.T) {
	register := func(t *testing.T, svc *auth.Service) (string, string) {
		t.Helper()
		_, err := svc.RegisterKosyncUser("reader", auth.KosyncHash("secret"))
		require.NoError(t, err)
		return "reader", auth.KosyncHash("secret")
	}

	t.Run("stores and returns progress", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()
		user, key := register(t, svc)

		body := `{
			"document": "a1b2c3d4e5f6",
			"progress": "/body/DocFragment[11]/body/p[4]",
			"percentage": 0.42,
			"device": "kobo-libra",
			"device_id": "DEADBEEF"
		}`
		w := httptest.NewRecorder()
		req := kosyncRequest("PUT", "/syncs/progress", body)
		req.Header.Set("X-Auth-User", user)
		req.Header.Set("X-Auth-Key", key)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var pushed map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pushed))
		assert.Equal(t, "a1b2c3d4e5f6", pushed["document"])
		assert.NotEmpty(t, pushed["timestamp"])

		w = httptest.NewRecorder()
		req = kosyncRequest("GET", "/syncs/progress/a1b2c3d4e5f6", "")
		req.Header.Set("X-Auth-User", user)
		req.Header.Set("X-Auth-Key", key)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var fetched map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
		assert.Equal(t, "a1b2c3d4e5f6", fetched["document"])
		assert.Equal(t, "/body/DocFragment[11]/body/p[4]", fetched["progress"])
		assert.Equal(t, 0.42, fetched["percentage"])
		assert.Equal(t, "kobo-libra", fetched["device"])
	})

	t.Run("second push overwrites the first", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()
		user, key := register(t, svc)

		push := func(progress, percentage string) {
			body := `{"document": "doc-1", "progress": "` + progress + `", "percentage": ` + percentage + `, "device": "kindle"}`
			w := httptest.NewRecorder()
			req := kosyncRequest("PUT", "/syncs/progress", body)
			req.Header.Set("X-Auth-User", user)
			req.Header.Set("X-Auth-Key", key)
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
		}

		push("10", "0.10")
		push("25", "0.25")

		w := httptest.NewRecorder()
		req := kosyncRequest("GET", "/syncs/progress/doc-1", "")
		req.Header.Set("X-Auth-User", user)
		req.Header.Set("X-Auth-Key", key)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var fetched map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
		assert.Equal(t, "25", fetched["progress"])
	})

	t.Run("returns 404 for unknown document", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()
		user, key := register(t, svc)

		w := httptest.NewRecorder()
		req := kosyncRequest("GET", "/syncs/progress/missing", "")
		req.Header.Set("X-Auth-User", user)
		req.Header.Set("X-Auth-Key", key)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Document not found")
	})

	t.Run("rejects progress without document", func(t *testing.T) {
		router, svc, cleanup := setupKosyncTest(t)
		defer cleanup()
		user, key := register(t, svc)

		w := httptest.NewRecorder()
		req := kosyncRequest("PUT", "/syncs/progress", `{"progress": "12"}`)
		req.Header.Set("X-Auth-User", user)
		req.Header.Set("X-Auth-Key", key)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
