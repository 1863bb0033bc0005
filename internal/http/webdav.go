package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/metrics"
	"github.com/kompanion/kompanion/internal/tasks"
	"github.com/kompanion/kompanion/internal/webdav"
)

// WebDAVController implements the subset of WebDAV the KOReader
// statistics plugin needs: OPTIONS, PROPFIND (depth 0/1), GET, PUT,
// DELETE and MKCOL. Each user gets an isolated directory tree.
type WebDAVController struct {
	fs         *webdav.Filesystem
	taskClient *tasks.Client
	auditor    *audit.Service
	cfg        config.WebDAV
}

func NewWebDAVController(fs *webdav.Filesystem, taskClient *tasks.Client, auditor *audit.Service, cfg config.WebDAV) *WebDAVController {
	return &WebDAVController{
		fs:         fs,
		taskClient: taskClient,
		auditor:    auditor,
		cfg:        cfg,
	}
}

// Options handles OPTIONS: advertises the supported DAV surface.
func (w *WebDAVController) Options(c *gin.Context) {
	c.Header("Allow", "OPTIONS, GET, PUT, DELETE, PROPFIND, MKCOL")
	c.Header("DAV", "1, 2")
	c.Header("MS-Author-Via", "DAV")
	c.Status(http.StatusOK)
}

// Propfind handles PROPFIND with Depth 0 or 1.
func (w *WebDAVController) Propfind(c *gin.Context) {
	userID := GetUserID(c)
	reqPath := c.Param("path")

	if err := w.fs.EnsureUserDir(userID); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	info, err := w.fs.Stat(userID, reqPath)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	depth := c.GetHeader("Depth")
	if depth == "" || depth == "infinity" {
		depth = "1"
	}

	ms := webdav.NewMultistatus()
	href := path.Join("/webdav", reqPath)
	if info.IsDir() {
		ms.AddCollection(href, info.ModTime())
		if depth == "1" {
			entries, err := w.fs.List(userID, reqPath)
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			for _, entry := range entries {
				childInfo, err := entry.Info()
				if err != nil {
					continue
				}
				childHref := path.Join(href, entry.Name())
				if entry.IsDir() {
					ms.AddCollection(childHref, childInfo.ModTime())
				} else {
					ms.AddFile(childHref, childInfo, contentTypeFor(entry.Name()))
				}
			}
		}
	} else {
		ms.AddFile(href, info, contentTypeFor(reqPath))
	}

	body, err := ms.Marshal()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusMultiStatus, `application/xml; charset="utf-8"`, body)
}

// Get handles GET: plain file download.
func (w *WebDAVController) Get(c *gin.Context) {
	userID := GetUserID(c)
	reqPath := c.Param("path")

	info, err := w.fs.Stat(userID, reqPath)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	if info.IsDir() {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	data, err := w.fs.Read(userID, reqPath)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, contentTypeFor(reqPath), data)
}

// Put handles PUT: stores the uploaded file and, for statistics
// exports, queues a parse task.
func (w *WebDAVController) Put(c *gin.Context) {
	userID := GetUserID(c)
	reqPath := c.Param("path")

	if w.cfg.MaxFileSize > 0 && c.Request.ContentLength > w.cfg.MaxFileSize {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}

	body := io.Reader(c.Request.Body)
	if w.cfg.MaxFileSize > 0 {
		body = io.LimitReader(body, w.cfg.MaxFileSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if w.cfg.MaxFileSize > 0 && int64(len(data)) > w.cfg.MaxFileSize {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}

	_, statErr := w.fs.Stat(userID, reqPath)
	existed := statErr == nil

	if err := w.fs.Write(userID, reqPath, data); err != nil {
		if errors.Is(err, webdav.ErrInvalidPath) {
			c.Status(http.StatusForbidden)
			return
		}
		c.Status(http.StatusInternalServerError)
		return
	}

	if w.taskClient != nil && looksLikeStatistics(reqPath) {
		_, _ = w.taskClient.Add(tasks.ParseStatisticsTask{
			UserID:     userID,
			DeviceName: c.GetHeader("User-Agent"),
			WebDAVPath: reqPath,
		}).Save()
		metrics.CountStatisticsUpload()
	}

	if w.auditor != nil {
		w.auditor.LogWebDAVPut(userID, reqPath, c.ClientIP(), len(data))
	}

	if existed {
		c.Status(http.StatusNoContent)
	} else {
		c.Status(http.StatusCreated)
	}
}

// Delete handles DELETE for files and empty directories.
func (w *WebDAVController) Delete(c *gin.Context) {
	userID := GetUserID(c)
	reqPath := c.Param("path")

	if _, err := w.fs.Stat(userID, reqPath); err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	if err := w.fs.Delete(userID, reqPath); err != nil {
		// os.Remove fails on non-empty directories.
		c.Status(http.StatusConflict)
		return
	}
	c.Status(http.StatusNoContent)
}

// Mkcol handles MKCOL.
func (w *WebDAVController) Mkcol(c *gin.Context) {
	userID := GetUserID(c)
	reqPath := c.Param("path")

	if err := w.fs.EnsureUserDir(userID); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	if _, err := w.fs.Stat(userID, reqPath); err == nil {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	if err := w.fs.Mkdir(userID, reqPath); err != nil {
		if errors.Is(err, webdav.ErrInvalidPath) {
			c.Status(http.StatusForbidden)
			return
		}
		if errors.Is(err, os.ErrNotExist) {
			// Missing parent collection.
			c.Status(http.StatusConflict)
			return
		}
		c.Status(http.StatusConflict)
		return
	}
	c.Status(http.StatusCreated)
}

// RegisterRoutes mounts the WebDAV methods under the given prefix.
func (w *WebDAVController) RegisterRoutes(router *gin.Engine, prefix string, authMW *auth.Middleware) {
	handlers := []gin.HandlerFunc{}
	if authMW != nil {
		handlers = append(handlers, webdavAuth(authMW))
	}

	group := router.Group(prefix, handlers...)
	group.Handle("OPTIONS", "/*path", w.Options)
	group.Handle("PROPFIND", "/*path", w.Propfind)
	group.GET("/*path", w.Get)
	group.PUT("/*path", w.Put)
	group.DELETE("/*path", w.Delete)
	group.Handle("MKCOL", "/*path", w.Mkcol)
}

// webdavAuth accepts either kosync headers or Basic credentials; the
// statistics plugin sends Basic, other KOReader plugins the headers.
func webdavAuth(authMW *auth.Middleware) gin.HandlerFunc {
	kosync := authMW.KosyncAuth()
	basic := authMW.BasicAuth("kompanion webdav")
	return func(c *gin.Context) {
		if c.GetHeader(auth.HeaderAuthUser) != "" {
			kosync(c)
			return
		}
		basic(c)
	}
}

// looksLikeStatistics reports whether a path plausibly holds a KOReader
// statistics export.
func looksLikeStatistics(p string) bool {
	lower := strings.ToLower(p)
	return strings.Contains(lower, "statistics") || strings.HasSuffix(lower, ".json")
}

func contentTypeFor(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
