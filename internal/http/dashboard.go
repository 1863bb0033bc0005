package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/database/devices"
	"github.com/kompanion/kompanion/internal/database/progress"
	"github.com/kompanion/kompanion/internal/database/statistics"
	"github.com/kompanion/kompanion/internal/database/users"
)

// DashboardController renders the server-side HTML pages.
type DashboardController struct {
	usersRepo    *users.Repository
	booksRepo    *books.Repository
	devicesRepo  *devices.Repository
	progressRepo *progress.Repository
	statsRepo    *statistics.Repository
}

func NewDashboardController(usersRepo *users.Repository, booksRepo *books.Repository, devicesRepo *devices.Repository, progressRepo *progress.Repository, statsRepo *statistics.Repository) *DashboardController {
	return &DashboardController{
		usersRepo:    usersRepo,
		booksRepo:    booksRepo,
		devicesRepo:  devicesRepo,
		progressRepo: progressRepo,
		statsRepo:    statsRepo,
	}
}

// Overview renders the landing page with library-wide counters.
func (d *DashboardController) Overview(c *gin.Context) {
	totalBooks, totalDownloads, totalBytes, err := d.booksRepo.GetStats()
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading library stats: %s", err.Error())
		return
	}

	totalUsers, _ := d.usersRepo.CountUsers()
	activeDevices, _ := d.devicesRepo.CountActiveSince(time.Now().Add(-7 * 24 * time.Hour))

	userID := GetUserID(c)
	recentProgress, _, err := d.progressRepo.GetProgressForUser(userID, 10, 0)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading sync activity: %s", err.Error())
		return
	}

	c.HTML(http.StatusOK, "overview", gin.H{
		"Title":          "Overview",
		"Username":       auth.GetUsername(c),
		"IsAdmin":        auth.IsAdmin(c),
		"TotalBooks":     totalBooks,
		"TotalDownloads": totalDownloads,
		"TotalBytes":     totalBytes,
		"TotalUsers":     totalUsers,
		"ActiveDevices":  activeDevices,
		"RecentProgress": recentProgress,
		"CSRFToken":      auth.GetCSRFToken(c),
	})
}

// Books renders the library page with search.
func (d *DashboardController) Books(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 100)
	query := c.Query("q")

	items, total, err := d.booksRepo.ListBooks(books.ListOptions{
		Query:  query,
		Sort:   c.Query("sort"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading books: %s", err.Error())
		return
	}

	c.HTML(http.StatusOK, "books", gin.H{
		"Title":     "Books",
		"Username":  auth.GetUsername(c),
		"IsAdmin":   auth.IsAdmin(c),
		"Books":     items,
		"Total":     total,
		"Query":     query,
		"Offset":    offset,
		"Limit":     limit,
		"CSRFToken": auth.GetCSRFToken(c),
	})
}

// Devices renders the devices page for the current user.
func (d *DashboardController) Devices(c *gin.Context) {
	userDevices, err := d.devicesRepo.GetDevicesForUser(GetUserID(c))
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading devices: %s", err.Error())
		return
	}

	c.HTML(http.StatusOK, "devices", gin.H{
		"Title":     "Devices",
		"Username":  auth.GetUsername(c),
		"IsAdmin":   auth.IsAdmin(c),
		"Devices":   userDevices,
		"CSRFToken": auth.GetCSRFToken(c),
	})
}

// Statistics renders the reading statistics page.
func (d *DashboardController) Statistics(c *gin.Context) {
	userID := GetUserID(c)
	records, total, err := d.statsRepo.GetForUser(userID, 50, 0)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading statistics: %s", err.Error())
		return
	}

	summary, err := d.statsRepo.GetSummaryForUser(userID)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading statistics: %s", err.Error())
		return
	}

	c.HTML(http.StatusOK, "statistics", gin.H{
		"Title":      "Reading Statistics",
		"Username":   auth.GetUsername(c),
		"IsAdmin":    auth.IsAdmin(c),
		"Records":    records,
		"Total":      total,
		"Summary":    summary,
		"TotalHours": summary.TotalReadSeconds / 3600,
		"CSRFToken":  auth.GetCSRFToken(c),
	})
}
