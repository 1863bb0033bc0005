package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/database/statistics"
)

// StatisticsController serves parsed KOReader reading statistics.
type StatisticsController struct {
	repo *statistics.Repository
}

func NewStatisticsController(repo *statistics.Repository) *StatisticsController {
	return &StatisticsController{repo: repo}
}

// List handles GET /api/statistics. Administrators see records across
// all users; everyone else only their own.
func (s *StatisticsController) List(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 100)

	opts := statistics.ListOptions{
		Device: c.Query("device"),
		Title:  c.Query("title"),
		Limit:  limit,
		Offset: offset,
	}
	if !auth.IsAdmin(c) {
		userID := GetUserID(c)
		opts.UserID = &userID
	}

	records, total, err := s.repo.List(opts)
	if err != nil {
		respondInternalError(c, err, "list statistics")
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(records)) < total,
	})
}

// Summary handles GET /api/statistics/summary.
func (s *StatisticsController) Summary(c *gin.Context) {
	summary, err := s.repo.GetSummaryForUser(GetUserID(c))
	if err != nil {
		respondInternalError(c, err, "statistics summary")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_books":        summary.TotalBooks,
		"finished_books":     summary.FinishedBooks,
		"total_read_seconds": summary.TotalReadSeconds,
		"total_read_pages":   summary.TotalReadPages,
	})
}
