package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/entities"
)

// AuditController exposes the audit trail to administrators.
type AuditController struct {
	service *audit.Service
}

func NewAuditController(service *audit.Service) *AuditController {
	return &AuditController{service: service}
}

// List handles GET /api/audit. Pass ?user_id= to scope to one user and
// ?type= to filter by event type.
func (a *AuditController) List(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 200)

	var userID uint
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			respondBadRequest(c, "invalid user_id")
			return
		}
		userID = uint(id)
	}

	var events []entities.AuditEvent
	var total int64
	var err error
	if t := c.Query("type"); t != "" {
		events, total, err = a.service.GetEventsByType(entities.AuditEventType(t), userID, limit, offset)
	} else {
		events, total, err = a.service.GetEvents(userID, limit, offset)
	}
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    events,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(events)) < total,
	})
}
