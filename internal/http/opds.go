package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/opds"
)

// OPDSController serves the catalog feeds KOReader's OPDS browser
// consumes.
type OPDSController struct {
	repo    *books.Repository
	builder *opds.Builder
	cfg     config.OPDS
}

func NewOPDSController(repo *books.Repository, cfg config.OPDS) *OPDSController {
	return &OPDSController{
		repo:    repo,
		builder: opds.NewBuilder(cfg, "/opds"),
		cfg:     cfg,
	}
}

// Root handles GET /opds.
func (o *OPDSController) Root(c *gin.Context) {
	o.writeFeed(c, o.builder.RootFeed(), opds.TypeNavigation)
}

// All handles GET /opds/all: the full catalog ordered by title.
func (o *OPDSController) All(c *gin.Context) {
	o.acquisition(c, "urn:kompanion:catalog:all", "All Books", "/opds/all", "")
}

// Recent handles GET /opds/recent: newest uploads first.
func (o *OPDSController) Recent(c *gin.Context) {
	o.acquisition(c, "urn:kompanion:catalog:recent", "Recently Added", "/opds/recent", "recent")
}

// Popular handles GET /opds/popular: most downloaded first.
func (o *OPDSController) Popular(c *gin.Context) {
	o.acquisition(c, "urn:kompanion:catalog:popular", "Popular", "/opds/popular", "popular")
}

// Search handles GET /opds/search?q=.
func (o *OPDSController) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		o.writeFeed(c, o.builder.AcquisitionFeed(
			"urn:kompanion:catalog:search", "Search", "/opds/search", nil, 0, 0), opds.TypeAcquisition)
		return
	}

	offset := o.offset(c)
	items, total, err := o.repo.ListBooks(books.ListOptions{
		Query:  query,
		Limit:  o.cfg.PageSize,
		Offset: offset,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "catalog error")
		return
	}

	feed := o.builder.AcquisitionFeed(
		"urn:kompanion:catalog:search", "Search: "+query, "/opds/search",
		items, int(total), offset)
	o.writeFeed(c, feed, opds.TypeAcquisition)
}

func (o *OPDSController) acquisition(c *gin.Context, id, title, selfPath, sort string) {
	offset := o.offset(c)
	items, total, err := o.repo.ListBooks(books.ListOptions{
		Sort:   sort,
		Limit:  o.cfg.PageSize,
		Offset: offset,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "catalog error")
		return
	}

	feed := o.builder.AcquisitionFeed(id, title, selfPath, items, int(total), offset)
	o.writeFeed(c, feed, opds.TypeAcquisition)
}

func (o *OPDSController) offset(c *gin.Context) int {
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		return v
	}
	return 0
}

func (o *OPDSController) writeFeed(c *gin.Context, feed *opds.Feed, contentType string) {
	body, err := opds.Marshal(feed)
	if err != nil {
		c.String(http.StatusInternalServerError, "catalog error")
		return
	}
	c.Data(http.StatusOK, contentType, body)
}
