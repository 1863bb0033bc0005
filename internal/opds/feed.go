// Package opds builds OPDS 1.2 catalog feeds.
//
// OPDS is Atom with a few extension namespaces; KOReader's catalog
// browser consumes navigation feeds (links to other feeds) and
// acquisition feeds (book entries with download links).
package opds

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/entities"
)

// Media types for OPDS feeds and links.
const (
	TypeNavigation  = "application/atom+xml;profile=opds-catalog;kind=navigation"
	TypeAcquisition = "application/atom+xml;profile=opds-catalog;kind=acquisition"
	TypeSearch      = "application/opensearchdescription+xml"

	RelAcquisition = "http://opds-spec.org/acquisition"
	RelCover       = "http://opds-spec.org/image"
	RelThumbnail   = "http://opds-spec.org/image/thumbnail"
	RelSelf        = "self"
	RelStart       = "start"
	RelSearch      = "search"
	RelNext        = "next"
	RelPrev        = "previous"
)

// Feed is an Atom feed document with OPDS extensions.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	Xmlns        string   `xml:"xmlns,attr"`
	XmlnsDC      string   `xml:"xmlns:dc,attr"`
	XmlnsOS      string   `xml:"xmlns:opensearch,attr"`
	XmlnsOPDS    string   `xml:"xmlns:opds,attr"`
	ID           string   `xml:"id"`
	Title        string   `xml:"title"`
	Subtitle     string   `xml:"subtitle,omitempty"`
	Updated      string   `xml:"updated"`
	Author       *Author  `xml:"author,omitempty"`
	TotalResults int      `xml:"opensearch:totalResults,omitempty"`
	ItemsPerPage int      `xml:"opensearch:itemsPerPage,omitempty"`
	StartIndex   int      `xml:"opensearch:startIndex,omitempty"`
	Links        []Link   `xml:"link"`
	Entries      []Entry  `xml:"entry"`
}

type Author struct {
	Name string `xml:"name"`
	URI  string `xml:"uri,omitempty"`
}

type Link struct {
	Rel   string `xml:"rel,attr,omitempty"`
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr,omitempty"`
	Title string `xml:"title,attr,omitempty"`
}

type Entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Updated    string     `xml:"updated"`
	Author     *Author    `xml:"author,omitempty"`
	Summary    *Summary   `xml:"summary,omitempty"`
	Content    *Content   `xml:"content,omitempty"`
	Language   string     `xml:"dc:language,omitempty"`
	Publisher  string     `xml:"dc:publisher,omitempty"`
	Issued     string     `xml:"dc:issued,omitempty"`
	Identifier string     `xml:"dc:identifier,omitempty"`
	Categories []Category `xml:"category,omitempty"`
	Links      []Link     `xml:"link"`
}

type Category struct {
	Term  string `xml:"term,attr"`
	Label string `xml:"label,attr,omitempty"`
}

type Summary struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type Content struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Builder assembles feeds with catalog-wide settings applied.
type Builder struct {
	cfg     config.OPDS
	baseURL string
}

// NewBuilder creates a feed builder. baseURL is the path prefix the
// OPDS routes are mounted under, e.g. "/opds".
func NewBuilder(cfg config.OPDS, baseURL string) *Builder {
	return &Builder{cfg: cfg, baseURL: baseURL}
}

func (b *Builder) newFeed(id, title string) *Feed {
	return &Feed{
		Xmlns:     "http://www.w3.org/2005/Atom",
		XmlnsDC:   "http://purl.org/dc/terms/",
		XmlnsOS:   "http://a9.com/-/spec/opensearch/1.1/",
		XmlnsOPDS: "http://opds-spec.org/2010/catalog",
		ID:        id,
		Title:     title,
		Updated:   time.Now().UTC().Format(time.RFC3339),
		Author:    &Author{Name: b.cfg.Author},
		Links: []Link{
			{Rel: RelStart, Href: b.baseURL, Type: TypeNavigation},
			{Rel: RelSearch, Href: b.baseURL + "/search?q={searchTerms}", Type: TypeAcquisition, Title: "Search"},
		},
	}
}

// RootFeed builds the top-level navigation feed.
func (b *Builder) RootFeed() *Feed {
	feed := b.newFeed("urn:kompanion:catalog:root", b.cfg.Title)
	feed.Subtitle = b.cfg.Subtitle
	feed.Links = append(feed.Links,
		Link{Rel: RelSelf, Href: b.baseURL, Type: TypeNavigation})

	now := time.Now().UTC().Format(time.RFC3339)
	feed.Entries = []Entry{
		{
			ID:      "urn:kompanion:catalog:all",
			Title:   "All Books",
			Updated: now,
			Content: &Content{Type: "text", Value: "All books in the library, sorted by title"},
			Links:   []Link{{Rel: "subsection", Href: b.baseURL + "/all", Type: TypeAcquisition}},
		},
		{
			ID:      "urn:kompanion:catalog:recent",
			Title:   "Recently Added",
			Updated: now,
			Content: &Content{Type: "text", Value: "Latest additions to the library"},
			Links:   []Link{{Rel: "subsection", Href: b.baseURL + "/recent", Type: TypeAcquisition}},
		},
		{
			ID:      "urn:kompanion:catalog:popular",
			Title:   "Popular",
			Updated: now,
			Content: &Content{Type: "text", Value: "Most downloaded books"},
			Links:   []Link{{Rel: "subsection", Href: b.baseURL + "/popular", Type: TypeAcquisition}},
		},
	}
	return feed
}

// AcquisitionFeed builds a paginated book list feed.
func (b *Builder) AcquisitionFeed(id, title, selfPath string, books []entities.Book, total, offset int) *Feed {
	feed := b.newFeed(id, title)
	feed.TotalResults = total
	feed.ItemsPerPage = b.cfg.PageSize
	feed.StartIndex = offset
	feed.Links = append(feed.Links,
		Link{Rel: RelSelf, Href: selfPath, Type: TypeAcquisition})

	if offset+len(books) < total {
		feed.Links = append(feed.Links, Link{
			Rel:  RelNext,
			Href: fmt.Sprintf("%s?offset=%d", selfPath, offset+b.cfg.PageSize),
			Type: TypeAcquisition,
		})
	}
	if offset > 0 {
		prev := offset - b.cfg.PageSize
		if prev < 0 {
			prev = 0
		}
		feed.Links = append(feed.Links, Link{
			Rel:  RelPrev,
			Href: fmt.Sprintf("%s?offset=%d", selfPath, prev),
			Type: TypeAcquisition,
		})
	}

	for i := range books {
		feed.Entries = append(feed.Entries, b.bookEntry(&books[i]))
	}
	return feed
}

func (b *Builder) bookEntry(book *entities.Book) Entry {
	entry := Entry{
		ID:         fmt.Sprintf("urn:kompanion:book:%d", book.ID),
		Title:      book.Title,
		Updated:    book.UpdatedAt.UTC().Format(time.RFC3339),
		Language:   book.Language,
		Publisher:  book.Publisher,
		Identifier: book.ISBN,
		Links: []Link{
			{
				Rel:  RelAcquisition,
				Href: fmt.Sprintf("/api/books/%d/download", book.ID),
				Type: config.MimeTypeFor(book.FileFormat),
			},
		},
	}

	if book.Author != "" {
		entry.Author = &Author{Name: book.Author}
	}
	if book.Genre != "" {
		entry.Categories = append(entry.Categories, Category{Term: book.Genre, Label: book.Genre})
	}
	if book.Series != "" {
		entry.Categories = append(entry.Categories, Category{Term: book.Series, Label: book.Series})
	}
	if book.Description != "" {
		entry.Summary = &Summary{Type: "text", Value: book.Description}
	}
	if book.PublishedDate != nil {
		entry.Issued = book.PublishedDate.Format("2006-01-02")
	}
	if book.HasCover {
		entry.Links = append(entry.Links,
			Link{Rel: RelCover, Href: fmt.Sprintf("/api/books/%d/cover", book.ID), Type: "image/jpeg"},
			Link{Rel: RelThumbnail, Href: fmt.Sprintf("/api/books/%d/cover?thumb=1", book.ID), Type: "image/jpeg"},
		)
	}

	return entry
}

// Marshal renders the feed as an XML document.
func Marshal(feed *Feed) ([]byte, error) {
	body, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
