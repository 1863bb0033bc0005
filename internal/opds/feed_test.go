package opds

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/entities"
)

func testBuilder() *Builder {
	return NewBuilder(config.OPDS{
		Title:    "Test Library",
		Subtitle: "A test catalog",
		Author:   "Tester",
		PageSize: 2,
	}, "/opds")
}

func TestRootFeed(t *testing.T) {
	feed := testBuilder().RootFeed()

	assert.Equal(t, "Test Library", feed.Title)
	assert.Equal(t, "A test catalog", feed.Subtitle)
	require.Len(t, feed.Entries, 3)

	titles := []string{feed.Entries[0].Title, feed.Entries[1].Title, feed.Entries[2].Title}
	assert.Contains(t, titles, "All Books")
	assert.Contains(t, titles, "Recently Added")
	assert.Contains(t, titles, "Popular")

	var hasSearch bool
	for _, l := range feed.Links {
		if l.Rel == RelSearch {
			hasSearch = true
			assert.Contains(t, l.Href, "{searchTerms}")
		}
	}
	assert.True(t, hasSearch)
}

func testBooks() []entities.Book {
	published := time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC)
	return []entities.Book{
		{
			ID:            1,
			Title:         "Dune",
			Author:        "Frank Herbert",
			Description:   "A desert planet novel.",
			Language:      "en",
			ISBN:          "9780441013593",
			FileFormat:    "epub",
			HasCover:      true,
			PublishedDate: &published,
			UpdatedAt:     time.Now(),
		},
		{
			ID:         2,
			Title:      "Neuromancer",
			Author:     "William Gibson",
			FileFormat: "mobi",
			UpdatedAt:  time.Now(),
		},
	}
}

func TestAcquisitionFeed_Entries(t *testing.T) {
	feed := testBuilder().AcquisitionFeed("urn:test:all", "All Books", "/opds/all", testBooks(), 2, 0)

	require.Len(t, feed.Entries, 2)
	assert.Equal(t, 2, feed.TotalResults)
	assert.Equal(t, 2, feed.ItemsPerPage)

	dune := feed.Entries[0]
	assert.Equal(t, "urn:kompanion:book:1", dune.ID)
	require.NotNil(t, dune.Author)
	assert.Equal(t, "Frank Herbert", dune.Author.Name)
	assert.Equal(t, "1965-08-01", dune.Issued)

	var acq, cover, thumb bool
	for _, l := range dune.Links {
		switch l.Rel {
		case RelAcquisition:
			acq = true
			assert.Equal(t, "application/epub+zip", l.Type)
			assert.Equal(t, "/api/books/1/download", l.Href)
		case RelCover:
			cover = true
		case RelThumbnail:
			thumb = true
		}
	}
	assert.True(t, acq)
	assert.True(t, cover)
	assert.True(t, thumb)

	// Entry without a cover has only the acquisition link
	neuro := feed.Entries[1]
	assert.Len(t, neuro.Links, 1)
	assert.Equal(t, "application/x-mobipocket-ebook", neuro.Links[0].Type)
}

func TestAcquisitionFeed_Pagination(t *testing.T) {
	b := testBuilder()

	// First page of 5 results with page size 2
	feed := b.AcquisitionFeed("urn:test:all", "All Books", "/opds/all", testBooks(), 5, 0)
	assert.True(t, hasLinkRel(feed.Links, RelNext))
	assert.False(t, hasLinkRel(feed.Links, RelPrev))

	// Middle page
	feed = b.AcquisitionFeed("urn:test:all", "All Books", "/opds/all", testBooks(), 5, 2)
	assert.True(t, hasLinkRel(feed.Links, RelNext))
	assert.True(t, hasLinkRel(feed.Links, RelPrev))

	// Last page
	feed = b.AcquisitionFeed("urn:test:all", "All Books", "/opds/all", testBooks()[:1], 5, 4)
	assert.False(t, hasLinkRel(feed.Links, RelNext))
	assert.True(t, hasLinkRel(feed.Links, RelPrev))
}

func hasLinkRel(links []Link, rel string) bool {
	for _, l := range links {
		if l.Rel == rel {
			return true
		}
	}
	return false
}

func TestMarshal_ProducesValidXML(t *testing.T) {
	feed := testBuilder().AcquisitionFeed("urn:test:all", "All Books", "/opds/all", testBooks(), 2, 0)

	data, err := Marshal(feed)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), xml.Header))
	assert.Contains(t, string(data), `xmlns="http://www.w3.org/2005/Atom"`)

	var parsed Feed
	require.NoError(t, xml.Unmarshal(data, &parsed))
	assert.Equal(t, "All Books", parsed.Title)
	assert.Len(t, parsed.Entries, 2)
}
