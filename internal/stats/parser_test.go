package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SingleBook(t *testing.T) {
	payload := []byte(`{
		"title": "Dune",
		"authors": "Frank Herbert",
		"md5": "85f2c5b1e7d8a9f3c4b6e2d1a0f9e8c7",
		"pages": 412,
		"current_page": 200,
		"total_time_in_sec": 36000,
		"highlights": 12,
		"notes": 3,
		"last_open": 1718000000,
		"performance_in_pages": {"1718000000": 198, "1718000100": 199, "1718000200": 200}
	}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	require.Len(t, books, 1)
	b := books[0]
	assert.Equal(t, "Dune", b.Title)
	assert.Equal(t, "Frank Herbert", b.Authors)
	assert.Equal(t, 412, b.Pages)
	assert.Equal(t, 200, b.CurrentPage)
	assert.Equal(t, 3, b.ReadPages)
	assert.EqualValues(t, 36000, b.TotalReadSeconds)
	assert.Equal(t, 12, b.Highlights)
	assert.Equal(t, 3, b.Notes)
	require.NotNil(t, b.LastOpen)
	assert.Equal(t, 2024, b.LastOpen.Year())
}

func TestParse_ProgressExportDialect(t *testing.T) {
	payload := []byte(`{
		"title": "Dune",
		"authors": "Frank Herbert",
		"file": "/books/dune.epub",
		"device_id": "kindle-pw5",
		"pages": 412,
		"page": 200,
		"percentage": 48.5,
		"time_spent_reading": 36000,
		"last_time": 1718000000
	}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	require.Len(t, books, 1)
	b := books[0]
	assert.Equal(t, 200, b.CurrentPage)
	assert.Equal(t, 200, b.ReadPages)
	assert.EqualValues(t, 36000, b.TotalReadSeconds)
	assert.Equal(t, "/books/dune.epub", b.FilePath)
	assert.Equal(t, "kindle-pw5", b.DeviceID)
	require.NotNil(t, b.LastOpen)
	assert.Equal(t, 2024, b.LastOpen.Year())
	assert.InDelta(t, 48.5, b.ProgressPercent(), 0.001)
}

func TestParse_LastTimeRFC3339(t *testing.T) {
	payload := []byte(`{"title": "Dune", "last_time": "2024-06-10T06:13:20Z"}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	require.NotNil(t, books[0].LastOpen)
	assert.Equal(t, 2024, books[0].LastOpen.Year())
	assert.Equal(t, time.June, books[0].LastOpen.Month())
}

func TestParse_ExplicitPercentageWinsOverPages(t *testing.T) {
	payload := []byte(`{"title": "Dune", "pages": 400, "page": 100, "percentage": 99}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	assert.InDelta(t, 99.0, books[0].ProgressPercent(), 0.001)
}

func TestParse_ArrayOfBooks(t *testing.T) {
	payload := []byte(`[
		{"title": "Dune", "pages": 412},
		{"title": "Neuromancer", "pages": 271}
	]`)

	books, err := Parse(payload)

	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Neuromancer", books[1].Title)
}

func TestParse_NumbersAsStrings(t *testing.T) {
	payload := []byte(`{
		"title": "Dune",
		"pages": "412",
		"current_page": "37",
		"total_time_in_sec": "1200.5"
	}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 412, books[0].Pages)
	assert.Equal(t, 37, books[0].CurrentPage)
	assert.EqualValues(t, 1200, books[0].TotalReadSeconds)
}

func TestParse_AuthorsList(t *testing.T) {
	payload := []byte(`{"title": "Good Omens", "authors": ["Terry Pratchett", "Neil Gaiman"]}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	assert.Equal(t, "Terry Pratchett, Neil Gaiman", books[0].Authors)
}

func TestParse_AuthorsNewlineSeparated(t *testing.T) {
	payload := []byte(`{"title": "Good Omens", "authors": "Terry Pratchett\nNeil Gaiman"}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	assert.Equal(t, "Terry Pratchett, Neil Gaiman", books[0].Authors)
}

func TestParse_ReadPagesFallsBackToCurrentPage(t *testing.T) {
	payload := []byte(`{"title": "Dune", "pages": 412, "current_page": 99}`)

	books, err := Parse(payload)

	require.NoError(t, err)
	assert.Equal(t, 99, books[0].ReadPages)
}

func TestParse_EmptyPayload(t *testing.T) {
	_, err := Parse([]byte("   "))

	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse([]byte("not json at all"))

	assert.Error(t, err)
}

func TestBookStats_ProgressPercent(t *testing.T) {
	b := BookStats{Pages: 400, ReadPages: 100}
	assert.InDelta(t, 25.0, b.ProgressPercent(), 0.001)

	b = BookStats{Pages: 0, ReadPages: 100}
	assert.Equal(t, 0.0, b.ProgressPercent())

	b = BookStats{Pages: 100, ReadPages: 150}
	assert.Equal(t, 100.0, b.ProgressPercent())
}
