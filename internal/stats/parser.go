// Package stats parses reading statistics files exported by the
// KOReader statistics plugin.
//
// The exports are JSON but loosely typed: numbers arrive as strings on
// some firmware versions, fields come and go between releases, and
// vendors patch the plugin. Parsing is therefore tolerant; anything
// unrecognized is preserved in the raw payload.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrEmptyPayload = errors.New("empty statistics payload")

// BookStats is one book's worth of parsed statistics.
type BookStats struct {
	Title            string
	Authors          string
	MD5              string
	FilePath         string
	DeviceID         string
	Pages            int
	CurrentPage      int
	ReadPages        int
	Percentage       *float64 // explicit completion percent, when the export carries one
	TotalReadSeconds int64
	Highlights       int
	Notes            int
	LastOpen         *time.Time
}

// ProgressPercent returns the explicit percentage when the export carries
// one, otherwise derives completion from page counts.
func (b *BookStats) ProgressPercent() float64 {
	if b.Percentage != nil {
		pct := *b.Percentage
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	if b.Pages <= 0 {
		return 0
	}
	pct := float64(b.ReadPages) / float64(b.Pages) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// flexInt tolerates numbers encoded as strings or floats.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q", s)
	}
	*f = flexInt(v)
	return nil
}

// flexFloat tolerates floats encoded as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// Two export dialects exist: the statistics DB dump (current_page,
// total_time_in_sec, last_open, performance_in_pages) and the per-book
// progress export (page, percentage, time_spent_reading, last_time,
// device_id, file). Fields from both are accepted and merged.
type rawBookStats struct {
	Title              string             `json:"title"`
	Authors            json.RawMessage    `json:"authors"`
	MD5                string             `json:"md5"`
	File               string             `json:"file"`
	DeviceID           string             `json:"device_id"`
	Pages              flexInt            `json:"pages"`
	CurrentPage        flexInt            `json:"current_page"`
	Page               flexInt            `json:"page"`
	Percentage         *flexFloat         `json:"percentage"`
	TotalTimeInSec     flexInt            `json:"total_time_in_sec"`
	TimeSpentReading   flexInt            `json:"time_spent_reading"`
	Highlights         flexInt            `json:"highlights"`
	Notes              flexInt            `json:"notes"`
	LastOpen           flexInt            `json:"last_open"`
	LastTime           json.RawMessage    `json:"last_time"`
	PerformanceInPages map[string]flexInt `json:"performance_in_pages"`
}

// Parse decodes a statistics export. Accepts either a single book
// object or a JSON array of them.
func Parse(payload []byte) ([]BookStats, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, ErrEmptyPayload
	}

	var raws []rawBookStats
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(payload, &raws); err != nil {
			return nil, fmt.Errorf("parse statistics array: %w", err)
		}
	} else {
		var single rawBookStats
		if err := json.Unmarshal(payload, &single); err != nil {
			return nil, fmt.Errorf("parse statistics object: %w", err)
		}
		raws = []rawBookStats{single}
	}

	books := make([]BookStats, 0, len(raws))
	for _, raw := range raws {
		book := BookStats{
			Title:            strings.TrimSpace(raw.Title),
			Authors:          parseAuthors(raw.Authors),
			MD5:              raw.MD5,
			FilePath:         raw.File,
			DeviceID:         raw.DeviceID,
			Pages:            int(raw.Pages),
			CurrentPage:      int(raw.CurrentPage),
			TotalReadSeconds: int64(raw.TotalTimeInSec),
			Highlights:       int(raw.Highlights),
			Notes:            int(raw.Notes),
		}
		if book.CurrentPage == 0 {
			book.CurrentPage = int(raw.Page)
		}
		if book.TotalReadSeconds == 0 {
			book.TotalReadSeconds = int64(raw.TimeSpentReading)
		}
		if raw.Percentage != nil {
			pct := float64(*raw.Percentage)
			book.Percentage = &pct
		}

		// performance_in_pages maps timestamps to page numbers; its
		// cardinality is the count of distinct pages read
		book.ReadPages = len(raw.PerformanceInPages)
		if book.ReadPages == 0 && book.CurrentPage > 0 {
			book.ReadPages = book.CurrentPage
		}

		if raw.LastOpen > 0 {
			t := time.Unix(int64(raw.LastOpen), 0).UTC()
			book.LastOpen = &t
		} else {
			book.LastOpen = parseTimestamp(raw.LastTime)
		}

		books = append(books, book)
	}

	return books, nil
}

// parseTimestamp accepts a unix timestamp (number or numeric string) or
// an RFC 3339 string.
func parseTimestamp(raw json.RawMessage) *time.Time {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v <= 0 {
			return nil
		}
		t := time.Unix(int64(v), 0).UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

// parseAuthors handles both a plain string and a list of names.
func parseAuthors(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		// KOReader joins multiple authors with newlines
		return strings.TrimSpace(strings.ReplaceAll(single, "\n", ", "))
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, ", "))
	}

	return ""
}
