// Package epub extracts metadata and cover images from EPUB files.
//
// An EPUB is a zip archive with a META-INF/container.xml pointing at an
// OPF package document that carries Dublin Core metadata. Both EPUB 2
// and EPUB 3 cover conventions are handled.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotEpub    = errors.New("file is not a valid EPUB archive")
	ErrNoRootfile = errors.New("container.xml has no rootfile entry")
	ErrNoCover    = errors.New("no cover image found")
)

// Metadata holds the fields extracted from an EPUB package document.
type Metadata struct {
	Title         string
	Author        string
	Language      string
	ISBN          string
	Publisher     string
	Description   string
	Series        string
	SeriesIndex   int
	PublishedDate *time.Time
}

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Value    string `xml:",chardata"`
}

type opfIdentifier struct {
	Scheme string `xml:"scheme,attr"`
	Value  string `xml:",chardata"`
}

type opfPackage struct {
	Metadata struct {
		Titles      []string        `xml:"title"`
		Creators    []string        `xml:"creator"`
		Languages   []string        `xml:"language"`
		Identifiers []opfIdentifier `xml:"identifier"`
		Publishers  []string        `xml:"publisher"`
		Description string          `xml:"description"`
		Dates       []string        `xml:"date"`
		Metas       []opfMeta       `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
}

// Extract reads metadata from an EPUB file on disk.
func Extract(filePath string) (*Metadata, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEpub, err)
	}
	defer r.Close()

	pkg, _, err := readPackage(&r.Reader)
	if err != nil {
		return nil, err
	}

	return buildMetadata(pkg), nil
}

// ExtractCover returns the raw bytes of the cover image and its media
// type. The caller is responsible for decoding and resizing.
func ExtractCover(filePath string) ([]byte, string, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotEpub, err)
	}
	defer r.Close()

	pkg, opfPath, err := readPackage(&r.Reader)
	if err != nil {
		return nil, "", err
	}

	href, mediaType := findCoverItem(pkg)
	if href == "" {
		return nil, "", ErrNoCover
	}

	// Manifest hrefs are relative to the OPF document
	coverPath := path.Join(path.Dir(opfPath), href)
	for _, f := range r.File {
		if f.Name == coverPath {
			rc, err := f.Open()
			if err != nil {
				return nil, "", err
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, "", err
			}
			return data, mediaType, nil
		}
	}

	return nil, "", ErrNoCover
}

func readPackage(r *zip.Reader) (*opfPackage, string, error) {
	containerFile, err := openZipFile(r, "META-INF/container.xml")
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing container.xml", ErrNotEpub)
	}

	var c container
	if err := xml.Unmarshal(containerFile, &c); err != nil {
		return nil, "", fmt.Errorf("failed to parse container.xml: %w", err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return nil, "", ErrNoRootfile
	}

	opfPath := c.Rootfiles[0].FullPath
	opfData, err := openZipFile(r, opfPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read package document %s: %w", opfPath, err)
	}

	var pkg opfPackage
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, "", fmt.Errorf("failed to parse package document: %w", err)
	}

	return &pkg, opfPath, nil
}

func openZipFile(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file %s not found in archive", name)
}

func buildMetadata(pkg *opfPackage) *Metadata {
	md := &Metadata{}

	if len(pkg.Metadata.Titles) > 0 {
		md.Title = strings.TrimSpace(pkg.Metadata.Titles[0])
	}
	if len(pkg.Metadata.Creators) > 0 {
		md.Author = strings.TrimSpace(strings.Join(pkg.Metadata.Creators, ", "))
	}
	if len(pkg.Metadata.Languages) > 0 {
		md.Language = strings.TrimSpace(pkg.Metadata.Languages[0])
	}
	md.Publisher = firstNonEmpty(pkg.Metadata.Publishers)
	md.Description = strings.TrimSpace(pkg.Metadata.Description)

	for _, id := range pkg.Metadata.Identifiers {
		value := strings.TrimSpace(id.Value)
		if strings.EqualFold(id.Scheme, "isbn") {
			md.ISBN = strings.TrimPrefix(value, "urn:isbn:")
			break
		}
		if strings.HasPrefix(strings.ToLower(value), "urn:isbn:") {
			md.ISBN = value[len("urn:isbn:"):]
			break
		}
	}

	for _, d := range pkg.Metadata.Dates {
		if parsed := parseDate(strings.TrimSpace(d)); parsed != nil {
			md.PublishedDate = parsed
			break
		}
	}

	// Calibre series conventions, used widely in the wild
	for _, m := range pkg.Metadata.Metas {
		switch {
		case m.Name == "calibre:series" || m.Property == "belongs-to-collection":
			if m.Content != "" {
				md.Series = m.Content
			} else {
				md.Series = strings.TrimSpace(m.Value)
			}
		case m.Name == "calibre:series_index" || m.Property == "group-position":
			raw := m.Content
			if raw == "" {
				raw = strings.TrimSpace(m.Value)
			}
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				md.SeriesIndex = int(f)
			}
		}
	}

	return md
}

// findCoverItem locates the cover image in the manifest. EPUB 3 marks it
// with properties="cover-image"; EPUB 2 uses a meta name="cover" whose
// content is the manifest item ID.
func findCoverItem(pkg *opfPackage) (href, mediaType string) {
	for _, item := range pkg.Manifest.Items {
		if strings.Contains(item.Properties, "cover-image") {
			return item.Href, item.MediaType
		}
	}

	var coverID string
	for _, m := range pkg.Metadata.Metas {
		if m.Name == "cover" {
			coverID = m.Content
			break
		}
	}
	if coverID == "" {
		return "", ""
	}
	for _, item := range pkg.Manifest.Items {
		if item.ID == coverID {
			return item.Href, item.MediaType
		}
	}
	return "", ""
}

func parseDate(value string) *time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
