// Package covers stores normalized book cover images on disk.
//
// Covers extracted from uploaded books arrive in arbitrary formats and
// sizes. The store re-encodes everything as JPEG, capped at 400x600 for
// the full cover plus a 150x225 thumbnail for list views.
package covers

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

const (
	maxCoverWidth  = 400
	maxCoverHeight = 600
	thumbWidth     = 150
	thumbHeight    = 225
	jpegQuality    = 85
)

// Store writes cover images under a base directory.
type Store struct {
	dir string
}

// NewStore creates a cover store rooted at the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create covers dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save decodes raw image bytes, normalizes them, and writes the cover
// and thumbnail for a book. Returns the paths of both files.
func (s *Store) Save(bookID uint, data []byte) (coverPath, thumbPath string, err error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("decode cover image: %w", err)
	}

	coverPath = s.CoverPath(bookID)
	thumbPath = s.ThumbnailPath(bookID)

	if err := s.writeScaled(img, coverPath, maxCoverWidth, maxCoverHeight); err != nil {
		return "", "", err
	}
	if err := s.writeScaled(img, thumbPath, thumbWidth, thumbHeight); err != nil {
		os.Remove(coverPath)
		return "", "", err
	}

	return coverPath, thumbPath, nil
}

// Remove deletes the stored cover and thumbnail for a book.
func (s *Store) Remove(bookID uint) error {
	for _, p := range []string{s.CoverPath(bookID), s.ThumbnailPath(bookID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// CoverPath returns the on-disk path for a book's full cover.
func (s *Store) CoverPath(bookID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("cover_%d.jpg", bookID))
}

// ThumbnailPath returns the on-disk path for a book's thumbnail.
func (s *Store) ThumbnailPath(bookID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("thumb_%d.jpg", bookID))
}

// writeScaled scales the image to fit inside maxW x maxH (never
// upscaling) and writes it as JPEG via a temp file rename.
func (s *Store) writeScaled(img image.Image, dest string, maxW, maxH int) error {
	scaled := scaleToFit(img, maxW, maxH)

	tmpFile, err := os.CreateTemp(s.dir, "cover_tmp_")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath) // Clean up if we didn't rename
	}()

	if err := jpeg.Encode(tmpFile, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dest)
}

func scaleToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	ratio := float64(maxW) / float64(w)
	if r := float64(maxH) / float64(h); r < ratio {
		ratio = r
	}
	newW := int(float64(w) * ratio)
	newH := int(float64(h) * ratio)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}
