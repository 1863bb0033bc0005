// Package webdav implements the subset of WebDAV the KOReader
// statistics plugin needs: OPTIONS, PROPFIND (depth 0 and 1), GET, PUT,
// DELETE and MKCOL against a per-user directory tree.
package webdav

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid webdav path")

// Filesystem maps WebDAV request paths onto per-user directories under
// a common root, refusing anything that would escape it.
type Filesystem struct {
	root string
}

// NewFilesystem creates a filesystem rooted at dir.
func NewFilesystem(dir string) (*Filesystem, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create webdav root: %w", err)
	}
	return &Filesystem{root: abs}, nil
}

// Resolve turns a request path into an absolute path inside the user's
// directory. Returns ErrInvalidPath on traversal attempts.
func (fs *Filesystem) Resolve(userID uint, requestPath string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(requestPath))
	if strings.Contains(clean, "..") {
		return "", ErrInvalidPath
	}

	userDir := filepath.Join(fs.root, fmt.Sprintf("user_%d", userID))
	full := filepath.Join(userDir, filepath.FromSlash(clean))

	// Defense against symlink-free traversal through odd separators
	rel, err := filepath.Rel(userDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	return full, nil
}

// EnsureUserDir creates the user's directory tree if missing.
func (fs *Filesystem) EnsureUserDir(userID uint) error {
	return os.MkdirAll(filepath.Join(fs.root, fmt.Sprintf("user_%d", userID)), 0755)
}

// Stat returns file info for the resolved path.
func (fs *Filesystem) Stat(userID uint, requestPath string) (os.FileInfo, error) {
	full, err := fs.Resolve(userID, requestPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(full)
}

// List returns the entries of a directory.
func (fs *Filesystem) List(userID uint, requestPath string) ([]os.DirEntry, error) {
	full, err := fs.Resolve(userID, requestPath)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(full)
}

// Read returns the contents of a file.
func (fs *Filesystem) Read(userID uint, requestPath string) ([]byte, error) {
	full, err := fs.Resolve(userID, requestPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Write stores a file, creating parent directories as needed.
func (fs *Filesystem) Write(userID uint, requestPath string, data []byte) error {
	full, err := fs.Resolve(userID, requestPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".dav_tmp_")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, full)
}

// Delete removes a file or empty directory.
func (fs *Filesystem) Delete(userID uint, requestPath string) error {
	full, err := fs.Resolve(userID, requestPath)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

// Mkdir creates a directory.
func (fs *Filesystem) Mkdir(userID uint, requestPath string) error {
	full, err := fs.Resolve(userID, requestPath)
	if err != nil {
		return err
	}
	return os.Mkdir(full, 0755)
}
