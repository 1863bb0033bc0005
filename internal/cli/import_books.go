package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/covers"
	"github.com/kompanion/kompanion/internal/database"
	"github.com/kompanion/kompanion/internal/database/books"
	"github.com/kompanion/kompanion/internal/entities"
	"github.com/kompanion/kompanion/internal/epub"
)

// ImportBooksCommand bulk imports book files from a directory into the
// library. Metadata and covers are extracted inline rather than through
// the task queue so the command is self contained.
type ImportBooksCommand struct {
	SourceDir    string
	DatabasePath string
	StorageDir   string
	Verbose      bool
}

// NewImportBooksCommand creates a new ImportBooksCommand
func NewImportBooksCommand() *ImportBooksCommand {
	return &ImportBooksCommand{}
}

// ParseFlags parses command line flags
func (cmd *ImportBooksCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("import-books", flag.ExitOnError)

	cfg := config.NewConfig()

	fs.StringVar(&cmd.SourceDir, "dir", "", "Directory to scan for book files (required)")
	fs.StringVar(&cmd.DatabasePath, "db", cfg.Database.Path, "Path to the database file")
	fs.StringVar(&cmd.StorageDir, "storage", cfg.Storage.Dir, "Directory where imported files are stored")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import-books [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Import all supported book files from a directory.\n\n")
		fmt.Fprintf(os.Stderr, "This command:\n")
		fmt.Fprintf(os.Stderr, "  1. Recursively scans the source directory for supported formats\n")
		fmt.Fprintf(os.Stderr, "  2. Copies each new file into the storage directory\n")
		fmt.Fprintf(os.Stderr, "  3. Extracts EPUB metadata and covers where available\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s import-books -dir ~/Books\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s import-books -dir /mnt/library -verbose\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.SourceDir == "" {
		fs.Usage()
		return errors.New("-dir is required")
	}

	return nil
}

// Run executes the import command
func (cmd *ImportBooksCommand) Run() error {
	absSource, err := filepath.Abs(cmd.SourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source: %w", err)
	}

	if info, err := os.Stat(absSource); err != nil || !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", absSource)
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cmd.StorageDir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	coverStore, err := covers.NewStore(filepath.Join(cmd.StorageDir, "covers"))
	if err != nil {
		return fmt.Errorf("failed to initialize cover store: %w", err)
	}

	repo := books.NewRepository(db.DB)

	var imported, skipped, failed int

	err = filepath.WalkDir(absSource, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if !config.IsSupportedFormat(format) {
			return nil
		}

		switch importErr := cmd.importFile(repo, coverStore, path, format); {
		case importErr == nil:
			imported++
		case errors.Is(importErr, errAlreadyImported):
			skipped++
			if cmd.Verbose {
				fmt.Printf("Skipping %s (already in library)\n", path)
			}
		default:
			failed++
			fmt.Fprintf(os.Stderr, "Failed to import %s: %v\n", path, importErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", absSource, err)
	}

	fmt.Printf("Imported %d book(s), skipped %d, failed %d\n", imported, skipped, failed)
	return nil
}

var errAlreadyImported = errors.New("book already imported")

func (cmd *ImportBooksCommand) importFile(repo *books.Repository, coverStore *covers.Store, path, format string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return err
	}
	hash := hex.EncodeToString(hasher.Sum(nil))

	if _, err := repo.GetBookByHash(hash); err == nil {
		return errAlreadyImported
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	filename := filepath.Base(path)
	storagePath := filepath.Join(cmd.StorageDir, hash[:16]+"_"+filename)
	if err := copyFile(path, storagePath); err != nil {
		return err
	}

	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	book := &entities.Book{
		Title:       title,
		Filename:    filename,
		FileFormat:  format,
		FileSize:    size,
		FileHash:    hash,
		StoragePath: storagePath,
		IsAvailable: true,
	}

	if format == "epub" {
		if meta, err := epub.Extract(storagePath); err == nil {
			if meta.Title != "" {
				book.Title = meta.Title
			}
			book.Author = meta.Author
			book.Language = meta.Language
			book.ISBN = meta.ISBN
			book.Publisher = meta.Publisher
			book.Description = meta.Description
			book.Series = meta.Series
			book.SeriesIndex = meta.SeriesIndex
			book.PublishedDate = meta.PublishedDate
		} else if cmd.Verbose {
			fmt.Fprintf(os.Stderr, "No metadata for %s: %v\n", path, err)
		}
	}

	if err := repo.CreateBook(book); err != nil {
		os.Remove(storagePath)
		return err
	}

	if format == "epub" {
		if data, _, err := epub.ExtractCover(storagePath); err == nil {
			if coverPath, thumbPath, err := coverStore.Save(book.ID, data); err == nil {
				book.HasCover = true
				book.CoverPath = coverPath
				book.ThumbnailPath = thumbPath
				if err := repo.UpdateBook(book); err != nil {
					return err
				}
			}
		}
	}

	if cmd.Verbose {
		fmt.Printf("Imported %s as %q (id %d)\n", path, book.DisplayTitle(), book.ID)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
