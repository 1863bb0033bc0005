package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/database"
)

// CreateAdminCommand creates an administrator account without going
// through the web based /setup flow. Useful for headless deployments.
type CreateAdminCommand struct {
	Username     string
	Password     string
	DatabasePath string
}

// NewCreateAdminCommand creates a new CreateAdminCommand
func NewCreateAdminCommand() *CreateAdminCommand {
	return &CreateAdminCommand{}
}

// ParseFlags parses command line flags
func (cmd *CreateAdminCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)

	cfg := config.NewConfig()

	fs.StringVar(&cmd.Username, "username", "", "Username for the administrator account (required)")
	fs.StringVar(&cmd.Password, "password", "", "Password for the administrator account (required)")
	fs.StringVar(&cmd.DatabasePath, "db", cfg.Database.Path, "Path to the database file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-admin [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create an administrator account.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s create-admin -username admin -password secret\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Username == "" || cmd.Password == "" {
		fs.Usage()
		return errors.New("both -username and -password are required")
	}

	return nil
}

// Run executes the create-admin command
func (cmd *CreateAdminCommand) Run() error {
	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	cfg := config.NewConfig()
	service := auth.NewService(db.DB, cfg.Auth)

	user, err := service.CreateAdmin(cmd.Username, cmd.Password)
	if err != nil {
		return fmt.Errorf("failed to create administrator: %w", err)
	}

	fmt.Printf("Created administrator %q (id %d)\n", user.Username, user.ID)
	return nil
}
