package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zzstop/hw05-final/cmd/api"
	"github.com/zzstop/hw05-final/cmd/config"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/db"
)

var rootCmd = &cobra.Command{
	Use:   "yatube",
	Short: "Yatube blogging server",
	Long: `Yatube serves a small blogging site: posts, groups, comments and subscriptions.

Without a subcommand the HTTP server is started.`,
	SilenceUsage: true,
	RunE:         serveCommand,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  serveCommand,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, clearDBCmd, groupCmd, userCmd, postCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// openDB loads the configuration and connects to the database.
func openDB() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	DB, err := db.NewPSQLStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization error: %w", err)
	}
	log.Println("Connected to the database")
	return cfg, DB, nil
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	DB, err := db.NewPSQLStorage(cfg)
	if err != nil {
		return fmt.Errorf("database initialization error: %w", err)
	}
	defer db.Close(DB)
	log.Println("Connected to the database")

	server, err := api.NewApiServer(cfg, DB)
	if err != nil {
		return err
	}

	// Graceful shutdown setup
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx)
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables and the media directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, DB, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close(DB)

		log.Println("Starting database migrations...")
		if err := db.Migrate(DB); err != nil {
			return fmt.Errorf("migration error: %w", err)
		}

		dir := filepath.Join(cfg.MediaRoot, utils.PostImageDir)
		if err := createDirectoryIfNotExist(dir); err != nil {
			return err
		}
		log.Printf("Directory %s created/verified", dir)

		log.Println("All migrations and directory setup completed successfully")
		return nil
	},
}

// withDB runs fn against a configured database and closes it afterwards.
func withDB(fn func(cfg *config.Config, DB *gorm.DB) error) error {
	cfg, DB, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close(DB)
	return fn(cfg, DB)
}
