package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressarc/wp-archive/internal/config"
	"github.com/pressarc/wp-archive/internal/search"
	"github.com/pressarc/wp-archive/internal/storage"
	"github.com/pressarc/wp-archive/internal/wordpress"
)

var (
	flagConfig  string
	flagDomain  string
	flagDataDir string
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	rootCmd := &cobra.Command{
		Use:   "wp-archive",
		Short: "Archive WordPress content locally with full version history",
		Long: `wp-archive pulls posts, comments, pages, users, categories and tags from a
WordPress site's REST API and stores every distinct version in a local SQLite
archive. Content changes are detected by fingerprinting normalized content;
nothing is ever overwritten or deleted.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.json", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagDomain, "domain", "", "WordPress site URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Directory for database and index (overrides config)")

	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(versionsCmd())
	rootCmd.AddCommand(postsForCmd())
	rootCmd.AddCommand(reindexCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDomain != "" {
		cfg.Domain = flagDomain
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return storage.Open(filepath.Join(cfg.DataDir, "archive.db"))
}

func openIndex(cfg *config.Config) (*search.Index, error) {
	return search.Open(filepath.Join(cfg.DataDir, "bleve"))
}

func newClient(cfg *config.Config) (*wordpress.Client, error) {
	if cfg.Domain == "" {
		return nil, fmt.Errorf("no site configured: set --domain or \"domain\" in %s", flagConfig)
	}
	return wordpress.NewClient(cfg.Domain, time.Duration(cfg.RequestTimeout)*time.Second), nil
}
