package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pressarc/wp-archive/internal/archive"
	"github.com/pressarc/wp-archive/internal/storage"
	"github.com/pressarc/wp-archive/internal/wordpress"
)

func archiveCmd() *cobra.Command {
	var (
		contentType string
		limit       int
		afterStr    string
		pageSize    int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive content from the configured WordPress site",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if contentType != archive.TypeAll && !wordpress.ContentType(contentType).Valid() {
				return fmt.Errorf("unknown content type %q", contentType)
			}

			var after *time.Time
			if afterStr != "" {
				t, err := time.Parse("2006-01-02", afterStr)
				if err != nil {
					return fmt.Errorf("invalid --after date %q (want YYYY-MM-DD): %w", afterStr, err)
				}
				after = &t
			}

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			idx, err := openIndex(cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			// Ctrl+C finalizes the in-flight session as partial instead of
			// losing it.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if pageSize <= 0 {
				pageSize = cfg.PageSize
			}
			if concurrency <= 0 {
				concurrency = cfg.Concurrency
			}

			archiver := archive.New(client, store, idx, nil)
			sess, runErr := archiver.Archive(ctx, contentType, archive.Options{
				Limit:       limit,
				After:       after,
				PageSize:    pageSize,
				Concurrency: concurrency,
			})
			if sess != nil {
				printSessionSummary(sess)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&contentType, "type", archive.TypeAll, "Content type to archive (posts, comments, pages, users, categories, tags, all)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap total items processed (0 = unlimited)")
	cmd.Flags().StringVar(&afterStr, "after", "", "Only archive items modified on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Source page size (defaults to config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker pool size (defaults to config)")
	return cmd
}

func printSessionSummary(sess *storage.Session) {
	heading := color.New(color.Bold, color.FgCyan)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)

	fmt.Println()
	heading.Println("=== Archive Session ===")
	fmt.Printf("Session:    %s\n", sess.ID)
	fmt.Printf("Scope:      %s\n", sess.ContentType)

	switch sess.Status {
	case storage.StatusCompleted:
		good.Printf("Status:     %s\n", sess.Status)
	case storage.StatusPartial:
		warn.Printf("Status:     %s\n", sess.Status)
	default:
		bad.Printf("Status:     %s\n", sess.Status)
	}

	fmt.Printf("Processed:  %s\n", humanize.Comma(int64(sess.ItemsProcessed)))
	fmt.Printf("New:        %s\n", humanize.Comma(int64(sess.ItemsNew)))
	fmt.Printf("Updated:    %s\n", humanize.Comma(int64(sess.ItemsUpdated)))
	fmt.Printf("Unchanged:  %s\n", humanize.Comma(int64(sess.ItemsUnchanged)))
	fmt.Printf("Errors:     %d\n", len(sess.Errors))
	if !sess.CompletedAt.IsZero() {
		fmt.Printf("Duration:   %v\n", sess.CompletedAt.Sub(sess.StartedAt).Round(time.Millisecond))
	}

	for _, e := range sess.Errors {
		bad.Printf("  [%s] %s/%d: %s\n", e.Kind, e.ContentType, e.RemoteID, e.Message)
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the configured site serves the WordPress REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			if err := client.Verify(cmd.Context()); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			color.Green("✓ %s serves the WordPress REST API (wp/v2)", cfg.Domain)
			return nil
		},
	}
}
