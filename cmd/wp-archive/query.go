package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pressarc/wp-archive/internal/wordpress"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show archive statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			color.New(color.Bold, color.FgCyan).Println("=== Archive Statistics ===")
			for _, ct := range wordpress.AllTypes {
				tc := counts[string(ct)]
				fmt.Printf("%-12s %8s items  %8s versions\n",
					ct, humanize.Comma(int64(tc.Items)), humanize.Comma(int64(tc.Versions)))
			}

			latest, err := store.LatestSession(cmd.Context())
			if err != nil {
				return err
			}
			if latest != nil {
				fmt.Println()
				fmt.Printf("Latest session: %s (%s, %s)\n",
					humanize.Time(latest.StartedAt), latest.ContentType, latest.Status)
				fmt.Printf("  processed=%d new=%d updated=%d unchanged=%d errors=%d\n",
					latest.ItemsProcessed, latest.ItemsNew, latest.ItemsUpdated,
					latest.ItemsUnchanged, len(latest.Errors))
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		typesStr string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search current versions of archived content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idx, err := openIndex(cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			var types []string
			if typesStr != "" {
				for _, ct := range strings.Split(typesStr, ",") {
					if !wordpress.ContentType(ct).Valid() {
						return fmt.Errorf("unknown content type %q", ct)
					}
					types = append(types, ct)
				}
			}

			query := strings.Join(args, " ")
			results, err := idx.Search(query, types, limit)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Println("No results found")
				return nil
			}
			fmt.Printf("Found %d results:\n\n", len(results))
			for n, r := range results {
				title := r.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%d. [%s/%d v%d] %s\n", n+1, r.ContentType, r.RemoteID, r.Version, title)
				if r.Author != "" {
					fmt.Printf("   Author: %s\n", r.Author)
				}
				fmt.Printf("   Score: %.3f\n", r.Score)
				if snippets, ok := r.Fragments["Content"]; ok && len(snippets) > 0 {
					fmt.Printf("   Preview: %s\n", snippets[0])
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typesStr, "types", "", "Comma-separated content types to search (default all)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	return cmd
}

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <type> <remote-id>",
		Short: "List every archived version of one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct := args[0]
			if !wordpress.ContentType(ct).Valid() {
				return fmt.Errorf("unknown content type %q", ct)
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid remote id %q", args[1])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			versions, err := store.ListVersions(cmd.Context(), ct, id)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				return fmt.Errorf("no archived versions of %s/%d", ct, id)
			}

			for _, v := range versions {
				fmt.Printf("v%-3d %s  recorded %s  hash %s\n",
					v.Number, v.Title, v.RecordedAt.Format(time.RFC3339), v.ContentHash[:12])
			}
			return nil
		},
	}
}

func postsForCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "posts-for <category|tag> <remote-id>",
		Short: "List posts whose current version references a category or tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			relatedType := args[0]
			if relatedType != "category" && relatedType != "tag" {
				return fmt.Errorf("related type must be category or tag, got %q", relatedType)
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid remote id %q", args[1])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			posts, err := store.PostsFor(cmd.Context(), relatedType, id)
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				fmt.Printf("No current posts reference %s %d\n", relatedType, id)
				return nil
			}
			for _, postID := range posts {
				cur, err := store.CurrentVersion(cmd.Context(), "posts", postID)
				if err != nil {
					return err
				}
				title := ""
				if cur != nil {
					title = cur.Title
				}
				fmt.Printf("%d  %s\n", postID, title)
			}
			return nil
		},
	}
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from current versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
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

			start := time.Now()
			var types []string
			for _, ct := range wordpress.AllTypes {
				types = append(types, string(ct))
			}
			err = idx.Rebuild(context.Background(), store, types, func(done, total int) {
				if done%500 == 0 || done == total {
					fmt.Printf("\rIndexing: %d/%d", done, total)
				}
			})
			if err != nil {
				return err
			}

			count, err := idx.Count()
			if err != nil {
				return err
			}
			fmt.Printf("\nIndexed %s current versions in %v\n",
				humanize.Comma(int64(count)), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
