package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pressarc/wp-archive/internal/web"
)

func serveCmd() *cobra.Command {
	var (
		host string
		port string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive browsing API",
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

			server := web.NewServer(store, idx, slog.Default())
			addr := fmt.Sprintf("%s:%s", host, port)
			slog.Info("serving archive API", "addr", addr)
			return http.ListenAndServe(addr, server.Handler())
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "Host to bind to")
	cmd.Flags().StringVar(&port, "port", "8930", "Port to listen on")
	return cmd
}
