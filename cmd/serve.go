package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/popmap/internal/api"
	"github.com/sells-group/popmap/internal/ingest"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the population explorer API",
	Long:  "Loads the configured sources (or the latest snapshot), then serves search, lookup, estimate, upload, and reload endpoints over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Uploads can still populate an empty server.
		if err := env.loadInitial(ctx); err != nil {
			zap.L().Warn("starting without a census table", zap.Error(err))
		}

		if iv := cfg.Data.WatchInterval(); iv > 0 && env.Loader != nil {
			w := ingest.NewWatcher(env.Loader.LocalPaths(), iv, func(ctx context.Context) error {
				_, err := env.Reloader.Reload(ctx)
				return err
			})
			go w.Run(ctx)
		}

		srv := api.New(env.Engine, env.Estimator, env.Reloader, snapshotLister(env), api.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			RateLimit:      cfg.Server.RateLimit,
			RateBurst:      cfg.Server.RateBurst,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			CurrentYear:    cfg.Data.CurrentYear,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port), shutdownTimeout)
	},
}

// snapshotLister returns the store as a lister, or nil without one.
func snapshotLister(env *appEnv) api.SnapshotLister {
	if env.Store == nil {
		return nil
	}
	return env.Store
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
