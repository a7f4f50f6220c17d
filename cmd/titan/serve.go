package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"titan/internal/api"
	"titan/internal/devwatch"
)

var watchWorkspace bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Titan HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer application.cleanup()

		server := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: api.NewServer(application.service, application.store, logger).Router(),
		}

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		if watchWorkspace {
			watcher, err := devwatch.New(cfg.Chat.WorkspaceDir, func(paths []string) {
				// The supervisor restarts us on exit; deferred staging
				// guarantees this only fires between turns.
				logger.Info("workspace changed, exiting for restart", zap.Strings("paths", paths))
				stop()
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&watchWorkspace, "watch", false, "exit for restart when workspace files change")
	rootCmd.AddCommand(serveCmd)
}
