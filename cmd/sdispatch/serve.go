package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Suhaibinator/SDispatch/internal/config"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch server",
		Long: `Start the dispatch server. Routes come from SDISPATCH_MANIFEST when set,
otherwise the built-in demo routes are served. Configuration is read from
SDISPATCH_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, adminToken(token, cmd.ErrOrStderr()))
		},
	}

	cmd.Flags().StringVar(&token, "admin-token", "", "bearer token accepted on admin routes (random when empty)")
	return cmd
}

// adminToken returns token, or a random one printed once to stderr so it
// never reaches the structured logs.
func adminToken(token string, stderr io.Writer) string {
	if token != "" {
		return token
	}
	token = uuid.NewString()
	fmt.Fprintf(stderr, "Generated admin token: %s\n", token)
	return token
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func serve(ctx context.Context, cfg *config.Config, token string) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a := newApp(cfg, logger, token)
	store, err := a.store()
	if err != nil {
		return fmt.Errorf("routes: %w", err)
	}
	r, err := a.router(store)
	if err != nil {
		return err
	}

	var handler http.Handler = r
	if len(cfg.CORSOrigins) > 0 {
		handler = middleware.CORS(cfg.CORSOrigins,
			[]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			[]string{"Authorization", "Content-Type", middleware.TraceIDHeader},
		)(r)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening",
			zap.String("addr", cfg.Addr),
			zap.Int("routes", len(store.Routes())),
			zap.Int("hooks", len(store.Hooks())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop the router first so requests racing the listener close get 503.
	if err := r.Shutdown(shutdownCtx); err != nil {
		logger.Error("Router shutdown failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
