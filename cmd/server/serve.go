package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/keeeei13c/speedy-english-training/internal/api"
	"github.com/keeeei13c/speedy-english-training/internal/db"
	"github.com/keeeei13c/speedy-english-training/internal/llm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tutoring API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			prompt, err := cfg.SystemPrompt(llm.DefaultSystemPrompt)
			if err != nil {
				return err
			}

			store, err := db.Open(cfg.Store.Backend, cfg.Store.DSN)
			if err != nil {
				logger.Error("failed to initialize history store",
					zap.Error(err),
					zap.String("backend", cfg.Store.Backend))
				return err
			}
			defer store.Close()

			model, err := llm.NewUpstream(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)
			if err != nil {
				return fmt.Errorf("failed to initialize upstream client: %w", err)
			}

			svc := llm.New(model, store, prompt, logger, llm.WithTimeout(cfg.Upstream.Timeout))
			handler := api.NewHandler(svc, logger)

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting server",
					zap.String("addr", cfg.Server.Addr),
					zap.String("upstream", cfg.Upstream.BaseURL),
					zap.String("store", cfg.Store.Backend))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Server failed", zap.Error(err))
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	return cmd
}
