package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/soochol/flowboard/internal/db"
	"github.com/soochol/flowboard/internal/devserver"
)

func (a *app) devServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dev-server",
		Short: "Serve the reference workflow service",
		Long: "Serve the reference workflow service. Data is kept in memory unless\n" +
			"devserver.database_url (or FLOWBOARD_DATABASE_URL) points at PostgreSQL.\n" +
			"Prompt nodes echo their input unless devserver.gemini_api_key (or\n" +
			"GEMINI_API_KEY) is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.DevServer

			var repo devserver.Repository = devserver.NewMemory()
			if cfg.DatabaseURL != "" {
				database, err := db.New(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer database.Close()
				if err := database.Migrate(ctx); err != nil {
					return err
				}
				repo = devserver.NewPostgres(database)
				slog.Info("using postgres storage")
			} else {
				slog.Info("using in-memory storage")
			}

			var gen devserver.Generator = devserver.EchoGenerator{}
			if cfg.GeminiAPIKey != "" {
				gen = devserver.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModel)
				slog.Info("prompt nodes use gemini", "model", cfg.GeminiModel)
			}

			srv := devserver.NewServer(repo, devserver.Options{
				JWTSecret: []byte(cfg.JWTSecret),
				TokenTTL:  cfg.TokenTTL,
				StepDelay: cfg.StepDelay,
				Generator: gen,
			})
			defer srv.Close()

			hs := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				slog.Info("starting flowboard dev server", "addr", hs.Addr)
				errc <- hs.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		},
	}
}
