package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apphttp "strategybot/internal/http"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long: `Registers WEBHOOK_URL/webhook with Telegram and serves:

  GET  /health                  - health check
  POST /webhook                 - Telegram updates
  POST /admin/login             - admin JWT
  GET  /admin/status            - model, knowledge and user counts
  POST /admin/knowledge/reload  - reload the strategy text
  POST /admin/risk/calculate    - run the risk engine`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.TelegramWebhookURL == "" {
				return errors.New("WEBHOOK_URL is required for serve; use poll without a public URL")
			}
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hookURL := strings.TrimRight(cfg.TelegramWebhookURL, "/") + "/webhook"
			if err := a.telegram.SetWebhook(ctx, hookURL, cfg.TelegramWebhookSecret); err != nil {
				return err
			}
			log.Info().Str("url", hookURL).Msg("webhook registered")

			a.janitor.Start()
			srv := apphttp.NewServer(cfg, a.assistant, a.knowledge, a.engine, a.store, log)
			httpServer := &http.Server{
				Addr:         cfg.ListenAddr,
				Handler:      srv.Router(),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: cfg.CompletionTimeout + 30*time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.janitor.Stop(shutdownCtx)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("graceful shutdown failed")
			}
			return nil
		},
	}
}
