package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"strategybot/internal/domain"
	"strategybot/internal/integrations/telegram"
)

func newPollCmd(root *rootOptions) *cobra.Command {
	var backoff time.Duration
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Receive updates with long polling instead of a webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.telegram.DeleteWebhook(ctx); err != nil {
				return err
			}
			a.janitor.Start()

			// Users are handled concurrently; one user's updates run in
			// arrival order so calculator answers cannot swap.
			queue := telegram.NewUserQueue(func(ctx context.Context, msg domain.Message) {
				if err := a.assistant.Handle(context.WithoutCancel(ctx), msg); err != nil {
					log.Error().Err(err).Int64("user_id", msg.UserID).Msg("handle update")
				}
			})
			a.telegram.StartPolling(ctx, cfg.TelegramPollTimeout, backoff, queue.Dispatch)
			queue.Wait()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.janitor.Stop(shutdownCtx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&backoff, "backoff", 5*time.Second, "wait after a failed getUpdates")
	return cmd
}
