package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"strategybot/internal/config"
	"strategybot/internal/logger"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	envFile   string
	logLevel  string
	logFormat string
}

// loadConfig reads the env file and the environment, then applies flag
// overrides.
func (o *rootOptions) loadConfig() (config.Config, zerolog.Logger, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	cfg := config.Load()
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	return cfg, logger.New(cfg.LogLevel, cfg.LogFormat), nil
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "strategybot",
		Short: "Strategy assistant bot with access gate and risk calculator",
		Long: `strategybot answers strategy questions for members of a paid
Telegram community and sizes positions with the risk calculator.

Examples:
  strategybot serve
  strategybot poll
  strategybot calc --balance 48500 --deposit 50000 --phase funded --setup 1`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override LOG_FORMAT (json|console)")

	cmd.AddCommand(
		newServeCmd(opts),
		newPollCmd(opts),
		newCalcCmd(),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
