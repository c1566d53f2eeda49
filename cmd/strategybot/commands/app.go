package commands

import (
	"fmt"

	"github.com/rs/zerolog"

	"strategybot/internal/config"
	"strategybot/internal/integrations/openrouter"
	"strategybot/internal/integrations/telegram"
	"strategybot/internal/scheduler"
	"strategybot/internal/service/assistant"
	"strategybot/internal/service/calculator"
	"strategybot/internal/service/illustration"
	"strategybot/internal/service/knowledge"
	"strategybot/internal/service/risk"
	"strategybot/internal/store/memory"
)

// app is the wired bot shared by serve and poll.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	store     *memory.Store
	engine    *risk.Engine
	knowledge *knowledge.Base
	telegram  *telegram.Client
	assistant *assistant.Assistant
	janitor   *scheduler.Janitor
}

func newApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store := memory.NewStore(cfg.HistoryMax)
	engine := risk.NewEngine(risk.DefaultCatalog())

	kb := knowledge.NewBase(cfg.KnowledgePaths, log)
	if err := kb.Reload(); err != nil {
		log.Warn().Err(err).Msg("starting with placeholder strategy text")
	}

	catalog, err := illustration.Load(cfg.IllustrationFile, cfg.AssetDir)
	if err != nil {
		return nil, err
	}

	tg := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIURL, log)
	completer := openrouter.NewClient(openrouter.Options{
		URL:         cfg.OpenRouterURL,
		APIKey:      cfg.OpenRouterAPIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.CompletionTimeout,
	}, log)
	limiters := assistant.NewLimiters(cfg.RateLimitPerMin)

	bot := assistant.New(assistant.Options{
		ChannelID:     cfg.ChannelID,
		AccessURL:     cfg.AccessURL,
		IsAdmin:       cfg.IsAdmin,
		Model:         cfg.Model,
		HistoryLimit:  cfg.HistoryLimit,
		MaxMessageLen: cfg.MaxMessageLen,
	}, assistant.Deps{
		Store:         store,
		Messenger:     tg,
		Membership:    tg,
		Completer:     completer,
		Knowledge:     kb,
		Illustrations: catalog,
		Calculator:    calculator.NewController(engine),
		Limiters:      limiters,
	}, log)

	janitor := scheduler.NewJanitor(store, limiters, cfg.SessionIdleTTL, log)
	if err := janitor.Register(cfg.JanitorSchedule); err != nil {
		return nil, err
	}

	log.Info().
		Str("model", cfg.Model).
		Str("knowledge", kb.Source()).
		Int("illustrations", catalog.Len()).
		Int("admins", len(cfg.AdminIDs)).
		Msg("bot initialised")

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		engine:    engine,
		knowledge: kb,
		telegram:  tg,
		assistant: bot,
		janitor:   janitor,
	}, nil
}
