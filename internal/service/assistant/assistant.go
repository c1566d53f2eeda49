// Package assistant routes inbound chat messages to the calculator, the
// illustration catalog or the completion service.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"strategybot/internal/domain"
	"strategybot/internal/integrations/openrouter"
	"strategybot/internal/service/calculator"
	"strategybot/internal/store"
)

// maxReplyLen is the Bot API limit for one text message.
const maxReplyLen = 4096

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, reply domain.Reply) error
	SendPhoto(ctx context.Context, chatID int64, photo domain.Photo) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type MembershipChecker interface {
	IsMember(ctx context.Context, groupID string, userID int64) (bool, error)
}

type Completer interface {
	Complete(ctx context.Context, req openrouter.Request) (string, error)
}

type Knowledge interface {
	Text() string
	Source() string
	Size() int
	Reload() error
}

type Illustrations interface {
	Match(text string) []domain.Photo
}

type Options struct {
	ChannelID     string
	AccessURL     string
	// IsAdmin gates /reload and /status. Nil lets everyone through.
	IsAdmin       func(userID int64) bool
	Model         string
	SystemPrompt  string
	HistoryLimit  int
	MaxMessageLen int
}

type Deps struct {
	Store         store.Store
	Messenger     Messenger
	Membership    MembershipChecker
	Completer     Completer
	Knowledge     Knowledge
	Illustrations Illustrations
	Calculator    *calculator.Controller
	Limiters      *Limiters
}

type Assistant struct {
	opts Options
	Deps
	log zerolog.Logger
}

func New(opts Options, deps Deps, log zerolog.Logger) *Assistant {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Assistant{
		opts: opts,
		Deps: deps,
		log:  log.With().Str("component", "assistant").Logger(),
	}
}

// Handle processes one inbound message. Everything for a user runs under
// that user's lock. The returned error is only about delivering the reply;
// upstream failures have already been turned into user-facing text.
func (a *Assistant) Handle(ctx context.Context, msg domain.Message) error {
	unlock := a.Store.Lock(msg.UserID)
	defer unlock()

	log := a.log.With().Int64("user_id", msg.UserID).Logger()
	ctx = log.WithContext(ctx)

	if msg.IsCallback() {
		return a.handleCallback(ctx, msg)
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	if cmd, ok := parseCommand(text); ok {
		return a.handleCommand(ctx, msg, cmd)
	}
	return a.handleText(ctx, msg, text)
}

// parseCommand returns the lowercased command name of "/name@bot args".
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), name != ""
}

func (a *Assistant) handleCommand(ctx context.Context, msg domain.Message, cmd string) error {
	log := zerolog.Ctx(ctx)
	log.Debug().Str("command", cmd).Msg("command received")

	switch cmd {
	case "start":
		if !a.hasAccess(ctx, msg.UserID) {
			return a.send(ctx, msg.ChatID, lockedReply(a.opts.AccessURL))
		}
		return a.send(ctx, msg.ChatID, welcomeReply(msg.FirstName))
	case "help":
		return a.send(ctx, msg.ChatID, domain.Reply{Text: textHelp})
	case "calc":
		if !a.hasAccess(ctx, msg.UserID) {
			return a.send(ctx, msg.ChatID, lockedReply(a.opts.AccessURL))
		}
		out := a.Calculator.Begin()
		a.Store.PutSession(msg.UserID, out.Session)
		log.Info().Str("session_id", out.Session.ID).Msg("calculator started")
		return a.send(ctx, msg.ChatID, out.Reply)
	case "cancel":
		if s, ok := a.Store.Session(msg.UserID); !ok || !s.Active() {
			return a.send(ctx, msg.ChatID, domain.Reply{Text: textNothingToCancel})
		}
		a.Store.DeleteSession(msg.UserID)
		return a.send(ctx, msg.ChatID, a.Calculator.Cancel().Reply)
	case "clear":
		a.Store.ClearHistory(msg.UserID)
		a.Store.DeleteSession(msg.UserID)
		return a.send(ctx, msg.ChatID, domain.Reply{Text: textHistoryCleared})
	case "reload":
		if !a.isAdmin(msg.UserID) {
			return a.send(ctx, msg.ChatID, domain.Reply{Text: textAdminsOnly})
		}
		before := a.Knowledge.Size()
		err := a.Knowledge.Reload()
		if err != nil {
			log.Warn().Err(err).Msg("knowledge reload")
		}
		return a.send(ctx, msg.ChatID, reloadReply(before, a.Knowledge.Size(), err))
	case "status":
		if !a.isAdmin(msg.UserID) {
			return nil
		}
		return a.send(ctx, msg.ChatID, statusReply(a.Knowledge.Source(), a.opts.Model, a.Knowledge.Size()))
	default:
		return nil
	}
}

func (a *Assistant) handleCallback(ctx context.Context, msg domain.Message) error {
	log := zerolog.Ctx(ctx)
	if err := a.Messenger.AnswerCallback(ctx, msg.CallbackID, ""); err != nil {
		log.Warn().Err(err).Msg("answer callback")
	}
	if !strings.HasPrefix(msg.Data, calculator.ButtonPrefix) {
		log.Debug().Str("data", msg.Data).Msg("ignoring unknown callback")
		return nil
	}
	if !a.hasAccess(ctx, msg.UserID) {
		return a.send(ctx, msg.ChatID, lockedReply(a.opts.AccessURL))
	}
	session, ok := a.Store.Session(msg.UserID)
	if !ok || !session.Active() {
		return a.send(ctx, msg.ChatID, domain.Reply{Text: textSessionExpired})
	}
	return a.advance(ctx, msg, session, msg.Data)
}

func (a *Assistant) handleText(ctx context.Context, msg domain.Message, text string) error {
	if !a.hasAccess(ctx, msg.UserID) {
		return a.send(ctx, msg.ChatID, lockedReply(a.opts.AccessURL))
	}
	if a.opts.MaxMessageLen > 0 && utf8.RuneCountInString(text) > a.opts.MaxMessageLen {
		return a.send(ctx, msg.ChatID, domain.Reply{Text: fmt.Sprintf(textTooLong, a.opts.MaxMessageLen)})
	}
	if a.Limiters != nil && !a.Limiters.Allow(msg.UserID) {
		zerolog.Ctx(ctx).Info().Msg("rate limited")
		return a.send(ctx, msg.ChatID, domain.Reply{Text: textRateLimited})
	}

	if session, ok := a.Store.Session(msg.UserID); ok && session.Active() {
		return a.advance(ctx, msg, session, text)
	}
	return a.answer(ctx, msg, text)
}

func (a *Assistant) advance(ctx context.Context, msg domain.Message, session domain.CalcSession, answer string) error {
	log := zerolog.Ctx(ctx)
	out, err := a.Calculator.Advance(session, answer)
	var verr *calculator.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Debug().Str("step", string(verr.Step)).Str("reason", verr.Reason).Msg("calculator input rejected")
	case err != nil:
		log.Warn().Err(err).Str("session_id", session.ID).Msg("calculator failed")
	}

	if out.Session.Active() {
		a.Store.PutSession(msg.UserID, out.Session)
	} else {
		a.Store.DeleteSession(msg.UserID)
	}
	if out.Result != nil {
		log.Info().
			Str("session_id", session.ID).
			Float64("risk_pct", out.Result.RiskPct).
			Int("entries", out.Result.EntryCount).
			Msg("calculation complete")
	}
	return a.send(ctx, msg.ChatID, out.Reply)
}

// answer sends matching illustrations and then the completion for text.
// History only changes when the completion succeeds.
func (a *Assistant) answer(ctx context.Context, msg domain.Message, text string) error {
	log := zerolog.Ctx(ctx)

	if a.Illustrations != nil {
		for _, photo := range a.Illustrations.Match(text) {
			if err := a.Messenger.SendPhoto(ctx, msg.ChatID, photo); err != nil {
				log.Warn().Err(err).Str("path", photo.Path).Msg("send illustration")
			}
		}
	}
	if err := a.Messenger.SendChatAction(ctx, msg.ChatID, "typing"); err != nil {
		log.Debug().Err(err).Msg("send typing action")
	}

	history := a.Store.History(msg.UserID)
	if n := a.opts.HistoryLimit; n >= 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	reply, err := a.Completer.Complete(ctx, openrouter.Request{
		SystemPrompt: a.opts.SystemPrompt + a.Knowledge.Text(),
		History:      history,
		Message:      text,
	})
	if err != nil {
		log.Error().Err(err).Bool("timeout", errors.Is(err, openrouter.ErrTimeout)).Msg("completion failed")
		return a.send(ctx, msg.ChatID, domain.Reply{Text: textCompletionError})
	}

	a.Store.AppendHistory(msg.UserID,
		domain.Turn{Role: domain.RoleUser, Content: text},
		domain.Turn{Role: domain.RoleAssistant, Content: reply},
	)
	for _, part := range splitText(reply, maxReplyLen) {
		if err := a.send(ctx, msg.ChatID, domain.Reply{Text: part}); err != nil {
			return err
		}
	}
	return nil
}

// hasAccess treats a failed membership lookup as no access.
func (a *Assistant) hasAccess(ctx context.Context, userID int64) bool {
	ok, err := a.Membership.IsMember(ctx, a.opts.ChannelID, userID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("membership check failed")
		return false
	}
	return ok
}

func (a *Assistant) isAdmin(userID int64) bool {
	return a.opts.IsAdmin == nil || a.opts.IsAdmin(userID)
}

func (a *Assistant) send(ctx context.Context, chatID int64, reply domain.Reply) error {
	if err := a.Messenger.SendMessage(ctx, chatID, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// splitText cuts s into pieces of at most limit characters, preferring to
// break after a newline.
func splitText(s string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(s) > limit {
		cut := len(string([]rune(s)[:limit]))
		if nl := strings.LastIndexByte(s[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return append(parts, s)
}
