package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"strategybot/internal/config"
	"strategybot/internal/domain"
	"strategybot/internal/integrations/telegram"
	"strategybot/internal/service/calculator"
	"strategybot/internal/service/risk"
	storepkg "strategybot/internal/store"
)

type contextKey string

const contextKeyAdminSubject contextKey = "admin_subject"

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Dispatcher handles one inbound chat message.
type Dispatcher interface {
	Handle(ctx context.Context, msg domain.Message) error
}

type Knowledge interface {
	Source() string
	Size() int
	Reload() error
}

type Server struct {
	cfg        config.Config
	dispatcher Dispatcher
	knowledge  Knowledge
	engine     *risk.Engine
	store      storepkg.Store
	log        zerolog.Logger
	startedAt  time.Time
}

func NewServer(
	cfg config.Config,
	dispatcher Dispatcher,
	knowledge Knowledge,
	engine *risk.Engine,
	store storepkg.Store,
	log zerolog.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		knowledge:  knowledge,
		engine:     engine,
		store:      store,
		log:        log.With().Str("component", "http").Logger(),
		startedAt:  time.Now().UTC(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	r.Post("/admin/login", s.handleAdminLogin)

	r.Group(func(protected chi.Router) {
		protected.Use(s.requireAdmin)
		protected.Get("/admin/status", s.handleStatus)
		protected.Post("/admin/knowledge/reload", s.handleReload)
		protected.Post("/admin/risk/calculate", s.handleCalculate)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleWebhook processes the update before responding, so a slow
// completion delays Telegram's next delivery for this bot.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := s.cfg.TelegramWebhookSecret; secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid secret token")
			return
		}
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}
	msg, ok := update.Message()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	if err := s.dispatcher.Handle(r.Context(), msg); err != nil {
		hlog.FromRequest(r).Error().Err(err).
			Int64("update_id", update.UpdateID).
			Int64("user_id", msg.UserID).
			Msg("handle update")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.AdminPassword == "" || s.cfg.JWTSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "admin api disabled")
		return
	}
	if req.Username != s.cfg.AdminUsername || req.Password != s.cfg.AdminPassword {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.signAdminToken(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create admin token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
		"type":       "Bearer",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":            s.cfg.Model,
		"knowledge_source": s.knowledge.Source(),
		"knowledge_chars":  s.knowledge.Size(),
		"users":            s.store.Users(),
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	admin, _ := r.Context().Value(contextKeyAdminSubject).(string)
	before := s.knowledge.Size()
	err := s.knowledge.Reload()
	body := map[string]interface{}{
		"before": before,
		"after":  s.knowledge.Size(),
		"source": s.knowledge.Source(),
	}
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("admin", admin).Msg("knowledge reload")
		body["error"] = err.Error()
	} else {
		hlog.FromRequest(r).Info().Str("admin", admin).Int("chars", s.knowledge.Size()).Msg("knowledge reloaded")
	}
	writeJSON(w, http.StatusOK, body)
}

type calculateRequest struct {
	Balance           float64 `json:"balance"`
	InitialDeposit    float64 `json:"initial_deposit"`
	Phase             string  `json:"phase"`
	SetupID           int     `json:"setup_id"`
	Volatility        string  `json:"volatility"`
	Confidence        float64 `json:"confidence"`
	CycleDay          int     `json:"cycle_day"`
	PreviousProfit    float64 `json:"previous_profit"`
	GrowthCoefficient float64 `json:"growth_coefficient"`
	Efficiency        float64 `json:"efficiency"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	phase, err := risk.ParsePhase(req.Phase)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vol, err := risk.ParseVolatility(req.Volatility)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.Calculate(risk.Input{
		Balance:           req.Balance,
		InitialDeposit:    req.InitialDeposit,
		Phase:             phase,
		SetupID:           req.SetupID,
		Volatility:        vol,
		Confidence:        req.Confidence,
		CycleDay:          req.CycleDay,
		PreviousProfit:    req.PreviousProfit,
		GrowthCoefficient: req.GrowthCoefficient,
		Efficiency:        req.Efficiency,
	})
	if errors.Is(err, risk.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "calculation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":    result,
		"recovery":  result.Recovery.String(),
		"formatted": calculator.FormatResult(result),
	})
}

func (s *Server) signAdminToken(subject string) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(12 * time.Hour)
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": expiresAt.Unix(),
		"iat": time.Now().UTC().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if s.cfg.JWTSecret == "" {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid admin claims")
			return
		}
		sub, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), contextKeyAdminSubject, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
