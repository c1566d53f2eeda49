package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"strategybot/internal/domain"
)

const DefaultURL = "https://openrouter.ai/api/v1/chat/completions"

var (
	ErrTimeout  = errors.New("completion timed out")
	ErrUpstream = errors.New("completion service failed")
)

type Options struct {
	URL         string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Request is one question with its conversation context. History must
// already be limited by the caller.
type Request struct {
	SystemPrompt string
	History      []domain.Turn
	Message      string
}

type Client struct {
	opts       Options
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		log:        log.With().Str("component", "openrouter").Logger(),
	}
}

func (c *Client) Model() string {
	return c.opts.Model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []domain.Turn `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one chat completion. Failures are never retried; the
// error wraps ErrTimeout or ErrUpstream.
func (c *Client) Complete(ctx context.Context, r Request) (string, error) {
	messages := make([]domain.Turn, 0, len(r.History)+2)
	messages = append(messages, domain.Turn{Role: domain.RoleSystem, Content: r.SystemPrompt})
	messages = append(messages, r.History...)
	messages = append(messages, domain.Turn{Role: domain.RoleUser, Content: r.Message})

	body, err := json.Marshal(chatRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("X-Request-ID", requestID)

	log := c.log.With().Str("request_id", requestID).Str("model", c.opts.Model).Logger()
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			log.Warn().Err(err).Dur("elapsed", time.Since(started)).Msg("completion timed out")
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Msg("completion rejected")
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, snippet(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUpstream)
	}
	log.Debug().Dur("elapsed", time.Since(started)).Int("history", len(r.History)).Msg("completion ok")
	return out.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
