package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/domain"
)

const DefaultAPIURL = "https://api.telegram.org"

// APIError is a response with ok=false or a non-2xx status.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client talks to the Bot API over plain HTTP.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(token, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "telegram").Logger(),
	}
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(c.http, req, method, out)
}

func (c *Client) do(hc *http.Client, req *http.Request, method string, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		// url.Error quotes the request URL, which carries the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{Method: method, Code: resp.StatusCode, Description: strings.TrimSpace(string(body))}
	}
	if !env.OK || resp.StatusCode/100 != 2 {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

type inlineKeyboard struct {
	InlineKeyboard [][]domain.Button `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboard `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, reply domain.Reply) error {
	req := sendMessageRequest{
		ChatID:    chatID,
		Text:      reply.Text,
		ParseMode: string(reply.ParseMode),
	}
	if len(reply.Buttons) > 0 {
		req.ReplyMarkup = &inlineKeyboard{InlineKeyboard: reply.Buttons}
	}
	return c.call(ctx, "sendMessage", req, nil)
}

// SendPhoto uploads the file at photo.Path as multipart form data.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo domain.Photo) error {
	f, err := os.Open(photo.Path)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", fmt.Sprint(chatID)); err != nil {
		return err
	}
	if photo.Caption != "" {
		if err := mw.WriteField("caption", photo.Caption); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("photo", filepath.Base(photo.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendPhoto"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(c.http, req, "sendPhoto", nil)
}

func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": action}, nil)
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

type chatMember struct {
	Status string `json:"status"`
}

// IsMember reports whether userID is an active member of groupID. Left,
// kicked and restricted users are not members.
func (c *Client) IsMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	var m chatMember
	err := c.call(ctx, "getChatMember", map[string]any{"chat_id": groupID, "user_id": userID}, &m)
	if err != nil {
		return false, err
	}
	switch m.Status {
	case "member", "administrator", "creator":
		return true, nil
	default:
		return false, nil
	}
}

func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

// DeleteWebhook must run before polling; getUpdates is refused while a
// webhook is registered.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false}, nil)
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("getUpdates"), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := &http.Client{Timeout: timeout + 10*time.Second}
	var updates []Update
	if err := c.do(hc, req, "getUpdates", &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// Handler receives one inbound message.
type Handler func(ctx context.Context, msg domain.Message)

// StartPolling long-polls getUpdates and passes every usable update to
// handle. Blocks until ctx is cancelled.
func (c *Client) StartPolling(ctx context.Context, timeout, backoff time.Duration, handle Handler) {
	var offset int64
	c.log.Info().Dur("timeout", timeout).Msg("polling started")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("polling stopped")
			return
		}
		updates, err := c.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("polling stopped")
				return
			}
			c.log.Warn().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			msg, ok := u.Message()
			if !ok {
				continue
			}
			handle(ctx, msg)
		}
	}
}
