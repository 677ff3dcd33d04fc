// Package botapi is the bot-side client for the backend linking endpoints.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/internal/domain"
	"github.com/m3rciful/telelink/internal/otp"
)

// Client calls the backend on behalf of the bot.
type Client struct {
	baseURL  string
	botToken string
	client   *http.Client
}

// Options configures NewClient.
type Options struct {
	BaseURL  string
	BotToken string
	Client   *http.Client
}

// NewClient builds a backend client. The bot token is only used to sign
// confirm calls; it never travels in a request body.
func NewClient(opts Options) *Client {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:  opts.BaseURL,
		botToken: opts.BotToken,
		client:   client,
	}
}

type confirmBody struct {
	OTP              string `json:"otp"`
	TelegramUserID   int64  `json:"telegram_user_id"`
	TelegramUsername string `json:"telegram_username"`
	Signature        string `json:"signature"`
}

type updateUsernameBody struct {
	TelegramUserID   int64  `json:"telegram_user_id"`
	TelegramUsername string `json:"telegram_username"`
}

type updateUsernameReply struct {
	Message          string `json:"message"`
	TelegramUsername string `json:"telegram_username"`
	AccountID        string `json:"account_id"`
}

type errorReply struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ConfirmLink finalizes a link after the user pressed Yes. The request is
// signed with the bot token so the backend can reject forged confirms.
func (c *Client) ConfirmLink(ctx context.Context, code string, tgUserID int64, username string) error {
	body := confirmBody{
		OTP:              code,
		TelegramUserID:   tgUserID,
		TelegramUsername: username,
		Signature:        otp.Sign(c.botToken, code, tgUserID),
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/telegram/verifyTelegram", body)
	if err != nil {
		return err
	}
	defer drainClose(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrInvalidSignature()
	case resp.StatusCode == http.StatusBadRequest:
		return domain.ErrExpiredOrUnknownCode()
	default:
		return domain.ErrUpstreamUnavailable(fmt.Errorf("status %s: %s", resp.Status, replyText(resp)))
	}
}

// UpdateUsername refreshes the stored username and returns the linked account
// id, or NotFoundUser when the Telegram id is unknown to the backend.
func (c *Client) UpdateUsername(ctx context.Context, tgUserID int64, username string) (string, error) {
	body := updateUsernameBody{TelegramUserID: tgUserID, TelegramUsername: username}
	resp, err := c.do(ctx, http.MethodPut, "/api/telegram/update-username", body)
	if err != nil {
		return "", err
	}
	defer drainClose(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", domain.ErrNotFoundUser()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", domain.ErrUpstreamUnavailable(fmt.Errorf("status %s: %s", resp.Status, replyText(resp)))
	}

	var reply updateUsernameReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", domain.ErrUpstreamUnavailable(fmt.Errorf("decode reply: %w", err))
	}
	return reply.AccountID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("botapi: marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("botapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.TWire.Error("backend call failed",
			slog.String("event", "backend.request"),
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, domain.ErrUpstreamUnavailable(err)
	}
	logger.TWire.Debug("backend call done",
		slog.String("event", "backend.request"),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", took),
	)
	return resp, nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func replyText(resp *http.Response) string {
	var reply errorReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&reply); err != nil {
		return ""
	}
	if reply.Error != "" {
		return reply.Error
	}
	return reply.Message
}
