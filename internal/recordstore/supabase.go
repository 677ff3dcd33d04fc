package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/internal/domain"
)

// SupabaseStore talks to a PostgREST-style API with a service-role key.
type SupabaseStore struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
}

// SupabaseOptions configures NewSupabase.
type SupabaseOptions struct {
	BaseURL string
	APIKey  string
	Table   string
	Client  *http.Client
}

// NewSupabase builds a REST-backed LinkStore.
func NewSupabase(opts SupabaseOptions) *SupabaseStore {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	table := opts.Table
	if table == "" {
		table = "users"
	}
	return &SupabaseStore{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		table:   table,
		client:  client,
	}
}

func (s *SupabaseStore) rowsURL(filter string) string {
	return fmt.Sprintf("%s/rest/v1/%s?%s", s.baseURL, s.table, filter)
}

func (s *SupabaseStore) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("recordstore: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("recordstore: build request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.REC.Error("request failed",
			slog.String("event", "record.request"),
			slog.String("driver", "supabase"),
			slog.String("method", method),
			slog.String("table", s.table),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, domain.ErrUpstreamUnavailable(err)
	}
	logger.REC.Debug("request done",
		slog.String("event", "record.request"),
		slog.String("driver", "supabase"),
		slog.String("method", method),
		slog.String("table", s.table),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", took),
	)
	return resp, nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func statusErr(resp *http.Response) error {
	defer drainClose(resp)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return domain.ErrUpstreamUnavailable(fmt.Errorf("status %s", resp.Status))
}

// ResolveByTelegramID looks up the account by Telegram user id and refreshes
// the stored handle.
func (s *SupabaseStore) ResolveByTelegramID(ctx context.Context, tgUserID int64, username string) (string, error) {
	filter := fmt.Sprintf("telegram_user_id=eq.%d&select=id", tgUserID)
	resp, err := s.do(ctx, http.MethodGet, s.rowsURL(filter), nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drainClose(resp)
		return "", domain.ErrUpstreamUnavailable(fmt.Errorf("status %s", resp.Status))
	}

	var rows []struct {
		ID string `json:"id"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&rows)
	drainClose(resp)
	if decodeErr != nil {
		return "", domain.ErrUpstreamUnavailable(fmt.Errorf("decode rows: %w", decodeErr))
	}
	if len(rows) == 0 {
		return "", domain.ErrNotFoundUser()
	}
	accountID := rows[0].ID

	if username != "" {
		patch := map[string]any{"telegram_handle": username}
		filter := "telegram_user_id=eq." + url.QueryEscape(fmt.Sprintf("%d", tgUserID))
		resp, err := s.do(ctx, http.MethodPatch, s.rowsURL(filter), patch)
		if err != nil {
			return "", err
		}
		if err := statusErr(resp); err != nil {
			return "", err
		}
	}

	return accountID, nil
}

// LinkTelegram binds the Telegram identity to the account row and marks it verified.
func (s *SupabaseStore) LinkTelegram(ctx context.Context, accountID string, tgUserID int64, username string) error {
	patch := map[string]any{
		"telegram_user_id":  tgUserID,
		"telegram_handle":   username,
		"telegram_verified": true,
	}
	filter := "id=eq." + url.QueryEscape(accountID)
	resp, err := s.do(ctx, http.MethodPatch, s.rowsURL(filter), patch)
	if err != nil {
		return err
	}
	return statusErr(resp)
}

// MarkVerifiedByHandle flips the verified flag for rows carrying the handle.
func (s *SupabaseStore) MarkVerifiedByHandle(ctx context.Context, handle string) error {
	patch := map[string]any{
		"telegram_handle":   handle,
		"telegram_verified": true,
	}
	filter := "telegram_handle=eq." + url.QueryEscape(handle)
	resp, err := s.do(ctx, http.MethodPatch, s.rowsURL(filter), patch)
	if err != nil {
		return err
	}
	return statusErr(resp)
}
