package otp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
)

// IssuerOptions configures NewIssuer.
type IssuerOptions struct {
	Store        codestore.Store
	TTL          time.Duration
	BotUsername  string
	TelegramBase string
}

// Issuer creates pending verification codes on behalf of the website.
type Issuer struct {
	store        codestore.Store
	ttl          time.Duration
	botUsername  string
	telegramBase string
}

// IssueRequest carries the website-side inputs for a new code.
type IssueRequest struct {
	TelegramHandle string
	AccountID      string
	Email          string
}

// IssueResult is what the website shows the user: the code and a deep link
// that opens the bot with the code prefilled.
type IssueResult struct {
	Code     string
	DeepLink string
}

// NewIssuer builds an Issuer.
func NewIssuer(opts IssuerOptions) *Issuer {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	base := strings.TrimRight(opts.TelegramBase, "/")
	if base == "" {
		base = "https://t.me"
	}
	return &Issuer{
		store:        opts.Store,
		ttl:          ttl,
		botUsername:  strings.TrimPrefix(opts.BotUsername, "@"),
		telegramBase: base,
	}
}

// Issue generates a fresh 6-digit code, stores its payload under the otp
// namespace, and returns the code with its deep link. Codes are uniform over
// 100000..999999; a collision overwrites the older pending code, which is an
// accepted weakness at this issue rate.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	handle := strings.TrimSpace(strings.TrimPrefix(req.TelegramHandle, "@"))
	if handle == "" {
		return IssueResult{}, domain.ErrValidation("telegram_handle is required")
	}

	code, err := randomCode()
	if err != nil {
		return IssueResult{}, fmt.Errorf("otp: generate code: %w", err)
	}

	payload, err := json.Marshal(domain.CodePayload{
		TelegramHandle: handle,
		AccountID:      strings.TrimSpace(req.AccountID),
		Email:          strings.TrimSpace(req.Email),
	})
	if err != nil {
		return IssueResult{}, fmt.Errorf("otp: marshal payload: %w", err)
	}

	if err := i.store.Put(ctx, codestore.OTPKey(code), string(payload), i.ttl); err != nil {
		return IssueResult{}, domain.ErrUpstreamUnavailable(err)
	}

	logger.SVCOtp.LogAttrs(ctx, slog.LevelInfo, "otp.issued",
		slog.String("event", "otp.issued"),
		slog.String("status", "ok"),
		slog.String("handle", handle),
		slog.Int64("ttl_seconds", int64(i.ttl/time.Second)),
	)

	return IssueResult{
		Code:     code,
		DeepLink: fmt.Sprintf("%s/%s?start=verify_%s", i.telegramBase, i.botUsername, code),
	}, nil
}

// randomCode draws a uniform 6-digit code from crypto/rand.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
