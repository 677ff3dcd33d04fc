package otp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
	"github.com/m3rciful/telelink/internal/recordstore"
)

// ConfirmerOptions configures NewConfirmer.
type ConfirmerOptions struct {
	Store    codestore.Store
	Records  recordstore.LinkStore
	BotToken string
}

// Confirmer finalizes a link on behalf of the bot. Unlike the stateless
// verify path, a successful confirm consumes the pending code.
type Confirmer struct {
	store    codestore.Store
	records  recordstore.LinkStore
	botToken string
}

// ConfirmRequest is the signed payload the bot posts after the user presses Yes.
type ConfirmRequest struct {
	Code             string
	TelegramUserID   int64
	TelegramUsername string
	Signature        string
}

// NewConfirmer builds a Confirmer.
func NewConfirmer(opts ConfirmerOptions) *Confirmer {
	return &Confirmer{
		store:    opts.Store,
		records:  opts.Records,
		botToken: opts.BotToken,
	}
}

// Confirm validates the signature, resolves the pending code, links the
// account in the record store, and consumes the code. The record write gates
// success here; a failed link leaves the code in place for another attempt.
func (c *Confirmer) Confirm(ctx context.Context, req ConfirmRequest) error {
	if !VerifySignature(c.botToken, req.Code, req.TelegramUserID, req.Signature) {
		logger.SVCLink.Warn("signature rejected",
			slog.String("event", "link.confirm"),
			slog.String("status", "fail"),
			slog.Int64("user_id", req.TelegramUserID),
		)
		return domain.ErrInvalidSignature()
	}

	rawPayload, ok, err := c.store.Get(ctx, codestore.OTPKey(req.Code))
	if err != nil {
		return domain.ErrUpstreamUnavailable(err)
	}
	if !ok {
		return domain.ErrExpiredOrUnknownCode()
	}

	var payload domain.CodePayload
	if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
		return domain.ErrMalformedPayload(err)
	}
	if payload.AccountID == "" {
		return domain.ErrMalformedPayload(nil)
	}

	if err := c.records.LinkTelegram(ctx, payload.AccountID, req.TelegramUserID, req.TelegramUsername); err != nil {
		return err
	}

	if err := c.store.Del(ctx, codestore.OTPKey(req.Code)); err != nil {
		// The link is already persisted; the leftover code simply expires.
		logger.SVCLink.Warn("code cleanup failed",
			slog.String("event", "link.confirm"),
			slog.String("err", err.Error()),
		)
	}

	logger.SVCLink.Info("link confirmed",
		slog.String("event", "link.confirm"),
		slog.String("status", "ok"),
		slog.String("account_id", payload.AccountID),
		slog.Int64("user_id", req.TelegramUserID),
	)
	return nil
}
