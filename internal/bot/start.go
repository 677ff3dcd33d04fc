package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/telelink/core/logger"
	tghelpers "github.com/m3rciful/telelink/core/telegram/helpers"
	"github.com/m3rciful/telelink/internal/domain"
)

const backendCallTimeout = 10 * time.Second

// handleStart greets the user, syncs the stored username with the backend,
// and handles the optional verify_<code> deep-link payload.
func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	sender := c.Sender()

	linked := a.syncUsername(ctx, sender)

	payload := strings.TrimSpace(c.Message().Payload)
	if payload != "" {
		return a.handleDeepLink(ctx, c, payload, linked)
	}
	return a.sendMainMenu(c, linked)
}

// syncUsername refreshes the stored Telegram username and reports whether the
// sender is already linked. Backend trouble degrades to "not linked"; the menu
// just shows the verify button again.
func (a *App) syncUsername(ctx context.Context, sender *tele.User) bool {
	callCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()

	accountID, err := a.backend.UpdateUsername(callCtx, sender.ID, sender.Username)
	if err != nil {
		if domain.CodeOf(err) != domain.CodeNotFoundUser {
			logger.TG.Warn("username sync failed",
				slog.String("event", "start.sync"),
				slog.Int64("user_id", sender.ID),
				slog.String("err", err.Error()),
			)
		}
		return false
	}
	return accountID != ""
}

// handleDeepLink consumes a /start verify_<code> argument: the collector
// records the messaging side of the handshake and the user is told to finish
// on the website.
func (a *App) handleDeepLink(ctx context.Context, c tele.Context, payload string, linked bool) error {
	callCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()

	code, err := a.collector.Collect(callCtx, payload, c.Sender().Username)
	if err != nil {
		switch domain.CodeOf(err) {
		case domain.CodeValidation:
			return tghelpers.SendText(c, "That verification link looks invalid. Please request a new code on the website.")
		default:
			return tghelpers.SendText(c, "Something went wrong on our side. Please try the link again in a moment.")
		}
	}

	logger.TG.Info("deep link collected",
		slog.String("event", "start.deeplink"),
		slog.Int64("user_id", c.Sender().ID),
		slog.String("code", code),
	)
	if err := tghelpers.SendText(c, "Code "+code+" received! Head back to the website to finish linking."); err != nil {
		return err
	}
	return a.sendMainMenu(c, linked)
}
