package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/core/telegram/callbacks"
	"github.com/m3rciful/telelink/core/telegram/format"
	tghelpers "github.com/m3rciful/telelink/core/telegram/helpers"
	"github.com/m3rciful/telelink/core/telegram/keyboard"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
)

// startVerify opens the link dialog: the user is asked for the 6-digit code
// shown on the website. Reachable via /verify_telegram and the menu button.
func (a *App) startVerify(c tele.Context) error {
	tghelpers.WithHandler(c, "verify.start")
	a.sessions.SetState(c.Sender().ID, stateWaitOTP)
	return tghelpers.SendMD(c, "Please enter the 6-digit code shown on the website.",
		keyboard.SingleCancelMarkup(cbCancel))
}

// cancelVerify aborts the dialog from the cancel button in any state.
func (a *App) cancelVerify(c tele.Context) error {
	tghelpers.WithHandler(c, "verify.cancel")
	sender := c.Sender()

	if !a.sessions.InProgress(sender.ID) {
		return tghelpers.SendText(c, "Nothing to cancel. Use /verify_telegram to start linking.")
	}
	a.sessions.Clear(sender.ID)
	if err := tghelpers.SendText(c, "Verification cancelled."); err != nil {
		return err
	}
	return a.sendMainMenu(c, false)
}

// gotOTP handles the code the user typed while in the wait state. Every
// failure keeps the dialog in the same state so the user can just retry.
func (a *App) gotOTP(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "verify.code")
	sender := c.Sender()
	code := strings.TrimSpace(c.Text())

	callCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()

	raw, ok, err := a.store.Get(callCtx, codestore.OTPKey(code))
	if err != nil {
		logger.TG.Warn("code lookup failed",
			slog.String("event", "verify.lookup"),
			slog.Int64("user_id", sender.ID),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Something went wrong. Please try again.")
	}
	if !ok {
		return tghelpers.SendText(c, "That code is invalid or has expired. Please check the website and try again.")
	}

	var payload domain.CodePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || !payload.Complete() {
		return tghelpers.SendText(c, "There was an error reading the code data. Please request a new code and try again.")
	}

	if err := a.collector.Deposit(callCtx, code, sender.Username); err != nil {
		if domain.CodeOf(err) == domain.CodeValidation {
			return tghelpers.SendText(c, "You need a Telegram username to link your account. Set one in Telegram settings and try again.")
		}
		return tghelpers.SendText(c, "Something went wrong. Please try again.")
	}

	a.sessions.SetTemp(sender.ID, claimKey, domain.VerificationClaim{
		Code:      code,
		AccountID: payload.AccountID,
		Email:     payload.Email,
	})
	a.sessions.SetState(sender.ID, stateConfirm)

	// The code travels as callback payload so a stale keyboard from an
	// earlier dialog can never confirm a newer claim.
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Yes", Unique: cbConfirmYes, Data: code},
		{Text: "❌ No", Unique: cbConfirmNo, Data: code},
	})
	email, _ := format.EscapeMarkdown(payload.Email, format.MarkdownV1, "")
	username, _ := format.EscapeMarkdown(sender.Username, format.MarkdownV1, "")
	text := "Link the account *" + email + "* to Telegram user *@" + username + "*?"
	return tghelpers.SendMD(c, text, markup)
}

// confirmYes finalizes the link via the signed backend call. The claim and
// session are cleared regardless of the outcome.
func (a *App) confirmYes(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "verify.confirm_yes")
	sender := c.Sender()

	claim, ok := a.takeClaim(sender.ID)
	if !ok {
		return tghelpers.SendText(c, "This confirmation has expired. Please start over with /verify_telegram.")
	}
	if p := callbacks.CallbackPayload(c); p != "" && p != claim.Code {
		return tghelpers.SendText(c, "This confirmation has expired. Please start over with /verify_telegram.")
	}

	callCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()
	err := a.backend.ConfirmLink(callCtx, claim.Code, sender.ID, sender.Username)
	if err != nil {
		logger.TG.Warn("confirm failed",
			slog.String("event", "verify.confirm"),
			slog.Int64("user_id", sender.ID),
			slog.String("err", err.Error()),
		)
		var msg string
		switch domain.CodeOf(err) {
		case domain.CodeExpiredOrUnknownCode, domain.CodeInvalidSignature:
			msg = "Verification failed: the code is invalid or has expired. Please request a new one."
		default:
			msg = "Verification failed: the service is temporarily unavailable. Please try again later."
		}
		if sendErr := tghelpers.SendText(c, msg); sendErr != nil {
			return sendErr
		}
		return a.sendMainMenu(c, false)
	}

	logger.TG.Info("link confirmed",
		slog.String("event", "verify.confirm"),
		slog.String("status", "ok"),
		slog.Int64("user_id", sender.ID),
	)
	if err := tghelpers.SendText(c, "✅ Your Telegram account is now linked!"); err != nil {
		return err
	}
	return a.sendMainMenu(c, true)
}

// confirmNo cancels the dialog without any backend call.
func (a *App) confirmNo(c tele.Context) error {
	tghelpers.WithHandler(c, "verify.confirm_no")
	sender := c.Sender()

	if _, ok := a.takeClaim(sender.ID); !ok {
		return tghelpers.SendText(c, "Nothing to cancel. Use /verify_telegram to start linking.")
	}
	if err := tghelpers.SendText(c, "Verification cancelled."); err != nil {
		return err
	}
	return a.sendMainMenu(c, false)
}

// takeClaim pops the pending claim and resets the session in one step.
func (a *App) takeClaim(userID int64) (domain.VerificationClaim, bool) {
	val, ok := a.sessions.GetTemp(userID, claimKey)
	a.sessions.Clear(userID)
	if !ok {
		return domain.VerificationClaim{}, false
	}
	claim, ok := val.(domain.VerificationClaim)
	return claim, ok
}
