package bot

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/telelink/core/telegram/helpers"
	"github.com/m3rciful/telelink/core/telegram/keyboard"
)

// sendMainMenu shows the entry keyboard. Linked users don't get the verify
// button again.
func (a *App) sendMainMenu(c tele.Context, linked bool) error {
	var buttons []keyboard.InlineBtn
	if !linked {
		buttons = append(buttons, keyboard.InlineBtn{Text: "🔗 Link my account", Unique: cbVerifyTG})
	}
	buttons = append(buttons, keyboard.InlineBtn{Text: "💳 Payments", Unique: cbPaySS})

	text := "What would you like to do?"
	if linked {
		text = "Your account is linked. What would you like to do?"
	}
	return tghelpers.SendMD(c, text, keyboard.InlineButtons(buttons))
}

// handlePayScreenshot is a stub: payment flows live on the website.
func (a *App) handlePayScreenshot(c tele.Context) error {
	return tghelpers.SendText(c, "Payments are handled on the website. Open your order there to continue.")
}
