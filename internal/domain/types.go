package domain

import "strings"

// CodePayload is the JSON document stored under the website-issued code.
// The handle is always present; account id and email are required only by the
// bot-side confirm dialog.
type CodePayload struct {
	TelegramHandle string `json:"telegram_handle"`
	AccountID      string `json:"account_id,omitempty"`
	Email          string `json:"email,omitempty"`
}

// Complete reports whether the payload carries everything the confirm dialog needs.
func (p CodePayload) Complete() bool {
	return strings.TrimSpace(p.AccountID) != "" && strings.TrimSpace(p.Email) != ""
}

// VerificationClaim is the pending link cached in the conversation session
// between the code step and the Yes/No confirmation.
type VerificationClaim struct {
	Code      string
	AccountID string
	Email     string
}

// LinkedAccount describes the record-store view of a linked Telegram user.
type LinkedAccount struct {
	AccountID      string
	TelegramUserID int64
	TelegramHandle string
	Verified       bool
}
