package otp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the hex HMAC-SHA256 of "<code>.<telegram user id>" keyed with
// the bot token. The signature proves the confirm call originated from the bot
// process that shares the token with the backend.
func Sign(botToken, code string, tgUserID int64) string {
	mac := hmac.New(sha256.New, []byte(botToken))
	fmt.Fprintf(mac, "%s.%d", code, tgUserID)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the provided signature in constant time.
func VerifySignature(botToken, code string, tgUserID int64, signature string) bool {
	expected := Sign(botToken, code, tgUserID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
