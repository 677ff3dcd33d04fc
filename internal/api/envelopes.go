package api

import (
	"encoding/json"
	"net/http"
)

// requestOTPRequest is the website-side payload asking for a new code.
type requestOTPRequest struct {
	TelegramHandle string `json:"telegram_handle"`
	AccountID      string `json:"account_id"`
	Email          string `json:"email" validate:"omitempty,email"`
}

// requestOTPResponse carries the code and the deep link the website shows.
type requestOTPResponse struct {
	OTP          string `json:"otp"`
	TelegramLink string `json:"telegram_link"`
}

type verifyOTPRequest struct {
	OTP            string `json:"otp"`
	TelegramHandle string `json:"telegram_handle"`
}

type verifyOTPResponse struct {
	Verified bool `json:"verified"`
}

// confirmLinkRequest is the signed bot-to-backend payload.
type confirmLinkRequest struct {
	OTP              string `json:"otp" validate:"required,len=6,numeric"`
	TelegramUserID   int64  `json:"telegram_user_id" validate:"required"`
	TelegramUsername string `json:"telegram_username"`
	Signature        string `json:"signature" validate:"required"`
}

type updateUsernameRequest struct {
	TelegramUserID   int64  `json:"telegram_user_id"`
	TelegramUsername string `json:"telegram_username"`
}

type updateUsernameResponse struct {
	Message          string `json:"message"`
	TelegramUsername string `json:"telegram_username"`
	AccountID        string `json:"account_id"`
}

// messageEnvelope is the generic response wrapper.
type messageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageEnvelope{Error: msg})
}
