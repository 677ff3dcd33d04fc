package codestore

import (
	"context"
	"time"
)

// Key namespaces for the two sides of the linking handshake.
const (
	otpPrefix        = "otp:"
	teleVerifyPrefix = "tele_verify:"
)

// OTPKey returns the storage key for a website-issued code.
func OTPKey(code string) string { return otpPrefix + code }

// TeleVerifyKey returns the storage key for a messaging-confirmed code.
func TeleVerifyKey(code string) string { return teleVerifyPrefix + code }

// Store is the ephemeral code store. Values live until their TTL passes;
// expiry is the only cleanup. Get reports absence instead of an error so
// expired and never-written keys are indistinguishable to callers.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}
