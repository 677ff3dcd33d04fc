package recordstore

import "context"

// LinkStore persists the Telegram link state of primary accounts. The record
// schema stays opaque to the rest of the service; only the three link fields
// (telegram_user_id, telegram_handle, telegram_verified) are ever touched.
type LinkStore interface {
	// ResolveByTelegramID returns the account linked to the Telegram user and
	// refreshes the stored handle while doing so. Unknown user -> NOT_FOUND_USER.
	ResolveByTelegramID(ctx context.Context, tgUserID int64, username string) (string, error)

	// LinkTelegram binds the Telegram identity to the account and marks it verified.
	LinkTelegram(ctx context.Context, accountID string, tgUserID int64, username string) error

	// MarkVerifiedByHandle flips the verified flag for records carrying the handle.
	// Used by the stateless cross-verification path where only the handle is known.
	MarkVerifiedByHandle(ctx context.Context, handle string) error
}
