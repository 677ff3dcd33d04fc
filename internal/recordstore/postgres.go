package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/internal/domain"
)

// PostgresStore keeps link records in the service's own users table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres wraps an established sqlx connection.
func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) logQuery(op string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("event", "record.query"),
		slog.String("driver", "postgres"),
		slog.String("operation", op),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelDebug
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		attrs = append(attrs, slog.String("err", err.Error()))
		level = slog.LevelError
	}
	logger.REC.LogAttrs(context.Background(), level, "record.query", attrs...)
}

// ResolveByTelegramID returns the account row linked to the Telegram user and
// refreshes the stored handle in the same statement.
func (s *PostgresStore) ResolveByTelegramID(ctx context.Context, tgUserID int64, username string) (string, error) {
	start := time.Now()
	var accountID string
	err := s.db.QueryRowxContext(ctx,
		`UPDATE users
		    SET telegram_handle = COALESCE(NULLIF($2, ''), telegram_handle)
		  WHERE telegram_user_id = $1
		RETURNING id`,
		tgUserID, username,
	).Scan(&accountID)
	s.logQuery("resolve_by_telegram_id", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFoundUser()
	}
	if err != nil {
		return "", domain.ErrUpstreamUnavailable(err)
	}
	return accountID, nil
}

// LinkTelegram binds the Telegram identity to the account and marks it verified.
func (s *PostgresStore) LinkTelegram(ctx context.Context, accountID string, tgUserID int64, username string) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users
		    SET telegram_user_id = $2,
		        telegram_handle = $3,
		        telegram_verified = TRUE
		  WHERE id = $1`,
		accountID, tgUserID, username,
	)
	s.logQuery("link_telegram", start, err)
	if err != nil {
		return domain.ErrUpstreamUnavailable(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.ErrUpstreamUnavailable(err)
	}
	if affected == 0 {
		return domain.ErrNotFoundUser()
	}
	return nil
}

// MarkVerifiedByHandle flips the verified flag for rows carrying the handle.
func (s *PostgresStore) MarkVerifiedByHandle(ctx context.Context, handle string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE users
		    SET telegram_verified = TRUE
		  WHERE telegram_handle = $1`,
		handle,
	)
	s.logQuery("mark_verified_by_handle", start, err)
	if err != nil {
		return domain.ErrUpstreamUnavailable(err)
	}
	return nil
}
