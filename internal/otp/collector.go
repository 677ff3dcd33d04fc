package otp

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
)

var (
	deepLinkArgRe = regexp.MustCompile(`^verify_([0-9]{6})$`)
	bareCodeRe    = regexp.MustCompile(`^[0-9]{6}$`)
)

// Collector records the messaging side of the handshake: proof that the code
// reached a Telegram identity. The deposit is one-sided; it never checks
// whether the website side exists.
type Collector struct {
	store codestore.Store
	ttl   time.Duration
}

// NewCollector builds a Collector.
func NewCollector(store codestore.Store, ttl time.Duration) *Collector {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Collector{store: store, ttl: ttl}
}

// Collect handles the /start deep-link argument form ("verify_<6 digits>").
// Returns the extracted code.
func (c *Collector) Collect(ctx context.Context, arg, identity string) (string, error) {
	m := deepLinkArgRe.FindStringSubmatch(strings.TrimSpace(arg))
	if m == nil {
		return "", domain.ErrValidation("invalid verification format")
	}
	return m[1], c.Deposit(ctx, m[1], identity)
}

// Deposit stores the code under the tele_verify namespace with the messaging
// identity as value. Shared by the deep-link entry point and the conversation
// code step.
func (c *Collector) Deposit(ctx context.Context, code, identity string) error {
	if !bareCodeRe.MatchString(code) {
		return domain.ErrValidation("invalid verification format")
	}
	identity = strings.TrimSpace(strings.TrimPrefix(identity, "@"))
	if identity == "" {
		return domain.ErrValidation("messaging identity is required")
	}

	if err := c.store.Put(ctx, codestore.TeleVerifyKey(code), identity, c.ttl); err != nil {
		return domain.ErrUpstreamUnavailable(err)
	}

	logger.SVCOtp.LogAttrs(ctx, slog.LevelInfo, "otp.collected",
		slog.String("event", "otp.collected"),
		slog.String("status", "ok"),
		slog.String("handle", identity),
	)
	return nil
}
