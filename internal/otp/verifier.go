package otp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
	"github.com/m3rciful/telelink/internal/recordstore"
)

// VerifierOptions configures NewVerifier.
type VerifierOptions struct {
	Store   codestore.Store
	Records recordstore.LinkStore

	// PatchTimeout bounds the whole best-effort record patch, retries included.
	PatchTimeout time.Duration
	// PatchMaxRetries caps retry attempts for the record patch.
	PatchMaxRetries uint64
}

// Verifier answers the stateless cross-verification question: did the same
// handle complete both sides of the handshake for this code?
type Verifier struct {
	store        codestore.Store
	records      recordstore.LinkStore
	patchTimeout time.Duration
	patchRetries uint64
	wg           sync.WaitGroup
}

// NewVerifier builds a Verifier.
func NewVerifier(opts VerifierOptions) *Verifier {
	timeout := opts.PatchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := opts.PatchMaxRetries
	if retries == 0 {
		retries = 5
	}
	return &Verifier{
		store:        opts.Store,
		records:      opts.Records,
		patchTimeout: timeout,
		patchRetries: retries,
	}
}

// Verify reads both handshake namespaces and reports whether they agree on the
// handle. It never mutates the store, so repeated calls with live matching
// inputs keep returning true. A positive answer fires the record patch in the
// background; its outcome never reaches the caller.
func (v *Verifier) Verify(ctx context.Context, code, handle string) (bool, error) {
	handle = strings.TrimSpace(strings.TrimPrefix(handle, "@"))
	if handle == "" || !bareCodeRe.MatchString(code) {
		return false, nil
	}

	rawPayload, ok, err := v.store.Get(ctx, codestore.OTPKey(code))
	if err != nil {
		return false, err
	}
	if !ok {
		v.logOutcome(ctx, handle, "miss_otp")
		return false, nil
	}

	var payload domain.CodePayload
	if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
		v.logOutcome(ctx, handle, "malformed_payload")
		return false, nil
	}

	teleIdentity, ok, err := v.store.Get(ctx, codestore.TeleVerifyKey(code))
	if err != nil {
		return false, err
	}
	if !ok {
		v.logOutcome(ctx, handle, "miss_tele_verify")
		return false, nil
	}

	if payload.TelegramHandle != handle || teleIdentity != handle {
		v.logOutcome(ctx, handle, "mismatch")
		return false, nil
	}

	v.logOutcome(ctx, handle, "ok")

	if v.records != nil {
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			v.patchRecords(handle)
		}()
	}
	return true, nil
}

// Wait blocks until in-flight record patches finish. Used on shutdown and in tests.
func (v *Verifier) Wait() {
	v.wg.Wait()
}

// patchRecords marks the handle verified in the record store with bounded
// fibonacci backoff. Runs detached from the request context.
func (v *Verifier) patchRecords(handle string) {
	ctx, cancel := context.WithTimeout(context.Background(), v.patchTimeout)
	defer cancel()

	start := time.Now()
	b := retry.NewFibonacci(500 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	b = retry.WithMaxRetries(v.patchRetries, b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := v.records.MarkVerifiedByHandle(ctx, handle); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.SVCLink.Error("record patch failed",
			slog.String("event", "link.patch"),
			slog.String("status", "fail"),
			slog.String("handle", handle),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.SVCLink.Info("record patched",
		slog.String("event", "link.patch"),
		slog.String("status", "ok"),
		slog.String("handle", handle),
		slog.Duration("duration", logger.Took(start)),
	)
}

func (v *Verifier) logOutcome(ctx context.Context, handle, reason string) {
	verified := reason == "ok"
	attrs := []slog.Attr{
		slog.String("event", "otp.verify"),
		slog.String("handle", handle),
		slog.Bool("verified", verified),
	}
	if !verified {
		attrs = append(attrs, slog.String("reason", reason))
	}
	logger.SVCOtp.LogAttrs(ctx, slog.LevelInfo, "otp.verify", attrs...)
}
