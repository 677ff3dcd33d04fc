package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/telelink/internal/codestore"
)

// recordingLinkStore captures MarkVerifiedByHandle calls for assertions.
type recordingLinkStore struct {
	mu      sync.Mutex
	handles []string
	fails   int
}

func (r *recordingLinkStore) ResolveByTelegramID(context.Context, int64, string) (string, error) {
	return "", errors.New("not implemented")
}

func (r *recordingLinkStore) LinkTelegram(context.Context, string, int64, string) error {
	return errors.New("not implemented")
}

func (r *recordingLinkStore) MarkVerifiedByHandle(_ context.Context, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("transient failure")
	}
	r.handles = append(r.handles, handle)
	return nil
}

func (r *recordingLinkStore) patched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.handles...)
}

func seedBothSides(t *testing.T, store codestore.Store, code, otpPayload, teleIdentity string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, codestore.OTPKey(code), otpPayload, time.Minute))
	require.NoError(t, store.Put(ctx, codestore.TeleVerifyKey(code), teleIdentity, time.Minute))
}

func TestVerifyMatchPatchesRecords(t *testing.T) {
	store := codestore.NewMemory()
	records := &recordingLinkStore{}
	verifier := NewVerifier(VerifierOptions{Store: store, Records: records})

	seedBothSides(t, store, "123456", `{"telegram_handle":"alice"}`, "alice")

	ok, err := verifier.Verify(context.Background(), "123456", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	verifier.Wait()
	assert.Equal(t, []string{"alice"}, records.patched())
}

func TestVerifyIsIdempotent(t *testing.T) {
	store := codestore.NewMemory()
	verifier := NewVerifier(VerifierOptions{Store: store})

	seedBothSides(t, store, "123456", `{"telegram_handle":"alice"}`, "alice")

	for i := 0; i < 2; i++ {
		ok, err := verifier.Verify(context.Background(), "123456", "alice")
		require.NoError(t, err)
		assert.True(t, ok, "verify must stay true on repeated calls")
	}
}

func TestVerifyNegativeCases(t *testing.T) {
	tests := []struct {
		name         string
		otpPayload   string
		teleIdentity string
		handle       string
	}{
		{"handle mismatch on otp side", `{"telegram_handle":"mallory"}`, "alice", "alice"},
		{"handle mismatch on tele side", `{"telegram_handle":"alice"}`, "mallory", "alice"},
		{"malformed payload", `not-json`, "alice", "alice"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := codestore.NewMemory()
			records := &recordingLinkStore{}
			verifier := NewVerifier(VerifierOptions{Store: store, Records: records})
			seedBothSides(t, store, "123456", tc.otpPayload, tc.teleIdentity)

			ok, err := verifier.Verify(context.Background(), "123456", tc.handle)
			require.NoError(t, err)
			assert.False(t, ok)

			verifier.Wait()
			assert.Empty(t, records.patched(), "no patch may fire on a negative answer")
		})
	}
}

func TestVerifyMissingSides(t *testing.T) {
	ctx := context.Background()

	store := codestore.NewMemory()
	verifier := NewVerifier(VerifierOptions{Store: store})

	ok, err := verifier.Verify(ctx, "123456", "alice")
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored at all")

	require.NoError(t, store.Put(ctx, codestore.OTPKey("123456"), `{"telegram_handle":"alice"}`, time.Minute))
	ok, err = verifier.Verify(ctx, "123456", "alice")
	require.NoError(t, err)
	assert.False(t, ok, "tele_verify side missing")
}

func TestVerifyPatchRetriesTransientFailures(t *testing.T) {
	store := codestore.NewMemory()
	records := &recordingLinkStore{fails: 2}
	verifier := NewVerifier(VerifierOptions{
		Store:        store,
		Records:      records,
		PatchTimeout: 10 * time.Second,
	})

	seedBothSides(t, store, "123456", `{"telegram_handle":"alice"}`, "alice")

	ok, err := verifier.Verify(context.Background(), "123456", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	verifier.Wait()
	assert.Equal(t, []string{"alice"}, records.patched(), "patch must survive transient failures")
}
