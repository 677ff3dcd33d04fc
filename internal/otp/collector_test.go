package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
)

func TestCollectDeepLinkArg(t *testing.T) {
	ctx := context.Background()
	store := codestore.NewMemory()
	collector := NewCollector(store, 300*time.Second)

	code, err := collector.Collect(ctx, "verify_123456", "@alice")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	val, ok, err := store.Get(ctx, codestore.TeleVerifyKey("123456"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", val)
}

func TestCollectRejectsMalformedArgs(t *testing.T) {
	store := codestore.NewMemory()
	collector := NewCollector(store, 300*time.Second)

	for _, arg := range []string{"", "verify_", "verify_12345", "verify_1234567", "verify_abcdef", "123456", "verify_123456extra"} {
		_, err := collector.Collect(context.Background(), arg, "alice")
		require.Error(t, err, "arg %q must be rejected", arg)
		assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	}

	// Nothing may be stored on rejection.
	_, ok, err := store.Get(context.Background(), codestore.TeleVerifyKey("123456"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDepositRequiresIdentity(t *testing.T) {
	collector := NewCollector(codestore.NewMemory(), 300*time.Second)

	err := collector.Deposit(context.Background(), "123456", "  ")
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestDepositIsOneSided(t *testing.T) {
	ctx := context.Background()
	store := codestore.NewMemory()
	collector := NewCollector(store, 300*time.Second)

	// No otp: entry exists for this code; the deposit must still succeed.
	require.NoError(t, collector.Deposit(ctx, "999999", "bob"))

	val, ok, err := store.Get(ctx, codestore.TeleVerifyKey("999999"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", val)
}
