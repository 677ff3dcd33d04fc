package codestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDel(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Put(ctx, OTPKey("123456"), `{"telegram_handle":"alice"}`, 5*time.Minute))

	val, ok, err := store.Get(ctx, OTPKey("123456"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"telegram_handle":"alice"}`, val)

	_, ok, err = store.Get(ctx, OTPKey("000000"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Del(ctx, OTPKey("123456")))
	_, ok, err = store.Get(ctx, OTPKey("123456"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	current := time.Unix(1000, 0)
	store.SetClock(func() time.Time { return current })

	require.NoError(t, store.Put(ctx, TeleVerifyKey("654321"), "bob", 300*time.Second))

	current = current.Add(299 * time.Second)
	_, ok, err := store.Get(ctx, TeleVerifyKey("654321"))
	require.NoError(t, err)
	assert.True(t, ok, "entry must survive until the TTL passes")

	current = current.Add(2 * time.Second)
	_, ok, err = store.Get(ctx, TeleVerifyKey("654321"))
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire after the TTL")
}

func TestKeyNamespaces(t *testing.T) {
	assert.Equal(t, "otp:123456", OTPKey("123456"))
	assert.Equal(t, "tele_verify:123456", TeleVerifyKey("123456"))
}
