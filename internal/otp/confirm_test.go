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
	"github.com/m3rciful/telelink/internal/domain"
)

const testBotToken = "12345:TESTTOKEN"

type linkingStore struct {
	mu     sync.Mutex
	linked []string
	err    error
}

func (l *linkingStore) ResolveByTelegramID(context.Context, int64, string) (string, error) {
	return "", errors.New("not implemented")
}

func (l *linkingStore) LinkTelegram(_ context.Context, accountID string, _ int64, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.linked = append(l.linked, accountID)
	return nil
}

func (l *linkingStore) MarkVerifiedByHandle(context.Context, string) error {
	return errors.New("not implemented")
}

func newConfirmFixture(t *testing.T) (*Confirmer, *codestore.MemoryStore, *linkingStore) {
	t.Helper()
	store := codestore.NewMemory()
	records := &linkingStore{}
	confirmer := NewConfirmer(ConfirmerOptions{
		Store:    store,
		Records:  records,
		BotToken: testBotToken,
	})
	return confirmer, store, records
}

func signedRequest(code string, userID int64) ConfirmRequest {
	return ConfirmRequest{
		Code:             code,
		TelegramUserID:   userID,
		TelegramUsername: "alice",
		Signature:        Sign(testBotToken, code, userID),
	}
}

func TestConfirmHappyPathConsumesCode(t *testing.T) {
	ctx := context.Background()
	confirmer, store, records := newConfirmFixture(t)
	require.NoError(t, store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice","account_id":"acct-1","email":"alice@example.com"}`, time.Minute))

	err := confirmer.Confirm(ctx, signedRequest("123456", 42))
	require.NoError(t, err)

	assert.Equal(t, []string{"acct-1"}, records.linked)
	_, ok, err := store.Get(ctx, codestore.OTPKey("123456"))
	require.NoError(t, err)
	assert.False(t, ok, "code must be consumed on success")
}

func TestConfirmRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	confirmer, store, records := newConfirmFixture(t)
	require.NoError(t, store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice","account_id":"acct-1"}`, time.Minute))

	req := signedRequest("123456", 42)
	req.Signature = Sign(testBotToken, "123456", 43)

	err := confirmer.Confirm(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidSignature, domain.CodeOf(err))
	assert.Empty(t, records.linked)

	_, ok, getErr := store.Get(ctx, codestore.OTPKey("123456"))
	require.NoError(t, getErr)
	assert.True(t, ok, "rejected confirm must not consume the code")
}

func TestConfirmUnknownCode(t *testing.T) {
	confirmer, _, _ := newConfirmFixture(t)

	err := confirmer.Confirm(context.Background(), signedRequest("654321", 42))
	require.Error(t, err)
	assert.Equal(t, domain.CodeExpiredOrUnknownCode, domain.CodeOf(err))
}

func TestConfirmMalformedPayload(t *testing.T) {
	ctx := context.Background()
	confirmer, store, _ := newConfirmFixture(t)
	require.NoError(t, store.Put(ctx, codestore.OTPKey("123456"), "not-json", time.Minute))

	err := confirmer.Confirm(ctx, signedRequest("123456", 42))
	require.Error(t, err)
	assert.Equal(t, domain.CodeMalformedPayload, domain.CodeOf(err))
}

func TestConfirmRecordFailureKeepsCode(t *testing.T) {
	ctx := context.Background()
	confirmer, store, records := newConfirmFixture(t)
	records.err = domain.ErrUpstreamUnavailable(errors.New("boom"))
	require.NoError(t, store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice","account_id":"acct-1"}`, time.Minute))

	err := confirmer.Confirm(ctx, signedRequest("123456", 42))
	require.Error(t, err)
	assert.Equal(t, domain.CodeUpstreamUnavailable, domain.CodeOf(err))

	_, ok, getErr := store.Get(ctx, codestore.OTPKey("123456"))
	require.NoError(t, getErr)
	assert.True(t, ok, "failed confirm must leave the code for a retry")
}

func TestSignatureRoundTrip(t *testing.T) {
	sig := Sign(testBotToken, "123456", 42)
	assert.True(t, VerifySignature(testBotToken, "123456", 42, sig))
	assert.False(t, VerifySignature(testBotToken, "123456", 43, sig))
	assert.False(t, VerifySignature(testBotToken, "123457", 42, sig))
	assert.False(t, VerifySignature("other-token", "123456", 42, sig))
}
