package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/telelink/core/config"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
	"github.com/m3rciful/telelink/internal/otp"
)

const testBotToken = "12345:TESTTOKEN"

type fakeLinkStore struct {
	mu       sync.Mutex
	accounts map[int64]string
	linked   []string
	verified []string
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{accounts: make(map[int64]string)}
}

func (f *fakeLinkStore) ResolveByTelegramID(_ context.Context, tgUserID int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.accounts[tgUserID]
	if !ok {
		return "", domain.ErrNotFoundUser()
	}
	return id, nil
}

func (f *fakeLinkStore) LinkTelegram(_ context.Context, accountID string, tgUserID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[tgUserID] = accountID
	f.linked = append(f.linked, accountID)
	return nil
}

func (f *fakeLinkStore) MarkVerifiedByHandle(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, handle)
	return nil
}

type fixture struct {
	router  http.Handler
	store   *codestore.MemoryStore
	records *fakeLinkStore
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &coreconfig.Config{}
	cfg.API.RatePerSecond = 100
	cfg.API.RateBurst = 100
	cfg.API.AllowedOrigins = []string{"*"}

	store := codestore.NewMemory()
	records := newFakeLinkStore()

	issuer := otp.NewIssuer(otp.IssuerOptions{
		Store:        store,
		TTL:          300 * time.Second,
		BotUsername:  "linkbot",
		TelegramBase: "https://t.me",
	})
	verifier := otp.NewVerifier(otp.VerifierOptions{Store: store, Records: records})
	confirmer := otp.NewConfirmer(otp.ConfirmerOptions{
		Store:    store,
		Records:  records,
		BotToken: testBotToken,
	})

	h := NewHandler(issuer, verifier, confirmer, records)
	return &fixture{
		router:  NewRouter(cfg, h),
		store:   store,
		records: records,
		handler: h,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRequestOTP(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/telegram/request-otp", map[string]any{
		"telegram_handle": "@alice",
		"account_id":      "acct-1",
		"email":           "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[requestOTPResponse](t, rec)
	assert.Len(t, res.OTP, 6)
	assert.Equal(t, "https://t.me/linkbot?start=verify_"+res.OTP, res.TelegramLink)

	_, ok, err := f.store.Get(context.Background(), codestore.OTPKey(res.OTP))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequestOTPRequiresHandle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/telegram/request-otp", map[string]any{
		"telegram_handle": "",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "telegram_handle is required", decode[messageEnvelope](t, rec).Error)
}

func TestVerifyOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Put(ctx, codestore.OTPKey("123456"), `{"telegram_handle":"alice"}`, time.Minute))
	require.NoError(t, f.store.Put(ctx, codestore.TeleVerifyKey("123456"), "alice", time.Minute))

	rec := f.do(t, http.MethodPost, "/api/telegram/verify-otp", map[string]any{
		"otp":             "123456",
		"telegram_handle": "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[verifyOTPResponse](t, rec).Verified)

	rec = f.do(t, http.MethodPost, "/api/telegram/verify-otp", map[string]any{
		"otp":             "123456",
		"telegram_handle": "mallory",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decode[verifyOTPResponse](t, rec).Verified)
}

func TestConfirmLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice","account_id":"acct-1","email":"alice@example.com"}`, time.Minute))

	rec := f.do(t, http.MethodPost, "/api/telegram/verifyTelegram", map[string]any{
		"otp":               "123456",
		"telegram_user_id":  42,
		"telegram_username": "alice",
		"signature":         otp.Sign(testBotToken, "123456", 42),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Verification successful", decode[messageEnvelope](t, rec).Message)
	assert.Equal(t, []string{"acct-1"}, f.records.linked)

	_, ok, err := f.store.Get(ctx, codestore.OTPKey("123456"))
	require.NoError(t, err)
	assert.False(t, ok, "code must be consumed")
}

func TestConfirmLinkRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice","account_id":"acct-1"}`, time.Minute))

	rec := f.do(t, http.MethodPost, "/api/telegram/verifyTelegram", map[string]any{
		"otp":               "123456",
		"telegram_user_id":  42,
		"telegram_username": "alice",
		"signature":         otp.Sign(testBotToken, "123456", 43),
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid signature", decode[messageEnvelope](t, rec).Error)
}

func TestConfirmLinkUnknownCode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/telegram/verifyTelegram", map[string]any{
		"otp":               "654321",
		"telegram_user_id":  42,
		"telegram_username": "alice",
		"signature":         otp.Sign(testBotToken, "654321", 42),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP", decode[messageEnvelope](t, rec).Error)
}

func TestUpdateUsername(t *testing.T) {
	f := newFixture(t)
	f.records.accounts[42] = "acct-1"

	rec := f.do(t, http.MethodPut, "/api/telegram/update-username", map[string]any{
		"telegram_user_id":  42,
		"telegram_username": "alice_new",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[updateUsernameResponse](t, rec)
	assert.Equal(t, "Username updated", res.Message)
	assert.Equal(t, "alice_new", res.TelegramUsername)
	assert.Equal(t, "acct-1", res.AccountID)
}

func TestUpdateUsernameRequiresBothFields(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/telegram/update-username", map[string]any{
		"telegram_user_id": 42,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing telegram_user_id or telegram_username", decode[messageEnvelope](t, rec).Message)
}

func TestUpdateUsernameUnknownUser(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/telegram/update-username", map[string]any{
		"telegram_user_id":  99,
		"telegram_username": "ghost",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	res := decode[messageEnvelope](t, rec)
	assert.Equal(t, domain.CodeNotFoundUser, res.Code)
	assert.NotEmpty(t, res.Error)
}

func TestPublicEndpointsAreRateLimited(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.API.RatePerSecond = 1
	cfg.API.RateBurst = 1

	store := codestore.NewMemory()
	issuer := otp.NewIssuer(otp.IssuerOptions{Store: store, BotUsername: "linkbot"})
	verifier := otp.NewVerifier(otp.VerifierOptions{Store: store})
	confirmer := otp.NewConfirmer(otp.ConfirmerOptions{Store: store, BotToken: testBotToken})
	router := NewRouter(cfg, NewHandler(issuer, verifier, confirmer, newFakeLinkStore()))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/telegram/request-otp",
			bytes.NewReader([]byte(fmt.Sprintf(`{"telegram_handle":"user%d"}`, i))))
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Contains(t, statuses[1:], http.StatusTooManyRequests)
}
