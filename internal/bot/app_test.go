package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/telelink/core/config"
	"github.com/m3rciful/telelink/core/logger"
	"github.com/m3rciful/telelink/core/telegram/state"
	"github.com/m3rciful/telelink/internal/botapi"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/otp"
)

const testBotToken = "12345:TESTTOKEN"

func TestMain(m *testing.M) {
	if err := logger.InitLogger(nil); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeContext implements just enough of tele.Context for handler tests.
// Unimplemented methods panic via the embedded nil interface.
type fakeContext struct {
	tele.Context
	sender  *tele.User
	text    string
	payload string
	values  map[string]any
	sent    []string
}

func newFakeContext(sender *tele.User) *fakeContext {
	return &fakeContext{sender: sender, values: make(map[string]any)}
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Chat() *tele.Chat   { return &tele.Chat{ID: f.sender.ID} }
func (f *fakeContext) Update() tele.Update {
	return tele.Update{ID: 1, Message: f.Message()}
}

func (f *fakeContext) Message() *tele.Message {
	return &tele.Message{Sender: f.sender, Text: f.text, Payload: f.payload}
}

func (f *fakeContext) Text() string { return f.text }

func (f *fakeContext) Callback() *tele.Callback { return nil }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	if s, ok := what.(string); ok {
		f.sent = append(f.sent, s)
	}
	return nil
}

func (f *fakeContext) Set(key string, value any) { f.values[key] = value }
func (f *fakeContext) Get(key string) any        { return f.values[key] }

type botFixture struct {
	app     *App
	store   *codestore.MemoryStore
	backend *httptest.Server

	confirms []map[string]any
	accounts map[int64]string
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	f := &botFixture{
		store:    codestore.NewMemory(),
		accounts: make(map[int64]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/telegram/verifyTelegram", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.confirms = append(f.confirms, body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"Verification successful"}`))
	})
	mux.HandleFunc("/api/telegram/update-username", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TelegramUserID int64 `json:"telegram_user_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id, ok := f.accounts[body.TelegramUserID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not linked","code":"NOT_FOUND_USER"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"Username updated","account_id":"` + id + `"}`))
	})
	f.backend = httptest.NewServer(mux)
	t.Cleanup(f.backend.Close)

	cfg := &coreconfig.Config{}
	cfg.Link.ConversationTTLSeconds = 300

	f.app = New(Options{
		Config:    cfg,
		Store:     f.store,
		Collector: otp.NewCollector(f.store, 300*time.Second),
		Backend:   botapi.NewClient(botapi.Options{BaseURL: f.backend.URL, BotToken: testBotToken}),
	})
	return f
}

func alice() *tele.User {
	return &tele.User{ID: 42, Username: "alice"}
}

func TestRegisterWiresHandlers(t *testing.T) {
	f := newBotFixture(t)

	_, _, ok := f.app.Registry().LookupCommand("/start")
	assert.True(t, ok)
	_, _, ok = f.app.Registry().LookupCommand("/verify_telegram")
	assert.True(t, ok)

	for _, key := range []string{cbVerifyTG, cbPaySS, cbConfirmYes, cbConfirmNo, cbCancel} {
		_, found := f.app.Registry().GetCallback(key)
		assert.True(t, found, "callback %s must be registered", key)
	}
}

func TestConfirmGateBlocksStaleKeyboard(t *testing.T) {
	f := newBotFixture(t)
	user := alice()

	h, ok := f.app.Registry().GetCallback(cbConfirmYes)
	require.True(t, ok)

	// No active dialog: the gate must answer without touching the backend.
	c := newFakeContext(user)
	require.NoError(t, h(c))
	assert.Empty(t, f.confirms)
	require.NotEmpty(t, c.sent)
	assert.Contains(t, c.sent[0], "expired")
}

func TestVerifyDialogHappyPath(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	user := alice()

	require.NoError(t, f.store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice","account_id":"acct-1","email":"alice@example.com"}`, time.Minute))

	c := newFakeContext(user)
	require.NoError(t, f.app.startVerify(c))
	assert.Equal(t, stateWaitOTP, f.app.Sessions().GetState(user.ID))

	c = newFakeContext(user)
	c.text = "123456"
	require.NoError(t, f.app.gotOTP(c))
	assert.Equal(t, stateConfirm, f.app.Sessions().GetState(user.ID))

	val, ok, err := f.store.Get(ctx, codestore.TeleVerifyKey("123456"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", val)

	c = newFakeContext(user)
	require.NoError(t, f.app.confirmYes(c))

	require.Len(t, f.confirms, 1)
	assert.Equal(t, "123456", f.confirms[0]["otp"])
	assert.Equal(t, otp.Sign(testBotToken, "123456", user.ID), f.confirms[0]["signature"])
	assert.False(t, f.app.Sessions().InProgress(user.ID), "session must be cleared after confirm")
}

func TestGotOTPStaysOnUnknownCode(t *testing.T) {
	f := newBotFixture(t)
	user := alice()

	f.app.sessions.SetState(user.ID, stateWaitOTP)

	c := newFakeContext(user)
	c.text = "999999"
	require.NoError(t, f.app.gotOTP(c))

	assert.Equal(t, stateWaitOTP, f.app.Sessions().GetState(user.ID))
	require.NotEmpty(t, c.sent)
	assert.Contains(t, c.sent[0], "invalid or has expired")
}

func TestGotOTPStaysOnIncompletePayload(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	user := alice()

	// Payload without account id/email cannot drive the confirm dialog.
	require.NoError(t, f.store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice"}`, time.Minute))
	f.app.sessions.SetState(user.ID, stateWaitOTP)

	c := newFakeContext(user)
	c.text = "123456"
	require.NoError(t, f.app.gotOTP(c))
	assert.Equal(t, stateWaitOTP, f.app.Sessions().GetState(user.ID))
}

func TestConfirmNoSkipsBackend(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	user := alice()

	require.NoError(t, f.store.Put(ctx, codestore.OTPKey("123456"),
		`{"telegram_handle":"alice","account_id":"acct-1","email":"alice@example.com"}`, time.Minute))
	f.app.sessions.SetState(user.ID, stateWaitOTP)

	c := newFakeContext(user)
	c.text = "123456"
	require.NoError(t, f.app.gotOTP(c))

	c = newFakeContext(user)
	require.NoError(t, f.app.confirmNo(c))

	assert.Empty(t, f.confirms, "No must never call the backend")
	assert.False(t, f.app.Sessions().InProgress(user.ID))
}

func TestConfirmYesWithoutClaim(t *testing.T) {
	f := newBotFixture(t)
	user := alice()

	c := newFakeContext(user)
	require.NoError(t, f.app.confirmYes(c))

	assert.Empty(t, f.confirms)
	require.NotEmpty(t, c.sent)
	assert.Contains(t, c.sent[0], "expired")
}

func TestStartDeepLinkCollectsCode(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	user := alice()

	c := newFakeContext(user)
	c.payload = "verify_123456"
	require.NoError(t, f.app.handleStart(c))

	val, ok, err := f.store.Get(ctx, codestore.TeleVerifyKey("123456"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", val)
}

func TestStartSyncsUsername(t *testing.T) {
	f := newBotFixture(t)
	user := alice()
	f.accounts[user.ID] = "acct-1"

	c := newFakeContext(user)
	require.NoError(t, f.app.handleStart(c))

	require.NotEmpty(t, c.sent)
	assert.Contains(t, c.sent[len(c.sent)-1], "linked")
}

func TestSessionExpiresClaim(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Link.ConversationTTLSeconds = 300

	sessions := state.NewMemoryManagerTTL(50 * time.Millisecond)
	store := codestore.NewMemory()
	app := New(Options{
		Config:    cfg,
		Store:     store,
		Collector: otp.NewCollector(store, 300*time.Second),
		Backend:   botapi.NewClient(botapi.Options{BaseURL: "http://127.0.0.1:0", BotToken: testBotToken}),
		Sessions:  sessions,
	})

	user := alice()
	app.sessions.SetState(user.ID, stateConfirm)
	time.Sleep(80 * time.Millisecond)

	assert.False(t, app.Sessions().InProgress(user.ID), "stale session must be gone")
}
