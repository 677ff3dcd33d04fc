package otp

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/domain"
)

func newTestIssuer(store codestore.Store) *Issuer {
	return NewIssuer(IssuerOptions{
		Store:        store,
		TTL:          300 * time.Second,
		BotUsername:  "linkbot",
		TelegramBase: "https://t.me",
	})
}

func TestIssueStoresPayloadAndBuildsDeepLink(t *testing.T) {
	ctx := context.Background()
	store := codestore.NewMemory()
	issuer := newTestIssuer(store)

	res, err := issuer.Issue(ctx, IssueRequest{
		TelegramHandle: "@alice",
		AccountID:      "acct-1",
		Email:          "alice@example.com",
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{5}$`), res.Code)
	assert.Equal(t, "https://t.me/linkbot?start=verify_"+res.Code, res.DeepLink)

	raw, ok, err := store.Get(ctx, codestore.OTPKey(res.Code))
	require.NoError(t, err)
	require.True(t, ok)

	var payload domain.CodePayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Equal(t, "alice", payload.TelegramHandle, "leading @ must be stripped")
	assert.Equal(t, "acct-1", payload.AccountID)
	assert.Equal(t, "alice@example.com", payload.Email)
}

func TestIssueRequiresHandle(t *testing.T) {
	issuer := newTestIssuer(codestore.NewMemory())

	_, err := issuer.Issue(context.Background(), IssueRequest{TelegramHandle: "  "})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestIssueCodesStayInRange(t *testing.T) {
	issuer := newTestIssuer(codestore.NewMemory())

	for i := 0; i < 50; i++ {
		res, err := issuer.Issue(context.Background(), IssueRequest{TelegramHandle: "bob"})
		require.NoError(t, err)
		require.Len(t, res.Code, 6)
		require.GreaterOrEqual(t, res.Code, "100000")
		require.LessOrEqual(t, res.Code, "999999")
	}
}
