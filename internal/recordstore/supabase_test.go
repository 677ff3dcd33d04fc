package recordstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/telelink/internal/domain"
)

func newSupabaseServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *SupabaseStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := NewSupabase(SupabaseOptions{
		BaseURL: srv.URL,
		APIKey:  "service-role-key",
		Table:   "users",
		Client:  srv.Client(),
	})
	return srv, store
}

func TestSupabaseMarkVerifiedByHandle(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	var gotBody map[string]any

	_, store := newSupabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "service-role-key", r.Header.Get("apikey"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	})

	err := store.MarkVerifiedByHandle(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/users", gotPath)
	assert.Equal(t, "telegram_handle=eq.alice", gotQuery)
	assert.Equal(t, "Bearer service-role-key", gotAuth)
	assert.Equal(t, true, gotBody["telegram_verified"])
	assert.Equal(t, "alice", gotBody["telegram_handle"])
}

func TestSupabaseMarkVerifiedUpstreamError(t *testing.T) {
	_, store := newSupabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := store.MarkVerifiedByHandle(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, domain.CodeUpstreamUnavailable, domain.CodeOf(err))
}

func TestSupabaseResolveByTelegramID(t *testing.T) {
	var patchSeen bool
	_, store := newSupabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			require.Contains(t, r.URL.RawQuery, "telegram_user_id=eq.42")
			_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "acct-1"}})
		case http.MethodPatch:
			patchSeen = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	})

	accountID, err := store.ResolveByTelegramID(context.Background(), 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
	assert.True(t, patchSeen, "handle refresh patch must be issued")
}

func TestSupabaseResolveUnknownUser(t *testing.T) {
	_, store := newSupabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{})
	})

	_, err := store.ResolveByTelegramID(context.Background(), 99, "nobody")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFoundUser, domain.CodeOf(err))
}

func TestSupabaseLinkTelegram(t *testing.T) {
	var gotQuery string
	var gotBody map[string]any
	_, store := newSupabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	})

	err := store.LinkTelegram(context.Background(), "acct-1", 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, "id=eq.acct-1", gotQuery)
	assert.Equal(t, float64(42), gotBody["telegram_user_id"])
	assert.Equal(t, "alice", gotBody["telegram_handle"])
	assert.Equal(t, true, gotBody["telegram_verified"])
}
