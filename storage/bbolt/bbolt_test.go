package bbolt_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dojotap/internal/utils"
	"dojotap/storage"
	"dojotap/storage/bbolt"
)

func openTestStore(t *testing.T) *bbolt.Store {
	t.Helper()
	store, err := bbolt.Open(filepath.Join(t.TempDir(), "dojotap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RoundTrips(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetSession(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.PutUser(ctx, &storage.UserCredential{
		UserKey:               "user@example.com",
		RefreshTokenEncrypted: utils.Ptr("ciphertext"),
		Username:              "user@example.com",
		UpdatedAt:             now,
	}))
	user, err := store.GetUser(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, "ciphertext", *user.RefreshTokenEncrypted)

	require.NoError(t, store.PutSession(ctx, &storage.BrowserSession{
		SessionID: "session-a",
		UserKey:   "user@example.com",
		IDToken:   "id-token-1",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}))
	session, err := store.GetSession(ctx, "session-a")
	require.NoError(t, err)
	require.Equal(t, "id-token-1", session.IDToken)
	require.False(t, session.Revoked)

	require.NoError(t, store.PutPreferences(ctx, &storage.PreferencesDocument{
		UserKey:       "user@example.com",
		PinnedTaskIDs: []string{"task-1", "task-2"},
		Version:       3,
		UpdatedAt:     now,
	}))
	doc, err := store.GetPreferences(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, 3, doc.Version)

	require.NoError(t, store.PutBootstrap(ctx, &storage.BootstrapEntry{
		UserKey:   "user@example.com",
		Payload:   json.RawMessage(`{"tasks":[]}`),
		FetchedAt: now,
	}))
	entry, err := store.GetBootstrap(ctx, "user@example.com")
	require.NoError(t, err)
	require.JSONEq(t, `{"tasks":[]}`, string(entry.Payload))
}

func TestStore_RevokeUserSessions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, id := range []string{"session-a", "session-b"} {
		require.NoError(t, store.PutSession(ctx, &storage.BrowserSession{
			SessionID: id,
			UserKey:   "user@example.com",
		}))
	}
	require.NoError(t, store.PutSession(ctx, &storage.BrowserSession{
		SessionID: "session-other",
		UserKey:   "other@example.com",
	}))

	require.NoError(t, store.RevokeUserSessions(ctx, "user@example.com"))

	for _, id := range []string{"session-a", "session-b"} {
		session, err := store.GetSession(ctx, id)
		require.NoError(t, err)
		require.True(t, session.Revoked)
	}
	other, err := store.GetSession(ctx, "session-other")
	require.NoError(t, err)
	require.False(t, other.Revoked)
}
