package keyring

import (
	"context"
	"testing"

	"github.com/mazen160/go-random"
	"github.com/stretchr/testify/require"

	"remixctl/lib/lovable/browser"
	"remixctl/lib/testutil"
	"remixctl/services/keyring/db"
)

func newTestStore(t *testing.T) *Store {
	svc, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "keyring",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	t.Cleanup(func() { svc.DB.Close() })

	return NewStore(svc.DB)
}

func testNamespace(t *testing.T) string {
	ns, err := random.String(8)
	require.NoError(t, err)
	return ns
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	session := browser.Session{
		BearerToken: "tok-abc",
		Cookies: []browser.SessionCookie{
			{Name: "sb-access-token", Value: "v1", Domain: ".lovable.dev", Path: "/", Secure: true, HTTPOnly: true},
			{Name: "sb-refresh-token", Value: "v2", Domain: ".lovable.dev", Path: "/"},
		},
	}
	require.NoError(t, store.SaveSession(ctx, ns, session))

	got, err := store.LoadSession(ctx, ns)
	require.NoError(t, err)
	require.Equal(t, session, got)
}

func TestLoadMissingSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadSession(context.Background(), DefaultNamespace)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	require.NoError(t, store.SaveSession(ctx, ns, browser.Session{BearerToken: "old"}))
	require.NoError(t, store.SaveSession(ctx, ns, browser.Session{BearerToken: "new"}))

	got, err := store.LoadSession(ctx, ns)
	require.NoError(t, err)
	require.Equal(t, "new", got.BearerToken)
}

func TestDeleteSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	require.NoError(t, store.SaveSession(ctx, ns, browser.Session{BearerToken: "tok"}))
	require.NoError(t, store.DeleteSession(ctx, ns))

	_, err := store.LoadSession(ctx, ns)
	require.ErrorIs(t, err, ErrNoSession)

	// deleting again is fine
	require.NoError(t, store.DeleteSession(ctx, ns))
}

func TestNamespacesAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, "a", browser.Session{BearerToken: "tok-a"}))
	require.NoError(t, store.SaveSession(ctx, "b", browser.Session{BearerToken: "tok-b"}))
	require.NoError(t, store.DeleteSession(ctx, "a"))

	got, err := store.LoadSession(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "tok-b", got.BearerToken)
}

func TestUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	_, err := store.UpdatedAt(ctx, ns)
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.SaveSession(ctx, ns, browser.Session{BearerToken: "tok"}))
	at, err := store.UpdatedAt(ctx, ns)
	require.NoError(t, err)
	require.False(t, at.IsZero())
}
