package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestTokenStore(t *testing.T) *TokenStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, time.Hour)
}

func TestTokenStoreIssueAndResolve(t *testing.T) {
	ts := newTestTokenStore(t)
	ctx := context.Background()

	token, err := ts.Issue(ctx, "42", []string{"Administrator"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := ts.Resolve(ctx, token)
	require.NoError(t, err)
	require.True(t, principal.Authenticated)
	require.Equal(t, "42", principal.UserID)
	require.Equal(t, []string{"Administrator"}, principal.RoleClaims)
}

func TestTokenStoreResolveUnknownIsAnonymous(t *testing.T) {
	ts := newTestTokenStore(t)

	principal, err := ts.Resolve(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, principal.Authenticated)
	require.Empty(t, principal.UserID)
}

func TestTokenStoreIssueRequiresUserID(t *testing.T) {
	ts := newTestTokenStore(t)

	_, err := ts.Issue(context.Background(), "", nil)
	require.Error(t, err)
}

func TestTokenStoreRevoke(t *testing.T) {
	ts := newTestTokenStore(t)
	ctx := context.Background()

	token, err := ts.Issue(ctx, "7", nil)
	require.NoError(t, err)
	require.NoError(t, ts.Revoke(ctx, token))

	principal, err := ts.Resolve(ctx, token)
	require.NoError(t, err)
	require.False(t, principal.Authenticated)
}

func TestMiddlewareInjectsPrincipal(t *testing.T) {
	ts := newTestTokenStore(t)
	token, err := ts.Issue(context.Background(), "9", []string{"User"})
	require.NoError(t, err)

	var seen *Principal
	handler := Middleware{Tokens: ts}.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	require.True(t, seen.Authenticated)
	require.Equal(t, "9", seen.UserID)
}

func TestMiddlewareWithoutTokenIsAnonymous(t *testing.T) {
	ts := newTestTokenStore(t)

	var seen *Principal
	handler := Middleware{Tokens: ts}.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, seen)
	require.False(t, seen.Authenticated)
}
