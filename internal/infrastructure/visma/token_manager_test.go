package visma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-visma-sync-layer/internal/domain"
)

func newTestTokenManager(t *testing.T, handler http.HandlerFunc) (*TokenManager, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	tm := NewTokenManager("client-id", "client-secret", "http://localhost/callback", server.URL, zerolog.Nop(), nil)
	return tm, server
}

func tokenHandler(t *testing.T, grants *atomic.Int64, wantGrantType string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if wantGrantType != "" {
			assert.Equal(t, wantGrantType, r.PostForm.Get("grant_type"))
		}
		grants.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "token-" + r.PostForm.Get("grant_type"),
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	tm := NewTokenManager("client-id", "client-secret", "http://localhost/callback", "https://identity.example/connect", zerolog.Nop(), nil)

	rawURL, state, err := tm.AuthorizationURL("")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "/connect/authorize", parsed.Path)
	assert.Equal(t, "code", parsed.Query().Get("response_type"))
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, "VismaNetApi offline_access", parsed.Query().Get("scope"))
	assert.Equal(t, state, parsed.Query().Get("state"))
}

func TestAuthorizationURLKeepsCallerState(t *testing.T) {
	tm := NewTokenManager("client-id", "client-secret", "http://localhost/callback", "https://identity.example/connect", zerolog.Nop(), nil)
	_, state, err := tm.AuthorizationURL("fixed-state")
	require.NoError(t, err)
	assert.Equal(t, "fixed-state", state)
}

func TestAuthorizationURLRequiresClientID(t *testing.T) {
	tm := NewTokenManager("", "secret", "http://localhost/callback", "https://identity.example/connect", zerolog.Nop(), nil)
	_, _, err := tm.AuthorizationURL("")
	var authErr *domain.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestExchangeCode(t *testing.T) {
	var grants atomic.Int64
	tm, _ := newTestTokenManager(t, tokenHandler(t, &grants, "authorization_code"))

	require.NoError(t, tm.ExchangeCode(context.Background(), "the-code"))

	token, err := tm.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-authorization_code", token)
	assert.Equal(t, int64(1), grants.Load(), "valid token must not trigger a refresh")

	status := tm.Status()
	assert.True(t, status.Authenticated)
	assert.True(t, status.HasRefreshToken)
	assert.Positive(t, status.TimeUntilExpiry)
}

func TestExchangeCodeProviderError(t *testing.T) {
	tm, _ := newTestTokenManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "code expired",
		})
	})

	err := tm.ExchangeCode(context.Background(), "stale-code")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "invalid_grant")
	assert.Contains(t, authErr.Message, "code expired")
}

func TestEnsureValidUnauthenticated(t *testing.T) {
	tm := NewTokenManager("client-id", "secret", "http://localhost/callback", "https://identity.example/connect", zerolog.Nop(), nil)
	_, err := tm.EnsureValid(context.Background())
	var authErr *domain.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestEnsureValidRefreshesInsideBuffer(t *testing.T) {
	var grants atomic.Int64
	tm, _ := newTestTokenManager(t, tokenHandler(t, &grants, ""))

	require.NoError(t, tm.ExchangeCode(context.Background(), "the-code"))
	require.Equal(t, int64(1), grants.Load())

	// Jump to 4 minutes before expiry, inside the renewal buffer.
	base := time.Now()
	tm.now = func() time.Time { return base.Add(56 * time.Minute) }

	token, err := tm.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-refresh_token", token)
	assert.Equal(t, int64(2), grants.Load())
}

func TestEnsureValidSingleFlightRefresh(t *testing.T) {
	var grants atomic.Int64
	tm, _ := newTestTokenManager(t, tokenHandler(t, &grants, ""))

	require.NoError(t, tm.ExchangeCode(context.Background(), "the-code"))
	base := time.Now()
	tm.now = func() time.Time { return base.Add(2 * time.Hour) }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := tm.EnsureValid(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "token-refresh_token", token)
		}()
	}
	wg.Wait()

	// One exchange plus exactly one refresh for the whole burst. The
	// first caller renews 2h past expiry; everyone else lands inside
	// the fresh hour-long window.
	assert.Equal(t, int64(2), grants.Load())
}

func TestRefreshFailureKeepsSession(t *testing.T) {
	var calls atomic.Int64
	tm, _ := newTestTokenManager(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("grant_type") == "authorization_code" {
			calls.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "token-1",
				"refresh_token": "refresh-1",
				"expires_in":    3600,
			})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	})

	require.NoError(t, tm.ExchangeCode(context.Background(), "the-code"))
	base := time.Now()
	tm.now = func() time.Time { return base.Add(2 * time.Hour) }

	_, err := tm.EnsureValid(context.Background())
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)

	// The session survives so a later refresh can still succeed.
	assert.True(t, tm.Status().Authenticated)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	tm, _ := newTestTokenManager(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-1",
			"expires_in":   3600,
		})
	})

	require.NoError(t, tm.ExchangeCode(context.Background(), "the-code"))
	base := time.Now()
	tm.now = func() time.Time { return base.Add(2 * time.Hour) }

	_, err := tm.EnsureValid(context.Background())
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "no refresh token")
}

func TestClearIsIdempotent(t *testing.T) {
	var grants atomic.Int64
	tm, _ := newTestTokenManager(t, tokenHandler(t, &grants, ""))

	require.NoError(t, tm.ExchangeCode(context.Background(), "the-code"))
	tm.Clear()
	tm.Clear()

	assert.False(t, tm.Status().Authenticated)
	_, err := tm.EnsureValid(context.Background())
	assert.Error(t, err)
	assert.True(t, errors.As(err, new(*domain.AuthError)))
}
