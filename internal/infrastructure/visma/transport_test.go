package visma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-visma-sync-layer/internal/domain"
)

type staticTokens struct {
	token string
	err   error
	calls atomic.Int64
}

func (s *staticTokens) EnsureValid(ctx context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

func TestSendAttachesBearerToken(t *testing.T) {
	var gotAuth, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tokens := &staticTokens{token: "abc123"}
	tr := NewTransport(tokens, time.Millisecond, zerolog.Nop(), nil)

	body, err := tr.Send(context.Background(), http.MethodGet, server.URL, nil, SendOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "Bearer abc123", gotAuth)
	assert.Equal(t, userAgent, gotAgent)
	assert.Equal(t, int64(1), tokens.calls.Load())
}

func TestSendNoAuthSkipsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tokens := &staticTokens{token: "abc123"}
	tr := NewTransport(tokens, time.Millisecond, zerolog.Nop(), nil)

	_, err := tr.Send(context.Background(), http.MethodGet, server.URL, nil, SendOptions{NoAuth: true})
	require.NoError(t, err)
	assert.Zero(t, tokens.calls.Load())
}

func TestSendJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var decoded map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&decoded))
		assert.Equal(t, "Acme AB", decoded["name"])
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tr := NewTransport(&staticTokens{token: "x"}, time.Millisecond, zerolog.Nop(), nil)
	_, err := tr.Send(context.Background(), http.MethodPost, server.URL, map[string]string{"name": "Acme AB"}, SendOptions{})
	require.NoError(t, err)
}

func TestSendFormBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tr := NewTransport(&staticTokens{token: "x"}, time.Millisecond, zerolog.Nop(), nil)
	form := url.Values{"grant_type": {"refresh_token"}}
	_, err := tr.Send(context.Background(), http.MethodPost, server.URL, form, SendOptions{Form: true, NoAuth: true})
	require.NoError(t, err)
}

func TestSendNonOKBecomesTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"CorporateID is invalid"}`))
	}))
	defer server.Close()

	tr := NewTransport(&staticTokens{token: "x"}, time.Millisecond, zerolog.Nop(), nil)
	_, err := tr.Send(context.Background(), http.MethodPost, server.URL, nil, SendOptions{})

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, domain.TransportHTTP, transportErr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, transportErr.StatusCode)
	assert.Equal(t, "CorporateID is invalid", transportErr.Body)
}

func TestSendTokenFailureShortCircuits(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	tokens := &staticTokens{err: &domain.AuthError{Message: "not authenticated"}}
	tr := NewTransport(tokens, time.Millisecond, zerolog.Nop(), nil)

	_, err := tr.Send(context.Background(), http.MethodGet, server.URL, nil, SendOptions{})
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, hits.Load(), "request must not leave the process without a token")
}

func TestSendEnforcesSpacing(t *testing.T) {
	var stamps []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	spacing := 40 * time.Millisecond
	tr := NewTransport(&staticTokens{token: "x"}, spacing, zerolog.Nop(), nil)

	for i := 0; i < 3; i++ {
		_, err := tr.Send(context.Background(), http.MethodGet, server.URL, nil, SendOptions{})
		require.NoError(t, err)
	}

	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, spacing-5*time.Millisecond, "gap %d too small: %v", i, gap)
	}
}

func TestSendCancelledWhileWaiting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tr := NewTransport(&staticTokens{token: "x"}, time.Second, zerolog.Nop(), nil)
	_, err := tr.Send(context.Background(), http.MethodGet, server.URL, nil, SendOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Send(ctx, http.MethodGet, server.URL, nil, SendOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlattenErrorBody(t *testing.T) {
	assert.Equal(t, "boom", flattenErrorBody([]byte(`{"message":"boom"}`)))
	assert.Equal(t, "broken", flattenErrorBody([]byte(`{"error":"broken"}`)))
	assert.Equal(t, "plain text", flattenErrorBody([]byte("plain text")))
	assert.Equal(t, "", flattenErrorBody([]byte("  ")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(422))
	assert.Equal(t, "5xx", statusClass(503))
}
