package visma

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/metrics"

	"github.com/rs/zerolog"
)

// renewalBuffer is how long before expiry a proactive refresh is triggered.
const renewalBuffer = 5 * time.Minute

const oauthScopes = "VismaNetApi offline_access"

// TokenManager owns the OAuth2 authorization-code and refresh-token flow
// against the Visma.net identity provider and hands out a valid bearer
// token on demand.
type TokenManager struct {
	clientID     string
	clientSecret string
	redirectURI  string
	authBaseURL  string
	httpClient   *http.Client
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	// now is swapped out in tests.
	now func() time.Time

	mu      sync.Mutex
	session *domain.OAuthSession
}

// NewTokenManager creates a token manager. metrics may be nil.
func NewTokenManager(clientID, clientSecret, redirectURI, authBaseURL string, logger zerolog.Logger, m *metrics.Metrics) *TokenManager {
	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		authBaseURL:  strings.TrimSuffix(authBaseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// AuthorizationURL builds the provider authorize URL with a CSRF state
// token, generating one when state is empty. The caller correlates the
// returned state with the eventual callback.
func (tm *TokenManager) AuthorizationURL(state string) (string, string, error) {
	if tm.clientID == "" || tm.redirectURI == "" {
		return "", "", &domain.AuthError{Message: "client ID and redirect URI required for OAuth"}
	}

	if state == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return "", "", fmt.Errorf("failed to generate state: %w", err)
		}
		state = hex.EncodeToString(buf)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", tm.clientID)
	params.Set("redirect_uri", tm.redirectURI)
	params.Set("scope", oauthScopes)
	params.Set("state", state)

	authURL := tm.authBaseURL + "/authorize?" + params.Encode()

	tm.logger.Info().Str("state", state).Msg("Generated Visma.net authorization URL")
	return authURL, state, nil
}

// ExchangeCode trades an authorization code for a token session.
func (tm *TokenManager) ExchangeCode(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", tm.clientID)
	form.Set("client_secret", tm.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", tm.redirectURI)

	resp, err := tm.postToken(ctx, form)
	if err != nil {
		return err
	}

	tm.mu.Lock()
	tm.session = &domain.OAuthSession{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tm.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	tm.mu.Unlock()

	tm.logger.Info().
		Time("expires_at", tm.now().Add(time.Duration(resp.ExpiresIn)*time.Second)).
		Msg("Obtained Visma.net tokens")
	return nil
}

// EnsureValid returns a bearer token, refreshing it first when the session
// is within the renewal buffer of expiry. The refresh is single-flight:
// a concurrent caller blocks on the mutex and finds the renewed session.
// A failed refresh surfaces as AuthError and leaves the session in place;
// callers decide when to Clear after repeated failures.
func (tm *TokenManager) EnsureValid(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.session == nil {
		return "", &domain.AuthError{Message: "not authenticated"}
	}

	if tm.now().Add(renewalBuffer).Before(tm.session.ExpiresAt) {
		return tm.session.AccessToken, nil
	}

	if err := tm.refreshLocked(ctx); err != nil {
		return "", err
	}
	return tm.session.AccessToken, nil
}

// refreshLocked renews the access token; tm.mu must be held.
func (tm *TokenManager) refreshLocked(ctx context.Context) error {
	if tm.session.RefreshToken == "" {
		return &domain.AuthError{Message: "no refresh token available"}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", tm.clientID)
	form.Set("client_secret", tm.clientSecret)
	form.Set("refresh_token", tm.session.RefreshToken)

	resp, err := tm.postToken(ctx, form)
	if err != nil {
		tm.logger.Error().Err(err).Msg("Token refresh failed")
		return err
	}

	tm.session.AccessToken = resp.AccessToken
	tm.session.ExpiresAt = tm.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	// The provider may rotate the refresh token.
	if resp.RefreshToken != "" {
		tm.session.RefreshToken = resp.RefreshToken
	}

	tm.metrics.ObserveTokenRefresh()
	tm.logger.Info().Time("expires_at", tm.session.ExpiresAt).Msg("Refreshed Visma.net token")
	return nil
}

// Clear drops all token state. Idempotent.
func (tm *TokenManager) Clear() {
	tm.mu.Lock()
	tm.session = nil
	tm.mu.Unlock()
	tm.logger.Info().Msg("Cleared Visma.net authentication")
}

// Status reports the current token state without touching the provider.
func (tm *TokenManager) Status() domain.AuthStatus {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.session == nil {
		return domain.AuthStatus{}
	}

	until := tm.session.ExpiresAt.Sub(tm.now())
	if until < 0 {
		until = 0
	}
	return domain.AuthStatus{
		Authenticated:   true,
		ExpiresAt:       tm.session.ExpiresAt,
		TimeUntilExpiry: until,
		HasRefreshToken: tm.session.RefreshToken != "",
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (tm *TokenManager) postToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.authBaseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := tm.httpClient.Do(req)
	if err != nil {
		return nil, &domain.AuthError{Message: "token endpoint unreachable", Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &domain.AuthError{Message: "failed to read token response", Err: err}
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.AuthError{Message: fmt.Sprintf("malformed token response: %s", truncate(string(body), 200)), Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 || resp.Error != "" {
		msg := resp.Error
		if resp.ErrorDescription != "" {
			msg += ": " + resp.ErrorDescription
		}
		if msg == "" {
			msg = fmt.Sprintf("token endpoint returned HTTP %d", httpResp.StatusCode)
		}
		return nil, &domain.AuthError{Message: msg}
	}

	if resp.AccessToken == "" {
		return nil, &domain.AuthError{Message: "no access token in response"}
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
