package visma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/metrics"
	"crm-visma-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRateLimitDelay = 100 * time.Millisecond
	userAgent             = "crm-visma-sync-layer/1.0"
)

// SendOptions tweaks a single transport call.
type SendOptions struct {
	// Form encodes the body as application/x-www-form-urlencoded
	// instead of JSON. The body must then be url.Values.
	Form bool
	// NoAuth skips the Authorization header (token endpoints).
	NoAuth bool
}

// Transport executes HTTP requests against the Visma.net API with
// process-wide inter-request spacing, a fixed per-call timeout, and
// response normalization. Retry policy deliberately lives with the
// callers, since idempotency differs between create and update.
type Transport struct {
	httpClient *http.Client
	tokens     ports.TokenSource
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	mu          sync.Mutex
	lastRequest time.Time
	spacing     time.Duration
}

// NewTransport creates a transport. tokens supplies bearer tokens for
// authenticated calls; metrics may be nil. A non-positive spacing falls
// back to the 100 ms default.
func NewTransport(tokens ports.TokenSource, spacing time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Transport {
	if spacing <= 0 {
		spacing = defaultRateLimitDelay
	}
	return &Transport{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		tokens:     tokens,
		logger:     logger,
		metrics:    m,
		spacing:    spacing,
	}
}

// Send issues one request and returns the raw response body of a 2xx
// response. Non-2xx responses come back as TransportError with a
// best-effort decoded body; timeouts come back as TransportError with
// the timeout kind.
func (t *Transport) Send(ctx context.Context, method, rawURL string, body any, opts SendOptions) ([]byte, error) {
	if err := t.waitForSlot(ctx); err != nil {
		return nil, err
	}

	var (
		reqBody     io.Reader
		contentType string
	)
	if body != nil {
		if opts.Form {
			values, ok := body.(url.Values)
			if !ok {
				return nil, fmt.Errorf("form body must be url.Values, got %T", body)
			}
			reqBody = strings.NewReader(values.Encode())
			contentType = "application/x-www-form-urlencoded"
		} else {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			reqBody = bytes.NewReader(encoded)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if !opts.NoAuth {
		// EnsureValid may itself refresh, so this is a suspension point.
		token, err := t.tokens.EnsureValid(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			t.metrics.ObserveAPIRequest(method, "timeout")
			return nil, &domain.TransportError{Kind: domain.TransportTimeout, Err: err}
		}
		t.metrics.ObserveAPIRequest(method, "error")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	t.metrics.ObserveAPIRequest(method, statusClass(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.logger.Warn().
			Str("method", method).
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Msg("Visma.net request failed")
		return nil, &domain.TransportError{
			Kind:       domain.TransportHTTP,
			StatusCode: resp.StatusCode,
			Body:       flattenErrorBody(respBody),
		}
	}

	return respBody, nil
}

// waitForSlot enforces the minimum spacing between outbound requests.
// The mutex is held across the sleep so callers are released in call
// order; it is dropped before the request itself goes out.
func (t *Transport) waitForSlot(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	wait := t.spacing - time.Since(t.lastRequest)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	t.lastRequest = time.Now()
	return nil
}

// flattenErrorBody tries a JSON decode of an error response, falling back
// to the raw text.
func flattenErrorBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err == nil {
		if msg, ok := decoded["message"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := decoded["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return truncate(trimmed, 500)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
