package poster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusError is returned when the destination answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Mastodon posts statuses to a Mastodon instance.
type Mastodon struct {
	accessToken string
	baseURL     string
	visibility  string
	httpClient  *http.Client
	retry       RetryPolicy
}

// MastodonOption configures a Mastodon poster.
type MastodonOption func(*Mastodon)

// WithVisibility sets the status visibility (public, unlisted, private, direct).
func WithVisibility(v string) MastodonOption {
	return func(m *Mastodon) {
		if v != "" {
			m.visibility = v
		}
	}
}

// WithMastodonTimeout sets the HTTP client timeout.
func WithMastodonTimeout(d time.Duration) MastodonOption {
	return func(m *Mastodon) {
		m.httpClient.Timeout = d
	}
}

// WithMastodonRetry overrides the retry policy.
func WithMastodonRetry(p RetryPolicy) MastodonOption {
	return func(m *Mastodon) {
		m.retry = p
	}
}

// NewMastodon creates a poster for the instance at baseURL.
func NewMastodon(baseURL, accessToken string, opts ...MastodonOption) *Mastodon {
	m := &Mastodon{
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		visibility:  "public",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retry:       DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type mastodonStatus struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Post publishes payload as a status and returns its id. All attempts share
// one Idempotency-Key so the instance drops duplicates.
func (m *Mastodon) Post(ctx context.Context, payload string) (string, error) {
	key := uuid.NewString()

	policy := m.retry
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "mastodon post failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	return retryDo(ctx, policy, classifyHTTPError, func() (string, error) {
		return m.postStatus(ctx, payload, key)
	})
}

func (m *Mastodon) postStatus(ctx context.Context, payload, idempotencyKey string) (string, error) {
	form := url.Values{}
	form.Set("status", payload)
	form.Set("visibility", m.visibility)

	endpoint := m.baseURL + "/api/v1/statuses"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var status mastodonStatus
	if err := json.Unmarshal(body, &status); err != nil {
		// The status is already up; a resend would duplicate it.
		slog.WarnContext(ctx, "posted but could not decode mastodon response", "error", err)
		return "", nil
	}
	return status.ID, nil
}

func classifyHTTPError(err error) Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Stop
	}
	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.Code)
	}
	return Retry
}
