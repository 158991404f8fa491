package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"goodnews-bot/model"
)

const (
	defaultBaseURL      = "https://www.reddit.com"
	defaultOAuthBaseURL = "https://oauth.reddit.com"
	defaultTokenURL     = "https://www.reddit.com/api/v1/access_token"
	defaultUserAgent    = "PositiveContentBot"
)

// Reddit reads a subreddit's hot listing through the JSON API.
type Reddit struct {
	httpClient   *http.Client
	baseURL      string
	oauthBaseURL string
	tokenURL     string
	userAgent    string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// RedditOption configures a Reddit client.
type RedditOption func(*Reddit)

// WithBaseURL sets the public listing base URL (for testing).
func WithBaseURL(u string) RedditOption {
	return func(r *Reddit) {
		if u != "" {
			r.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithOAuth enables app-only authentication with the given credentials.
// oauthBaseURL and tokenURL may be empty to use Reddit's endpoints.
func WithOAuth(clientID, clientSecret, oauthBaseURL, tokenURL string) RedditOption {
	return func(r *Reddit) {
		r.clientID = clientID
		r.clientSecret = clientSecret
		if oauthBaseURL != "" {
			r.oauthBaseURL = strings.TrimRight(oauthBaseURL, "/")
		}
		if tokenURL != "" {
			r.tokenURL = tokenURL
		}
	}
}

// WithUserAgent sets the User-Agent header Reddit requires.
func WithUserAgent(ua string) RedditOption {
	return func(r *Reddit) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) RedditOption {
	return func(r *Reddit) {
		r.httpClient.Timeout = d
	}
}

// NewReddit creates a Reddit listing client.
func NewReddit(opts ...RedditOption) *Reddit {
	r := &Reddit{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		oauthBaseURL: defaultOAuthBaseURL,
		tokenURL:     defaultTokenURL,
		userAgent:    defaultUserAgent,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Permalink string `json:"permalink"`
	Stickied  bool   `json:"stickied"`
	IsSelf    bool   `json:"is_self"`
}

// FetchBatch returns up to limit hot posts from topic in listing order.
// Stickied posts and self posts are dropped.
func (r *Reddit) FetchBatch(ctx context.Context, topic string, limit int) ([]model.Candidate, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%d&raw_json=1", r.baseURL, url.PathEscape(topic), limit)

	var bearer string
	if r.clientID != "" {
		token, err := r.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		bearer = token
		endpoint = fmt.Sprintf("%s/r/%s/hot?limit=%d&raw_json=1", r.oauthBaseURL, url.PathEscape(topic), limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			r.resetToken()
		}
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		p := child.Data
		if p.Stickied || p.IsSelf || p.URL == "" {
			continue
		}
		candidates = append(candidates, model.Candidate{
			URL:    p.URL,
			Title:  p.Title,
			Source: defaultBaseURL + p.Permalink,
		})
	}

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a cached app-only token, fetching a new one when expired.
func (r *Reddit) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return r.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch token: unexpected status: %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("fetch token: empty access token (%s)", tr.Error)
	}

	// Refresh a minute early.
	ttl := time.Duration(tr.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	r.token = tr.AccessToken
	r.tokenExpiry = time.Now().Add(ttl)
	return r.token, nil
}

func (r *Reddit) resetToken() {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()
}
