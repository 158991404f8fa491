package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"goodnews-bot/model"
)

// RSS reads a subreddit's hot listing through its Atom feed. It needs no
// credentials.
type RSS struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewRSS creates an RSS fetcher. Empty baseURL or userAgent use defaults.
func NewRSS(baseURL, userAgent string, timeout time.Duration) *RSS {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RSS{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
	}
}

// FetchBatch returns up to limit entries from topic in feed order.
func (r *RSS) FetchBatch(ctx context.Context, topic string, limit int) ([]model.Candidate, error) {
	feedURL := fmt.Sprintf("%s/r/%s/hot/.rss?limit=%d", r.baseURL, url.PathEscape(topic), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	fp := gofeed.NewParser()
	parsed, err := fp.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if limit > 0 && len(candidates) >= limit {
			break
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}

		link := articleLink(item.Content)
		if link == "" {
			link = articleLink(item.Description)
		}
		if link == "" {
			link = item.Link
		}
		if link == "" {
			continue
		}

		candidates = append(candidates, model.Candidate{
			URL:    link,
			Title:  title,
			Source: item.Link,
		})
	}
	return candidates, nil
}

// articleLink returns the href of the "[link]" anchor in a Reddit entry body.
func articleLink(body string) string {
	if body == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var href string
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != "[link]" {
			return true
		}
		href, _ = s.Attr("href")
		return false
	})
	return strings.TrimSpace(href)
}
