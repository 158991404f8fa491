package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"goodnews-bot/model"
	"goodnews-bot/storage"
)

const (
	// DefaultMarker prefixes every payload.
	DefaultMarker = "🌍"
	// DefaultMaxLen is the longest payload the destination accepts, in characters.
	DefaultMaxLen = 500

	ellipsis = "..."

	// persistTimeout bounds ledger writes that must outlive a cancelled run.
	persistTimeout = 10 * time.Second
)

// PublishError reports that the destination rejected or never received a post.
type PublishError struct {
	URL string
	Err error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish %s: %v", e.URL, e.Err) }
func (e *PublishError) Unwrap() error { return e.Err }

// Poster delivers a payload and returns the destination's post id.
type Poster interface {
	Post(ctx context.Context, payload string) (string, error)
}

// Ledger is the subset of the duplicate ledger the publisher mutates.
type Ledger interface {
	Record(key string)
	Persist(ctx context.Context) error
	WriteHistory(ctx context.Context, entry storage.HistoryEntry) error
}

// Result describes what Publish did.
type Result struct {
	Payload string
	PostID  string
	Posted  bool
	DryRun  bool
}

// Publisher formats a decision, sends it and records it in the ledger.
type Publisher struct {
	poster Poster
	ledger Ledger
	marker string
	maxLen int
	dryRun bool
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMarker sets the payload prefix.
func WithMarker(m string) Option {
	return func(p *Publisher) {
		p.marker = m
	}
}

// WithMaxLen sets the payload limit.
func WithMaxLen(n int) Option {
	return func(p *Publisher) {
		p.maxLen = n
	}
}

// WithDryRun logs payloads instead of posting them.
func WithDryRun(dryRun bool) Option {
	return func(p *Publisher) {
		p.dryRun = dryRun
	}
}

// New creates a Publisher.
func New(poster Poster, ledger Ledger, opts ...Option) *Publisher {
	p := &Publisher{
		poster: poster,
		ledger: ledger,
		marker: DefaultMarker,
		maxLen: DefaultMaxLen,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DryRun reports whether the publisher is in dry-run mode.
func (p *Publisher) DryRun() bool {
	return p.dryRun
}

// Publish posts the decision. The ledger is updated only after the
// destination accepted the post, and never in dry-run mode.
func (p *Publisher) Publish(ctx context.Context, d *model.Decision) (Result, error) {
	payload := Truncate(FormatPayload(p.marker, d.Candidate.Title, d.Candidate.URL), p.maxLen)

	if p.dryRun {
		slog.InfoContext(ctx, "dry run, not posting", "payload", payload, "url", d.Candidate.URL, "score", d.Score.Composite)
		return Result{Payload: payload, DryRun: true}, nil
	}

	id, err := p.poster.Post(ctx, payload)
	if err != nil {
		return Result{Payload: payload}, &PublishError{URL: d.Candidate.URL, Err: err}
	}
	slog.InfoContext(ctx, "posted", "url", d.Candidate.URL, "post_id", id, "score", d.Score.Composite)

	// The post is live; record it even if the run is being shut down.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	p.ledger.Record(d.Candidate.URL)
	if err := p.ledger.Persist(saveCtx); err != nil {
		return Result{Payload: payload, PostID: id, Posted: true}, err
	}

	entry := storage.HistoryEntry{
		URL:      d.Candidate.URL,
		Title:    d.Candidate.Title,
		Score:    d.Score.Composite,
		PostID:   id,
		PostedAt: p.now().UTC(),
	}
	if err := p.ledger.WriteHistory(saveCtx, entry); err != nil {
		slog.WarnContext(ctx, "failed to write history", "url", d.Candidate.URL, "error", err)
	}

	return Result{Payload: payload, PostID: id, Posted: true}, nil
}

// FormatPayload builds the post text.
func FormatPayload(marker, title, url string) string {
	return fmt.Sprintf("%s Good News: %s\n%s", marker, title, url)
}

// Truncate shortens payload to at most max characters, ending in "..." when cut.
func Truncate(payload string, max int) string {
	runes := []rune(payload)
	if len(runes) <= max {
		return payload
	}
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	return string(runes[:max-len(ellipsis)]) + ellipsis
}
