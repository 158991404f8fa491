package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"goodnews-bot/logging"
	"goodnews-bot/model"
	"goodnews-bot/publisher"
	"goodnews-bot/selection"
)

const (
	defaultTopic = "UpliftingNews"
	defaultLimit = 20
)

// FeedFetchError reports that the candidate batch could not be retrieved.
type FeedFetchError struct {
	Topic string
	Err   error
}

func (e *FeedFetchError) Error() string { return fmt.Sprintf("fetch feed %s: %v", e.Topic, e.Err) }
func (e *FeedFetchError) Unwrap() error { return e.Err }

// Fetcher retrieves a batch of candidates.
type Fetcher interface {
	FetchBatch(ctx context.Context, topic string, limit int) ([]model.Candidate, error)
}

// Ledger is reloaded at the start of every run.
type Ledger interface {
	selection.KeyChecker
	Load(ctx context.Context) (map[string]struct{}, error)
}

// Selector picks at most one candidate from a batch.
type Selector interface {
	SelectBest(ctx context.Context, candidates []model.Candidate, ledger selection.KeyChecker) *model.Decision
}

// Publisher sends a decision out and records it.
type Publisher interface {
	Publish(ctx context.Context, d *model.Decision) (publisher.Result, error)
}

// Outcome summarizes one run.
type Outcome struct {
	RunID     string
	Fetched   int
	Decision  *model.Decision
	Published bool
	DryRun    bool
	PostID    string
}

// Runner performs one fetch, select and publish cycle per call.
type Runner struct {
	fetcher   Fetcher
	ledger    Ledger
	selector  Selector
	publisher Publisher
	topic     string
	limit     int
}

// Option configures a Runner.
type Option func(*Runner)

// WithTopic sets the feed topic.
func WithTopic(topic string) Option {
	return func(r *Runner) {
		if topic != "" {
			r.topic = topic
		}
	}
}

// WithLimit sets the batch size.
func WithLimit(limit int) Option {
	return func(r *Runner) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

// NewRunner creates a new runner.
func NewRunner(fetcher Fetcher, ledger Ledger, selector Selector, pub Publisher, opts ...Option) *Runner {
	r := &Runner{
		fetcher:   fetcher,
		ledger:    ledger,
		selector:  selector,
		publisher: pub,
		topic:     defaultTopic,
		limit:     defaultLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one cycle. It returns *FeedFetchError when the batch could
// not be fetched, *publisher.PublishError when posting failed and
// *storage.LedgerIOError when the ledger could not be read or written.
// Finding nothing worth posting is not an error.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{RunID: uuid.NewString()}
	ctx = logging.WithRunID(ctx, out.RunID)
	start := time.Now()

	slog.InfoContext(ctx, "starting run", "topic", r.topic, "limit", r.limit)

	if _, err := r.ledger.Load(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to load ledger", "error", err)
		return out, err
	}

	candidates, err := r.fetcher.FetchBatch(ctx, r.topic, r.limit)
	if err != nil {
		ferr := &FeedFetchError{Topic: r.topic, Err: err}
		slog.ErrorContext(ctx, "failed to fetch feed", "error", ferr)
		return out, ferr
	}
	out.Fetched = len(candidates)
	slog.InfoContext(ctx, "fetched candidates", "count", out.Fetched)

	decision := r.selector.SelectBest(ctx, candidates, r.ledger)
	if decision == nil {
		slog.InfoContext(ctx, "no suitable candidate found", "fetched", out.Fetched)
		return out, nil
	}
	out.Decision = decision

	slog.InfoContext(ctx, "selected candidate",
		"title", decision.Candidate.Title,
		"url", decision.Candidate.URL,
		"score", decision.Score.Composite)

	res, err := r.publisher.Publish(ctx, decision)
	out.Published = res.Posted
	out.DryRun = res.DryRun
	out.PostID = res.PostID
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish",
			"title", decision.Candidate.Title,
			"url", decision.Candidate.URL,
			"error", err)
		return out, err
	}

	slog.InfoContext(ctx, "run complete",
		"published", out.Published,
		"dry_run", out.DryRun,
		"duration", time.Since(start))
	return out, nil
}
