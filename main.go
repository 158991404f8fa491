package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goodnews-bot/config"
	"goodnews-bot/feed"
	"goodnews-bot/keywords"
	"goodnews-bot/logging"
	"goodnews-bot/poster"
	"goodnews-bot/publisher"
	"goodnews-bot/ranker"
	"goodnews-bot/runner"
	"goodnews-bot/scheduler"
	"goodnews-bot/selection"
	"goodnews-bot/sentiment"
	"goodnews-bot/storage"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("goodnews-bot", flag.ContinueOnError)
	once := fs.Bool("once", false, "run a single pass even when a schedule is configured")
	dryRun := fs.Bool("dry-run", false, "select and log the post without publishing or touching the ledger")
	history := fs.Int("history", 0, "print the last N published items (sqlite ledger) and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var loadOpts []config.LoadOption
	if *dryRun {
		loadOpts = append(loadOpts, config.ForceDryRun())
	}

	cfg, err := config.LoadFromEnv(loadOpts...)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load config", "path", config.GetConfigPath(), "error", err)
		return 1
	}

	slog.SetDefault(logging.New(cfg.LogLevel, cfg.LogFormat, stdout))
	slog.Info("starting goodnews bot",
		"feed", cfg.FeedKind,
		"topic", cfg.FeedTopic,
		"classifier", cfg.ClassifierKind,
		"publisher", cfg.PublisherKind,
		"ledger", cfg.LedgerKind,
		"dry_run", cfg.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(cfg)
	if err != nil {
		slog.Error("failed to open ledger", "kind", cfg.LedgerKind, "path", cfg.LedgerPath, "error", err)
		return 1
	}
	ledger := storage.NewLedger(backend)
	defer ledger.Close()

	if *history > 0 {
		return printHistory(ctx, backend, *history, stdout)
	}

	post, err := newPoster(cfg)
	if err != nil {
		slog.Error("failed to initialize publisher", "kind", cfg.PublisherKind, "error", err)
		return 1
	}

	scorer := sentiment.NewScorer(newClassifier(cfg))
	rk := ranker.NewRanker(scorer, keywords.New(cfg.Keywords), ranker.WithKeywordWeight(cfg.Weight()))
	policy := selection.NewPolicy(rk, selection.WithThreshold(cfg.ScoreThreshold))
	pub := publisher.New(post, ledger,
		publisher.WithMarker(cfg.Marker),
		publisher.WithMaxLen(cfg.MaxPayloadLen),
		publisher.WithDryRun(cfg.DryRun),
	)
	r := runner.NewRunner(newFetcher(cfg), ledger, policy, pub,
		runner.WithTopic(cfg.FeedTopic),
		runner.WithLimit(cfg.BatchLimit),
	)

	if cfg.Schedule == "" || *once {
		runOnce(ctx, r)
		return 0
	}

	sched, err := scheduler.NewScheduler(cfg.Timezone)
	if err != nil {
		slog.Error("failed to initialize scheduler", "timezone", cfg.Timezone, "error", err)
		return 1
	}
	if err := sched.Schedule(cfg.Schedule, func() { runOnce(ctx, r) }); err != nil {
		slog.Error("failed to schedule runs", "schedule", cfg.Schedule, "error", err)
		return 1
	}
	sched.Start()
	slog.Info("runs scheduled", "schedule", cfg.Schedule, "timezone", cfg.Timezone, "next", sched.Next())

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-sched.Stop().Done()
	slog.Info("bot stopped")
	return 0
}

// runOnce performs one pass. Run-level failures are logged, not fatal.
func runOnce(ctx context.Context, r *runner.Runner) {
	out, err := r.Run(ctx)
	if err == nil {
		return
	}

	var (
		feedErr   *runner.FeedFetchError
		pubErr    *publisher.PublishError
		ledgerErr *storage.LedgerIOError
	)
	switch {
	case errors.As(err, &feedErr):
		slog.Error("run aborted: feed unavailable", "run_id", out.RunID, "error", err)
	case errors.As(err, &pubErr):
		slog.Error("run ended: publish failed, candidate stays eligible", "run_id", out.RunID, "url", pubErr.URL, "error", err)
	case errors.As(err, &ledgerErr):
		slog.Error("run ended: ledger unavailable", "run_id", out.RunID, "op", ledgerErr.Op, "published", out.Published, "error", err)
	default:
		slog.Error("run failed", "run_id", out.RunID, "error", err)
	}
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.LedgerKind {
	case "sqlite":
		return storage.NewDB(cfg.LedgerPath)
	case "redis":
		return storage.NewRedisBackend(cfg.RedisURL, cfg.RedisKey)
	default:
		return storage.NewFileBackend(cfg.LedgerPath), nil
	}
}

func newFetcher(cfg *config.Config) runner.Fetcher {
	if cfg.FeedKind == "rss" {
		return feed.NewRSS(cfg.FeedBaseURL, cfg.UserAgent, cfg.FetchTimeout())
	}

	opts := []feed.RedditOption{
		feed.WithBaseURL(cfg.FeedBaseURL),
		feed.WithUserAgent(cfg.UserAgent),
		feed.WithTimeout(cfg.FetchTimeout()),
	}
	if cfg.RedditClientID != "" {
		opts = append(opts, feed.WithOAuth(cfg.RedditClientID, cfg.RedditClientSecret, "", ""))
	}
	return feed.NewReddit(opts...)
}

func newClassifier(cfg *config.Config) sentiment.Classifier {
	if cfg.ClassifierKind == "gemini" {
		return sentiment.NewGemini(cfg.GeminiAPIKey,
			sentiment.WithGeminiModel(cfg.ClassifierModel),
			sentiment.WithGeminiBaseURL(cfg.ClassifierBaseURL),
			sentiment.WithGeminiTimeout(cfg.FetchTimeout()),
		)
	}
	return sentiment.NewHuggingFace(cfg.HFAPIToken,
		sentiment.WithHFModel(cfg.ClassifierModel),
		sentiment.WithHFBaseURL(cfg.ClassifierBaseURL),
		sentiment.WithHFTimeout(cfg.FetchTimeout()),
	)
}

func newPoster(cfg *config.Config) (publisher.Poster, error) {
	if cfg.DryRun {
		return dryRunPoster{}, nil
	}

	if cfg.PublisherKind == "telegram" {
		tg, err := poster.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		return tg, nil
	}
	return poster.NewMastodon(cfg.MastodonAPIBaseURL, cfg.MastodonAccessToken,
		poster.WithVisibility(cfg.MastodonVisibility),
		poster.WithMastodonTimeout(cfg.FetchTimeout()),
	), nil
}

// dryRunPoster stands in when no destination is configured; the publisher
// never calls it in dry-run mode.
type dryRunPoster struct{}

func (dryRunPoster) Post(ctx context.Context, payload string) (string, error) {
	return "", errors.New("dry run: posting disabled")
}

func printHistory(ctx context.Context, backend storage.Backend, n int, w io.Writer) int {
	db, ok := backend.(*storage.DB)
	if !ok {
		slog.Error("history is only kept by the sqlite ledger")
		return 1
	}

	entries, err := db.RecentHistory(ctx, n)
	if err != nil {
		slog.Error("failed to read history", "error", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n", e.PostedAt.UTC().Format(time.RFC3339), e.Score, e.URL, e.Title)
	}
	return 0
}
