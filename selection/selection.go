package selection

import (
	"context"
	"log/slog"

	"goodnews-bot/model"
)

// DefaultThreshold is the minimum composite score a candidate needs.
const DefaultThreshold = 0.97

// KeyChecker reports whether a key was already published.
type KeyChecker interface {
	Contains(key string) bool
}

// Scorer scores a single candidate.
type Scorer interface {
	Score(ctx context.Context, c model.Candidate) model.ScoreResult
}

// Policy picks at most one candidate per batch: the highest-scoring one at
// or above the threshold. Ties go to the candidate seen first.
type Policy struct {
	scorer    Scorer
	threshold float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithThreshold sets the qualifying score.
func WithThreshold(t float64) Option {
	return func(p *Policy) {
		p.threshold = t
	}
}

// NewPolicy creates a selection policy.
func NewPolicy(scorer Scorer, opts ...Option) *Policy {
	p := &Policy{
		scorer:    scorer,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold returns the configured threshold.
func (p *Policy) Threshold() float64 {
	return p.threshold
}

// SelectBest scores every unpublished candidate in feed order and returns the
// best qualifier, or nil when none reaches the threshold. The whole batch is
// scored before deciding. A cancelled context yields nil.
func (p *Policy) SelectBest(ctx context.Context, candidates []model.Candidate, ledger KeyChecker) *model.Decision {
	var best *model.Decision
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		if c.URL == "" {
			slog.WarnContext(ctx, "skipped (no url)", "title", c.Title)
			continue
		}
		if ledger.Contains(c.URL) {
			slog.InfoContext(ctx, "skipped (already posted)", "title", c.Title, "url", c.URL)
			continue
		}
		if seen[c.URL] {
			slog.DebugContext(ctx, "skipped (duplicate in batch)", "title", c.Title, "url", c.URL)
			continue
		}
		seen[c.URL] = true

		score := p.scorer.Score(ctx, c)

		if score.Composite < p.threshold {
			slog.InfoContext(ctx, "skipped (not positive enough)",
				"title", c.Title, "url", c.URL,
				"score", score.Composite, "label", score.Label, "confidence", score.Confidence,
				"keyword_matches", score.KeywordMatches)
			continue
		}

		slog.InfoContext(ctx, "candidate qualifies",
			"title", c.Title, "url", c.URL,
			"score", score.Composite, "keyword_matches", score.KeywordMatches)

		if best == nil || score.Composite > best.Score.Composite {
			best = &model.Decision{Candidate: c, Score: score}
		}
	}

	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "selection cancelled before the batch was fully scored", "error", err)
		return nil
	}

	return best
}
