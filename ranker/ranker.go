package ranker

import (
	"context"
	"log/slog"

	"goodnews-bot/model"
)

// DefaultKeywordWeight is the bonus added per distinct keyword hit.
const DefaultKeywordWeight = 0.03

// SentimentClassifier returns a verdict for text. Failures are reported via
// the verdict's Err field rather than a returned error.
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) model.Sentiment
}

// KeywordCounter counts distinct vocabulary hits in text.
type KeywordCounter interface {
	MatchCount(text string) int
}

// Ranker combines sentiment confidence and keyword hits into one score.
type Ranker struct {
	sentiment     SentimentClassifier
	keywords      KeywordCounter
	keywordWeight float64
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithKeywordWeight sets the per-keyword bonus.
func WithKeywordWeight(w float64) Option {
	return func(r *Ranker) {
		r.keywordWeight = w
	}
}

// NewRanker creates a ranker from a sentiment scorer and keyword matcher.
func NewRanker(sentiment SentimentClassifier, keywords KeywordCounter, opts ...Option) *Ranker {
	r := &Ranker{
		sentiment:     sentiment,
		keywords:      keywords,
		keywordWeight: DefaultKeywordWeight,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Score computes the composite score for a candidate's title.
func (r *Ranker) Score(ctx context.Context, c model.Candidate) model.ScoreResult {
	verdict := r.sentiment.Classify(ctx, c.Title)
	if verdict.Failed() {
		slog.WarnContext(ctx, "sentiment classification failed, scoring as 0",
			"url", c.URL, "title", c.Title, "error", verdict.Err)
	}

	matches := r.keywords.MatchCount(c.Title)

	return model.ScoreResult{
		Label:          verdict.Label,
		Confidence:     verdict.Confidence,
		KeywordMatches: matches,
		Composite:      Composite(verdict, matches, r.keywordWeight),
		ClassifierErr:  verdict.Err,
	}
}

// Composite is the scoring formula: positive confidence plus a fixed bonus
// per distinct keyword. It has no upper bound.
func Composite(verdict model.Sentiment, keywordMatches int, keywordWeight float64) float64 {
	var sentimentComponent float64
	if !verdict.Failed() && verdict.Label == model.Positive {
		sentimentComponent = verdict.Confidence
	}
	return sentimentComponent + float64(keywordMatches)*keywordWeight
}
