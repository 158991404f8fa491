package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"goodnews-bot/model"
)

// MaxInputLen is the longest text, in characters, submitted to a classifier.
const MaxInputLen = 512

// Classifier labels text with a polarity and confidence.
type Classifier interface {
	Classify(ctx context.Context, text string) (model.Sentiment, error)
}

// ClassifierError reports a classifier failure for one piece of text.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string { return "classify: " + e.Err.Error() }
func (e *ClassifierError) Unwrap() error { return e.Err }

// Scorer wraps a Classifier with input truncation, result validation and a
// circuit breaker. It never returns an error: failures become the sentinel
// verdict (Neutral, 0 confidence, Err set).
type Scorer struct {
	classifier  Classifier
	breaker     *gobreaker.CircuitBreaker
	maxInputLen int
}

// Option configures a Scorer.
type Option func(*scorerOptions)

type scorerOptions struct {
	maxFailures  uint32
	openDuration time.Duration
	maxInputLen  int
}

// WithMaxFailures sets how many consecutive failures open the breaker.
func WithMaxFailures(n uint32) Option {
	return func(o *scorerOptions) {
		o.maxFailures = n
	}
}

// WithOpenDuration sets how long the breaker stays open before probing again.
func WithOpenDuration(d time.Duration) Option {
	return func(o *scorerOptions) {
		o.openDuration = d
	}
}

// WithMaxInputLen overrides the truncation length (for testing).
func WithMaxInputLen(n int) Option {
	return func(o *scorerOptions) {
		o.maxInputLen = n
	}
}

// NewScorer creates a scorer around the given classifier.
func NewScorer(classifier Classifier, opts ...Option) *Scorer {
	o := &scorerOptions{
		maxFailures:  3,
		openDuration: time.Minute,
		maxInputLen:  MaxInputLen,
	}
	for _, opt := range opts {
		opt(o)
	}

	maxFailures := o.maxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "classifier",
		Timeout: o.openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})

	return &Scorer{
		classifier:  classifier,
		breaker:     breaker,
		maxInputLen: o.maxInputLen,
	}
}

// Classify returns the classifier verdict for text, or the failure sentinel.
func (s *Scorer) Classify(ctx context.Context, text string) model.Sentiment {
	text = Truncate(text, s.maxInputLen)

	out, err := s.breaker.Execute(func() (interface{}, error) {
		res, err := s.classifier.Classify(ctx, text)
		if err != nil {
			return nil, err
		}
		if err := validate(res); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return model.Sentiment{Label: model.Neutral, Err: &ClassifierError{Err: err}}
	}

	res := out.(model.Sentiment)
	res.Err = nil
	return res
}

// State exposes the breaker state for diagnostics.
func (s *Scorer) State() gobreaker.State {
	return s.breaker.State()
}

// Truncate cuts text to at most n characters without splitting a rune.
func Truncate(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// ParseLabel maps a classifier label onto a model.Label.
func ParseLabel(raw string) (model.Label, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "POSITIVE", "POS":
		return model.Positive, nil
	case "NEGATIVE", "NEG":
		return model.Negative, nil
	case "NEUTRAL", "NEU":
		return model.Neutral, nil
	}
	return "", fmt.Errorf("unknown label %q", raw)
}

func validate(res model.Sentiment) error {
	switch res.Label {
	case model.Positive, model.Negative, model.Neutral:
	default:
		return fmt.Errorf("unknown label %q", res.Label)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", res.Confidence)
	}
	return nil
}

// Static always returns the same verdict. Useful for offline dry runs.
type Static struct {
	Result model.Sentiment
}

// Classify implements Classifier.
func (s Static) Classify(ctx context.Context, text string) (model.Sentiment, error) {
	return s.Result, nil
}
