package model

// Label is a sentiment polarity.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
)

// Candidate is one feed item considered for publication in a run.
// URL is the unique key used by the ledger.
type Candidate struct {
	URL    string
	Title  string
	Source string
}

// Sentiment is a classifier verdict. Err is set when the classifier failed,
// in which case Label is Neutral and Confidence is 0.
type Sentiment struct {
	Label      Label
	Confidence float64
	Err        error
}

// Failed reports whether the verdict is the failure sentinel.
func (s Sentiment) Failed() bool {
	return s.Err != nil
}

// ScoreResult holds the scoring breakdown for one candidate.
type ScoreResult struct {
	Label          Label
	Confidence     float64
	KeywordMatches int
	Composite      float64
	ClassifierErr  error
}

// Decision is the outcome of a selection pass. A nil *Decision means nothing qualified.
type Decision struct {
	Candidate Candidate
	Score     ScoreResult
}
