// Package feed fetches candidate batches from a subreddit listing.
package feed

import (
	"context"

	"goodnews-bot/model"
)

// Fetcher returns one batch of candidates in feed order.
type Fetcher interface {
	FetchBatch(ctx context.Context, topic string, limit int) ([]model.Candidate, error)
}

var (
	_ Fetcher = (*Reddit)(nil)
	_ Fetcher = (*RSS)(nil)
)
