package publisher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"goodnews-bot/model"
	"goodnews-bot/storage"
)

type mockPoster struct {
	payloads []string
	id       string
	err      error
}

func (m *mockPoster) Post(ctx context.Context, payload string) (string, error) {
	m.payloads = append(m.payloads, payload)
	if m.err != nil {
		return "", m.err
	}
	return m.id, nil
}

type mockLedger struct {
	recorded   []string
	persisted  int
	persistErr error
	history    []storage.HistoryEntry
	historyErr error
}

func (m *mockLedger) Record(key string) { m.recorded = append(m.recorded, key) }

func (m *mockLedger) Persist(ctx context.Context) error {
	m.persisted++
	return m.persistErr
}

func (m *mockLedger) WriteHistory(ctx context.Context, e storage.HistoryEntry) error {
	m.history = append(m.history, e)
	return m.historyErr
}

func decision(url, title string) *model.Decision {
	return &model.Decision{
		Candidate: model.Candidate{URL: url, Title: title},
		Score:     model.ScoreResult{Label: model.Positive, Confidence: 0.99, Composite: 0.99},
	}
}

func TestFormatPayload(t *testing.T) {
	got := FormatPayload("🌍", "Town plants trees", "https://example.com/a")
	want := "🌍 Good News: Town plants trees\nhttps://example.com/a"
	if got != want {
		t.Errorf("FormatPayload = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"short", 10, 10},
		{"exact", 500, 500},
		{"one over", 501, 500},
		{"long", 2000, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := strings.Repeat("a", tt.length)
			got := Truncate(in, DefaultMaxLen)
			if n := utf8.RuneCountInString(got); n != tt.want {
				t.Errorf("len = %d, want %d", n, tt.want)
			}
			if tt.length > DefaultMaxLen && !strings.HasSuffix(got, "...") {
				t.Errorf("truncated payload should end with ...")
			}
			if tt.length <= DefaultMaxLen && got != in {
				t.Errorf("short payload changed")
			}
		})
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	in := strings.Repeat("🌍", 501)
	got := Truncate(in, DefaultMaxLen)
	if n := utf8.RuneCountInString(got); n != 500 {
		t.Errorf("rune count = %d, want 500", n)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune")
	}
}

func TestPublishSuccess(t *testing.T) {
	poster := &mockPoster{id: "109"}
	ledger := &mockLedger{}
	p := New(poster, ledger)

	res, err := p.Publish(context.Background(), decision("https://example.com/a", "Kids build a library"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.Posted || res.PostID != "109" || res.DryRun {
		t.Errorf("result = %+v", res)
	}
	if len(poster.payloads) != 1 {
		t.Fatalf("posted %d times, want 1", len(poster.payloads))
	}
	if want := "🌍 Good News: Kids build a library\nhttps://example.com/a"; poster.payloads[0] != want {
		t.Errorf("payload = %q, want %q", poster.payloads[0], want)
	}
	if len(ledger.recorded) != 1 || ledger.recorded[0] != "https://example.com/a" {
		t.Errorf("recorded = %v", ledger.recorded)
	}
	if ledger.persisted != 1 {
		t.Errorf("persisted = %d, want 1", ledger.persisted)
	}
	if len(ledger.history) != 1 || ledger.history[0].PostID != "109" {
		t.Errorf("history = %+v", ledger.history)
	}
}

func TestPublishDryRunLeavesLedgerUntouched(t *testing.T) {
	poster := &mockPoster{id: "1"}
	ledger := &mockLedger{}
	p := New(poster, ledger, WithDryRun(true))

	res, err := p.Publish(context.Background(), decision("https://example.com/a", "title"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.DryRun || res.Posted {
		t.Errorf("result = %+v", res)
	}
	if len(poster.payloads) != 0 {
		t.Error("dry run should not call poster")
	}
	if len(ledger.recorded) != 0 || ledger.persisted != 0 || len(ledger.history) != 0 {
		t.Errorf("dry run touched ledger: %+v", ledger)
	}
}

func TestPublishPosterFailure(t *testing.T) {
	posterErr := errors.New("connection refused")
	ledger := &mockLedger{}
	p := New(&mockPoster{err: posterErr}, ledger)

	_, err := p.Publish(context.Background(), decision("https://example.com/a", "title"))

	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("error = %v, want *PublishError", err)
	}
	if !errors.Is(err, posterErr) {
		t.Error("PublishError should unwrap to the poster error")
	}
	if pubErr.URL != "https://example.com/a" {
		t.Errorf("URL = %q", pubErr.URL)
	}
	if len(ledger.recorded) != 0 || ledger.persisted != 0 {
		t.Error("failed post should not touch ledger")
	}
}

func TestPublishPersistFailure(t *testing.T) {
	ledger := &mockLedger{persistErr: &storage.LedgerIOError{Op: "persist", Err: errors.New("disk full")}}
	p := New(&mockPoster{id: "1"}, ledger)

	res, err := p.Publish(context.Background(), decision("https://example.com/a", "title"))

	var ioErr *storage.LedgerIOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error = %v, want *storage.LedgerIOError", err)
	}
	if !res.Posted {
		t.Error("post went out, result should say so")
	}
	if len(ledger.history) != 0 {
		t.Error("history should not be written after persist failure")
	}
}

func TestPublishHistoryFailureIsNotFatal(t *testing.T) {
	ledger := &mockLedger{historyErr: errors.New("locked")}
	p := New(&mockPoster{id: "1"}, ledger)

	if _, err := p.Publish(context.Background(), decision("https://example.com/a", "title")); err != nil {
		t.Errorf("Publish: %v", err)
	}
}

func TestPublishTruncatesLongTitles(t *testing.T) {
	poster := &mockPoster{id: "1"}
	p := New(poster, &mockLedger{}, WithMarker("✨"), WithMaxLen(40))

	if _, err := p.Publish(context.Background(), decision("https://example.com/a", strings.Repeat("x", 100))); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got := poster.payloads[0]
	if n := utf8.RuneCountInString(got); n != 40 {
		t.Errorf("len = %d, want 40", n)
	}
	if !strings.HasPrefix(got, "✨ Good News: ") {
		t.Errorf("payload = %q", got)
	}
}

// cancellingPoster accepts the post and then cancels the run, as a shutdown
// signal arriving mid-publish would.
type cancellingPoster struct {
	cancel context.CancelFunc
}

func (c *cancellingPoster) Post(ctx context.Context, payload string) (string, error) {
	c.cancel()
	return "42", nil
}

func TestPublishPersistsAfterRunCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := storage.NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	ledger := storage.NewLedger(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(&cancellingPoster{cancel: cancel}, ledger)

	res, err := p.Publish(ctx, decision("https://example.com/u1", "title"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.Posted {
		t.Errorf("result = %+v", res)
	}
	ledger.Close()

	// Restart: the key must have reached durable storage.
	db, err = storage.NewDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reloaded := storage.NewLedger(db)
	defer reloaded.Close()
	if _, err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reloaded.Contains("https://example.com/u1") {
		t.Error("published URL missing from ledger after restart")
	}
}
