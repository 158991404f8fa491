package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const listingJSON = `{
  "kind": "Listing",
  "data": {
    "children": [
      {"kind": "t3", "data": {"id": "s1", "title": "Weekly discussion", "url": "https://www.reddit.com/r/UpliftingNews/comments/s1/", "permalink": "/r/UpliftingNews/comments/s1/", "stickied": true, "is_self": true}},
      {"kind": "t3", "data": {"id": "a1", "title": "Volunteers rebuild park", "url": "https://news.example/park", "permalink": "/r/UpliftingNews/comments/a1/", "stickied": false, "is_self": false}},
      {"kind": "t3", "data": {"id": "a2", "title": "Ask: what made you smile?", "url": "https://www.reddit.com/r/UpliftingNews/comments/a2/", "permalink": "/r/UpliftingNews/comments/a2/", "stickied": false, "is_self": true}},
      {"kind": "t3", "data": {"id": "a3", "title": "Dog rescued from flood", "url": "https://news.example/dog", "permalink": "/r/UpliftingNews/comments/a3/", "stickied": false, "is_self": false}},
      {"kind": "t3", "data": {"id": "a4", "title": "Town plants 10,000 trees", "url": "https://news.example/trees", "permalink": "/r/UpliftingNews/comments/a4/", "stickied": false, "is_self": false}}
    ]
  }
}`

func TestRedditFetchBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/UpliftingNews/hot.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}
		if got := r.Header.Get("User-Agent"); got != "TestBot" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(listingJSON))
	}))
	defer server.Close()

	client := NewReddit(WithBaseURL(server.URL), WithUserAgent("TestBot"), WithTimeout(5*time.Second))

	got, err := client.FetchBatch(context.Background(), "UpliftingNews", 20)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}

	want := []string{"https://news.example/park", "https://news.example/dog", "https://news.example/trees"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, u := range want {
		if got[i].URL != u {
			t.Errorf("candidates[%d].URL = %q, want %q", i, got[i].URL, u)
		}
	}
	if got[0].Title != "Volunteers rebuild park" {
		t.Errorf("title = %q", got[0].Title)
	}
	if got[0].Source != "https://www.reddit.com/r/UpliftingNews/comments/a1/" {
		t.Errorf("source = %q", got[0].Source)
	}
}

func TestRedditFetchBatchCapsAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingJSON))
	}))
	defer server.Close()

	client := NewReddit(WithBaseURL(server.URL))

	got, err := client.FetchBatch(context.Background(), "UpliftingNews", 2)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d candidates, want 2", len(got))
	}
}

func TestRedditFetchBatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"too many requests", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewReddit(WithBaseURL(server.URL))
			if _, err := client.FetchBatch(context.Background(), "UpliftingNews", 20); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRedditOAuth(t *testing.T) {
	var tokenCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			atomic.AddInt32(&tokenCalls, 1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "id" || pass != "secret" {
				t.Errorf("basic auth = %q/%q", user, pass)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
				t.Errorf("grant_type = %q", got)
			}
			w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":86400}`))
		case "/r/UpliftingNews/hot":
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q", got)
			}
			w.Write([]byte(listingJSON))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewReddit(WithOAuth("id", "secret", server.URL, server.URL+"/api/v1/access_token"))

	for i := 0; i < 2; i++ {
		got, err := client.FetchBatch(context.Background(), "UpliftingNews", 20)
		if err != nil {
			t.Fatalf("FetchBatch failed: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("got %d candidates, want 3", len(got))
		}
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 1 {
		t.Errorf("token fetched %d times, want 1 (cached)", n)
	}
}

func TestRedditOAuthTokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewReddit(WithOAuth("id", "wrong", server.URL, server.URL+"/api/v1/access_token"))
	if _, err := client.FetchBatch(context.Background(), "UpliftingNews", 20); err == nil {
		t.Error("expected error")
	}
}

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>UpliftingNews</title>
  <entry>
    <title>Volunteers rebuild park</title>
    <link href="https://www.reddit.com/r/UpliftingNews/comments/a1/"/>
    <content type="html">&lt;table&gt;&lt;tr&gt;&lt;td&gt;submitted by u/x &lt;br/&gt; &lt;span&gt;&lt;a href=&quot;https://news.example/park&quot;&gt;[link]&lt;/a&gt;&lt;/span&gt; &lt;span&gt;&lt;a href=&quot;https://www.reddit.com/r/UpliftingNews/comments/a1/&quot;&gt;[comments]&lt;/a&gt;&lt;/span&gt;&lt;/td&gt;&lt;/tr&gt;&lt;/table&gt;</content>
  </entry>
  <entry>
    <title>No link anchor here</title>
    <link href="https://www.reddit.com/r/UpliftingNews/comments/a2/"/>
    <content type="html">&lt;p&gt;just text&lt;/p&gt;</content>
  </entry>
  <entry>
    <title>Dog rescued from flood</title>
    <link href="https://www.reddit.com/r/UpliftingNews/comments/a3/"/>
    <content type="html">&lt;a href=&quot;https://news.example/dog&quot;&gt; [link] &lt;/a&gt;</content>
  </entry>
</feed>`

func TestRSSFetchBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/UpliftingNews/hot/.rss" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "TestBot" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	rss := NewRSS(server.URL, "TestBot", 5*time.Second)

	got, err := rss.FetchBatch(context.Background(), "UpliftingNews", 20)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}

	want := []string{
		"https://news.example/park",
		"https://www.reddit.com/r/UpliftingNews/comments/a2/",
		"https://news.example/dog",
	}
	for i, u := range want {
		if got[i].URL != u {
			t.Errorf("candidates[%d].URL = %q, want %q", i, got[i].URL, u)
		}
	}
	if got[0].Source != "https://www.reddit.com/r/UpliftingNews/comments/a1/" {
		t.Errorf("source = %q", got[0].Source)
	}
}

func TestRSSFetchBatchLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	got, err := NewRSS(server.URL, "", 0).FetchBatch(context.Background(), "UpliftingNews", 1)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d candidates, want 1", len(got))
	}
}

func TestRSSFetchBatchErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") == "1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("this is not a feed"))
	}))
	defer server.Close()

	rss := NewRSS(server.URL, "", 0)
	if _, err := rss.FetchBatch(context.Background(), "UpliftingNews", 1); err == nil {
		t.Error("expected error for non-200")
	}
	if _, err := rss.FetchBatch(context.Background(), "UpliftingNews", 5); err == nil {
		t.Error("expected error for unparseable body")
	}
}

func TestArticleLink(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"link anchor", `<a href="https://a.example">[link]</a><a href="https://c.example">[comments]</a>`, "https://a.example"},
		{"comments only", `<a href="https://c.example">[comments]</a>`, ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := articleLink(tt.body); got != tt.want {
				t.Errorf("articleLink = %q, want %q", got, tt.want)
			}
		})
	}
}
