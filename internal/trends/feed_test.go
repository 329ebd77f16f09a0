package trends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Trending</title>
    <item><title>Topic One</title></item>
    <item><title>Topic Two</title></item>
    <item><title>  </title></item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Trending</title>
  <entry><title>Alpha</title></entry>
  <entry><title>Beta</title></entry>
</feed>`

func TestParseFeedTitles_RSS(t *testing.T) {
	titles, err := parseFeedTitles([]byte(sampleRSS))
	if err != nil {
		t.Fatalf("parseFeedTitles error: %v", err)
	}
	if len(titles) != 2 {
		t.Fatalf("got %d titles, want 2 (blank title dropped)", len(titles))
	}
	if titles[0] != "Topic One" || titles[1] != "Topic Two" {
		t.Errorf("titles = %v", titles)
	}
}

func TestParseFeedTitles_Atom(t *testing.T) {
	titles, err := parseFeedTitles([]byte(sampleAtom))
	if err != nil {
		t.Fatalf("parseFeedTitles error: %v", err)
	}
	if len(titles) != 2 || titles[0] != "Alpha" {
		t.Errorf("titles = %v, want [Alpha Beta]", titles)
	}
}

func TestParseFeedTitles_Garbage(t *testing.T) {
	_, err := parseFeedTitles([]byte("<html>not a feed</html>"))
	if err == nil {
		t.Error("expected error for non-feed input")
	}
}

func TestFeedSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	src := NewFeedSource(srv.URL)
	titles, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(titles) != 2 {
		t.Errorf("Fetch() = %v, want 2 titles", titles)
	}
}

func TestFeedSource_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewFeedSource(srv.URL)
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("expected error for HTTP 503")
	}
}

func TestExtractTopics(t *testing.T) {
	page := `<html><head><title>x</title><script>junk()</script></head>
	<body>
	  <nav><ul><li>Home</li></ul></nav>
	  <main><ol>
	    <li>Solar  eclipse</li>
	    <li>Solar  eclipse</li>
	    <li>Marathon results</li>
	  </ol></main>
	</body></html>`

	topics, err := extractTopics(page)
	if err != nil {
		t.Fatalf("extractTopics error: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("topics = %v, want 2 (nav skipped, duplicate collapsed)", topics)
	}
	if topics[0] != "Solar eclipse" {
		t.Errorf("topics[0] = %q, want whitespace collapsed %q", topics[0], "Solar eclipse")
	}
	if topics[1] != "Marathon results" {
		t.Errorf("topics[1] = %q", topics[1])
	}
}
