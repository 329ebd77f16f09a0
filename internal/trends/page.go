package trends

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/anne-chat/anne/internal/httpkit"
)

// PageSource extracts trending topics from an HTML page for origins
// that publish no feed. Topic candidates are the text content of list
// items; boilerplate elements are skipped.
type PageSource struct {
	url  string
	http *http.Client
}

// NewPageSource creates an HTML-page-backed topic source.
func NewPageSource(url string) *PageSource {
	return &PageSource{
		url:  url,
		http: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// skipElements are HTML elements whose content is never a topic.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
}

// maxTopicLen drops list items that are clearly prose, not topics.
const maxTopicLen = 80

// Fetch retrieves the page and extracts topic strings.
func (s *PageSource) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}

	return extractTopics(string(body))
}

// extractTopics parses HTML and returns the deduplicated text of list
// items, document order preserved.
func extractTopics(raw string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var topics []string
	seen := make(map[string]bool)
	collectTopics(doc, &topics, seen)
	return topics, nil
}

func collectTopics(n *html.Node, topics *[]string, seen map[string]bool) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Li {
			text := cleanWhitespace(textContent(n))
			if text != "" && len(text) <= maxTopicLen && !seen[text] {
				seen[text] = true
				*topics = append(*topics, text)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTopics(c, topics, seen)
	}
}

// textContent returns concatenated text of all children.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// cleanWhitespace collapses runs of whitespace to single spaces.
func cleanWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
