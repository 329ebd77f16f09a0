package trends

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anne-chat/anne/internal/httpkit"
)

// FeedSource reads trending topics from an RSS 2.0 or Atom feed. Each
// entry title becomes one topic string.
type FeedSource struct {
	url  string
	http *http.Client
}

// NewFeedSource creates a feed-backed topic source.
func NewFeedSource(url string) *FeedSource {
	return &FeedSource{
		url:  url,
		http: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// Fetch retrieves and parses the feed, returning entry titles in feed
// order.
func (s *FeedSource) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20) // 1 MB limit

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	return parseFeedTitles(body)
}

// rssFeed is the XML structure for RSS 2.0 feeds.
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title string `xml:"title"`
}

// atomFeed is the XML structure for Atom feeds.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title string `xml:"title"`
}

// parseFeedTitles parses XML data as either an Atom or RSS feed and
// returns the entry titles. Atom is tried first.
func parseFeedTitles(data []byte) ([]string, error) {
	var atom atomFeed
	if err := xml.Unmarshal(data, &atom); err == nil && atom.XMLName.Local == "feed" {
		var titles []string
		for _, e := range atom.Entries {
			if t := strings.TrimSpace(e.Title); t != "" {
				titles = append(titles, t)
			}
		}
		return titles, nil
	}

	var rss rssFeed
	if err := xml.Unmarshal(data, &rss); err == nil && rss.XMLName.Local == "rss" {
		var titles []string
		for _, item := range rss.Channel.Items {
			if t := strings.TrimSpace(item.Title); t != "" {
				titles = append(titles, t)
			}
		}
		return titles, nil
	}

	return nil, fmt.Errorf("unrecognized feed format (expected RSS 2.0 or Atom)")
}
