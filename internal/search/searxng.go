package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/helloclaw/internal/httpkit"
)

// SearXNG searches through a self-hosted SearXNG instance. The instance
// must have the json output format enabled.
type SearXNG struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNG creates a SearXNG provider rooted at baseURL
// (e.g. "http://localhost:8888").
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (s *SearXNG) Name() string { return "searxng" }

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns up to opts.Count results. SearXNG merges several
// engines, so the same URL can appear more than once; only the first
// occurrence is kept.
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.Count
	if count <= 0 {
		count = defaultCount
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
	}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	var sr searxngResponse
	if err := getJSON(ctx, s.httpClient, s.Name(), s.baseURL+"/search?"+params.Encode(), nil, &sr); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(sr.Results))
	results := make([]Result, 0, count)
	for _, r := range sr.Results {
		if len(results) == count {
			break
		}
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: strings.TrimSpace(r.Content)})
	}
	return results, nil
}
