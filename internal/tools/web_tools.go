package tools

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/nugget/helloclaw/internal/fetch"
	"github.com/nugget/helloclaw/internal/search"
)

// defaultSearchCount is how many web_search results are returned when
// the model does not ask for a count.
const defaultSearchCount = 5

// SetFetcher registers web_fetch.
func (r *Registry) SetFetcher(f *fetch.Fetcher) {
	if f == nil {
		return
	}
	r.Register(&Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its main content as markdown. Use after web_search to read a result, or when the user gives a URL.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The http:// or https:// URL to fetch",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum characters to return (default 50000)",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			rawURL := stringArg(args, "url")
			if rawURL == "" {
				return "", Errorf(CodeInvalidInput, "url is required")
			}
			res, err := f.Fetch(ctx, rawURL, intArg(args, "max_chars", 0))
			if err != nil {
				return "", fetchError(err)
			}
			return res.Content, nil
		},
	})
}

// fetchError maps fetch failures onto result codes.
func fetchError(err error) error {
	var se *fetch.StatusError
	var ne net.Error
	var ue *url.Error
	switch {
	case errors.Is(err, fetch.ErrInvalidURL):
		return Errorf(CodeInvalidURL, "%v", err)
	case errors.Is(err, fetch.ErrUnsupportedContent):
		return Errorf(CodeUnsupportedContent, "%v", err)
	case errors.As(err, &se):
		return Errorf(CodeHTTPError, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Errorf(CodeTimeout, "%v", err)
	case errors.As(err, &ne), errors.As(err, &ue):
		return Errorf(CodeNetworkError, "network error: %v", err)
	default:
		return Errorf(CodeFetchError, "fetch failed: %v", err)
	}
}

// SetSearch registers web_search. The tool is offered even without a
// configured provider so the model learns why it cannot search.
func (r *Registry) SetSearch(mgr *search.Manager) {
	if mgr == nil {
		return
	}
	r.Register(&Tool{
		Name:        "web_search",
		Description: "Search the web. Returns titles, URLs and snippets; use web_fetch to read a page.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Number of results (1-10, default 5)",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "ISO 639-1 language code for results (e.g., 'en', 'zh')",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query := stringArg(args, "query")
			if query == "" {
				return "", Errorf(CodeInvalidInput, "query is required")
			}
			if !mgr.Configured() {
				return "", Errorf(CodeMissingAPIKey, "no search provider configured; set BRAVE_API_KEY or tools.search.searxng.url")
			}
			count := min(max(intArg(args, "count", defaultSearchCount), 1), 10)
			results, err := mgr.Search(ctx, query, search.Options{
				Count:    count,
				Language: stringArg(args, "language"),
			})
			if err != nil {
				return "", searchError(err)
			}
			return search.FormatResults(query, results), nil
		},
	})
}

func searchError(err error) error {
	var se *search.StatusError
	var ne net.Error
	switch {
	case errors.Is(err, search.ErrNotConfigured):
		return Errorf(CodeMissingAPIKey, "%v", err)
	case errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized:
		return Errorf(CodeAuthError, "search API key is invalid or expired")
	case errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests:
		return Errorf(CodeRateLimit, "search rate limit exceeded, try again later")
	case errors.As(err, &se):
		return Errorf(CodeHTTPError, "%v", err)
	case errors.As(err, &ne):
		return Errorf(CodeNetworkError, "network error: %v", err)
	default:
		return Errorf(CodeSearchError, "search failed: %v", err)
	}
}
