package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractHTML(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
<nav>Navigation stuff</nav>
<script>var x = 1;</script>
<style>.foo { color: red; }</style>
<main>
<h1>Hello World</h1>
<p>This is a test paragraph with <strong>bold text</strong>.</p>
<p>Second paragraph.</p>
</main>
<footer>Footer stuff</footer>
</body>
</html>`

	title, content := extractHTML(html)

	if title != "Test Page" {
		t.Errorf("expected title 'Test Page', got %q", title)
	}
	want := "# Hello World\n\nThis is a test paragraph with **bold text**.\n\nSecond paragraph."
	if content != want {
		t.Errorf("content =\n%q\nwant\n%q", content, want)
	}
	for _, absent := range []string{"var x = 1", "Navigation stuff", "Footer stuff", "color: red"} {
		if strings.Contains(content, absent) {
			t.Errorf("content should not contain %q", absent)
		}
	}
}

func TestMarkdownElements(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"link", `<p>See <a href="https://go.dev">the docs</a> now</p>`, "See [the docs](https://go.dev) now"},
		{"anchor link is text", `<p><a href="#top">top</a></p>`, "top"},
		{"emphasis", `<p><em>soft</em> and <b>loud</b></p>`, "*soft* and **loud**"},
		{"inline code", `<p>run <code>go test</code></p>`, "run `go test`"},
		{"code block", "<pre><code>a := 1\n  b := 2\n</code></pre>", "```\na := 1\n  b := 2\n```"},
		{"unordered list", `<ul><li>one</li><li>two</li></ul>`, "- one\n- two"},
		{"ordered list", `<ol><li>first</li><li>second</li></ol>`, "1. first\n2. second"},
		{"nested list", `<ul><li>a<ul><li>b</li></ul></li></ul>`, "- a\n  - b"},
		{"line break", `<p>one<br>two</p>`, "one\ntwo"},
		{"heading level", `<h3>Deep</h3><p>x</p>`, "### Deep\n\nx"},
		{"entities", `<p>a &amp; b &lt;c&gt;</p>`, "a & b <c>"},
		{"aside skipped", `<aside>ads</aside><p>body</p>`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := extractHTML("<html><body>" + tt.html + "</body></html>")
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "HelloClaw/") {
			t.Errorf("expected HelloClaw User-Agent, got %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello from test server</p></body></html>`))
	}))
	defer ts.Close()

	result, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Test" {
		t.Errorf("expected title 'Test', got %q", result.Title)
	}
	if result.Content != "# Test\n\nHello from test server" {
		t.Errorf("content = %q", result.Content)
	}
	if result.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
}

func TestFetchPlainText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Just plain text content"))
	}))
	defer ts.Close()

	result, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Content != "Just plain text content" {
		t.Errorf("expected plain text content, got %q", result.Content)
	}
}

func TestFetchTruncation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer ts.Close()

	result, err := New(WithMaxChars(100)).Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !result.Truncated || result.Length != 1000 {
		t.Errorf("truncated = %v, length = %d", result.Truncated, result.Length)
	}
	want := strings.Repeat("x", 100) + "\n\n... (content truncated, 1000 characters total)"
	if result.Content != want {
		t.Errorf("content = %q", result.Content)
	}
}

func TestFetchErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		}
	}))
	defer ts.Close()
	f := New()
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "", 0); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("empty url err = %v", err)
	}
	if _, err := f.Fetch(ctx, "ftp://example.com/file", 0); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("ftp url err = %v", err)
	}

	_, err := f.Fetch(ctx, ts.URL+"/missing", 0)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("404 err = %v", err)
	}

	if _, err := f.Fetch(ctx, ts.URL+"/image", 0); !errors.Is(err, ErrUnsupportedContent) {
		t.Errorf("image err = %v", err)
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "Héllo wörld café"
	if got := truncateUTF8(s, 5); got != "Héllo" {
		t.Errorf("truncateUTF8 = %q", got)
	}
}
