package workspace

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const previewLen = 160

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func md() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

// Preview flattens markdown to plain text and truncates it to at most n
// runes. Headings are skipped so a preview of a daily note starts with
// its first entry rather than the date.
func Preview(src string, n int) string {
	source := []byte(src)
	doc := md().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch node := node.(type) {
		case *ast.Heading:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeSpan:
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					b.Write(t.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	out := strings.Join(strings.Fields(b.String()), " ")
	r := []rune(out)
	if n > 0 && len(r) > n {
		return string(r[:n]) + "…"
	}
	return out
}

// RenderHTML converts markdown to HTML.
func RenderHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md().Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
