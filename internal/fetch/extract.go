package fetch

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipElements are HTML elements whose content should be excluded.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true, // title is extracted separately
	atom.Nav:      true,
	atom.Aside:    true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Form:     true,
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// extractHTML parses HTML and returns the page title and its body
// rendered as markdown.
func extractHTML(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", stripTags(raw)
	}

	title := cleanInline(findTitle(doc))

	r := &mdRenderer{}
	r.render(doc)
	return title, cleanWhitespace(r.b.String())
}

// toMarkdown renders a page with its title as a top-level heading.
func toMarkdown(raw string) (string, string) {
	title, body := extractHTML(raw)
	if title != "" {
		body = strings.TrimSpace("# " + title + "\n\n" + body)
	}
	return title, body
}

// findTitle walks the DOM looking for a <title> element.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return getTextContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// getTextContent returns concatenated text of all children.
func getTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(getTextContent(c))
	}
	return b.String()
}

// mdRenderer writes a DOM subtree as markdown. list holds the
// enclosing ul/ol elements.
type mdRenderer struct {
	b    strings.Builder
	list []atom.Atom
}

func (r *mdRenderer) block() {
	s := r.b.String()
	switch {
	case s == "", strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		r.b.WriteString("\n")
	default:
		r.b.WriteString("\n\n")
	}
}

func (r *mdRenderer) newline() {
	if s := r.b.String(); s != "" && !strings.HasSuffix(s, "\n") {
		r.b.WriteString("\n")
	}
}

func (r *mdRenderer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.render(c)
	}
}

// inline renders n's children into a separate buffer and returns the
// collapsed text, for wrapping in link or emphasis markup.
func (r *mdRenderer) inline(n *html.Node) string {
	sub := &mdRenderer{}
	sub.children(n)
	return cleanInline(sub.b.String())
}

func (r *mdRenderer) render(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := collapseSpace(n.Data)
		if prev := r.b.String(); prev == "" || strings.HasSuffix(prev, " ") || strings.HasSuffix(prev, "\n") {
			text = strings.TrimLeft(text, " ")
		}
		r.b.WriteString(text)
		return
	case html.DocumentNode:
		r.children(n)
		return
	case html.ElementNode:
	default:
		return
	}

	if skipElements[n.DataAtom] {
		return
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		r.block()
		r.b.WriteString(strings.Repeat("#", level) + " " + r.inline(n))
		r.block()
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.Figure, atom.Figcaption, atom.Table, atom.Dl, atom.Details:
		r.block()
		r.children(n)
		r.block()
	case atom.Tr, atom.Dt, atom.Dd, atom.Summary:
		r.newline()
		r.children(n)
		r.newline()
	case atom.Td, atom.Th:
		r.children(n)
		r.b.WriteString(" ")
	case atom.Blockquote:
		r.block()
		for _, line := range strings.Split(r.inline(n), "\n") {
			r.b.WriteString("> " + line + "\n")
		}
		r.block()
	case atom.Pre:
		r.block()
		r.b.WriteString("```\n" + strings.Trim(getTextContent(n), "\n") + "\n```")
		r.block()
	case atom.Code:
		r.b.WriteString("`" + r.inline(n) + "`")
	case atom.Ul, atom.Ol:
		nested := len(r.list) > 0
		if nested {
			r.newline()
		} else {
			r.block()
		}
		r.list = append(r.list, n.DataAtom)
		r.children(n)
		r.list = r.list[:len(r.list)-1]
		if !nested {
			r.block()
		}
	case atom.Li:
		r.newline()
		if depth := len(r.list); depth > 1 {
			r.b.WriteString(strings.Repeat("  ", depth-1))
		}
		if len(r.list) > 0 && r.list[len(r.list)-1] == atom.Ol {
			r.b.WriteString(fmt.Sprintf("%d. ", listIndex(n)))
		} else {
			r.b.WriteString("- ")
		}
		r.children(n)
		r.newline()
	case atom.Br:
		r.b.WriteString("\n")
	case atom.Hr:
		r.block()
		r.b.WriteString("---")
		r.block()
	case atom.Strong, atom.B:
		if text := r.inline(n); text != "" {
			r.b.WriteString("**" + text + "**")
		}
	case atom.Em, atom.I:
		if text := r.inline(n); text != "" {
			r.b.WriteString("*" + text + "*")
		}
	case atom.A:
		text := r.inline(n)
		href := attr(n, "href")
		switch {
		case text == "":
		case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:"):
			r.b.WriteString(text)
		default:
			r.b.WriteString("[" + text + "](" + href + ")")
		}
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			r.b.WriteString("![" + alt + "](" + attr(n, "src") + ")")
		}
	default:
		r.children(n)
	}
}

// listIndex is the 1-based position of li among its element siblings.
func listIndex(li *html.Node) int {
	i := 1
	for s := li.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.DataAtom == atom.Li {
			i++
		}
	}
	return i
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// collapseSpace folds whitespace runs to one space, keeping a single
// leading or trailing space where the source had one.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s == "" {
			return ""
		}
		return " "
	}
	out := strings.Join(fields, " ")
	if strings.TrimLeft(s, " \t\r\n") != s {
		out = " " + out
	}
	if strings.TrimRight(s, " \t\r\n") != s {
		out += " "
	}
	return out
}

// cleanInline collapses all whitespace, including newlines, to single
// spaces.
func cleanInline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanWhitespace trims trailing spaces on each line and collapses
// runs of blank lines, leaving fenced code blocks untouched.
func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
		}
		if !inFence {
			lines[i] = strings.TrimRight(strings.TrimLeft(line, " \t"), " \t")
			if strings.HasPrefix(lines[i], "- ") || isOrderedItem(lines[i]) {
				// keep nested list indentation
				lines[i] = strings.TrimRight(line, " \t")
			}
		}
	}
	out := strings.Join(lines, "\n")
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(out, "\n\n"))
}

func isOrderedItem(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i > 0 && strings.HasPrefix(s[i:], ". ")
}

// stripTags is a fallback that removes HTML tags naively.
func stripTags(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.WriteString(tokenizer.Token().Data)
			b.WriteString(" ")
		}
	}
}
