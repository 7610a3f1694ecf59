package memory

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nugget/helloclaw/internal/workspace"
)

// trigger maps a pattern to the category of memory it indicates.
// Triggers are tried in order; the first match wins.
type trigger struct {
	re       *regexp.Regexp
	category string
}

var triggers = []trigger{
	{regexp.MustCompile(`(?i)记住|记下|remember|keep in mind`), workspace.CategoryFact},
	{regexp.MustCompile(`(?i)我喜欢|我偏好|prefer|like|love|hate|讨厌|不喜欢`), workspace.CategoryPreference},
	{regexp.MustCompile(`(?i)决定了|decision|decided|用这个|选定|确定用|就用`), workspace.CategoryDecision},
	{regexp.MustCompile(`\+\d{10,}|\d{3,4}[-\s]?\d{7,8}`), workspace.CategoryEntity},
	{regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`), workspace.CategoryEntity},
	{regexp.MustCompile(`(?i)我的[\p{L}\p{N}_]+是|is my|my (?:name|phone|email|address) is|我的电话|我的邮箱|我的地址|我的名字`), workspace.CategoryEntity},
	{regexp.MustCompile(`(?i)事实上|实际上|the fact is|it turns out`), workspace.CategoryFact},
}

var (
	// Sentence boundaries: CJK terminators always, ASCII terminators
	// only before whitespace or end of text so "a@b.com" and "3.5"
	// stay whole.
	sentenceSplitRe = regexp.MustCompile(`[。！？]+|[.!?]+(?:\s+|$)|\n+`)
	speakerPrefixRe = regexp.MustCompile(`^(?:用户|我|你|assistant|user)[：:]\s*`)
)

const minSentenceRunes = 5

// Captured is one memory extracted from text.
type Captured struct {
	Content   string `json:"content"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"` // HH:MM
}

// Recorder is where captured memories are checked and stored.
// [workspace.Workspace] implements it.
type Recorder interface {
	IsDuplicate(content string, threshold float64) bool
	AppendClassified(content, category string) error
}

// Capturer scans user messages for statements worth remembering:
// explicit "remember this" requests, preferences, decisions, and
// contact details.
type Capturer struct {
	rec    Recorder
	logger *slog.Logger
	now    func() time.Time
}

// NewCapturer returns a Capturer that dedupes against and writes to rec.
func NewCapturer(rec Recorder, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{rec: rec, logger: logger.With("component", "capture"), now: time.Now}
}

// Capture returns the memories found in text without storing them.
// Sentences already present in memory are skipped.
func (c *Capturer) Capture(text string) []Captured {
	var out []Captured
	seen := make(map[string]bool)

	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(sentence) < minSentenceRunes {
			continue
		}
		category := matchTrigger(sentence)
		if category == "" {
			continue
		}
		content := extract(sentence, category)
		if content == "" {
			continue
		}
		key := strings.ToLower(content)
		if seen[key] {
			continue
		}
		if c.rec != nil && c.rec.IsDuplicate(content, workspace.DuplicateThreshold) {
			c.logger.Debug("skipping duplicate memory", "content", content)
			continue
		}
		seen[key] = true
		out = append(out, Captured{
			Content:   content,
			Category:  category,
			Timestamp: c.now().Format("15:04"),
		})
	}
	return out
}

// CaptureAndStore captures memories from text and appends each to
// today's note. It returns the memories that were stored; a failed
// write is logged and skipped.
func (c *Capturer) CaptureAndStore(text string) ([]Captured, error) {
	if c.rec == nil {
		return nil, fmt.Errorf("capture: no recorder configured")
	}
	var stored []Captured
	for _, m := range c.Capture(text) {
		if err := c.rec.AppendClassified(m.Content, m.Category); err != nil {
			c.logger.Warn("failed to store captured memory", "category", m.Category, "error", err)
			continue
		}
		stored = append(stored, m)
	}
	return stored, nil
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func matchTrigger(sentence string) string {
	for _, t := range triggers {
		if t.re.MatchString(sentence) {
			return t.category
		}
	}
	return ""
}

// extract cleans a sentence into memory text. Preferences are phrased
// about the user so they read correctly out of context.
func extract(sentence, category string) string {
	content := strings.TrimSpace(sentence)
	content = speakerPrefixRe.ReplaceAllString(content, "")
	content = strings.Trim(content, "\"'“”‘’")
	if utf8.RuneCountInString(content) < minSentenceRunes {
		return ""
	}

	if category == workspace.CategoryPreference {
		switch {
		case strings.HasPrefix(content, "用户"), strings.HasPrefix(content, "I "), strings.HasPrefix(content, "User "):
		case startsWithHan(content):
			content = "用户" + content
		default:
			content = "User: " + content
		}
	}
	return content
}

func startsWithHan(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.Is(unicode.Han, r)
}
