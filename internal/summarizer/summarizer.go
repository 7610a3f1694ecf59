// Package summarizer writes a markdown summary of a finished session
// into the workspace as memory/YYYY-MM-DD-slug.md, so later
// conversations can search what earlier ones covered.
//
// With a model configured the slug and summary are generated by the
// model; without one, or when a call fails, they fall back to keyword
// extraction and a plain excerpt.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nugget/helloclaw/internal/config"
	"github.com/nugget/helloclaw/internal/llm"
	"github.com/nugget/helloclaw/internal/prompts"
	"github.com/nugget/helloclaw/internal/session"
	"github.com/nugget/helloclaw/internal/usage"
	"github.com/nugget/helloclaw/internal/workspace"
)

// ErrNothingToSummarize is returned for a session with no user or
// assistant text.
var ErrNothingToSummarize = errors.New("nothing to summarize")

// Config controls summary generation.
type Config struct {
	// Model is the model used for slugs and summaries.
	Model string

	// LastRounds is how many recent rounds go into the excerpt.
	// Default: 10.
	LastRounds int

	// Timeout bounds each model call. Default: 60 seconds.
	Timeout time.Duration
}

// DefaultConfig returns the default summarizer settings.
func DefaultConfig() Config {
	return Config{
		LastRounds: 10,
		Timeout:    60 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.LastRounds <= 0 {
		c.LastRounds = d.LastRounds
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}

const (
	// maxMessageChars caps each message in the excerpt.
	maxMessageChars = 500
	// slugExcerptChars and summaryExcerptChars cap the excerpt sent
	// with each prompt.
	slugExcerptChars    = 1000
	summaryExcerptChars = 2000
	maxSlugLen          = 50
	defaultSlug         = "conversation"
)

// Recorder persists usage of summary calls. [*usage.Store] implements
// it.
type Recorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Summarizer generates and saves session summaries.
type Summarizer struct {
	ws     *workspace.Workspace
	client llm.Client
	logger *slog.Logger
	config Config

	usage       Recorder
	pricing     map[string]config.PricingEntry
	providerFor func(model string) string

	now func() time.Time
}

// New creates a summarizer. client may be nil, in which case summaries
// are built without a model.
func New(ws *workspace.Workspace, client llm.Client, logger *slog.Logger, cfg Config) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Summarizer{
		ws:     ws,
		client: client,
		logger: logger.With("component", "summarizer"),
		config: cfg,
		now:    time.Now,
	}
}

// SetUsageRecorder records summary calls in the usage ledger.
func (s *Summarizer) SetUsageRecorder(rec Recorder, pricing map[string]config.PricingEntry, providerFor func(model string) string) {
	s.usage = rec
	s.pricing = pricing
	s.providerFor = providerFor
}

// Summarize writes a summary of msgs and returns the saved file name.
func (s *Summarizer) Summarize(ctx context.Context, sessionID string, msgs []session.Message) (string, error) {
	excerpt := Excerpt(msgs, s.config.LastRounds)
	if excerpt == "" {
		return "", ErrNothingToSummarize
	}

	slug := s.slug(ctx, sessionID, excerpt)
	body := s.summary(ctx, sessionID, excerpt)

	filename := s.ws.SummaryFilename(slug)
	if err := s.ws.SaveSummary(filename, body); err != nil {
		return "", err
	}

	s.logger.Info("session summarized",
		"session", sessionID,
		"file", filename,
		"model", s.config.Model,
	)
	return filename, nil
}

func (s *Summarizer) slug(ctx context.Context, sessionID, excerpt string) string {
	if s.client == nil {
		return SimpleSlug(excerpt)
	}
	text, err := s.complete(ctx, sessionID, prompts.SlugPrompt(clip(excerpt, slugExcerptChars)), 50)
	if err != nil {
		s.logger.Warn("slug generation failed, using keywords", "session", sessionID, "error", err)
		return SimpleSlug(excerpt)
	}
	return CleanSlug(text)
}

func (s *Summarizer) summary(ctx context.Context, sessionID, excerpt string) string {
	if s.client == nil {
		return s.simpleSummary(excerpt)
	}
	text, err := s.complete(ctx, sessionID, prompts.SummaryPrompt(clip(excerpt, summaryExcerptChars)), 500)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("summary generation failed, saving excerpt", "session", sessionID, "error", err)
		return s.simpleSummary(excerpt)
	}
	return s.header() + stripFences(text) + "\n"
}

func (s *Summarizer) complete(ctx context.Context, sessionID, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.client.Chat(ctx, &llm.Request{
		Model:       s.config.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	s.record(ctx, sessionID, resp)
	return strings.TrimSpace(resp.Message.Content), nil
}

func (s *Summarizer) record(ctx context.Context, sessionID string, resp *llm.ChatResponse) {
	if s.usage == nil {
		return
	}
	provider := ""
	if s.providerFor != nil {
		provider = s.providerFor(s.config.Model)
	}
	rec := usage.Record{
		SessionID:    sessionID,
		Kind:         usage.KindSummary,
		Model:        s.config.Model,
		Provider:     provider,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      usage.ComputeCost(s.config.Model, resp.InputTokens, resp.OutputTokens, s.pricing),
	}
	if err := s.usage.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record summary usage", "error", err)
	}
}

func (s *Summarizer) header() string {
	return fmt.Sprintf("---\ndate: %s\ntype: session-summary\n---\n\n", s.now().Format("2006-01-02 15:04"))
}

func (s *Summarizer) simpleSummary(excerpt string) string {
	return s.header() + "# Session summary\n\n## Excerpt\n\n" + clip(excerpt, maxMessageChars) + "\n"
}

// Excerpt renders the last n rounds of user and assistant text, one
// "[ROLE]: content" line per message, each message clipped.
func Excerpt(msgs []session.Message, n int) string {
	var lines []string
	for _, m := range session.Conversation(msgs) {
		lines = append(lines, fmt.Sprintf("[%s]: %s", strings.ToUpper(m.Role), clip(m.Content, maxMessageChars)))
	}
	if keep := n * 2; n > 0 && len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, "\n")
}

var (
	slugInvalidRe = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashRe    = regexp.MustCompile(`-+`)
	wordRe        = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
)

// CleanSlug turns model output into a file-safe slug.
func CleanSlug(raw string) string {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", "-"))
	s = slugInvalidRe.ReplaceAllString(s, "")
	s = strings.Trim(slugDashRe.ReplaceAllString(s, "-"), "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return defaultSlug
	}
	return s
}

// SimpleSlug builds a slug from the three most frequent non-stopword
// English words of the excerpt. Ties keep first appearance order.
func SimpleSlug(excerpt string) string {
	counts := make(map[string]int)
	var order []string
	for _, w := range wordRe.FindAllString(strings.ToLower(excerpt), -1) {
		if stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > 3 {
		order = order[:3]
	}
	if len(order) == 0 {
		return defaultSlug
	}
	return strings.Join(order, "-")
}

// stripFences removes a markdown code fence wrapped around the whole
// reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// stopwords are skipped by SimpleSlug. The excerpt's role tags are
// included so they never become a slug.
var stopwords = map[string]bool{
	"user": true, "assistant": true,
	"the": true, "and": true, "are": true, "was": true, "were": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "must": true, "shall": true,
	"can": true, "need": true, "used": true, "for": true, "with": true,
	"from": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true,
	"between": true, "under": true, "again": true, "further": true,
	"then": true, "once": true, "here": true, "there": true, "when": true,
	"where": true, "why": true, "how": true, "all": true, "each": true,
	"few": true, "more": true, "most": true, "other": true, "some": true,
	"such": true, "nor": true, "not": true, "only": true, "own": true,
	"same": true, "than": true, "too": true, "very": true, "just": true,
	"but": true, "because": true, "until": true, "while": true,
	"about": true, "what": true, "which": true, "who": true, "whom": true,
	"this": true, "that": true, "these": true, "those": true, "myself": true,
	"our": true, "ours": true, "ourselves": true, "you": true, "your": true,
	"yours": true, "yourself": true, "yourselves": true, "him": true,
	"his": true, "himself": true, "she": true, "her": true, "hers": true,
	"herself": true, "its": true, "itself": true, "they": true, "them": true,
	"their": true, "theirs": true, "themselves": true,
}
