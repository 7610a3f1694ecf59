package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

// DuplicateThreshold is the keyword overlap above which new content is
// considered already remembered.
const DuplicateThreshold = 0.7

var (
	cjkWordRe     = regexp.MustCompile(`[\p{Han}]{2,}`)
	englishWordRe = regexp.MustCompile(`[a-zA-Z]{3,}`)
	bulletRe      = regexp.MustCompile(`^\s*-\s*(?:\[[a-z]+\]\s*)?`)
)

// stopwords are filler terms that never count as keywords. Capture
// trigger words are included so "I prefer X" and "prefer X" compare
// on X alone.
var stopwords = map[string]bool{
	"的": true, "了": true, "是": true, "在": true, "我": true, "有": true, "和": true,
	"一个": true, "没有": true, "自己": true, "什么": true, "这个": true, "那个": true,
	"可以": true, "就是": true, "这样": true, "然后": true, "还是": true, "但是": true,
	"因为": true, "所以": true, "如果": true, "虽然": true, "可能": true, "需要": true,
	"应该": true, "或者": true, "而且": true, "已经": true, "还有": true, "一直": true,
	"的话": true, "一下": true, "一些": true, "一点": true, "东西": true, "知道": true,
	"觉得": true, "喜欢": true, "偏好": true, "用户": true, "记住": true, "记下": true,
	"决定": true, "选定": true,
}

// Keywords extracts the comparison keywords from text: runs of two or
// more Han characters that are not stopwords, plus English words of
// three or more letters, lowercased.
func Keywords(text string) map[string]bool {
	kw := make(map[string]bool)
	for _, w := range cjkWordRe.FindAllString(text, -1) {
		if !stopwords[w] {
			kw[w] = true
		}
	}
	for _, w := range englishWordRe.FindAllString(text, -1) {
		kw[strings.ToLower(w)] = true
	}
	return kw
}

// Overlap returns the fraction of keywords that appear in text.
func Overlap(keywords map[string]bool, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// fingerprint hashes the normalized form of a memory line: list marker
// and category tag stripped, whitespace collapsed, lowercased.
func fingerprint(s string) [32]byte {
	s = bulletRe.ReplaceAllString(s, "")
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return blake3.Sum256([]byte(s))
}

// IsDuplicate reports whether content is already recorded in today's
// note, MEMORY.md or the last two days of notes. An exact line match
// (after normalization) is checked first, then keyword overlap against
// threshold.
func (w *Workspace) IsDuplicate(content string, threshold float64) bool {
	texts := w.dedupeCorpus()
	if len(texts) == 0 {
		return false
	}

	want := fingerprint(content)
	for _, text := range texts {
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if fingerprint(line) == want {
				return true
			}
		}
	}

	keywords := Keywords(content)
	if len(keywords) == 0 {
		return false
	}
	for _, text := range texts {
		if Overlap(keywords, text) >= threshold {
			return true
		}
	}
	return false
}

// dedupeCorpus returns the texts new memories are compared against.
// Today's note is covered by RecentDays.
func (w *Workspace) dedupeCorpus() []string {
	var texts []string
	if lt, err := w.LoadConfig(ConfigMemory); err == nil && lt != "" {
		texts = append(texts, lt)
	}
	for _, name := range w.RecentDays(2) {
		data, err := os.ReadFile(filepath.Join(w.MemoryDir(), name))
		if err != nil {
			continue
		}
		texts = append(texts, string(data))
	}
	return texts
}
