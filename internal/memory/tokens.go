package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nugget/helloclaw/internal/llm"
)

// encoder is the BPE tokenizer used by EstimateTokens once LoadEncoding
// succeeds. Until then the rune heuristic applies.
var encoder atomic.Pointer[tiktoken.Tiktoken]

// LoadEncoding installs the named tiktoken encoding (for example
// "cl100k_base") for token estimates. The first load of an encoding
// may fetch its BPE ranks over the network; callers that cannot wait
// should run it in a goroutine.
func LoadEncoding(name string) error {
	tk, err := tiktoken.GetEncoding(name)
	if err != nil {
		return fmt.Errorf("load encoding %s: %w", name, err)
	}
	encoder.Store(tk)
	return nil
}

// EstimateTokens approximates the token count of s. With an encoding
// loaded it counts BPE tokens; otherwise ASCII text counts four bytes
// per token, rounding up, and every other rune counts as two tokens so
// CJK text is over- rather than under-estimated.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	if tk := encoder.Load(); tk != nil {
		return len(tk.Encode(s, nil, nil))
	}
	return heuristicTokens(s)
}

func heuristicTokens(s string) int {
	ascii, other := 0, 0
	for _, r := range s {
		if r < 0x80 {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+3)/4 + other*2
}

// EstimateContext estimates the tokens a completion request would use
// for the system prompt plus history, counting message text and tool
// call names and arguments.
func EstimateContext(system string, history []llm.Message) int {
	n := EstimateTokens(system)
	for _, m := range history {
		n += EstimateTokens(m.Content)
		for _, tc := range m.ToolCalls {
			n += EstimateTokens(tc.Function.Name) + EstimateTokens(tc.Function.Arguments)
		}
	}
	return n
}
