package prompts

import "fmt"

// slugTemplate asks for a short filename slug. The format verb is the
// conversation excerpt.
const slugTemplate = `Write a short English description of the conversation below,
3 to 5 words joined by hyphens. Output only the description.

Conversation:
%s

Description:`

// SlugPrompt returns the prompt that names a session summary file.
func SlugPrompt(excerpt string) string {
	return fmt.Sprintf(slugTemplate, excerpt)
}

// summaryTemplate asks for a structured markdown summary. The format
// verb is the conversation excerpt.
const summaryTemplate = `Write a structured summary of the conversation below.

Requirements:
1. Use Markdown
2. Include these parts:
   - Topic: one sentence
   - Key points: 3 to 5 bullets
   - Follow-ups: any tasks or to-dos that were mentioned
3. Keep it under 300 words

Conversation:
%s

Summary:`

// SummaryPrompt returns the prompt for a session summary.
func SummaryPrompt(excerpt string) string {
	return fmt.Sprintf(summaryTemplate, excerpt)
}
