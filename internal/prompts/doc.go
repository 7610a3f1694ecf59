// Package prompts contains the LLM prompt templates HelloClaw sends on
// its own behalf.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and can be checked by
// tests. Persona text the user edits lives in the workspace; this
// package holds the fixed instructions around it.
//
// Each prompt category gets its own file with an exported function that
// accepts the dynamic parts and returns the interpolated prompt.
package prompts
