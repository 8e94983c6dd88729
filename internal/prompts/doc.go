// Package prompts contains the LLM prompt templates used by Verity.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates are interpolated with the live tool catalog and verification
// rules, benefit from compile-time embedding, and can be validated by tests.
// Operators may still replace the agent system prompt with a file (see
// agent.system_prompt_file); that file goes through the same placeholder
// rendering as the built-in template.
//
// Convention: each prompt category gets its own file (agent.go,
// summary.go) with an exported function that accepts the dynamic parts and
// returns the fully interpolated prompt string.
package prompts
