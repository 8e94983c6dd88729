package prompts

import (
	"strings"
	"testing"
)

func TestAgentSystemPrompt(t *testing.T) {
	got := AgentSystemPrompt("- calculator: [expr] - math\n", "VERIFICATION GUIDELINES:\n")

	for _, want := range []string{
		"Thought: [your reasoning about what to do next]",
		"Action: [tool_name: tool_input]",
		"Final Answer: [your final answer to the question]",
		"- calculator: [expr] - math",
		"VERIFICATION GUIDELINES:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, ToolsPlaceholder) || strings.Contains(got, VerificationPlaceholder) {
		t.Error("placeholders were not replaced")
	}
}

func TestRenderSystemPrompt_CustomTemplate(t *testing.T) {
	got := RenderSystemPrompt("Be brief.\nTools:\n{{tools}}\n{{verification}}", "- a\n", "rules")
	if got != "Be brief.\nTools:\n- a\n\nrules" {
		t.Errorf("got %q", got)
	}
}

func TestRenderSystemPrompt_AppendsCatalog(t *testing.T) {
	got := RenderSystemPrompt("Be brief.\n", "- a\n", "")
	if !strings.HasSuffix(got, "Available tools:\n- a\n") {
		t.Errorf("catalog not appended: %q", got)
	}
}

func TestConversationSummaryPrompt(t *testing.T) {
	got := ConversationSummaryPrompt("=== CHAT HISTORY ===\nhi")
	want := "Please summarize the following conversation in a concise paragraph:\n\n=== CHAT HISTORY ===\nhi\n\nSummary:"
	if got != want {
		t.Errorf("got %q", got)
	}
}
