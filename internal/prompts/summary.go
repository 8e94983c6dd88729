package prompts

import "fmt"

// summaryTemplate asks for a one-paragraph digest of an idle chat. The
// single format verb is the formatted chat history.
const summaryTemplate = `Please summarize the following conversation in a concise paragraph:

%s

Summary:`

// SummaryFailureText stands in for the summary when the model call
// fails, so the digest still goes out with the full history.
const SummaryFailureText = "Error generating summary. Please refer to the full conversation below."

// ConversationSummaryPrompt returns the prompt used by the idle sweeper
// to summarize a chat history.
func ConversationSummaryPrompt(history string) string {
	return fmt.Sprintf(summaryTemplate, history)
}
