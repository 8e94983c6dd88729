// Package protocol classifies model output written in the line-oriented
// Thought / Action / Observation / Final Answer format.
//
// Parsing never fails. Text that does not match any recognised shape
// is reported as [KindUnexpected] and the caller decides what to do.
package protocol

import (
	"strings"
	"unicode"
)

// Markers of the text protocol. These strings are part of the wire
// format shared with existing prompts and must not change.
const (
	MarkerThought     = "Thought:"
	MarkerAction      = "Action:"
	MarkerObservation = "Observation:"
	MarkerFinalAnswer = "Final Answer:"
)

// Kind is the classification of one assistant turn.
type Kind int

const (
	// KindUnexpected means no final answer, no action and no reasoning
	// marker were found.
	KindUnexpected Kind = iota
	// KindThinking means the model reasoned but asked for nothing.
	KindThinking
	// KindAction means a well-formed action line was found.
	KindAction
	// KindFinal means the turn carries the final answer.
	KindFinal
)

func (k Kind) String() string {
	switch k {
	case KindThinking:
		return "thinking"
	case KindAction:
		return "action"
	case KindFinal:
		return "final"
	default:
		return "unexpected"
	}
}

// Action is a tool invocation requested by the model.
type Action struct {
	Tool  string
	Input string
}

// Outcome is the result of parsing one assistant turn. Action is set
// only for KindAction; Answer only for KindFinal.
type Outcome struct {
	Kind   Kind
	Action Action
	Answer string
}

// Parse classifies text. A final answer wins over any action that
// appears earlier in the same text.
func Parse(text string) Outcome {
	if answer, ok := FinalAnswer(text); ok {
		return Outcome{Kind: KindFinal, Answer: answer}
	}
	if action, ok := FindAction(text); ok {
		return Outcome{Kind: KindAction, Action: action}
	}
	if strings.Contains(text, MarkerThought) {
		return Outcome{Kind: KindThinking}
	}
	return Outcome{Kind: KindUnexpected}
}

// FinalAnswer returns everything after the first final-answer marker,
// trimmed.
func FinalAnswer(text string) (string, bool) {
	_, after, found := strings.Cut(text, MarkerFinalAnswer)
	if !found {
		return "", false
	}
	return strings.TrimSpace(after), true
}

// FindAction returns the first line holding a well-formed action.
func FindAction(text string) (Action, bool) {
	for line := range strings.Lines(text) {
		if a, ok := parseActionLine(line); ok {
			return a, true
		}
	}
	return Action{}, false
}

// parseActionLine accepts "Action: name: input" with any amount of
// horizontal whitespace around either colon, including none. Every
// occurrence of the keyword on the line is tried in order.
func parseActionLine(line string) (Action, bool) {
	keyword := strings.TrimSuffix(MarkerAction, ":")
	for {
		i := strings.Index(line, keyword)
		if i == -1 {
			return Action{}, false
		}
		line = line[i+len(keyword):]
		rest := strings.TrimLeftFunc(line, isBlank)
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		if a, ok := parseActionBody(rest[1:]); ok {
			return a, true
		}
	}
}

// parseActionBody parses "name: input" following the action marker.
func parseActionBody(rest string) (Action, bool) {
	rest = strings.TrimLeftFunc(rest, isBlank)

	end := strings.IndexFunc(rest, func(r rune) bool { return !isWordRune(r) })
	if end == -1 {
		// A bare tool name with no input separator.
		return Action{}, false
	}
	name := rest[:end]
	if name == "" {
		return Action{}, false
	}

	rest = strings.TrimLeftFunc(rest[end:], isBlank)
	if !strings.HasPrefix(rest, ":") {
		return Action{}, false
	}
	input := strings.TrimSpace(rest[1:])
	if input == "" {
		return Action{}, false
	}
	return Action{Tool: name, Input: input}, true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t'
}

// Observation renders a tool result as the injected observation line.
func Observation(result string) string {
	return MarkerObservation + " " + result
}
