package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/verity/internal/llm"
	"github.com/nugget/verity/internal/tools"
)

// scriptedLLM replays canned replies in order and records every call.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]llm.Message
	opts    []llm.Options
}

func (s *scriptedLLM) Chat(_ context.Context, _ string, messages []llm.Message, opts llm.Options) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]llm.Message(nil), messages...))
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	reply := "Thought: still thinking"
	if i := len(s.calls) - 1; i < len(s.replies) {
		reply = s.replies[i]
	}
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: reply}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoop(client llm.Client, maxIter int) *Loop {
	return NewLoop(testLogger(), client, tools.NewDefaultRegistry(testLogger()), Config{
		Model:         "test-model",
		MaxIterations: maxIter,
		SystemPrompt:  "system prompt",
	})
}

func TestRun_DirectFinalAnswer(t *testing.T) {
	m := &scriptedLLM{replies: []string{"Thought: easy.\nFinal Answer: Hello there!"}}
	res, err := newTestLoop(m, 10).Run(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "Hello there!" {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.Iterations != 1 || res.Exhausted {
		t.Errorf("Iterations = %d, Exhausted = %v", res.Iterations, res.Exhausted)
	}
	if len(m.calls) != 1 {
		t.Fatalf("calls = %d", len(m.calls))
	}
	seed := m.calls[0]
	if len(seed) != 2 || seed[0].Role != llm.RoleSystem || seed[1].Role != llm.RoleUser || seed[1].Content != "Hello" {
		t.Errorf("unexpected seed transcript: %+v", seed)
	}
	if m.opts[0].Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", m.opts[0].Temperature)
	}
}

func TestRun_ToolCycle(t *testing.T) {
	m := &scriptedLLM{replies: []string{
		"Thought: I need to calculate.\nAction: calculator: 15 * 7 + 22",
		"Thought: got it.\nFinal Answer: 127",
	}}
	res, err := newTestLoop(m, 10).Run(context.Background(), "What is 15 * 7 + 22?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "127" || res.ToolCalls != 1 {
		t.Errorf("Answer = %q, ToolCalls = %d", res.Answer, res.ToolCalls)
	}

	// system, user, assistant, observation, assistant
	if len(res.Transcript) != 5 {
		t.Fatalf("transcript len = %d", len(res.Transcript))
	}
	obs := res.Transcript[3]
	if obs.Role != llm.RoleUser || obs.Content != "Observation: 127" {
		t.Errorf("observation = %+v", obs)
	}
	if got := len(m.calls[1]); got != 4 {
		t.Errorf("second completion saw %d turns, want 4", got)
	}
}

func TestRun_UnknownTool(t *testing.T) {
	m := &scriptedLLM{replies: []string{
		"Action: telescope: look at mars",
		"Final Answer: done",
	}}
	res, err := newTestLoop(m, 10).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Transcript[3].Content; got != "Observation: Error - Unknown tool 'telescope'" {
		t.Errorf("observation = %q", got)
	}
	if res.ToolCalls != 0 {
		t.Errorf("ToolCalls = %d", res.ToolCalls)
	}
}

func TestRun_ThinkingAndUnexpectedAddNothing(t *testing.T) {
	m := &scriptedLLM{replies: []string{
		"Thought: let me consider this",
		"I am not following the format",
		"Final Answer: ok",
	}}
	res, err := newTestLoop(m, 10).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// seed + three assistant turns, no injected observations
	if len(res.Transcript) != 5 {
		t.Errorf("transcript len = %d", len(res.Transcript))
	}
	for _, msg := range res.Transcript[2:] {
		if msg.Role != llm.RoleAssistant {
			t.Errorf("unexpected %s turn: %q", msg.Role, msg.Content)
		}
	}
}

func TestRun_Exhausted(t *testing.T) {
	m := &scriptedLLM{}
	res, err := newTestLoop(m, 3).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Exhausted || res.Answer != ExhaustedAnswer {
		t.Errorf("Exhausted = %v, Answer = %q", res.Exhausted, res.Answer)
	}
	if len(m.calls) != 3 {
		t.Errorf("completions = %d, want 3", len(m.calls))
	}
}

func TestRun_FinalAnswerWinsOverAction(t *testing.T) {
	m := &scriptedLLM{replies: []string{
		"Action: calculator: 1 + 1\nFinal Answer: 2",
	}}
	res, err := newTestLoop(m, 10).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "2" || res.ToolCalls != 0 {
		t.Errorf("Answer = %q, ToolCalls = %d", res.Answer, res.ToolCalls)
	}
}

func TestRun_LLMError(t *testing.T) {
	m := &scriptedLLM{err: errors.New("connection refused")}
	_, err := newTestLoop(m, 10).Run(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &scriptedLLM{}
	_, err := newTestLoop(m, 10).Run(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(m.calls) != 0 {
		t.Errorf("calls = %d", len(m.calls))
	}
}

// deadlineLLM reports whether each call carried a deadline.
type deadlineLLM struct{ hadDeadline bool }

func (d *deadlineLLM) Chat(ctx context.Context, _ string, _ []llm.Message, _ llm.Options) (*llm.ChatResponse, error) {
	_, d.hadDeadline = ctx.Deadline()
	return &llm.ChatResponse{Message: llm.Message{Content: "Final Answer: x"}}, nil
}

func TestRun_PerCallTimeout(t *testing.T) {
	d := &deadlineLLM{}
	l := NewLoop(testLogger(), d, tools.NewRegistry(testLogger()), Config{Timeout: time.Second})
	if _, err := l.Run(context.Background(), "q"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !d.hadDeadline {
		t.Error("completion context had no deadline")
	}
}

func TestNewLoop_DefaultIterations(t *testing.T) {
	l := NewLoop(nil, &scriptedLLM{}, tools.NewRegistry(nil), Config{})
	if l.cfg.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d", l.cfg.MaxIterations)
	}
}

type tokenCounter struct{ in, out, calls int }

func (c *tokenCounter) OnTokens(in, out int) {
	c.in += in
	c.out += out
	c.calls++
}

// meteredLLM reports fixed usage on every reply.
type meteredLLM struct{ scriptedLLM }

func (m *meteredLLM) Chat(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (*llm.ChatResponse, error) {
	resp, err := m.scriptedLLM.Chat(ctx, model, messages, opts)
	if err != nil {
		return nil, err
	}
	resp.InputTokens = 100
	resp.OutputTokens = 20
	return resp, nil
}

func TestRun_TokenObserver(t *testing.T) {
	m := &meteredLLM{scriptedLLM{replies: []string{
		"Action: calculator: 1 + 1",
		"Final Answer: 2",
	}}}
	tc := &tokenCounter{}
	l := NewLoop(testLogger(), m, tools.NewDefaultRegistry(testLogger()), Config{Tokens: tc})
	if _, err := l.Run(context.Background(), "1+1?"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tc.calls != 2 || tc.in != 200 || tc.out != 40 {
		t.Errorf("observer saw calls=%d in=%d out=%d", tc.calls, tc.in, tc.out)
	}
}
