package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nugget/verity/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOpenAI replays assistant replies over the chat completions wire
// format.
type fakeOpenAI struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	reply := "Final Answer: out of script"
	if f.calls < len(f.replies) {
		reply = f.replies[f.calls]
	}
	f.calls++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"model": "test-model",
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": reply},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
	})
}

// writeConfig writes a minimal config pointing the LLM at baseURL.
func writeConfig(t *testing.T, baseURL, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`llm:
  provider: openai
  model: test-model
  base_url: %s
  api_key: test-key
database:
  path: %s
log_level: warn
%s`, baseURL, filepath.Join(dir, "verity.db"), extra)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runArgs(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), strings.NewReader(""), &stdout, &stderr, args)
	return stdout.String(), stderr.String(), err
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		out, _, err := runArgs(t, args...)
		if err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(out, "Usage: verity") {
			t.Errorf("run(%v) output = %q", args, out)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"unknown flag", []string{"-x", "version"}, "unknown flag"},
		{"bad output format", []string{"-o", "xml", "version"}, "unknown output format"},
		{"ask without question", []string{"ask"}, "usage: verity ask"},
		{"missing config", []string{"-config", "/nonexistent/config.yaml", "ask", "hi"}, "config file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runArgs(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	out, _, err := runArgs(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Verity") || !strings.Contains(out, "go_version:") {
		t.Errorf("text output = %q", out)
	}

	out, _, err = runArgs(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("version json: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version json is not JSON: %v\n%s", err, out)
	}
	if info["version"] == "" {
		t.Errorf("info = %v", info)
	}
}

func TestRun_Ask(t *testing.T) {
	llmSrv := &fakeOpenAI{replies: []string{
		"Thought: I should calculate.\nAction: calculator: 2 + 3",
		"Thought: I know the answer.\nFinal Answer: 2 + 3 = 5",
	}}
	srv := httptest.NewServer(llmSrv)
	defer srv.Close()
	cfgPath := writeConfig(t, srv.URL, "")

	out, _, err := runArgs(t, "-config", cfgPath, "ask", "what", "is", "2", "+", "3?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if strings.TrimSpace(out) != "2 + 3 = 5" {
		t.Errorf("stdout = %q", out)
	}
	if llmSrv.calls != 2 {
		t.Errorf("llm calls = %d, want 2", llmSrv.calls)
	}
}

func TestRun_AskJSON(t *testing.T) {
	srv := httptest.NewServer(&fakeOpenAI{replies: []string{"Final Answer: Paris"}})
	defer srv.Close()
	cfgPath := writeConfig(t, srv.URL, "")

	out, _, err := runArgs(t, "-config", cfgPath, "-o", "json", "ask", "capital of France?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var res askResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Answer != "Paris" || res.Question != "capital of France?" || res.Iterations != 1 || res.Model != "test-model" {
		t.Errorf("res = %+v", res)
	}
}

func TestNewApp_Wiring(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "test-key"

	a, err := newApp(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	want := []string{"calculator", "text_analyzer", "verify_result", "web_search"}
	got := a.registry.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", got, want)
	}
	if a.loop.Model() != cfg.LLM.Model {
		t.Errorf("model = %q", a.loop.Model())
	}
}

func TestSystemPrompt(t *testing.T) {
	cfg := config.Default()
	registry := newRegistry(cfg, testLogger())

	builtin, err := systemPrompt(cfg, registry)
	if err != nil {
		t.Fatalf("systemPrompt: %v", err)
	}
	if !strings.Contains(builtin, "calculator") || strings.Contains(builtin, "{{tools}}") {
		t.Errorf("built-in prompt not rendered:\n%s", builtin)
	}

	path := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(path, []byte("Be brief.\n\nTools:\n{{tools}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Agent.SystemPromptFile = path
	custom, err := systemPrompt(cfg, registry)
	if err != nil {
		t.Fatalf("systemPrompt: %v", err)
	}
	if !strings.HasPrefix(custom, "Be brief.") || !strings.Contains(custom, "verify_result") {
		t.Errorf("custom prompt = %q", custom)
	}

	cfg.Agent.SystemPromptFile = filepath.Join(t.TempDir(), "missing.md")
	if _, err := systemPrompt(cfg, registry); err == nil {
		t.Error("expected error for missing prompt file")
	}
}

func TestOpenSessions(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "data", "verity.db")

	sess, err := openSessions(cfg, testLogger())
	if err != nil {
		t.Fatalf("openSessions: %v", err)
	}
	defer sess.Close()

	stats := &statsAdapter{cache: sess.cache, model: "m"}
	if stats.ActiveSessions() != 0 || stats.DefaultModel() != "m" {
		t.Errorf("stats = %d, %q", stats.ActiveSessions(), stats.DefaultModel())
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}
