package email

import (
	"strings"
	"testing"
)

func TestMarkdownToPlain(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{
			name: "bold",
			md:   "This is **bold** text",
			want: "This is bold text",
		},
		{
			name: "link",
			md:   "Visit [Example](https://example.com) now",
			want: "Visit Example (https://example.com) now",
		},
		{
			name: "heading",
			md:   "## Section Title\n\nSome text",
			want: "Section Title\n\nSome text",
		},
		{
			name: "code block",
			md:   "Before\n```\n[14:30:00] USER: hi\n```\nAfter",
			want: "Before\n[14:30:00] USER: hi\n\nAfter",
		},
		{
			name: "plain text unchanged",
			md:   "Just some regular text.",
			want: "Just some regular text.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := markdownToPlain(tt.md)
			if got != tt.want {
				t.Errorf("markdownToPlain(%q) =\n  %q\nwant\n  %q", tt.md, got, tt.want)
			}
		})
	}
}

func TestMarkdownToHTML(t *testing.T) {
	html, err := markdownToHTML("Hello **world**")
	if err != nil {
		t.Fatalf("markdownToHTML() error: %v", err)
	}
	if !strings.Contains(html, "<strong>world</strong>") {
		t.Error("HTML should contain <strong> tag for bold")
	}
	if !strings.Contains(html, "<!DOCTYPE html>") {
		t.Error("HTML should have DOCTYPE wrapper")
	}
}

func TestComposeMessage_Alternative(t *testing.T) {
	msg, err := ComposeMessage(ComposeOptions{
		From:     "Verity <verity@example.com>",
		To:       []string{"recipient@example.com"},
		Subject:  "Chat Summary for chat-1",
		Text:     "Chat History for Chat ID: chat-1",
		Markdown: "## Chat History",
		Headers:  map[string]string{"X-Verity-Chat-ID": "chat-1"},
	})
	if err != nil {
		t.Fatalf("ComposeMessage() error: %v", err)
	}

	s := string(msg)
	for _, want := range []string{
		"From:",
		"verity@example.com",
		"recipient@example.com",
		"Subject: Chat Summary for chat-1",
		"Message-Id:",
		"Date:",
		"X-Verity-Chat-Id: chat-1",
		"multipart/alternative",
		"text/plain",
		"text/html",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q:\n%s", want, s[:min(len(s), 800)])
		}
	}
}

func TestComposeMessage_PlainOnly(t *testing.T) {
	msg, err := ComposeMessage(ComposeOptions{
		From:    "sender@example.com",
		To:      []string{"to@example.com"},
		Subject: "Test",
		Text:    "Body text",
	})
	if err != nil {
		t.Fatalf("ComposeMessage() error: %v", err)
	}
	s := string(msg)
	if strings.Contains(s, "multipart") {
		t.Error("plain message should not be multipart")
	}
	if !strings.Contains(s, "Body text") {
		t.Error("body missing")
	}
}

func TestComposeMessage_Errors(t *testing.T) {
	if _, err := ComposeMessage(ComposeOptions{From: "not-an-email", To: []string{"to@example.com"}}); err == nil {
		t.Error("ComposeMessage should fail with invalid From address")
	}
	if _, err := ComposeMessage(ComposeOptions{From: "a@example.com"}); err == nil {
		t.Error("ComposeMessage should fail without recipients")
	}
}
