package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"

	"github.com/nugget/verity/internal/config"
	"github.com/nugget/verity/internal/summarizer"
)

// capture records the last message handed to SMTP.
type capture struct {
	from       string
	recipients []string
	msg        string
	err        error
}

func (c *capture) send(_ context.Context, _ config.EmailConfig, from string, recipients []string, msg []byte) error {
	c.from = from
	c.recipients = recipients
	c.msg = string(msg)
	return c.err
}

// readMessage parses raw and returns its header and the decoded bodies
// of its inline parts keyed by media type.
func readMessage(t *testing.T, raw string) (mail.Header, map[string]string) {
	t.Helper()
	mr, err := mail.CreateReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	parts := make(map[string]string)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(p.Body)
		if err != nil {
			t.Fatalf("read %s part: %v", ct, err)
		}
		parts[ct] = string(body)
	}
	return mr.Header, parts
}

func newTestSender(c *capture) *Sender {
	s := NewSender(config.EmailConfig{
		From: "Verity <verity@example.com>",
		Host: "smtp.example.com",
		Port: 587,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.send = c.send
	return s
}

func TestSender_Deliver(t *testing.T) {
	c := &capture{}
	s := newTestSender(c)
	d := summarizer.NewDigest("chat-1", "bot1", "Ops <ops@example.com>", "They said hi.", "=== CHAT HISTORY ===\n[14:30:00] USER: hi\n")

	if err := s.Deliver(context.Background(), d); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if c.from != "verity@example.com" {
		t.Errorf("envelope from = %q", c.from)
	}
	if len(c.recipients) != 1 || c.recipients[0] != "ops@example.com" {
		t.Errorf("recipients = %v", c.recipients)
	}

	h, parts := readMessage(t, c.msg)
	if subj, _ := h.Subject(); subj != "Chat Summary for chat-1" {
		t.Errorf("Subject = %q", subj)
	}
	if got := h.Get("X-Verity-Chat-ID"); got != "chat-1" {
		t.Errorf("X-Verity-Chat-ID = %q", got)
	}

	text, ok := parts["text/plain"]
	if !ok {
		t.Fatalf("no text/plain part among %d parts", len(parts))
	}
	for _, want := range []string{
		"Chat History for Chat ID: chat-1",
		"AI Summary:",
		"They said hi.",
		"=== DETAILED CONVERSATION ===",
		"[14:30:00] USER: hi",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text part missing %q:\n%s", want, text)
		}
	}
	if html := parts["text/html"]; !strings.Contains(html, "Chat History for Chat ID: chat-1") {
		t.Errorf("html part missing heading:\n%s", html)
	}
}

func TestSender_DeliverWithoutRecipient(t *testing.T) {
	c := &capture{}
	s := newTestSender(c)
	d := summarizer.NewDigest("chat-1", "", "", "s", "h")
	if err := s.Deliver(context.Background(), d); err == nil {
		t.Error("expected error for digest without recipient")
	}
	if c.msg != "" {
		t.Error("message was sent")
	}
	if !s.NeedsRecipient() {
		t.Error("email sink must require a recipient")
	}
}

func TestSender_Send(t *testing.T) {
	c := &capture{}
	s := newTestSender(c)
	if err := s.Send(context.Background(), "a@example.com", "Hello", "plain body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if strings.Contains(c.msg, "multipart") {
		t.Error("Send should produce a plain message")
	}

	c.err = errors.New("connection refused")
	if err := s.Send(context.Background(), "a@example.com", "Hello", "body"); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestDigestMarkdown(t *testing.T) {
	d := summarizer.NewDigest("chat-1", "", "", "Summary here.", "=== CHAT HISTORY ===\n[14:30:00] USER: ```code```\n")
	md := DigestMarkdown(d)
	if !strings.Contains(md, "### AI Summary\n\nSummary here.") {
		t.Errorf("summary section missing:\n%s", md)
	}
	if strings.Count(md, "```") != 2 {
		t.Errorf("history fence was not protected:\n%s", md)
	}
}
