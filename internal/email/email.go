// Package email delivers conversation digests over SMTP.
//
// Messages are composed with go-message: a verbatim text/plain part
// carrying the digest exactly as formatted, and a text/html part
// rendered from markdown with goldmark.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/verity/internal/config"
	"github.com/nugget/verity/internal/summarizer"
)

// sendFunc matches SendMail so tests can capture outgoing mail.
type sendFunc func(ctx context.Context, cfg config.EmailConfig, from string, recipients []string, msg []byte) error

// Sender is the SMTP notification sink.
type Sender struct {
	cfg    config.EmailConfig
	logger *slog.Logger
	send   sendFunc
}

// NewSender creates a sender for the given SMTP account.
func NewSender(cfg config.EmailConfig, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		cfg:    cfg,
		logger: logger.With("component", "email"),
		send:   SendMail,
	}
}

// Send delivers a plain-text message to one recipient.
func (s *Sender) Send(ctx context.Context, recipient, subject, body string) error {
	return s.deliver(ctx, recipient, ComposeOptions{
		From:    s.cfg.From,
		To:      []string{recipient},
		Subject: subject,
		Text:    body,
	})
}

// Name implements summarizer.Sink.
func (s *Sender) Name() string { return "email" }

// NeedsRecipient implements summarizer.Sink. Digests only go to the
// owner's registered address.
func (s *Sender) NeedsRecipient() bool { return true }

// Deliver implements summarizer.Sink.
func (s *Sender) Deliver(ctx context.Context, d *summarizer.Digest) error {
	if d.Recipient == "" {
		return fmt.Errorf("digest for %s has no recipient", d.ChatID)
	}
	return s.deliver(ctx, d.Recipient, ComposeOptions{
		From:     s.cfg.From,
		To:       []string{d.Recipient},
		Subject:  d.Subject,
		Text:     d.Body,
		Markdown: DigestMarkdown(d),
		Headers:  map[string]string{"X-Verity-Chat-ID": d.ChatID},
	})
}

func (s *Sender) deliver(ctx context.Context, recipient string, opts ComposeOptions) error {
	msg, err := ComposeMessage(opts)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	from, rcpts, err := envelope(opts.From, opts.To)
	if err != nil {
		return err
	}
	if err := s.send(ctx, s.cfg, from, rcpts, msg); err != nil {
		return fmt.Errorf("send to %s: %w", recipient, err)
	}

	s.logger.Info("email sent",
		"to", recipient,
		"subject", opts.Subject,
		"bytes", len(msg),
	)
	return nil
}

// DigestMarkdown renders a digest for the HTML part: the summary as
// prose and the transcript as a preformatted block.
func DigestMarkdown(d *summarizer.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Chat History for Chat ID: %s\n\n", d.ChatID)
	b.WriteString("### AI Summary\n\n")
	b.WriteString(d.Summary)
	b.WriteString("\n\n### Detailed Conversation\n\n")
	b.WriteString("```\n")
	b.WriteString(strings.ReplaceAll(d.History, "```", "'''"))
	if !strings.HasSuffix(d.History, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	return b.String()
}
