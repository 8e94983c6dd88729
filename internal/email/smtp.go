package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nugget/verity/internal/config"
)

// smtpTimeout bounds a whole SMTP session when ctx has no deadline.
const smtpTimeout = 30 * time.Second

// SendMail delivers msg, a complete RFC 5322 message as returned by
// ComposeMessage, over one SMTP session. ctx bounds the session from
// dial to QUIT.
func SendMail(ctx context.Context, cfg config.EmailConfig, from string, recipients []string, msg []byte) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, smtpTimeout)
		defer cancel()
	}

	client, err := dialSMTP(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.Username != "" && cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}
	return client.Quit()
}

// dialSMTP opens a session and completes EHLO. Without StartTLS the
// connection is TLS from the first byte (port 465); with it the
// session is upgraded after EHLO (port 587).
func dialSMTP(ctx context.Context, cfg config.EmailConfig) (*smtp.Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tlsCfg := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if cfg.StartTLS {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&tls.Dialer{Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create SMTP client on %s: %w", addr, err)
	}
	if err := client.Hello(heloName()); err != nil {
		client.Close()
		return nil, fmt.Errorf("EHLO: %w", err)
	}
	if cfg.StartTLS {
		if err := client.StartTLS(tlsCfg); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}
	return client, nil
}

func heloName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}

// envelope derives the bare SMTP envelope addresses from header-style
// From and To values. Duplicate recipients are sent to once.
func envelope(from string, to []string) (string, []string, error) {
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return "", nil, fmt.Errorf("parse from address %q: %w", from, err)
	}

	seen := make(map[string]bool, len(to))
	var rcpts []string
	for _, s := range to {
		addr, err := mail.ParseAddress(s)
		if err != nil {
			return "", nil, fmt.Errorf("parse recipient %q: %w", s, err)
		}
		if !seen[addr.Address] {
			seen[addr.Address] = true
			rcpts = append(rcpts, addr.Address)
		}
	}
	return sender.Address, rcpts, nil
}
