// Package mailer sends invoice emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecofin/internal/config"

	"github.com/google/uuid"
	mail "github.com/wneessen/go-mail"
)

// ErrNotConfigured is returned when no SMTP server is set.
var ErrNotConfigured = errors.New("mail server is not configured")

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// sender is the part of *mail.Client used here.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends through an SMTP relay with optional PLAIN auth and TLS.
type SMTPMailer struct {
	cfg       config.MailConfig
	newSender func(cfg config.MailConfig) (sender, error)
	now       func() time.Time
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, newSender: newClient, now: time.Now}
}

func newClient(cfg config.MailConfig) (sender, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	switch strings.ToLower(cfg.TLS) {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return mail.NewClient(cfg.Host, opts...)
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Configured() {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	built, err := Build(m.cfg.From, msg, m.now())
	if err != nil {
		return err
	}
	client, err := m.newSender(m.cfg)
	if err != nil {
		return fmt.Errorf("create smtp client for %s: %w", m.cfg.Host, err)
	}
	if err := client.DialAndSendWithContext(ctx, built); err != nil {
		return fmt.Errorf("send mail via %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}
	return nil
}

// Build assembles msg with its attachments.
func Build(from string, msg Message, date time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(date)
	m.SetMessageIDWithValue(uuid.NewString() + "@ecofin")
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Data), mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return m, nil
}
