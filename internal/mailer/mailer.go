// Package mailer sends transactional email through the company SMTP
// accounts.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// Account selects the sending mailbox.
type Account string

const (
	AccountAdmin      Account = "admin"
	AccountCommercial Account = "commercial"
	AccountContact    Account = "contact"
)

// ParseAccount validates s.
func ParseAccount(s string) (Account, error) {
	switch a := Account(s); a {
	case AccountAdmin, AccountCommercial, AccountContact:
		return a, nil
	}
	return "", fmt.Errorf("mailer: unknown account %q", s)
}

// ErrAccountNotConfigured is returned when an account has no credentials.
var ErrAccountNotConfigured = errors.New("mailer: account not configured")

// Credentials authenticate one mailbox.
type Credentials struct {
	User     string
	Password string
}

// Config describes the SMTP server and its mailboxes.
type Config struct {
	Host     string
	Port     int
	Timeout  time.Duration
	Accounts map[Account]Credentials
}

// Attachment is a file joined to a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is one outgoing email. From defaults to the account mailbox.
type Message struct {
	From        string
	To          []string
	Cc          []string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

type transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer delivers messages. With no host configured it logs and drops
// them, which keeps local environments usable without SMTP.
type Mailer struct {
	cfg    Config
	logger *slog.Logger
	dial   func(Credentials) (transport, error)
}

// New constructs a Mailer.
func New(cfg Config, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	m := &Mailer{cfg: cfg, logger: logger}
	m.dial = m.newClient
	return m
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// Address returns the mailbox of account, or "" when it is not configured.
func (m *Mailer) Address(account Account) string {
	return m.cfg.Accounts[account].User
}

func (m *Mailer) newClient(creds Credentials) (transport, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.User),
		mail.WithPassword(creds.Password),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

// Send delivers msg through account.
func (m *Mailer) Send(ctx context.Context, account Account, msg Message) error {
	if !m.Enabled() {
		m.logger.Info("mail delivery disabled", slog.String("account", string(account)), slog.String("subject", msg.Subject))
		return nil
	}
	creds, ok := m.cfg.Accounts[account]
	if !ok || creds.User == "" {
		return fmt.Errorf("%w: %s", ErrAccountNotConfigured, account)
	}
	if msg.From == "" {
		msg.From = creds.User
	}
	built, err := build(msg)
	if err != nil {
		return err
	}
	client, err := m.dial(creds)
	if err != nil {
		return fmt.Errorf("mailer: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, built); err != nil {
		return fmt.Errorf("mailer: send %q: %w", msg.Subject, err)
	}
	m.logger.Info("mail sent",
		slog.String("account", string(account)),
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("attachments", len(msg.Attachments)))
	return nil
}

func build(msg Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("mailer: message has no recipient")
	}
	out := mail.NewMsg()
	if err := out.From(msg.From); err != nil {
		return nil, fmt.Errorf("mailer: from: %w", err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("mailer: to: %w", err)
	}
	if len(msg.Cc) > 0 {
		if err := out.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("mailer: cc: %w", err)
		}
	}
	if msg.ReplyTo != "" {
		if err := out.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("mailer: reply-to: %w", err)
		}
	}
	out.Subject(msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		out.SetBodyString(mail.TypeTextPlain, msg.Text)
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		out.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		out.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = string(mail.TypeAppOctetStream)
		}
		if err := out.AttachReader(a.Name, bytes.NewReader(a.Data), mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("mailer: attach %s: %w", a.Name, err)
		}
	}
	return out, nil
}
