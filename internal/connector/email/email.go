// Package email implements a Consumer connector that delivers entities as
// SMTP messages, grounded on the teacher's emailNode
// (internal/service/workflow/nodes/email.go): same go-mail client wiring
// and TLS policy selection (no proxy dialing), adapted from a one-shot
// workflow step into a standing Consume-capable connector whose message
// fields are rendered by a mapper.Formatter instead of a fixed set of node
// config keys.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

// Config holds SMTP connection settings, mirroring the teacher's smtpConfig.
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	TLS                bool
	NoTLS              bool
	InsecureSkipVerify bool
}

// Message is the rendered payload handed to Consume; callers build this
// from the entity via a mapper.Formatter before calling Consume.
type Message struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	ContentType string // defaults to text/plain
	ReplyTo     string
}

// Connector sends Message values over SMTP. Implements connector.Consumer
// where the value passed to Consume is a Message.
type Connector struct {
	name string
	cfg  Config
}

func New(name string, cfg Config) *Connector {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Connector{name: name, cfg: cfg}
}

func (c *Connector) Name() string { return c.name }

// Connect is a no-op: go-mail dials per-send, there is no persistent
// session to establish ahead of time.
func (c *Connector) Connect(_ context.Context) error { return nil }

func (c *Connector) Disconnect(_ context.Context) error { return nil }

// Consume sends msg as an email. key is used only for error context.
func (c *Connector) Consume(ctx context.Context, key string, value any) error {
	msg, ok := value.(Message)
	if !ok {
		if p, ok := value.(*Message); ok {
			msg = *p
		} else {
			return fmt.Errorf("email: consume %q: value is not email.Message: %w", key, apperr.ErrMapping)
		}
	}

	if msg.ContentType == "" {
		msg.ContentType = "text/plain"
	}

	m := mail.NewMsg()
	from := c.cfg.From
	if from == "" {
		return fmt.Errorf("email: consume %q: no from address configured: %w", key, apperr.ErrConnection)
	}
	if err := m.From(from); err != nil {
		return fmt.Errorf("email: consume %q: set from: %w", key, err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("email: consume %q: set to: %w", key, err)
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return fmt.Errorf("email: consume %q: set cc: %w", key, err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return fmt.Errorf("email: consume %q: set bcc: %w", key, err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.ContentType(msg.ContentType), msg.Body)
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return fmt.Errorf("email: consume %q: set reply-to: %w", key, err)
		}
	}

	opts := []mail.Option{
		mail.WithPort(c.cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if c.cfg.Username != "" || c.cfg.Password != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(c.cfg.Username), mail.WithPassword(c.cfg.Password))
	}
	if c.cfg.NoTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	} else {
		tlsConfig := &tls.Config{ServerName: c.cfg.Host, InsecureSkipVerify: c.cfg.InsecureSkipVerify}
		opts = append(opts, mail.WithTLSConfig(tlsConfig))
		if c.cfg.TLS {
			opts = append(opts, mail.WithSSL(), mail.WithTLSPolicy(mail.TLSMandatory))
		} else {
			opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
		}
	}

	client, err := mail.NewClient(c.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("email: consume %q: create client: %w", key, err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: consume %q: send: %w", key, apperr.ErrConnection)
	}
	return nil
}

// SplitAddresses splits a comma/semicolon separated address list, matching
// the teacher's splitAddresses helper in nodes/email.go.
func SplitAddresses(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ";", ",")
	parts := strings.Split(s, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}
