// Package smtp implements the e-mail delivery backend on top of an SMTP
// relay.
package smtp

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
)

// sendMailFunc matches net/smtp.SendMail, enabling test injection.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Messenger delivers messages as e-mail through an SMTP relay. Messages of
// the email_html class are sent with an HTML content type.
type Messenger struct {
	host     string
	port     int
	user     string
	password string
	from     string

	sendMail sendMailFunc
}

// Opts holds parameters for creating an SMTP Messenger.
type Opts struct {
	Host     string
	Port     int // defaults to 25
	User     string
	Password string
	From     string

	// For testing: inject a transport instead of net/smtp.SendMail.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates an SMTP Messenger.
func New(opts Opts) (*Messenger, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if opts.From == "" {
		return nil, fmt.Errorf("smtp: from address is required")
	}
	if opts.Port == 0 {
		opts.Port = 25
	}

	m := &Messenger{
		host:     opts.Host,
		port:     opts.Port,
		user:     opts.User,
		password: opts.Password,
		from:     opts.From,
		sendMail: opts.SendMail,
	}
	if m.sendMail == nil {
		m.sendMail = smtp.SendMail
	}
	return m, nil
}

func (m *Messenger) Alias() string { return "smtp" }

func (m *Messenger) Title() string { return "E-mail" }

func (m *Messenger) AllowUserSubscription() bool { return true }

// ResolveAddress normalizes an e-mail address.
func (m *Messenger) ResolveAddress(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}

// WarmUp is a no-op: the relay connection is made per message.
func (m *Messenger) WarmUp(ctx context.Context) error { return nil }

// Send delivers one e-mail per dispatch.
func (m *Messenger) Send(ctx context.Context, mt *delivery.MessageType, msg *models.Message, batch []*models.Dispatch, sink delivery.StatusSink) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}

	subject, _ := msg.Context[delivery.SubjectKey].(string)
	if subject == "" {
		subject = mt.Title
	}
	html := msg.Cls == "email_html"

	for _, d := range batch {
		payload := m.envelope(d.Address, subject, d.MessageCache, html)
		if err := m.sendMail(addr, auth, m.from, []string{d.Address}, payload); err != nil {
			sink.MarkError(d, fmt.Sprintf("smtp: %v", err))
			continue
		}
		sink.MarkSent(d)
	}
	return nil
}

// CoolDown is a no-op.
func (m *Messenger) CoolDown(ctx context.Context) error { return nil }

// envelope builds the RFC 5322 payload for one recipient.
func (m *Messenger) envelope(to, subject, body string, html bool) []byte {
	contentType := "text/plain; charset=utf-8"
	if html {
		contentType = "text/html; charset=utf-8"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
