// Package mail sends the transactional emails used by the auth flows.
package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	gomail "github.com/wneessen/go-mail"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer composes the reset-password and verify-email messages and hands them to a Sender.
type Mailer struct {
	sender  Sender
	baseURL string
}

// NewMailer creates a Mailer whose links point at baseURL.
func NewMailer(sender Sender, baseURL string) *Mailer {
	return &Mailer{sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

// SendResetPassword mails a password reset link carrying token.
func (m *Mailer) SendResetPassword(ctx context.Context, to, token string) error {
	link := m.link("/reset-password", token)
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Reset password",
		Body: "Dear user,\n" +
			"To reset your password, click on this link: " + link + "\n" +
			"If you did not request any password resets, then ignore this email.",
	})
}

// SendVerification mails an email verification link carrying token.
func (m *Mailer) SendVerification(ctx context.Context, to, token string) error {
	link := m.link("/verify-email", token)
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Email Verification",
		Body: "Dear user,\n" +
			"To verify your email, click on this link: " + link + "\n" +
			"If you did not create an account, then ignore this email.",
	})
}

func (m *Mailer) link(path, token string) string {
	return m.baseURL + path + "?token=" + url.QueryEscape(token)
}

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender creates an SMTPSender. STARTTLS is used when the server offers it.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	log.Ctx(ctx).Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")
	return nil
}

// LogSender writes messages to the log instead of sending them. Used when no SMTP host is set.
type LogSender struct{}

// Send logs msg at info level.
func (LogSender) Send(ctx context.Context, msg Message) error {
	log.Ctx(ctx).Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("mail not sent: smtp not configured")
	return nil
}
