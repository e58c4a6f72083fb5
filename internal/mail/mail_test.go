package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent []Message
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestMailerLinks(t *testing.T) {
	tests := []struct {
		name     string
		send     func(m *Mailer) error
		subject  string
		wantLink string
	}{
		{
			name:     "reset password",
			send:     func(m *Mailer) error { return m.SendResetPassword(context.Background(), "a@example.com", "tok+en") },
			subject:  "Reset password",
			wantLink: "https://app.example.com/reset-password?token=tok%2Ben",
		},
		{
			name:     "verify email",
			send:     func(m *Mailer) error { return m.SendVerification(context.Background(), "a@example.com", "abc") },
			subject:  "Email Verification",
			wantLink: "https://app.example.com/verify-email?token=abc",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sender := &captureSender{}
			m := NewMailer(sender, "https://app.example.com/")

			require.NoError(t, tc.send(m))
			require.Len(t, sender.sent, 1)
			assert.Equal(t, "a@example.com", sender.sent[0].To)
			assert.Equal(t, tc.subject, sender.sent[0].Subject)
			assert.Contains(t, sender.sent[0].Body, tc.wantLink)
		})
	}
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Message{To: "a@example.com"}))
}

func TestNewSMTPSender(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "noreply@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "noreply@example.com", s.from)

	_, err = NewSMTPSender(SMTPConfig{Port: 587})
	assert.Error(t, err)
}
