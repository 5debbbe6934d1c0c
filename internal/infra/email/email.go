package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPSender struct {
	Host     string
	Port     string
	From     string
	Password string
}

func (s SMTPSender) Send(_ context.Context, msg Message) error {
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("email: header injection in recipient or subject")
	}
	auth := smtp.PlainAuth("", s.From, s.Password, s.Host)

	raw := []byte("Subject: " + msg.Subject + "\r\n" +
		"From: " + s.From + "\r\n" +
		"To: " + msg.To + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		msg.Body + "\r\n")

	if err := smtp.SendMail(s.Host+":"+s.Port, auth, s.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender writes messages to the log. Used when SMTP is not configured.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Log.Info("email not sent, smtp disabled",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Outbox keeps sent messages in memory.
type Outbox struct {
	mu   sync.Mutex
	Sent []Message
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	o.Sent = append(o.Sent, msg)
	o.mu.Unlock()
	return nil
}

func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.Sent...)
}

func VerificationMessage(to, apiURL, token string) Message {
	return Message{
		To:      to,
		Subject: "Verify your Kaiden account",
		Body:    fmt.Sprintf("Click the following link to verify your account:\n\n%s/verify?token=%s", apiURL, token),
	}
}

func PasswordResetMessage(to, appURL, token string) Message {
	return Message{
		To:      to,
		Subject: "Reset your Kaiden password",
		Body:    fmt.Sprintf("Use the following link to choose a new password:\n\n%s/reset-password?token=%s\n\nThe link expires in one hour.", appURL, token),
	}
}

func TrialEndingMessage(to, appURL string, daysLeft int) Message {
	return Message{
		To:      to,
		Subject: "Your Kaiden trial is ending soon",
		Body:    fmt.Sprintf("Your free trial ends in %d day(s). Pick a plan to keep your features:\n\n%s/pricing", daysLeft, appURL),
	}
}

var (
	_ Sender = SMTPSender{}
	_ Sender = LogSender{}
	_ Sender = (*Outbox)(nil)
)
