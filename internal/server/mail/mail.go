// Package mail renders and delivers the server's outgoing emails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Message is a single HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// VerificationSubject is the subject line of verification emails.
const VerificationSubject = "Verify your email"

var verificationTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Verify Your Email</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>Welcome!</h2>
    <p>Please use the verification code below to confirm your email address:</p>
    <div style="text-align: center; margin: 30px 0;">
      <span style="font-size: 32px; font-weight: bold; letter-spacing: 5px; color: #4CAF50;">{{.Code}}</span>
    </div>
    <p style="color: #666; font-size: 12px; margin-top: 30px;">
      This code will expire in {{.Minutes}} minutes. If you didn't create an account, please ignore this email.
    </p>
  </div>
</body>
</html>
`))

// VerificationMessage builds the email carrying a verification code.
func VerificationMessage(to, code string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := verificationTemplate.Execute(&buf, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(ttl.Minutes())})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: VerificationSubject, HTML: buf.String()}, nil
}

// SMTPSender delivers mail through an SMTP relay. Authentication is used
// only when a user name is configured.
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(addr, user, password, from string) *SMTPSender {
	var a smtp.Auth
	if user != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		a = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPSender{addr: addr, from: from, auth: a, sendMail: smtp.SendMail}
}

// Send ignores ctx cancellation once the SMTP exchange has started;
// net/smtp has no context support.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.sendMail(s.addr, s.auth, s.from, []string{m.To}, s.compose(m)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) compose(m Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.from + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", m.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.HTML)
	return []byte(b.String())
}

// LogSender only logs that a message would have been sent. It is used in
// development when no SMTP relay is configured. The body is not logged.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.log.Warn(ctx, "smtp not configured, email dropped", "to", m.To, "subject", m.Subject)
	return nil
}
