package alerting

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"github.com/rs/zerolog"
)

// SMTPOptions parameterise the mail sink.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers notifications as multipart text+HTML mail.
type SMTPNotifier struct {
	opts   SMTPOptions
	logger zerolog.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier constructs the mail sink.
func NewSMTPNotifier(opts SMTPOptions, logger zerolog.Logger) *SMTPNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	return &SMTPNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_smtp").Logger(),
		send:   smtp.SendMail,
	}
}

// Name identifies the sink.
func (s *SMTPNotifier) Name() string { return "smtp" }

// Notify sends the notification mail to the alert owner.
func (s *SMTPNotifier) Notify(ctx context.Context, note Notification) error {
	if s.opts.Host == "" || s.opts.From == "" {
		return fmt.Errorf("smtp host and from address are required")
	}
	if note.RecipientEmail == "" {
		return fmt.Errorf("notification has no recipient email")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := buildMessage(s.opts.From, note)
	if err != nil {
		return fmt.Errorf("build mail message: %w", err)
	}

	var auth smtp.Auth
	if s.opts.Username != "" {
		auth = smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	if err := s.send(addr, auth, s.opts.From, []string{note.RecipientEmail}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	s.logger.Info().Stringer("alert_id", note.AlertID).Str("recipient", note.RecipientEmail).Msg("notification mailed")
	return nil
}

func buildMessage(from string, note Notification) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", note.RecipientEmail)
	fmt.Fprintf(&buf, "Subject: %s\r\n", note.Subject())
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n", writer.Boundary())
	buf.WriteString("\r\n")

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(note.Text())); err != nil {
		return nil, err
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(note.HTML())); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ Notifier = (*SMTPNotifier)(nil)
