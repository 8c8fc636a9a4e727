// Package mailer delivers one-time verification codes.
//
// Three transports exist: SMTP, a Kafka hand-off consumed by a separate mail
// worker (see Relay), and a log-only sender for development.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"math"
	"text/template"
	"time"

	"go.uber.org/zap"
)

var ErrDeliveryTimeout = errors.New("mail delivery timed out")

// Sender delivers a verification code to one address.
type Sender interface {
	SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error
}

// Content is a rendered verification mail.
type Content struct {
	Subject string
	Text    string
	HTML    string
}

type templateData struct {
	Code    string
	Minutes int
}

var textTemplate = template.Must(template.New("text").Parse(
	`Your n8n Manager verification code is {{.Code}}.

It expires in {{.Minutes}} minutes. If you did not try to sign in, ignore this message.
`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="color: #1f2937;">Verification code</h1>
    <p>Use the code below to finish signing in to <strong>n8n Workflow Manager</strong>.</p>
    <div style="font-size: 32px; font-weight: bold; color: #2563eb; text-align: center; letter-spacing: 8px; padding: 20px; background-color: #f0f9ff; border-radius: 8px;">{{.Code}}</div>
    <p style="background-color: #fef3c7; border-left: 4px solid #f59e0b; padding: 12px;">This code expires in {{.Minutes}} minutes and can be used once.</p>
    <p style="color: #666; font-size: 12px;">If you did not try to sign in, ignore this message.</p>
  </div>
</body>
</html>
`))

// Render builds the subject and both bodies for code.
func Render(code string, ttl time.Duration) (Content, error) {
	data := templateData{Code: code, Minutes: int(math.Ceil(ttl.Minutes()))}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, data); err != nil {
		return Content{}, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return Content{}, fmt.Errorf("failed to render html body: %w", err)
	}

	return Content{
		Subject: "Your verification code - n8n Manager",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

type timeoutSender struct {
	next    Sender
	timeout time.Duration
}

// WithTimeout bounds every delivery by d.
func WithTimeout(next Sender, d time.Duration) Sender {
	if d <= 0 {
		return next
	}
	return &timeoutSender{next: next, timeout: d}
}

func (s *timeoutSender) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.next.SendVerificationCode(ctx, to, code, ttl) }()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrDeliveryTimeout, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrDeliveryTimeout
		}
		return ctx.Err()
	}
}

// LogSender writes codes to the log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationCode(_ context.Context, to, code string, ttl time.Duration) error {
	s.logger.Warn("Verification code not mailed (log transport)",
		zap.String("to", to),
		zap.String("code", code),
		zap.Duration("ttl", ttl))
	return nil
}
