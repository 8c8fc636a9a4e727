package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"workflow-dashboard/internal/config"
)

type smtpDialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSender sends verification mails through an SMTP relay.
type SMTPSender struct {
	client smtpDialer
	from   string
	logger *zap.Logger
}

func NewSMTPSender(cfg config.MailConfig, logger *zap.Logger) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.SMTPPort == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPass))
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	logger.Info("SMTP mailer initialized",
		zap.String("host", cfg.SMTPHost),
		zap.Int("port", cfg.SMTPPort))

	return &SMTPSender{client: client, from: cfg.From, logger: logger}, nil
}

func (s *SMTPSender) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	content, err := Render(code, ttl)
	if err != nil {
		return err
	}

	msg, err := s.buildMessage(to, content)
	if err != nil {
		return err
	}

	startTime := time.Now()
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("Failed to send verification mail",
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))
		return fmt.Errorf("failed to send mail: %w", err)
	}

	s.logger.Info("Verification mail sent",
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

func (s *SMTPSender) buildMessage(to string, content Content) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat("n8n Manager", s.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(content.Subject)
	msg.SetBodyString(mail.TypeTextPlain, content.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, content.HTML)
	return msg, nil
}
