package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

var errMissingSMTPHost = errors.New("mailer.smtp.missing_host")

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// SMTPConfig describes the outbound mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender delivers mail over SMTP with STARTTLS.
type SMTPSender struct {
	configuration SMTPConfig
	client        *mail.Client
}

// NewSMTPSender builds a client for configuration. Credentials are optional.
func NewSMTPSender(configuration SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(configuration.Host) == "" {
		return nil, errMissingSMTPHost
	}
	port := configuration.Port
	if port == 0 {
		port = 587
	}
	options := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if configuration.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(configuration.Username),
			mail.WithPassword(configuration.Password),
		)
	}
	client, err := mail.NewClient(configuration.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("mailer.smtp.client: %w", err)
	}
	return &SMTPSender{configuration: configuration, client: client}, nil
}

// Send dials the server and delivers message.
func (sender *SMTPSender) Send(ctx context.Context, message Message) error {
	outbound, buildErr := buildMessage(sender.configuration, message)
	if buildErr != nil {
		return buildErr
	}
	if err := sender.client.DialAndSendWithContext(ctx, outbound); err != nil {
		return fmt.Errorf("mailer.smtp.send: %w", err)
	}
	return nil
}

func buildMessage(configuration SMTPConfig, message Message) (*mail.Msg, error) {
	if err := message.Validate(); err != nil {
		return nil, err
	}
	outbound := mail.NewMsg()
	if err := outbound.FromFormat(configuration.FromName, configuration.From); err != nil {
		return nil, fmt.Errorf("mailer.build.from: %w", err)
	}
	if err := outbound.To(message.Recipients...); err != nil {
		return nil, fmt.Errorf("mailer.build.to: %w", err)
	}
	outbound.Subject(message.Subject)
	outbound.SetBodyString(mail.TypeTextHTML, message.HTMLBody)
	return outbound, nil
}

// LogSender records messages instead of delivering them. Used when no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message envelope.
func (sender *LogSender) Send(ctx context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	sender.logger.Info("email not delivered; smtp disabled",
		zap.String("code", "mailer.log_only"),
		zap.Strings("recipients", message.Recipients),
		zap.String("subject", message.Subject))
	return nil
}
