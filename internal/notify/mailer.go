package notify

import (
	"context"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Mailer dispatches messages over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer constructs an SMTP dispatcher.
func NewMailer(cfg SMTPConfig) *Mailer {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   from,
	}
}

// Send delivers one message to all recipients.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", msg.Recipients...)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/plain", msg.Body)
	return m.dialer.DialAndSend(message)
}
