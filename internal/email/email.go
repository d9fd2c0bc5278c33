package email

import (
	"errors"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Sender sends plain-text mail.
type Sender interface {
	SendText(to, subject, body string) error
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) SendText(to, subject, body string) error {
	if !s.cfg.Enabled() {
		return errors.New("smtp not configured")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	return d.DialAndSend(m)
}

func WelcomeMessage(username string) (subject, body string) {
	subject = "Welcome to Roleplay Chat, your account is ready"
	body = "Hello " + username + ",\n\n" +
		"Your account has been created. Pick a character and start chatting.\n\n" +
		"If you did not request this account, please contact support.\n\n" +
		"Roleplay Chat\n"
	return subject, body
}
