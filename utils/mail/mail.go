package mail

import (
	"bytes"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"

	gomail "gopkg.in/gomail.v2"

	"github.com/joy095/dispatch/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

const BookingTemplate = "booking_notification.html"

// SMTPConfig is the dialer configuration.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender delivers one prepared message.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	from      string
	sender    Sender
	templates *template.Template
}

// NewMailer parses the embedded templates and builds an SMTP dialer.
func NewMailer(cfg SMTPConfig) (*Mailer, error) {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return NewMailerWithSender(cfg.From, dialer)
}

// NewMailerWithSender is NewMailer with an explicit transport.
func NewMailerWithSender(from string, sender Sender) (*Mailer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &Mailer{from: from, sender: sender, templates: t}, nil
}

// Render executes the named template.
func (m *Mailer) Render(name string, data any) (string, error) {
	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, name, data); err != nil {
		logger.ErrorLogger.Errorf("Failed to execute email template %s: %v", name, err)
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return body.String(), nil
}

// Send renders the template and delivers it to toEmail.
func (m *Mailer) Send(toEmail, subject, templateName string, data any) error {
	body, err := m.Render(templateName, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		logger.ErrorLogger.Errorf("Failed to send email to %s: %v", toEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.InfoLogger.Infof("Email %q sent to %s", subject, toEmail)
	return nil
}
