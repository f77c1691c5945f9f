package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrNoRecipients = errors.New("email_no_recipients")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, send: smtp.SendMail}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	return p.send(addr, auth, p.cfg.From, to, buildMessage(p.cfg.From, to, subject, htmlBody))
}

func (p *SMTPProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	body, err := Render(templateName, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, to, subjectFor(templateName, data), body)
}

// Render executes one of the embedded templates.
func Render(templateName string, data map[string]any) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName+".html", data); err != nil {
		return "", fmt.Errorf("render template %s: %w", templateName, err)
	}
	return body.String(), nil
}

func subjectFor(templateName string, data map[string]any) string {
	if subj, ok := data["subject"].(string); ok && subj != "" {
		return subj
	}
	switch templateName {
	case "invoice_sent":
		if ref, ok := data["reference"].(string); ok && ref != "" {
			return fmt.Sprintf("Invoice %s", ref)
		}
		return "New invoice"
	}
	return "Notification"
}

func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
