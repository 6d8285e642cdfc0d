package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"protocolo-municipal/internal/records"
)

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers notifications as HTML mail through an SMTP relay.
type Email struct {
	cfg  SMTPConfig
	send sendMailFunc
}

func NewEmail(cfg SMTPConfig) (*Email, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("notify: SMTP host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Email{cfg: cfg, send: smtp.SendMail}, nil
}

func (e *Email) Name() string { return "email" }

var emailBody = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #1d2327;">
<h2 style="margin-bottom: 4px;">{{.Title}}</h2>
{{if .Numero}}<p style="color: #50575e;">Protocolo {{.Numero}}</p>{{end}}
<p>{{.Message}}</p>
{{if .Urgent}}<p style="color: #d63638;"><strong>Prioridade: {{.Priority}}</strong></p>{{end}}
<hr>
<p style="font-size: 12px; color: #787c82;">Mensagem automática do sistema de protocolo. Não responda este e-mail.</p>
</body></html>`))

func (e *Email) Send(ctx context.Context, n Notification) error {
	if len(n.Recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := e.render(n)
	if err != nil {
		return err
	}

	var a smtp.Auth
	if e.cfg.User != "" {
		a = smtp.PlainAuth("", e.cfg.User, e.cfg.Password, e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	return e.send(addr, a, e.cfg.From, n.Recipients, msg)
}

func subjectFor(n Notification) string {
	if n.Numero == "" {
		return n.Title
	}
	return fmt.Sprintf("[Protocolo %s] %s", n.Numero, n.Title)
}

func (e *Email) render(n Notification) ([]byte, error) {
	var body bytes.Buffer
	urgent := n.Priority.Rank() >= records.PriorityAlta.Rank()
	if err := emailBody.Execute(&body, struct {
		Notification
		Urgent bool
	}{n, urgent}); err != nil {
		return nil, err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subjectFor(n)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	if n.Priority == records.PriorityUrgente {
		b.WriteString("X-Priority: 1 (Highest)\r\n")
		b.WriteString("Importance: High\r\n")
	}
	b.WriteString("\r\n")
	b.Write(body.Bytes())
	return b.Bytes(), nil
}
