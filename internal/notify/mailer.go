package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"os"
	"strconv"
	"strings"

	mail "github.com/go-mail/mail/v2"
)

// MailerConfig holds the SMTP settings of the e-mail notifier.
type MailerConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string // e.g. "Credit Agent <no-reply@example.org>"
	To            []string
	SkipTLSVerify bool
}

// MailerConfigFromEnv reads SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS, SMTP_FROM,
// SMTP_SKIP_TLS_VERIFY and NOTIFY_EMAIL (comma separated recipients).
func MailerConfigFromEnv() MailerConfig {
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if port == 0 {
		port = 587
	}
	return MailerConfig{
		Host:          os.Getenv("SMTP_HOST"),
		Port:          port,
		User:          os.Getenv("SMTP_USER"),
		Pass:          os.Getenv("SMTP_PASS"),
		From:          os.Getenv("SMTP_FROM"),
		To:            SplitRecipients(os.Getenv("NOTIFY_EMAIL")),
		SkipTLSVerify: os.Getenv("SMTP_SKIP_TLS_VERIFY") == "1",
	}
}

// SplitRecipients splits a comma separated address list, dropping blanks.
func SplitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Enabled reports whether the config names a server, a sender and at least one recipient.
func (c MailerConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// Mailer sends the run summary as an HTML e-mail.
type Mailer struct {
	cfg  MailerConfig
	send func(m *mail.Message) error
}

// NewMailer creates a Mailer using STARTTLS on the configured server.
func NewMailer(cfg MailerConfig) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("no notification recipients (NOTIFY_EMAIL)")
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // opt-in for self-signed relays
	}

	return &Mailer{cfg: cfg, send: func(m *mail.Message) error { return d.DialAndSend(m) }}, nil
}

// Notify sends s to the configured recipients.
func (m *Mailer) Notify(ctx context.Context, s Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderSummary(s)
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", subject(s))
	msg.SetBody("text/html", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func subject(s Summary) string {
	if s.Success() {
		return "Credit run finished: " + s.Title
	}
	return "Credit run aborted: " + s.Title
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<div style="font-family:Arial,sans-serif;color:#111827;">
<h2 style="margin:0 0 16px 0;">{{.Title}}</h2>
{{if .RunID}}<p style="margin:0 0 12px 0;color:#6b7280;">Run {{.RunID}}</p>{{end}}
<table role="presentation" cellpadding="0" cellspacing="0" style="border:1px solid #e5e7eb;">
<tbody>
{{range .Lines}}<tr><td style="padding:8px 16px;">{{.}}</td></tr>
{{end}}</tbody>
</table>
{{if .Warnings}}<h3 style="margin:24px 0 8px 0;">Warnings</h3>
<ul>
{{range .Warnings}}<li>{{.}}</li>
{{end}}</ul>{{end}}
</div>`))

func renderSummary(s Summary) (string, error) {
	var sb strings.Builder
	if err := summaryTemplate.Execute(&sb, s); err != nil {
		return "", err
	}
	return sb.String(), nil
}
