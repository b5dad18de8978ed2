package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"
)

const DigestTemplate = "cadence_digest"

// DigestItem is one contact that needs attention today.
type DigestItem struct {
	ContactName string
	Company     string
	CadenceName string
	CurrentDay  int
	DueOn       string
	Overdue     bool
	Steps       []string
}

type Digest struct {
	RecipientName  string
	RecipientEmail string
	Date           string
	Items          []DigestItem
	Year           int
}

// Embedded email templates
var emailTemplates = map[string]string{
	DigestTemplate: `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your cadence tasks for {{.Date}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .item { margin: 12px 0; padding: 10px; border: 1px solid #eee; border-radius: 4px; }
        .overdue { color: #e74c3c; font-weight: bold; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{len .Items}} contact(s) need attention today</h2>
    </div>

    <p>Hello {{.RecipientName}},</p>
    {{range .Items}}
    <div class="item">
        <strong>{{.ContactName}}</strong>{{if .Company}} ({{.Company}}){{end}}<br>
        {{.CadenceName}}, day {{.CurrentDay}}, due {{.DueOn}}{{if .Overdue}} <span class="overdue">overdue</span>{{end}}
        <ul>{{range .Steps}}<li>{{.}}</li>{{end}}</ul>
    </div>
    {{end}}

    <div class="footer">
        <p>© {{.Year}} Cadenceflow. You receive this because you own active cadences.</p>
    </div>
</body>
</html>`,
}

var parsedTemplates = func() map[string]*template.Template {
	parsed := make(map[string]*template.Template, len(emailTemplates))
	for name, content := range emailTemplates {
		parsed[name] = template.Must(template.New(name).Parse(content))
	}
	return parsed
}()

func renderTemplate(name string, data interface{}) (string, error) {
	tmpl, ok := parsedTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

// RenderDigest renders the HTML body of a digest email.
func RenderDigest(digest Digest) (string, error) {
	return renderTemplate(DigestTemplate, digest)
}

type SMTPSettings struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// Mailer sends rendered emails over SMTP.
type Mailer struct {
	from string
	send func(*gomail.Message) error
}

func NewMailer(settings SMTPSettings) *Mailer {
	dialer := gomail.NewDialer(settings.Host, settings.Port, settings.Username, settings.Password)
	return &Mailer{
		from: formatFrom(settings),
		send: func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

// NewMailerWithSender sends through s instead of dialing SMTP.
func NewMailerWithSender(settings SMTPSettings, s gomail.Sender) *Mailer {
	return &Mailer{
		from: formatFrom(settings),
		send: func(m *gomail.Message) error { return gomail.Send(s, m) },
	}
}

func formatFrom(settings SMTPSettings) string {
	if settings.FromName == "" {
		return settings.FromEmail
	}
	return fmt.Sprintf("%s <%s>", settings.FromName, settings.FromEmail)
}

func (m *Mailer) SendDigest(digest Digest) error {
	if digest.RecipientEmail == "" {
		return fmt.Errorf("digest has no recipient")
	}
	body, err := RenderDigest(digest)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", digest.RecipientEmail)
	msg.SetHeader("Subject", fmt.Sprintf("Your cadence tasks for %s", digest.Date))
	msg.SetBody("text/html", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
