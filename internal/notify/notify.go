// Package notify sends moderation email via SMTP.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"

	"quill/api/internal/store"
)

// Config holds SMTP configuration. Moderators is the recipient list for
// moderation notices.
type Config struct {
	Host       string
	Port       string
	Username   string
	Password   string
	From       string
	FromName   string
	Moderators []string
}

// Service sends moderation notices. A zero-config service is a no-op.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured reports whether the service can actually send mail.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != "" && len(s.config.Moderators) > 0
}

// CommentWaiting notifies the moderators that a comment entered the waiting
// state. Delivery runs in the background; failures are logged and dropped.
func (s *Service) CommentWaiting(kindName string, comment store.Comment) {
	if !s.IsConfigured() {
		return
	}

	data := commentWaitingData{
		AppName:    "Quill",
		Kind:       kindName,
		CommentID:  comment.ID,
		DocumentID: comment.DocumentID,
		Title:      comment.Title,
		Body:       comment.Body,
	}
	html, err := renderTemplate(commentWaitingTemplate, data)
	if err != nil {
		log.Printf("notify: render comment template: %v", err)
		return
	}
	subject := fmt.Sprintf("[Quill] Comment awaiting moderation on %s", kindName)

	go func() {
		if err := s.SendHTMLEmail(s.config.Moderators, subject, html); err != nil {
			log.Printf("notify: comment %s: %v", comment.ID, err)
		}
	}()
}

// SendEmail sends a plain text email.
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends a multipart email with an HTML body.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-quill"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type commentWaitingData struct {
	AppName    string
	Kind       string
	CommentID  string
	DocumentID string
	Title      string
	Body       string
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const commentWaitingTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Comment awaiting moderation</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .comment { background: #f6f8fa; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .meta { font-size: 12px; color: #666; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>A comment is waiting for moderation</h2>

    <p>A new comment on a <strong>{{.Kind}}</strong> document needs review before it becomes visible.</p>

    <div class="comment">
        {{if .Title}}<p><strong>{{.Title}}</strong></p>{{end}}
        <p>{{.Body}}</p>
        <p class="meta">comment {{.CommentID}} on document {{.DocumentID}}</p>
    </div>

    <div class="footer">
        <p>Open the moderation queue to accept or reject this comment.</p>
    </div>
</body>
</html>`
