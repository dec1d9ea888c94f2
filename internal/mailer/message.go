package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

// ErrNoRecipients indicates a message without any recipient.
var ErrNoRecipients = errors.New("mailer.no_recipients")

// Message is an HTML email queued for delivery.
type Message struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	HTMLBody   string   `json:"html_body"`
}

// Validate reports whether message can be delivered.
func (message Message) Validate() error {
	for _, recipient := range message.Recipients {
		if strings.TrimSpace(recipient) != "" {
			return nil
		}
	}
	return ErrNoRecipients
}

var (
	verificationTemplate = template.Must(template.New("verify").Parse(
		`<h1>Verify your Email</h1>
<p>Please click this <a href="{{.Link}}">link</a> to verify your email</p>
`))
	passwordResetTemplate = template.Must(template.New("reset").Parse(
		`<h1>Reset Your Password</h1>
<p>Please click this <a href="{{.Link}}">link</a> to Reset Your Password</p>
`))
)

// VerificationMessage composes the email sent after signup.
func VerificationMessage(recipient string, link string) (Message, error) {
	return render(recipient, "Verify Your email", verificationTemplate, link)
}

// PasswordResetMessage composes the password reset email.
func PasswordResetMessage(recipient string, link string) (Message, error) {
	return render(recipient, "Reset Your Password", passwordResetTemplate, link)
}

func render(recipient string, subject string, body *template.Template, link string) (Message, error) {
	var buffer bytes.Buffer
	if err := body.Execute(&buffer, struct{ Link string }{Link: link}); err != nil {
		return Message{}, fmt.Errorf("mailer.render.%s: %w", body.Name(), err)
	}
	return Message{
		Recipients: []string{recipient},
		Subject:    subject,
		HTMLBody:   buffer.String(),
	}, nil
}
