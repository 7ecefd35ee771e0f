package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var verificationHTML = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; background: #0b0b0f; color: #e5e5e5; padding: 24px;">
  <h2>{{.Heading}}</h2>
  <p>Hi {{.Email}},</p>
  <p>Your verification code is:</p>
  <p style="font-size: 32px; letter-spacing: 8px; font-weight: bold;">{{.Code}}</p>
  <p>This code expires in 15 minutes. If you did not request it, ignore this email.</p>
</body>
</html>`))

// VerificationEmail renders the one-time code email for purpose
// ("registration", "login" or "email-change").
func VerificationEmail(code, email, purpose string) (Message, error) {
	heading := "Sign in to AnonHost"
	if purpose == "email-change" {
		heading = "Confirm your new email address"
	}

	var html bytes.Buffer
	err := verificationHTML.Execute(&html, struct {
		Heading, Email, Code string
	}{heading, email, code})
	if err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}

	return Message{
		To:      email,
		Subject: fmt.Sprintf("%s: %s", heading, code),
		Text:    fmt.Sprintf("%s\n\nYour verification code is %s. It expires in 15 minutes.", heading, code),
		HTML:    html.String(),
	}, nil
}

var welcomeHTML = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; background: #18181b; color: #c6cdd4; padding: 24px;">
  <h2 style="color: #ffffff;">Welcome to AnonHost!</h2>
  <p>Hi {{.Name}}!</p>
  <p>Your account is ready. You can now:</p>
  <ul>
    <li>Upload and share files instantly</li>
    <li>Shorten links and share them as QR codes</li>
    <li>Automate uploads with API keys</li>
  </ul>
</body>
</html>`))

// WelcomeEmail renders the message sent after a user's first sign-in.
func WelcomeEmail(email, name string) (Message, error) {
	if name == "" {
		name = "there"
	}

	var html bytes.Buffer
	if err := welcomeHTML.Execute(&html, struct{ Name string }{name}); err != nil {
		return Message{}, fmt.Errorf("render welcome email: %w", err)
	}

	return Message{
		To:      email,
		Subject: "Welcome to AnonHost!",
		Text: fmt.Sprintf("Hi %s!\n\nWelcome to AnonHost. You can now upload and share files, "+
			"shorten links and automate uploads with API keys.", name),
		HTML: html.String(),
	}, nil
}

// PlainEmail wraps operator-written text. The HTML part is the escaped text
// with line breaks preserved.
func PlainEmail(to, subject, body string) Message {
	escaped := template.HTMLEscapeString(body)
	return Message{
		To:      to,
		Subject: subject,
		Text:    body,
		HTML:    strings.ReplaceAll(escaped, "\n", "<br>"),
	}
}
