package mail

import (
	"bytes"
	"html/template"
)

const layout = `<!DOCTYPE html>
<html>
  <head><meta charset="utf-8"></head>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      {{template "content" .}}
      <p style="margin-top: 40px; font-size: 12px; color: #666;">If you did not request this email you can ignore it.</p>
    </div>
  </body>
</html>
{{define "button"}}<p><a href="{{.Link}}" style="display: inline-block; padding: 12px 24px; background-color: #007bff; color: #fff; text-decoration: none; border-radius: 4px;">{{.Label}}</a></p>
<p>Or paste this link into your browser:<br><a href="{{.Link}}">{{.Link}}</a></p>{{end}}`

var (
	verificationTmpl = template.Must(template.Must(template.New("verify").Parse(layout)).Parse(
		`{{define "content"}}<h2>Confirm your email address</h2>
<p>Hello {{.Username}},</p>
<p>Thanks for signing up. Confirm your email address to finish setting up your account.</p>
{{template "button" .}}{{end}}`))

	resetTmpl = template.Must(template.Must(template.New("reset").Parse(layout)).Parse(
		`{{define "content"}}<h2>Reset your password</h2>
<p>Hello {{.Username}},</p>
<p>We received a request to reset your password. The link below is valid for one hour and can be used once.</p>
{{template "button" .}}{{end}}`))
)

type linkData struct {
	Username string
	Link     string
	Label    string
}

func render(t *template.Template, data linkData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// VerificationEmail builds the message sent after registration.
func VerificationEmail(to, username, link string) (Message, error) {
	html, err := render(verificationTmpl, linkData{Username: username, Link: link, Label: "Verify email"})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Verify your email address", HTML: html}, nil
}

// PasswordResetEmail builds the message carrying a password reset link.
func PasswordResetEmail(to, username, link string) (Message, error) {
	html, err := render(resetTmpl, linkData{Username: username, Link: link, Label: "Reset password"})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Reset your password", HTML: html}, nil
}
