package mail

import (
	"bytes"
	"html/template"
)

var verificationTmpl = template.Must(template.New("verification").Parse(`<h2>Verify Your Signature</h2>
<p>Dear {{.Name}},</p>
<p>Thank you for signing {{.LetterTitle}}. Please verify your email address by clicking the link below:</p>
<p><a href="{{.URL}}" style="display: inline-block; padding: 12px 24px; background-color: #2563eb; color: white; text-decoration: none; border-radius: 6px;">Verify My Signature</a></p>
<p>Or copy and paste this URL into your browser:</p>
<p>{{.URL}}</p>
<p>If you did not sign this letter, please ignore this email.</p>
<br>
<p>Best regards</p>
`))

func VerificationSubject(letterTitle string) string {
	return "Verify your signature for " + letterTitle
}

// VerificationMessage builds the message asking the signer to follow
// verifyURL.
func VerificationMessage(to, name, letterTitle, verifyURL string) (Message, error) {
	var buf bytes.Buffer

	err := verificationTmpl.Execute(&buf, struct {
		Name        string
		LetterTitle string
		URL         string
	}{
		Name:        name,
		LetterTitle: letterTitle,
		URL:         verifyURL,
	})
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      to,
		Subject: VerificationSubject(letterTitle),
		HTML:    buf.String(),
	}, nil
}
