package mail

import (
	"fmt"
	"text/template"

	"github.com/valyala/bytebufferpool"
)

var twoFactorCodeTmpl = template.Must(template.New("2fa-code").Parse(`Hello {{.Name}},

Your {{.SiteName}} verification code is {{.Code}}.
It expires in {{.ExpireMinutes}} minutes.

If you did not try to sign in, change your password.
`))

type TwoFactorCodeParams struct {
	SiteName      string
	Name          string
	Code          string
	ExpireMinutes int
}

func renderText(tmpl *template.Template, data any) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TwoFactorCodeMessage builds the mail carrying an email sign-in code.
func TwoFactorCodeMessage(toEmail string, data TwoFactorCodeParams) (*Message, error) {
	body, err := renderText(twoFactorCodeTmpl, data)
	if err != nil {
		return nil, err
	}
	return &Message{
		To:      []string{toEmail},
		Subject: fmt.Sprintf("%s is your %s verification code", data.Code, data.SiteName),
		Body:    body,
	}, nil
}
