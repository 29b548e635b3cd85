// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package notify

import (
	"net/url"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"
)

// Message is a rendered plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

type tmplData struct {
	AppName   string
	Email     string
	Secret    string
	Link      string
	ValidFor  string
	ExpiresAt time.Time
}

type kindTemplate struct {
	subject *template.Template
	path    string
	body    *template.Template
}

var templates = map[Kind]kindTemplate{
	KindVerificationCode: {
		subject: template.Must(template.New("verification-code-subject").Parse("Your {{.AppName}} verification code")),
		body: template.Must(template.New("verification-code").Parse(
			`Hi,

your {{.AppName}} verification code is {{.Secret}}

It is valid for {{.ValidFor}}. If you did not start a sign-up, ignore this mail.
`)),
	},
	KindPasswordReset: {
		subject: template.Must(template.New("password-reset-subject").Parse("Reset your {{.AppName}} password")),
		path:    "/auth/reset-password",
		body: template.Must(template.New("password-reset").Parse(
			`Hi,

we received a request to reset the password for {{.Email}}.

Open this link to choose a new password:
{{.Link}}

The link is valid for {{.ValidFor}}. If you did not ask for a reset, ignore this mail;
your password stays unchanged.
`)),
	},
	KindAddPassword: {
		subject: template.Must(template.New("add-password-subject").Parse("Add a password to your {{.AppName}} account")),
		path:    "/auth/add-password",
		body: template.Must(template.New("add-password").Parse(
			`Hi,

your {{.AppName}} account {{.Email}} signs in through a social provider.
Open this link to add a password as well:
{{.Link}}

The link is valid for {{.ValidFor}}.
`)),
	},
}

// Renderer turns a Kind and Data into a Message.
type Renderer struct {
	appName string
	baseURL string
	now     func() time.Time
}

// NewRenderer creates a renderer. Links are built against baseURL.
func NewRenderer(appName, baseURL string) *Renderer {
	return &Renderer{
		appName: appName,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Render builds the message for recipient.
func (r *Renderer) Render(recipient string, kind Kind, data Data) (Message, error) {
	t, ok := templates[kind]
	if !ok {
		return Message{}, oops.Code("MAIL_KIND_UNKNOWN").With("kind", kind).Errorf("unknown mail kind %q", kind)
	}

	td := tmplData{
		AppName:   r.appName,
		Email:     recipient,
		Secret:    data.Secret,
		ValidFor:  validFor(data.ExpiresAt.Sub(r.now())),
		ExpiresAt: data.ExpiresAt,
	}
	if t.path != "" {
		q := url.Values{"token": {data.Secret}, "email": {recipient}}
		td.Link = r.baseURL + t.path + "?" + q.Encode()
	}

	subject, err := execute(t.subject, td)
	if err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("kind", kind).Wrap(err)
	}
	body, err := execute(t.body, td)
	if err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("kind", kind).Wrap(err)
	}
	return Message{To: recipient, Subject: subject, Body: body}, nil
}

func execute(t *template.Template, data tmplData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// validFor rounds d to a human unit.
func validFor(d time.Duration) string {
	switch {
	case d >= 2*time.Hour:
		return strconv.Itoa(int(d.Round(time.Hour)/time.Hour)) + " hours"
	case d >= 55*time.Minute:
		return "1 hour"
	case d > time.Minute:
		return strconv.Itoa(int(d.Round(time.Minute)/time.Minute)) + " minutes"
	default:
		return "1 minute"
	}
}
