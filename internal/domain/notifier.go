package domain

import (
	"bytes"
	"context"
	"html/template"
)

// Notifier delivers a message out of band. Callers bound it with a context
// deadline and never fail their own operation on its error.
type Notifier interface {
	Notify(ctx context.Context, address, subject, body string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, address, subject, body string) error

func (f NotifierFunc) Notify(ctx context.Context, address, subject, body string) error {
	return f(ctx, address, subject, body)
}

type requestEmail struct {
	SenderName   string
	ReceiverName string
	AcceptURL    string
	RejectURL    string
	Resent       bool
}

var requestEmailTemplate = template.Must(template.New("request").Parse(`<div style="font-family:sans-serif;padding:20px;">
  <h3>Hello {{.ReceiverName}},</h3>
  <p><strong>{{.SenderName}}</strong> {{if .Resent}}has sent you a new connection link.{{else}}has sent you a connection request.{{end}}</p>
  <a href="{{.AcceptURL}}" style="padding:10px 15px;background:#4CAF50;color:#fff;text-decoration:none;margin-right:10px;">Accept</a>
  <a href="{{.RejectURL}}" style="padding:10px 15px;background:#f44336;color:#fff;text-decoration:none;">Reject</a>
</div>`))

func renderRequestEmail(e requestEmail) (subject, body string, err error) {
	subject = "New Connection Request"
	if e.Resent {
		subject = "Resent Connection Request"
	}

	var buf bytes.Buffer
	if err := requestEmailTemplate.Execute(&buf, e); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}
