package notification

import (
	"bytes"
	"html/template"
	"strings"
)

// Mail levels select the accent colour of the action button.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

// MailMessage is a line-oriented transactional email, built fluently:
//
//	NewMail().WithSubject("...").WithGreeting("Hello").Line("...").Action("Open", url)
type MailMessage struct {
	Subject    string
	Greeting   string
	IntroLines []string
	ActionText string
	ActionURL  string
	OutroLines []string
	Salutation string
	Level      string
}

func NewMail() *MailMessage {
	return &MailMessage{Level: LevelInfo, Salutation: "Regards,\nCareLink"}
}

func (m *MailMessage) WithSubject(s string) *MailMessage { m.Subject = s; return m }

func (m *MailMessage) WithGreeting(s string) *MailMessage { m.Greeting = s; return m }

func (m *MailMessage) WithLevel(l string) *MailMessage { m.Level = l; return m }

func (m *MailMessage) WithSalutation(s string) *MailMessage { m.Salutation = s; return m }

// Line appends a paragraph before the action, or after it once an action is set.
func (m *MailMessage) Line(s string) *MailMessage {
	if m.ActionURL == "" {
		m.IntroLines = append(m.IntroLines, s)
	} else {
		m.OutroLines = append(m.OutroLines, s)
	}
	return m
}

func (m *MailMessage) Action(text, url string) *MailMessage {
	m.ActionText = text
	m.ActionURL = url
	return m
}

var mailTemplate = template.Must(template.New("mail").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933;">
{{if .Greeting}}<h1 style="font-size:18px;">{{.Greeting}}</h1>{{end}}
{{range .IntroLines}}<p>{{.}}</p>
{{end}}{{if .ActionURL}}<p><a href="{{.ActionURL}}" style="display:inline-block;padding:10px 18px;color:#fff;background:{{.Color}};border-radius:4px;text-decoration:none;">{{.ActionText}}</a></p>
{{end}}{{range .OutroLines}}<p>{{.}}</p>
{{end}}{{if .Salutation}}<p>{{range .SalutationLines}}{{.}}<br>{{end}}</p>{{end}}
</body></html>`))

func (m *MailMessage) color() string {
	switch m.Level {
	case LevelSuccess:
		return "#2f855a"
	case LevelError:
		return "#c53030"
	default:
		return "#2b6cb0"
	}
}

// Render produces the HTML and plain-text bodies.
func (m *MailMessage) Render() (html, text string, err error) {
	var buf bytes.Buffer
	err = mailTemplate.Execute(&buf, struct {
		*MailMessage
		Color           string
		SalutationLines []string
	}{m, m.color(), strings.Split(m.Salutation, "\n")})
	if err != nil {
		return "", "", err
	}
	return buf.String(), m.Text(), nil
}

// Text is the plain-text alternative body.
func (m *MailMessage) Text() string {
	var b strings.Builder
	if m.Greeting != "" {
		b.WriteString(m.Greeting)
		b.WriteString("\n\n")
	}
	for _, l := range m.IntroLines {
		b.WriteString(l)
		b.WriteString("\n\n")
	}
	if m.ActionURL != "" {
		b.WriteString(m.ActionText)
		b.WriteString(": ")
		b.WriteString(m.ActionURL)
		b.WriteString("\n\n")
	}
	for _, l := range m.OutroLines {
		b.WriteString(l)
		b.WriteString("\n\n")
	}
	if m.Salutation != "" {
		b.WriteString(m.Salutation)
		b.WriteString("\n")
	}
	return b.String()
}
