package notify

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"ares/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"join": strings.Join,
}).ParseFS(templatesFS, "templates/*.tmpl"))

// Composer renders mission mail. Names are turned into addresses on Domain.
type Composer struct {
	From   string
	Domain string
	Now    func() time.Time
}

// Envelope holds the unresolved receiver names of a message.
type Envelope struct {
	To []string
	CC []string
}

// Content is the data a mail template is rendered with.
type Content struct {
	Mission   domain.Mission
	Type      domain.Location
	Submitter string
	Comment   string
	Previous  *domain.Schedules
	Removed   []string
	Days      int
	Readme    string
}

// Status renders a status-change notification.
func (c Composer) Status(env Envelope, data Content) (Message, error) {
	subject := fmt.Sprintf("Script Mission %s - %s [%s]", capitalize(string(data.Type)), data.Mission.ScriptName, capitalize(StatusTag(data.Mission)))
	return c.compose("status", subject, env, data, PriorityHeaders(data.Mission.Priority))
}

func (c Composer) Reschedule(env Envelope, data Content) (Message, error) {
	subject := fmt.Sprintf("Script Mission Postpone - %s [Re-scheduled]", data.Mission.ScriptName)
	return c.compose("reschedule", subject, env, data, nil)
}

func (c Composer) Rotate(env Envelope, data Content) (Message, error) {
	subject := fmt.Sprintf("Script Mission Rotation - %s [Tester-rotate]", data.Mission.ScriptName)
	return c.compose("rotate", subject, env, data, nil)
}

func (c Composer) Remind(env Envelope, data Content) (Message, error) {
	subject := fmt.Sprintf("Script Mission Remind - %s [Due]", data.Mission.ScriptName)
	return c.compose("remind", subject, env, data, PriorityHeaders(data.Mission.Priority))
}

// Release renders the release announcement. It always goes out as P1.
func (c Composer) Release(env Envelope, data Content) (Message, error) {
	subject := fmt.Sprintf("%s Released [v%s]", data.Mission.ScriptName, data.Mission.ScriptVersion)
	return c.compose("release", subject, env, data, PriorityHeaders("P1"))
}

func (c Composer) compose(tmpl, subject string, env Envelope, data Content, headers map[string]string) (Message, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return Message{}, fmt.Errorf("render %s mail: %w", tmpl, err)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	msg := Message{
		From:    c.From,
		To:      Mailize(env.To, c.Domain),
		CC:      Mailize(env.CC, c.Domain),
		Subject: subject,
		Body:    body.String(),
		Headers: headers,
		Date:    now(),
	}
	if len(msg.To) == 0 {
		msg.To, msg.CC = msg.CC, nil
	}
	if len(msg.To) == 0 {
		return Message{}, fmt.Errorf("%s mail for %s has no recipients", tmpl, data.Mission.ScriptName)
	}
	return msg, nil
}

// StatusTag is the bracketed tag of a status subject: the verdict of a
// validation-* phase, otherwise the status.
func StatusTag(m domain.Mission) string {
	if strings.Contains(m.Phase, "validation-") {
		parts := strings.Split(m.Phase, "-")
		return parts[len(parts)-1]
	}
	return string(m.Status)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
