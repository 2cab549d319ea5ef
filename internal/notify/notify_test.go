package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ares/internal/domain"
	"ares/internal/logging"
)

func fixedComposer() Composer {
	return Composer{
		From:   "ares@example.com",
		Domain: "example.com",
		Now:    func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) },
	}
}

func TestStatusSubjectAndPriority(t *testing.T) {
	m := domain.Mission{ScriptName: "ACME-Boot", Status: domain.StatusAssess, Phase: "assess", Priority: "P1", Link: "http://ares.local/mission/create/ACME-Boot/edit"}
	msg, err := fixedComposer().Status(Envelope{To: []string{"olive"}, CC: []string{"ann", "olive", " "}}, Content{Mission: m, Type: domain.LocationCreate, Comment: "please assess"})
	require.NoError(t, err)

	assert.Equal(t, "Script Mission Create - ACME-Boot [Assess]", msg.Subject)
	assert.Equal(t, []string{"olive@example.com"}, msg.To)
	assert.Equal(t, []string{"ann@example.com", "olive@example.com"}, msg.CC)
	assert.Equal(t, "1", msg.Headers["X-Priority"])
	assert.Equal(t, "High", msg.Headers["Importance"])
	assert.Contains(t, msg.Body, "please assess")
	assert.Contains(t, msg.Body, m.Link)
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "fail", StatusTag(domain.Mission{Status: domain.StatusDevelopment, Phase: "validation-fail"}))
	assert.Equal(t, "pass", StatusTag(domain.Mission{Status: domain.StatusEditReadme, Phase: "validation-pass"}))
	assert.Equal(t, "edit-readme", StatusTag(domain.Mission{Status: domain.StatusEditReadme, Phase: "edit-readme"}))
}

func TestPriorityHeadersDefaultToNormal(t *testing.T) {
	assert.Equal(t, "5", PriorityHeaders("p3")["X-Priority"])
	h := PriorityHeaders("")
	assert.Equal(t, "3", h["X-Priority"])
	assert.Equal(t, "Normal", h["X-MSMail-Priority"])
}

func TestMailize(t *testing.T) {
	got := Mailize([]string{"ann", "", "Ann@example.com", "ops@corp.io", "bob"}, "example.com")
	assert.Equal(t, []string{"ann@example.com", "ops@corp.io", "bob@example.com"}, got)
}

func TestComposeWithoutRecipients(t *testing.T) {
	_, err := fixedComposer().Remind(Envelope{}, Content{Mission: domain.Mission{ScriptName: "X"}})
	require.Error(t, err)
}

func TestComposeFallsBackToCC(t *testing.T) {
	msg, err := fixedComposer().Release(Envelope{CC: []string{"all@corp.io"}}, Content{Mission: domain.Mission{ScriptName: "X", ScriptVersion: "1.0.0"}, Readme: "# X"})
	require.NoError(t, err)
	assert.Equal(t, "X Released [v1.0.0]", msg.Subject)
	assert.Equal(t, []string{"all@corp.io"}, msg.To)
	assert.Empty(t, msg.CC)
	assert.Equal(t, "High", msg.Headers["Importance"])
}

func TestRescheduleAndRotateBodies(t *testing.T) {
	c := fixedComposer()
	m := domain.Mission{ScriptName: "X", TEName: "tia;tom", Schedules: domain.Schedules{Development: "2026-04-01"}}
	prev := domain.Schedules{Development: "2026-03-20"}
	msg, err := c.Reschedule(Envelope{To: []string{"ann"}}, Content{Mission: m, Submitter: "ann", Previous: &prev})
	require.NoError(t, err)
	assert.Equal(t, "Script Mission Postpone - X [Re-scheduled]", msg.Subject)
	assert.Contains(t, msg.Body, "2026-03-20")
	assert.Contains(t, msg.Body, "2026-04-01")

	msg, err = c.Rotate(Envelope{To: []string{"ann"}}, Content{Mission: m, Submitter: "ann", Removed: []string{"rex", "max"}})
	require.NoError(t, err)
	assert.Equal(t, "Script Mission Rotation - X [Tester-rotate]", msg.Subject)
	assert.Contains(t, msg.Body, "rex, max")
}

func TestMessageBytes(t *testing.T) {
	msg := Message{
		From:    "ares@example.com",
		To:      []string{"a@example.com"},
		CC:      []string{"b@example.com"},
		Subject: "hello",
		Body:    "line1\nline2",
		Headers: map[string]string{"X-Priority": "3"},
	}
	raw := string(msg.Bytes())
	assert.True(t, strings.HasPrefix(raw, "From: ares@example.com\r\n"))
	assert.Contains(t, raw, "Cc: b@example.com\r\n")
	assert.Contains(t, raw, "X-Priority: 3\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline1\r\nline2"))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, msg.Recipients())
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: logging.New(&buf, logging.Options{Format: "json"})}
	require.NoError(t, s.Send(context.Background(), Message{Subject: "hi", To: []string{"a@example.com"}}))
	assert.Contains(t, buf.String(), `"subject":"hi"`)
}
