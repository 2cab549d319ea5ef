// Package notify renders mission mail and hands it to a transport.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"
)

// Message is a rendered plain-text mail.
type Message struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	CC      []string          `json:"cc,omitempty"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
	Date    time.Time         `json:"date"`
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Recipients returns To followed by CC.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.CC))
	out = append(out, m.To...)
	return append(out, m.CC...)
}

// Bytes encodes the message as an RFC 5322 document.
func (m Message) Bytes() []byte {
	var b bytes.Buffer
	writeHeader := func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	writeHeader("From", m.From)
	writeHeader("To", strings.Join(m.To, ", "))
	if len(m.CC) > 0 {
		writeHeader("Cc", strings.Join(m.CC, ", "))
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	if !m.Date.IsZero() {
		writeHeader("Date", m.Date.Format(time.RFC1123Z))
	}
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(k, m.Headers[k])
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

type priority struct {
	value string
	level string
}

var priorities = map[string]priority{
	"P1": {value: "1", level: "High"},
	"P2": {value: "3", level: "Normal"},
	"P3": {value: "5", level: "Low"},
}

// PriorityHeaders maps a mission priority to mail priority headers.
// Unknown priorities are treated as P2.
func PriorityHeaders(p string) map[string]string {
	pr, ok := priorities[strings.ToUpper(strings.TrimSpace(p))]
	if !ok {
		pr = priorities["P2"]
	}
	return map[string]string{
		"X-Priority":        pr.value,
		"X-MSMail-Priority": pr.level,
		"Importance":        pr.level,
	}
}

// Mailize turns directory names into addresses on domain. Entries that are
// already addresses are kept; blanks and duplicates are dropped.
func Mailize(names []string, domain string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !strings.Contains(n, "@") && domain != "" {
			n = n + "@" + domain
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
