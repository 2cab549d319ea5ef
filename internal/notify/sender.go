package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/charmbracelet/log"
)

// SMTP delivers mail through a relay.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (s SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := smtp.SendMail(addr, auth, msg.From, msg.Recipients(), msg.Bytes()); err != nil {
		return fmt.Errorf("smtp %s: %w", addr, err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Logger *log.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("mail", "subject", msg.Subject, "to", msg.To, "cc", msg.CC)
	s.Logger.Debug("mail body", "subject", msg.Subject, "body", msg.Body)
	return nil
}
