package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
)

// EmailNotifier delivers alerts over SMTP, one message per alert.
type EmailNotifier struct {
	smtpHost string
	smtpPort int
	username string
	password string
	to       []string
	useTLS   bool
}

// EmailConfig holds the SMTP settings of an EmailNotifier.
type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	To       []string
	UseTLS   bool
}

// NewEmail creates a notifier from cfg. SMTPHost and at least one
// recipient are required.
func NewEmail(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.SMTPHost == "" || len(cfg.To) == 0 {
		return nil, goerr.New("email notifier requires smtp host and recipients",
			goerr.T(types.TagConfig))
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	return &EmailNotifier{
		smtpHost: cfg.SMTPHost,
		smtpPort: port,
		username: cfg.Username,
		password: cfg.Password,
		to:       cfg.To,
		useTLS:   cfg.UseTLS,
	}, nil
}

func (n *EmailNotifier) Channel() string { return "email" }

func (n *EmailNotifier) Send(_ context.Context, alert *model.Alert) error {
	headers := []string{
		"Subject: [lookout] " + alert.Event.Title,
		"From: " + n.username,
		"To: " + strings.Join(n.to, ", "),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" +
		strings.ReplaceAll(alert.Content, "\n", "\r\n")

	addr := fmt.Sprintf("%s:%d", n.smtpHost, n.smtpPort)
	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.smtpHost)
	}

	var err error
	if n.useTLS {
		err = n.sendTLS(addr, auth, msg)
	} else {
		err = smtp.SendMail(addr, auth, n.username, n.to, []byte(msg))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to send email",
			goerr.T(types.TagNotify), goerr.V("fingerprint", alert.Fingerprint))
	}
	return nil
}

func (n *EmailNotifier) sendTLS(addr string, auth smtp.Auth, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.smtpHost})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.smtpHost)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(n.username); err != nil {
		return err
	}
	for _, rcpt := range n.to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(wc, msg); err != nil {
		return err
	}
	return wc.Close()
}
