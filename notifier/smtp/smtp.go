// Package smtp delivers verification codes over email using a plain SMTP
// relay with STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Config holds the relay connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Notifier sends one message per Send call. It dials per message, so a dead
// relay costs one request its delivery, never a shared connection.
type Notifier struct {
	config Config
}

func New(config Config) *Notifier {
	return &Notifier{config: config}
}

// Send emails the message to recipient, branded with the app's name. The ctx
// deadline bounds the dial and is applied to the whole SMTP conversation.
func (n *Notifier) Send(ctx context.Context, appName, recipient, message string) error {
	dialer := &net.Dialer{}

	conn, err := dialer.DialContext(ctx, "tcp", n.config.addr())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to dial SMTP relay")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		conn.Close()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open SMTP session")
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.config.Host}); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to start TLS")
		}
	}

	auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	if err := client.Auth(auth); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "SMTP authentication failed")
	}

	if err := client.Mail(n.config.From); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "relay rejected sender")
	}
	if err := client.Rcpt(recipient); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "relay rejected recipient")
	}

	writer, err := client.Data()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open message body")
	}

	if _, err := writer.Write([]byte(n.compose(appName, recipient, message))); err != nil {
		writer.Close()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write message body")
	}
	if err := writer.Close(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "relay rejected message body")
	}

	return client.Quit()
}

func (n *Notifier) compose(appName, recipient, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s NoReply <%s>\r\n", appName, n.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s Verification Code\r\n", appName)
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")
	return b.String()
}
