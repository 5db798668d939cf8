package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"tori-vahti/internal/models"
)

// ErrNoRecipients marks an alert that names nobody to deliver to.
var ErrNoRecipients = errors.New("alert has no recipients")

// SMTPNotifier submits alert email through a plain SMTP endpoint. STARTTLS
// is used when the server offers it; AUTH PLAIN only when a username is
// configured.
type SMTPNotifier struct {
	addr     string
	from     string
	username string
	password string
}

// NewSMTPNotifier builds a notifier for the given host:port endpoint. from
// is the RFC 5322 sender, e.g. "Hakuvahti <vahti@example.org>".
func NewSMTPNotifier(addr, from, username, password string) *SMTPNotifier {
	return &SMTPNotifier{addr: addr, from: from, username: username, password: password}
}

// Send renders the alert as multipart/alternative mail and submits it.
// Returns the Message-ID header the email was sent under.
func (n *SMTPNotifier) Send(ctx context.Context, alert models.Alert) (string, error) {
	if len(alert.Recipients) == 0 {
		return "", ErrNoRecipients
	}

	host := n.addr
	if h, _, err := net.SplitHostPort(n.addr); err == nil {
		host = h
	}

	now := time.Now()
	msgID := fmt.Sprintf("<%s.%d@%s>", alert.RunID, now.UnixNano(), host)
	msg, err := buildMessage(n.from, alert, msgID, now)
	if err != nil {
		return "", err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return "", err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return "", err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return "", err
		}
	}
	if n.username != "" {
		if err := c.Auth(smtp.PlainAuth("", n.username, n.password, host)); err != nil {
			return "", err
		}
	}

	if err := c.Mail(bareAddress(n.from)); err != nil {
		return "", err
	}
	for _, rcpt := range alert.Recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return "", err
		}
	}
	w, err := c.Data()
	if err != nil {
		return "", err
	}
	if _, err := w.Write(msg); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	if err := c.Quit(); err != nil {
		return "", err
	}
	return msgID, nil
}

func buildMessage(from string, alert models.Alert, msgID string, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	textPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(textPart, TextBody(alert)); err != nil {
		return nil, err
	}

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(htmlPart, HTMLBody(alert)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(alert.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", alert.Subject()))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", msgID)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	b.WriteString("\r\n")
	b.Write(body.Bytes())
	return b.Bytes(), nil
}

func bareAddress(s string) string {
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Address
	}
	return s
}
