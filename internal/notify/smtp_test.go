package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

type smtpSession struct {
	mailFrom string
	rcpts    []string
	data     string
}

// serveSMTPOnce speaks just enough SMTP to accept one message.
func serveSMTPOnce(ln net.Listener, sessions chan<- smtpSession) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var sess smtpSession
	r := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 test ESMTP\r\n")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			fmt.Fprintf(conn, "250 test\r\n")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			sess.mailFrom = cmd[len("MAIL FROM:"):]
			fmt.Fprintf(conn, "250 OK\r\n")
		case strings.HasPrefix(upper, "RCPT TO:"):
			sess.rcpts = append(sess.rcpts, cmd[len("RCPT TO:"):])
			fmt.Fprintf(conn, "250 OK\r\n")
		case upper == "DATA":
			fmt.Fprintf(conn, "354 send\r\n")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(l, "\r\n") == "." {
					break
				}
				data.WriteString(l)
			}
			sess.data = data.String()
			fmt.Fprintf(conn, "250 queued\r\n")
		case upper == "QUIT":
			fmt.Fprintf(conn, "221 bye\r\n")
			sessions <- sess
			return
		default:
			fmt.Fprintf(conn, "250 OK\r\n")
		}
	}
}

func TestSMTPNotifierSend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	sessions := make(chan smtpSession, 1)
	go serveSMTPOnce(ln, sessions)

	alert := sampleAlert()
	alert.Recipients = []string{"a@example.com", "b@example.com"}

	n := NewSMTPNotifier(ln.Addr().String(), "Hakuvahti <vahti@example.org>", "", "")
	msgID, err := n.Send(context.Background(), alert)
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !strings.HasPrefix(msgID, "<run-1.") {
		t.Fatalf("unexpected message id: %q", msgID)
	}

	var sess smtpSession
	select {
	case sess = <-sessions:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the server session")
	}

	if !strings.Contains(sess.mailFrom, "vahti@example.org") {
		t.Fatalf("unexpected envelope sender: %q", sess.mailFrom)
	}
	if len(sess.rcpts) != 2 {
		t.Fatalf("unexpected recipients: %+v", sess.rcpts)
	}
	if !strings.Contains(sess.data, "Subject: (2) Hakuvahti 'Lautapelit'") {
		t.Fatalf("missing subject in %q", sess.data)
	}
	if !strings.Contains(sess.data, "Content-Type: multipart/alternative") {
		t.Fatalf("missing multipart header in %q", sess.data)
	}
	if !strings.Contains(sess.data, "Message-ID: "+msgID) {
		t.Fatalf("missing message id in %q", sess.data)
	}
	if !strings.Contains(sess.data, "2 new product(s)!") {
		t.Fatalf("missing body in %q", sess.data)
	}
	if !strings.Contains(sess.data, "To: a@example.com, b@example.com") {
		t.Fatalf("missing To header in %q", sess.data)
	}
}

func TestSMTPNotifierSend_NoRecipients(t *testing.T) {
	n := NewSMTPNotifier("localhost:25", "vahti@example.org", "", "")
	alert := sampleAlert()
	alert.Recipients = nil

	if _, err := n.Send(context.Background(), alert); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}
