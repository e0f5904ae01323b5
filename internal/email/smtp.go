package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

type outgoing struct {
	to      string
	toName  string
	cc      []string
	subject string
	html    string
	text    string
}

func (s *SMTPSender) send(ctx context.Context, out outgoing) (string, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return "", fmt.Errorf("smtp from: %w", err)
	}
	if out.toName != "" {
		if err := msg.AddToFormat(out.toName, out.to); err != nil {
			return "", fmt.Errorf("smtp to: %w", err)
		}
	} else if err := msg.To(out.to); err != nil {
		return "", fmt.Errorf("smtp to: %w", err)
	}
	if len(out.cc) > 0 {
		if err := msg.Cc(out.cc...); err != nil {
			return "", fmt.Errorf("smtp cc: %w", err)
		}
	}
	msg.Subject(out.subject)
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextHTML, out.html)
	if out.text != "" {
		msg.AddAlternativeString(gomail.TypeTextPlain, out.text)
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	return msg.GetMessageID(), nil
}

// SendOutreachEmail wraps a rendered sequence template in the outreach layout.
func (s *SMTPSender) SendOutreachEmail(ctx context.Context, toEmail, toName, subject, body string) (string, error) {
	content, err := renderOutreachEmail(subject, body)
	if err != nil {
		return "", err
	}
	return s.send(ctx, outgoing{
		to:      toEmail,
		toName:  toName,
		subject: subject,
		html:    content,
		text:    body,
	})
}

// SendQualifyingNotification mails the lead summary to the configured sales inbox.
func (s *SMTPSender) SendQualifyingNotification(ctx context.Context, n QualifyingNotification) error {
	if strings.TrimSpace(n.To) == "" {
		return fmt.Errorf("qualifying notification has no recipient")
	}
	content, err := renderQualifyingEmail(n)
	if err != nil {
		return err
	}
	_, err = s.send(ctx, outgoing{
		to:      n.To,
		cc:      n.CC,
		subject: qualifyingSubject(n),
		html:    content,
	})
	return err
}

func qualifyingSubject(n QualifyingNotification) string {
	company := n.Company
	if company == "" {
		company = unknownCompany
	}
	return fmt.Sprintf(subjectQualifyingFmt, n.LeadName, company)
}
