package email

import (
	"context"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// QualifyingNotification is the hand-off email sent when a lead reaches the
// qualified tier.
type QualifyingNotification struct {
	To          string
	CC          []string
	LeadName    string
	Company     string
	Phone       string
	Email       string
	Score       int
	Tier        string
	CallSummary string
	LeadURL     string
	MeetingLink string
	AppLink     string
}

// Sender delivers outreach email to leads and internal notifications to the team.
type Sender interface {
	// SendOutreachEmail delivers one sequence email and returns the message id.
	SendOutreachEmail(ctx context.Context, toEmail, toName, subject, body string) (string, error)
	SendQualifyingNotification(ctx context.Context, n QualifyingNotification) error
}

// NoopSender logs instead of sending. Used when SMTP is not configured.
type NoopSender struct {
	log *logger.Logger
}

func (s NoopSender) SendOutreachEmail(ctx context.Context, toEmail, toName, subject, body string) (string, error) {
	if s.log != nil {
		s.log.Info("email disabled, outreach email not sent", "to", toEmail, "subject", subject)
	}
	return "", nil
}

func (s NoopSender) SendQualifyingNotification(ctx context.Context, n QualifyingNotification) error {
	if s.log != nil {
		s.log.Info("email disabled, qualifying notification not sent", "to", n.To, "lead", n.LeadName, "score", n.Score)
	}
	return nil
}

// NewSender returns an SMTPSender when SMTP is configured, else a NoopSender.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.IsEmailEnabled() {
		return NoopSender{log: log}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
