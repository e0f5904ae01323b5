package delivery

import (
	"context"
	"strings"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// EmailProvider delivers one outreach email and returns its message id.
type EmailProvider interface {
	SendOutreachEmail(ctx context.Context, toEmail, toName, subject, body string) (string, error)
}

type EmailSender struct {
	channelSender
	provider EmailProvider
}

func NewEmailSender(store Store, provider EmailProvider, links Links, log *logger.Logger) *EmailSender {
	return &EmailSender{
		channelSender: channelSender{channel: domain.ChannelEmail, store: store, links: links, log: log},
		provider:      provider,
	}
}

func (s *EmailSender) Send(ctx context.Context, leadID uuid.UUID, templateID string) (*SendResult, error) {
	p, err := s.prepare(ctx, leadID, templateID)
	if err != nil {
		return nil, err
	}
	subject := p.merge.Merge(p.template.Subject)
	body := p.merge.Merge(p.template.Body)
	name := strings.TrimSpace(p.lead.FirstName + " " + p.lead.LastName)

	id, err := s.provider.SendOutreachEmail(ctx, p.lead.Email, name, subject, body)
	if err != nil {
		return s.providerFailed(ctx, leadID, err)
	}
	if err := s.recordSent(ctx, leadID, "Subject: "+subject, nil); err != nil {
		return nil, err
	}
	return &SendResult{ProviderID: id}, nil
}
