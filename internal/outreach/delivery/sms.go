package delivery

import (
	"context"
	"strings"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// SMSProvider sends a text message and returns the provider message id.
type SMSProvider interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// SMSSender sends sequence steps and ad-hoc follow-ups by SMS.
type SMSSender struct {
	channelSender
	provider SMSProvider
	now      func() time.Time
}

func NewSMSSender(store Store, provider SMSProvider, links Links, log *logger.Logger) *SMSSender {
	return &SMSSender{
		channelSender: channelSender{channel: domain.ChannelSMS, store: store, links: links, log: log},
		provider:      provider,
		now:           time.Now,
	}
}

// WithClock overrides the time stamped as last_contacted_at by SendBody.
func (s *SMSSender) WithClock(now func() time.Time) *SMSSender {
	s.now = now
	return s
}

// Send renders templateID for the lead and sends it.
func (s *SMSSender) Send(ctx context.Context, leadID uuid.UUID, templateID string) (*SendResult, error) {
	p, err := s.prepare(ctx, leadID, templateID)
	if err != nil {
		return nil, err
	}
	body := p.merge.Merge(p.template.Body)
	sid, err := s.provider.SendSMS(ctx, p.lead.Phone, body)
	if err != nil {
		return s.providerFailed(ctx, leadID, err)
	}
	if err := s.recordSent(ctx, leadID, body, nil); err != nil {
		return nil, err
	}
	return &SendResult{ProviderID: sid}, nil
}

// SendBody sends a message outside any sequence step, such as an
// auto-action follow-up. Merge tags in body are rendered. Provider failures
// are recorded and returned so the caller can retry.
func (s *SMSSender) SendBody(ctx context.Context, leadID uuid.UUID, body string) (*SendResult, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if err := s.checkContact(ctx, lead); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(domain.MergeDataFor(lead, s.links.Meeting, s.links.App).Merge(body))
	sid, sendErr := s.provider.SendSMS(ctx, lead.Phone, text)
	if sendErr != nil {
		if _, err := s.providerFailed(ctx, leadID, sendErr); err != nil {
			return nil, err
		}
		return nil, sendErr
	}
	now := s.now()
	if err := s.recordSent(ctx, leadID, text, &now); err != nil {
		return nil, err
	}
	return &SendResult{ProviderID: sid}, nil
}
