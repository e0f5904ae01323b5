package delivery

import (
	"context"
	"strings"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/voice"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// CallProvider starts an outbound AI call and returns the provider call id.
type CallProvider interface {
	StartCall(ctx context.Context, in voice.CallRequest) (string, error)
}

// CallSender places AI calls. The template body becomes the assistant's
// opening line; the outcome arrives later through the call-outcome webhook.
type CallSender struct {
	channelSender
	provider CallProvider
}

func NewCallSender(store Store, provider CallProvider, links Links, log *logger.Logger) *CallSender {
	return &CallSender{
		channelSender: channelSender{channel: domain.ChannelAICall, store: store, links: links, log: log},
		provider:      provider,
	}
}

func (s *CallSender) Send(ctx context.Context, leadID uuid.UUID, templateID string) (*SendResult, error) {
	p, err := s.prepare(ctx, leadID, templateID)
	if err != nil {
		return nil, err
	}
	opening := p.merge.Merge(p.template.Body)
	callID, err := s.provider.StartCall(ctx, voice.CallRequest{
		PhoneNumber:  p.lead.Phone,
		Name:         strings.TrimSpace(p.lead.FirstName + " " + p.lead.LastName),
		FirstMessage: opening,
		Variables: map[string]string{
			"leadId":      leadID.String(),
			"firstName":   p.merge.FirstName,
			"company":     p.merge.Company,
			"meetingLink": p.merge.MeetingLink,
			"appLink":     p.merge.AppLink,
		},
	})
	if err != nil {
		return s.providerFailed(ctx, leadID, err)
	}
	if err := s.recordSent(ctx, leadID, "AI call started ("+callID+")", nil); err != nil {
		return nil, err
	}
	return &SendResult{ProviderID: callID}, nil
}
