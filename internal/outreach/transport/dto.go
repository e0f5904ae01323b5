package transport

import (
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/lifecycle"

	"github.com/google/uuid"
)

type ApplyEventRequest struct {
	EventType   string `json:"eventType" validate:"required,max=50"`
	BonusPoints int    `json:"bonusPoints" validate:"gte=-100,lte=100"`
}

type ReplyRequest struct {
	Channel string `json:"channel" validate:"required,oneof=sms email"`
	Content string `json:"content" validate:"required,max=5000"`
}

type OptOutRequest struct {
	Channel string `json:"channel" validate:"required,oneof=sms email call ai_call"`
}

type CallOutcomeRequest struct {
	Outcome         string `json:"outcome" validate:"required,oneof=qualified callback not_interested wrong_number no_answer busy"`
	Summary         string `json:"summary" validate:"max=5000"`
	DurationSeconds int    `json:"durationSeconds" validate:"gte=0"`
	ProviderCallID  string `json:"providerCallId" validate:"max=100"`
	WantsMeeting    bool   `json:"wantsMeeting"`
	WantsApp        bool   `json:"wantsApp"`
}

type SystemPauseRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

type SystemPauseResponse struct {
	Paused bool `json:"paused"`
}

// TwilioSMSForm is the form body Twilio posts for inbound messages.
type TwilioSMSForm struct {
	From       string `form:"From" validate:"required"`
	Body       string `form:"Body"`
	MessageSID string `form:"MessageSid"`
}

type LeadResponse struct {
	ID              uuid.UUID  `json:"id"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Company         string     `json:"company,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	Score           int        `json:"score"`
	Tier            string     `json:"tier"`
	Status          string     `json:"status"`
	SequenceID      *uuid.UUID `json:"sequenceId,omitempty"`
	CurrentStep     int        `json:"currentStep"`
	SequenceStatus  string     `json:"sequenceStatus"`
	NextActionAt    *time.Time `json:"nextActionAt,omitempty"`
	SMSOptOut       bool       `json:"smsOptOut"`
	EmailOptOut     bool       `json:"emailOptOut"`
	CallOptOut      bool       `json:"callOptOut"`
	Replied         bool       `json:"replied"`
	LastReplyAt     *time.Time `json:"lastReplyAt,omitempty"`
	LastContactedAt *time.Time `json:"lastContactedAt,omitempty"`
	TotalSMSSent    int        `json:"totalSmsSent"`
	TotalEmailsSent int        `json:"totalEmailsSent"`
	TotalCallsMade  int        `json:"totalCallsMade"`
}

type ActivityResponse struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// OutcomeResponse is returned by every lifecycle operation.
type OutcomeResponse struct {
	Lead        LeadResponse `json:"lead"`
	Action      string       `json:"action,omitempty"`
	TierChanged bool         `json:"tierChanged"`
	OldTier     string       `json:"oldTier"`
	NewTier     string       `json:"newTier"`
}

func ToLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:              l.ID,
		FirstName:       l.FirstName,
		LastName:        l.LastName,
		Company:         l.Company,
		Phone:           l.Phone,
		Email:           l.Email,
		Score:           l.Score,
		Tier:            string(l.Tier),
		Status:          string(l.Status),
		SequenceID:      l.SequenceID,
		CurrentStep:     l.CurrentStep,
		SequenceStatus:  string(l.SequenceStatus),
		NextActionAt:    l.NextActionAt,
		SMSOptOut:       l.SMSOptOut,
		EmailOptOut:     l.EmailOptOut,
		CallOptOut:      l.CallOptOut,
		Replied:         l.Replied,
		LastReplyAt:     l.LastReplyAt,
		LastContactedAt: l.LastContactedAt,
		TotalSMSSent:    l.TotalSMSSent,
		TotalEmailsSent: l.TotalEmailsSent,
		TotalCallsMade:  l.TotalCallsMade,
	}
}

func ToActivityResponses(entries []domain.Activity) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(entries))
	for _, a := range entries {
		out = append(out, ActivityResponse{
			ID:        a.ID,
			Type:      a.Type,
			Channel:   string(a.Channel),
			Direction: string(a.Direction),
			Content:   a.Content,
			CreatedAt: a.CreatedAt,
		})
	}
	return out
}

func ToOutcomeResponse(o lifecycle.Outcome) OutcomeResponse {
	return OutcomeResponse{
		Lead:        ToLeadResponse(o.Lead),
		Action:      string(o.Action),
		TierChanged: o.TierChanged,
		OldTier:     string(o.OldTier),
		NewTier:     string(o.NewTier),
	}
}
