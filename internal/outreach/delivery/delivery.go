// Package delivery sends one sequence step over a channel. Senders re-check
// consent and the suppression list, render merge tags, call the provider and
// record the outcome in the activity ledger.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/sanitize"

	"github.com/google/uuid"
)

// ledgerContentLimit caps message text copied into the ledger.
const ledgerContentLimit = 300

var (
	// ErrTemplateNotFound means a step references a template that does not exist.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateChannel means the template belongs to another channel.
	ErrTemplateChannel = errors.New("template channel mismatch")
	// ErrContactBlocked means the lead may not be contacted on this channel.
	ErrContactBlocked = errors.New("contact blocked")
)

// IsConfigError reports errors no retry can fix.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) || errors.Is(err, ErrTemplateChannel)
}

// SendResult is returned for an accepted send.
type SendResult struct {
	ProviderID string
}

// Sender executes one step for a lead.
//
// A nil result with a nil error means the provider rejected the send and the
// failure is already in the ledger. A non-nil error means nothing was
// recorded: the context expired, the configuration is broken, or the contact
// is blocked.
type Sender interface {
	Send(ctx context.Context, leadID uuid.UUID, templateID string) (*SendResult, error)
}

// Links are merged into templates as {{meeting_link}} and {{app_link}}.
type Links struct {
	Meeting string
	App     string
}

// Store is the persistence a sender needs.
type Store interface {
	repository.LeadReader
	repository.TemplateReader
	repository.SuppressionChecker
	repository.LeadMutator
	repository.ActivityLedger
}

// channelSender holds what every channel shares.
type channelSender struct {
	channel domain.Channel
	store   Store
	links   Links
	log     *logger.Logger
}

type prepared struct {
	lead     domain.Lead
	template domain.Template
	merge    domain.MergeData
}

func (s channelSender) prepare(ctx context.Context, leadID uuid.UUID, templateID string) (prepared, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return prepared{}, fmt.Errorf("load lead %s: %w", leadID, err)
	}
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if errors.Is(err, repository.ErrNotFound) {
		return prepared{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	if err != nil {
		return prepared{}, fmt.Errorf("load template %s: %w", templateID, err)
	}
	if tpl.Channel != s.channel {
		return prepared{}, fmt.Errorf("%w: %s is %s, step is %s", ErrTemplateChannel, templateID, tpl.Channel, s.channel)
	}
	if err := s.checkContact(ctx, lead); err != nil {
		return prepared{}, err
	}
	return prepared{
		lead:     lead,
		template: tpl,
		merge:    domain.MergeDataFor(lead, s.links.Meeting, s.links.App),
	}, nil
}

// checkContact enforces opt-out flags, a usable identifier and the suppression list.
func (s channelSender) checkContact(ctx context.Context, lead domain.Lead) error {
	if s.channel.OptedOut(lead) {
		return fmt.Errorf("%w: lead opted out of %s", ErrContactBlocked, s.channel)
	}
	kind, value := s.identifier(lead)
	if value == "" {
		return fmt.Errorf("%w: lead has no %s", ErrContactBlocked, kind)
	}
	suppressed, err := s.store.IsSuppressed(ctx, kind, value)
	if err != nil {
		return fmt.Errorf("check suppression: %w", err)
	}
	if suppressed {
		return fmt.Errorf("%w: %s is suppressed", ErrContactBlocked, kind)
	}
	return nil
}

func (s channelSender) identifier(lead domain.Lead) (domain.IdentifierKind, string) {
	if s.channel == domain.ChannelEmail {
		return domain.IdentifierEmail, lead.Email
	}
	return domain.IdentifierPhone, lead.Phone
}

// providerFailed records a rejected send. When ctx is already done the
// caller owns the failure and nothing is written.
func (s channelSender) providerFailed(ctx context.Context, leadID uuid.UUID, sendErr error) (*SendResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.log.SendAttempt(string(s.channel), leadID.String(), false, sendErr)
	_, err := s.store.AppendActivity(ctx, domain.Activity{
		LeadID:    leadID,
		Type:      s.channel.FailedType(),
		Channel:   s.channel.Ledger(),
		Direction: domain.DirectionNone,
		Content:   sanitize.Truncate(sendErr.Error(), 500),
	})
	if err != nil {
		return nil, fmt.Errorf("record %s failure: %w", s.channel, err)
	}
	return nil, nil
}

// recordSent appends the outbound entry and promotes a new lead. A non-nil
// contactedAt also bumps the channel counter and last_contacted_at; step
// sends leave that to the scheduler's advance.
func (s channelSender) recordSent(ctx context.Context, leadID uuid.UUID, content string, contactedAt *time.Time) error {
	_, err := s.store.MutateLead(ctx, leadID, func(cur domain.Lead) (domain.Transition, error) {
		next := cur
		if next.Status == domain.StatusNew {
			next.Status = domain.StatusLead
		}
		if contactedAt != nil {
			next = s.channel.WithSendCounted(next)
			at := *contactedAt
			next.LastContactedAt = &at
		}
		t := domain.Transition{Before: cur, After: next}
		return t.Record(domain.Activity{
			LeadID:    cur.ID,
			Type:      s.channel.SentType(),
			Channel:   s.channel.Ledger(),
			Direction: domain.DirectionOutbound,
			Content:   sanitize.Truncate(content, ledgerContentLimit),
		}), nil
	})
	if err != nil {
		return fmt.Errorf("record %s send: %w", s.channel, err)
	}
	s.log.SendAttempt(string(s.channel), leadID.String(), true, nil)
	return nil
}
