// Package events defines the lifecycle events modules exchange over the
// platform bus.
package events

import (
	"outreach_backend/platform/events"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var NewBaseEvent = events.NewBaseEvent

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadTierChanged is published after a score change moved a lead across a tier boundary.
type LeadTierChanged struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	OldTier string    `json:"oldTier"`
	NewTier string    `json:"newTier"`
	Score   int       `json:"score"`
	Action  string    `json:"action"`
}

func (e LeadTierChanged) EventName() string { return "outreach.lead.tier_changed" }

// LeadReplied is published when an inbound reply has been recorded.
type LeadReplied struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Channel string    `json:"channel"`
	Preview string    `json:"preview"`
}

func (e LeadReplied) EventName() string { return "outreach.lead.replied" }

// LeadOptedOut is published when a lead opts out of a channel.
type LeadOptedOut struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	Channel    string    `json:"channel"`
	FullOptOut bool      `json:"fullOptOut"`
}

func (e LeadOptedOut) EventName() string { return "outreach.lead.opted_out" }

// AlertRaised carries ops and rep alerts emitted by tier routing.
type AlertRaised struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Score   int       `json:"score"`
}

func (e AlertRaised) EventName() string { return "outreach.alert.raised" }

// =============================================================================
// Scheduler Events
// =============================================================================

// SequenceBatchCompleted is published after every sequence tick.
type SequenceBatchCompleted struct {
	BaseEvent
	Trigger   string `json:"trigger"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Deferred  int    `json:"deferred"`
	Failed    int    `json:"failed"`
	Completed int    `json:"completed"`
	Errors    int    `json:"errors"`
	Reason    string `json:"reason,omitempty"`
}

func (e SequenceBatchCompleted) EventName() string { return "outreach.sequence.batch_completed" }

// SystemPauseChanged is published when the emergency pause flag flips.
type SystemPauseChanged struct {
	BaseEvent
	Paused bool `json:"paused"`
}

func (e SystemPauseChanged) EventName() string { return "outreach.system.pause_changed" }

// NotificationOutboxDue is published by the worker when an outbox record is ready to deliver.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
