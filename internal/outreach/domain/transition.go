package domain

import "github.com/google/uuid"

// IdentifierKind is the kind of contact identifier on the suppression list.
type IdentifierKind string

const (
	IdentifierPhone IdentifierKind = "phone"
	IdentifierEmail IdentifierKind = "email"
)

// Suppression is a request to add one identifier to the suppression list.
type Suppression struct {
	Kind   IdentifierKind
	Value  string
	Reason string
}

// SuppressContacts returns one entry per identifier present on the lead.
func SuppressContacts(l Lead, reason string) []Suppression {
	var out []Suppression
	if l.Phone != "" {
		out = append(out, Suppression{Kind: IdentifierPhone, Value: l.Phone, Reason: reason})
	}
	if l.Email != "" {
		out = append(out, Suppression{Kind: IdentifierEmail, Value: l.Email, Reason: reason})
	}
	return out
}

// NotificationKind classifies router notification requests.
type NotificationKind string

const (
	NotifyOpsAlert   NotificationKind = "ops_alert"
	NotifyRepAlert   NotificationKind = "rep_alert"
	NotifyQualifying NotificationKind = "qualifying"
)

// Notification is a fire-and-forget request dispatched after commit.
type Notification struct {
	Kind    NotificationKind
	LeadID  uuid.UUID
	Score   int
	Message string
}

// AutoActionKind names follow-ups executed asynchronously by channel senders.
type AutoActionKind string

const (
	AutoSendMeetingLink AutoActionKind = "send_meeting_link"
	AutoSendAppLink     AutoActionKind = "send_app_link"
)

// AutoAction is a queued follow-up for a lead.
type AutoAction struct {
	Kind   AutoActionKind
	LeadID uuid.UUID
}

// Transition is the result of a pure state-transition function: the snapshot
// before and after, plus side effects for the persistence layer to apply.
// Ledger, suppression and lead writes are applied atomically; notifications
// and auto-actions are dispatched after commit.
type Transition struct {
	Before        Lead
	After         Lead
	Activities    []Activity
	Suppressions  []Suppression
	Notifications []Notification
	AutoActions   []AutoAction
}

// Unchanged starts a transition with no effects.
func Unchanged(l Lead) Transition {
	return Transition{Before: l, After: l}
}

// Then chains next onto t. next must start from t.After.
func (t Transition) Then(next Transition) Transition {
	return Transition{
		Before:        t.Before,
		After:         next.After,
		Activities:    append(append([]Activity(nil), t.Activities...), next.Activities...),
		Suppressions:  append(append([]Suppression(nil), t.Suppressions...), next.Suppressions...),
		Notifications: append(append([]Notification(nil), t.Notifications...), next.Notifications...),
		AutoActions:   append(append([]AutoAction(nil), t.AutoActions...), next.AutoActions...),
	}
}

// Record appends ledger entries.
func (t Transition) Record(entries ...Activity) Transition {
	t.Activities = append(append([]Activity(nil), t.Activities...), entries...)
	return t
}

// Empty reports whether applying t would write nothing.
func (t Transition) Empty() bool {
	return t.Before == t.After && len(t.Activities) == 0 && len(t.Suppressions) == 0 &&
		len(t.Notifications) == 0 && len(t.AutoActions) == 0
}
