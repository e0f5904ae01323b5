package repository

import (
	"context"
	"time"

	"outreach_backend/internal/outreach/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// MutateFunc computes a transition from the current, locked lead row.
// Returning an error aborts the mutation without writing anything.
type MutateFunc func(current domain.Lead) (domain.Transition, error)

// CallMutateFunc is a MutateFunc that also sees how many calls with the
// recorded outcome the lead has, the new one included.
type CallMutateFunc func(current domain.Lead, sameOutcomes int) (domain.Transition, error)

// LeadReader provides read-only access to leads.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetLeadByPhone(ctx context.Context, phone string) (domain.Lead, error)
}

// ReadyLeadLister selects leads due for their next sequence step, highest score first.
type ReadyLeadLister interface {
	ListReadyLeads(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error)
}

// DecayCandidateLister selects active leads with no contact or reply since cutoff.
type DecayCandidateLister interface {
	ListDecayCandidates(ctx context.Context, cutoff time.Time, minScore int) ([]uuid.UUID, error)
}

// LeadMutator applies a transition atomically: the lead row is locked, the
// changed columns written, ledger entries appended and suppression entries
// added in one transaction.
type LeadMutator interface {
	MutateLead(ctx context.Context, id uuid.UUID, fn MutateFunc) (domain.Transition, error)
}

// ActivityLedger appends to and reads the activity ledger.
type ActivityLedger interface {
	AppendActivity(ctx context.Context, entry domain.Activity) (domain.Activity, error)
	ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error)
	CountOutboundSince(ctx context.Context, channel domain.ActivityChannel, since time.Time) (int, error)
}

// SuppressionChecker reports whether a contact identifier is suppressed.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, kind domain.IdentifierKind, value string) (bool, error)
}

// SettingsStore reads and writes system-wide flags.
type SettingsStore interface {
	IsSystemPaused(ctx context.Context) (bool, error)
	SetSystemPaused(ctx context.Context, paused bool) error
}

// SequenceReader loads sequences with their steps.
type SequenceReader interface {
	GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error)
}

// SequenceWriter replaces a sequence definition.
type SequenceWriter interface {
	UpsertSequence(ctx context.Context, seq domain.Sequence) error
	UpsertTemplate(ctx context.Context, tpl domain.Template) error
}

// TemplateReader loads message templates.
type TemplateReader interface {
	GetTemplate(ctx context.Context, id string) (domain.Template, error)
}

// CallLogStore records AI call outcomes.
type CallLogStore interface {
	InsertCallLog(ctx context.Context, log domain.CallLog) (domain.CallLog, error)
	LatestCallSummary(ctx context.Context, leadID uuid.UUID) (string, error)
	// RecordCall inserts log and applies fn to the lead in one transaction.
	RecordCall(ctx context.Context, log domain.CallLog, fn CallMutateFunc) (domain.Transition, error)
}

// MetricsWriter aggregates the ledger into daily metrics.
type MetricsWriter interface {
	RollupDailyMetrics(ctx context.Context, from, to time.Time, day time.Time) (int, error)
}

// Store is the full outreach persistence surface.
type Store interface {
	LeadReader
	ReadyLeadLister
	DecayCandidateLister
	LeadMutator
	ActivityLedger
	SuppressionChecker
	SettingsStore
	SequenceReader
	SequenceWriter
	TemplateReader
	CallLogStore
	MetricsWriter
}

var _ Store = (*Repository)(nil)
