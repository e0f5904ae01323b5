// Package scoring applies engagement events to lead scores and derives tiers.
// Everything here is pure; the lifecycle service persists the transitions.
package scoring

import (
	"fmt"
	"time"

	"outreach_backend/internal/outreach/domain"
)

// Engine holds the validated point table and tier thresholds.
type Engine struct {
	points domain.PointTable
	tiers  domain.TierTable
}

// New validates both tables.
func New(points domain.PointTable, tiers domain.TierTable) (*Engine, error) {
	if err := points.Validate(); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	if err := tiers.Validate(); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	return &Engine{points: points, tiers: tiers}, nil
}

// Result is the outcome of a score change.
type Result struct {
	Transition  domain.Transition
	TierChanged bool
	OldTier     domain.Tier
	NewTier     domain.Tier
}

// Lead is the snapshot after the change.
func (r Result) Lead() domain.Lead { return r.Transition.After }

// Tiers exposes the threshold table.
func (e *Engine) Tiers() domain.TierTable { return e.tiers }

// TierFor maps a score to its tier.
func (e *Engine) TierFor(score int) domain.Tier { return e.tiers.TierFor(score) }

// Apply adds the event's points plus bonus to the lead's score and records a
// score_change ledger entry carrying the before and after values.
func (e *Engine) Apply(lead domain.Lead, event domain.EventType, bonus int) (Result, error) {
	points, err := e.points.Points(event)
	if err != nil {
		return Result{}, err
	}
	return e.setScore(lead, event, lead.Score+points+bonus), nil
}

// Raise lifts the score to the lower bound of tier if it is below it.
// Used by the manual "mark qualified" action.
func (e *Engine) Raise(lead domain.Lead, tier domain.Tier) (Result, error) {
	floor, ok := e.tiers.MinScore(tier)
	if !ok {
		return Result{}, fmt.Errorf("scoring: tier %s has no lower bound", tier)
	}
	score := lead.Score
	if score < floor {
		score = floor
	}
	return e.setScore(lead, domain.EventManual, score), nil
}

func (e *Engine) setScore(lead domain.Lead, event domain.EventType, score int) Result {
	oldTier := lead.Tier
	newTier := e.tiers.TierFor(score)

	next := lead
	next.Score = score
	next.Tier = newTier

	t := domain.Transition{Before: lead, After: next}
	t = t.Record(domain.ScoreEntry(lead.ID, event, lead.Score, score))

	return Result{
		Transition:  t,
		TierChanged: oldTier != newTier,
		OldTier:     oldTier,
		NewTier:     newTier,
	}
}

// DecayPolicy selects stale leads for the weekly inactivity penalty.
type DecayPolicy struct {
	MinScore   int
	Inactivity time.Duration
}

// DefaultDecayPolicy: score above 10, no contact or reply for seven days.
func DefaultDecayPolicy() DecayPolicy {
	return DecayPolicy{MinScore: 10, Inactivity: 7 * 24 * time.Hour}
}

// Eligible reports whether lead should decay at now.
func (p DecayPolicy) Eligible(lead domain.Lead, now time.Time) bool {
	if lead.SequenceStatus != domain.SequenceActive || lead.Score <= p.MinScore {
		return false
	}
	cutoff := now.Add(-p.Inactivity)
	if lead.LastContactedAt != nil && lead.LastContactedAt.After(cutoff) {
		return false
	}
	if lead.LastReplyAt != nil && lead.LastReplyAt.After(cutoff) {
		return false
	}
	return true
}
