// Package domain holds the lead lifecycle types shared by scoring, routing
// and the sequence scheduler. Nothing in here performs I/O.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the bucket derived from a lead's score.
type Tier string

const (
	TierDead      Tier = "dead"
	TierCold      Tier = "cold"
	TierWarm      Tier = "warm"
	TierHot       Tier = "hot"
	TierQualified Tier = "qualified"
)

// Status is the lead's pipeline status.
type Status string

const (
	StatusNew          Status = "new"
	StatusLead         Status = "lead"
	StatusDiscovery    Status = "discovery"
	StatusQualifying   Status = "qualifying"
	StatusReadyForWork Status = "ready_for_work"
	StatusBadData      Status = "bad_data"
	StatusDoNotCall    Status = "do_not_call"
	StatusNotAFit      Status = "not_a_fit"
)

// TerminalStatuses are never selected by the scheduler.
var TerminalStatuses = []Status{StatusBadData, StatusDoNotCall, StatusNotAFit}

// IsTerminal reports whether the status excludes the lead from automation.
func (s Status) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// SequenceStatus is the lead's position state within its sequence.
type SequenceStatus string

const (
	SequencePending   SequenceStatus = "pending"
	SequenceActive    SequenceStatus = "active"
	SequencePaused    SequenceStatus = "paused"
	SequenceCompleted SequenceStatus = "completed"
	SequenceStopped   SequenceStatus = "stopped"
)

// Lead is an immutable snapshot of one lead row. Transition functions
// return modified copies, never mutate the receiver's pointees.
type Lead struct {
	ID              uuid.UUID
	FirstName       string
	LastName        string
	Company         string
	Phone           string
	Email           string
	Score           int
	Tier            Tier
	Status          Status
	SequenceID      *uuid.UUID
	CurrentStep     int
	SequenceStatus  SequenceStatus
	NextActionAt    *time.Time
	SMSOptOut       bool
	EmailOptOut     bool
	CallOptOut      bool
	Replied         bool
	LastReplyAt     *time.Time
	LastContactedAt *time.Time
	TotalSMSSent    int
	TotalEmailsSent int
	TotalCallsMade  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AnyOptOut reports whether at least one channel is opted out.
func (l Lead) AnyOptOut() bool {
	return l.SMSOptOut || l.EmailOptOut || l.CallOptOut
}

// FullyOptedOut reports whether both written channels are opted out. Calls
// do not count: without SMS and email consent the lead is terminal anyway.
func (l Lead) FullyOptedOut() bool {
	return l.SMSOptOut && l.EmailOptOut
}

// DueAt reports whether the scheduler may pick the lead at now.
func (l Lead) DueAt(now time.Time) bool {
	if l.SequenceStatus != SequenceActive || l.Status.IsTerminal() {
		return false
	}
	return l.NextActionAt != nil && !l.NextActionAt.After(now)
}
