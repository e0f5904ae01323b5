package outreachtest

import (
	"sync"
	"time"

	"outreach_backend/internal/outreach/domain"

	"github.com/google/uuid"
)

// NewLead returns an active, reachable lead at the given score.
func NewLead(score int, tier domain.Tier) domain.Lead {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	return domain.Lead{
		ID:             uuid.New(),
		FirstName:      "Dana",
		LastName:       "Reyes",
		Company:        "Reyes Plumbing",
		Phone:          "+15125550100",
		Email:          "dana@example.com",
		Score:          score,
		Tier:           tier,
		Status:         domain.StatusNew,
		SequenceStatus: domain.SequenceActive,
		NextActionAt:   &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
