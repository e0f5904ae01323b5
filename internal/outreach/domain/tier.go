package domain

import (
	"errors"
	"fmt"
)

// TierBound is the inclusive lower bound of a tier. The lowest tier has no
// bound and catches every score below the next one.
type TierBound struct {
	Tier      Tier
	Min       int
	Unbounded bool
}

// TierTable is an ordered list of tier bounds, lowest first.
type TierTable []TierBound

// AllTiers in ascending order.
var AllTiers = []Tier{TierDead, TierCold, TierWarm, TierHot, TierQualified}

// DefaultTierTable: dead <0, cold 0-20, warm 21-40, hot 41-60, qualified >=61.
func DefaultTierTable() TierTable {
	return TierTable{
		{Tier: TierDead, Unbounded: true},
		{Tier: TierCold, Min: 0},
		{Tier: TierWarm, Min: 21},
		{Tier: TierHot, Min: 41},
		{Tier: TierQualified, Min: 61},
	}
}

// Validate checks the table is exhaustive and non-overlapping.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return errors.New("tier table is empty")
	}
	if !t[0].Unbounded {
		return fmt.Errorf("lowest tier %s must be unbounded below", t[0].Tier)
	}
	seen := make(map[Tier]bool, len(t))
	for i, b := range t {
		if seen[b.Tier] {
			return fmt.Errorf("tier %s listed twice", b.Tier)
		}
		seen[b.Tier] = true
		if i == 0 {
			continue
		}
		if b.Unbounded {
			return fmt.Errorf("only the lowest tier may be unbounded, got %s", b.Tier)
		}
		if i > 1 && b.Min <= t[i-1].Min {
			return fmt.Errorf("tier %s lower bound %d must exceed %s bound %d", b.Tier, b.Min, t[i-1].Tier, t[i-1].Min)
		}
	}
	for _, tier := range AllTiers {
		if !seen[tier] {
			return fmt.Errorf("tier %s missing from table", tier)
		}
	}
	return nil
}

// TierFor maps a score onto exactly one tier.
func (t TierTable) TierFor(score int) Tier {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Unbounded || score >= t[i].Min {
			return t[i].Tier
		}
	}
	return TierDead
}

// MinScore returns the lower bound of tier, or false when it is unbounded or unknown.
func (t TierTable) MinScore(tier Tier) (int, bool) {
	for _, b := range t {
		if b.Tier == tier && !b.Unbounded {
			return b.Min, true
		}
	}
	return 0, false
}
