package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSendDays is used when a step does not list its days.
var DefaultSendDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// Sequence is an ordered, run-time immutable outreach playbook.
type Sequence struct {
	ID          uuid.UUID
	Name        string
	Description string
	Steps       []Step
}

// Step is one touch-point. Number is 1-based.
type Step struct {
	Number           int
	Channel          Channel
	DelayHours       int
	TemplateID       string
	StartHour        int
	EndHour          int
	SendDays         []time.Weekday
	SkipIfReplied    bool
	SkipIfScoreAbove *int
}

// Next returns the step a lead at currentStep executes next.
func (s Sequence) Next(currentStep int) (Step, bool) {
	if currentStep < 0 || currentStep >= len(s.Steps) {
		return Step{}, false
	}
	return s.Steps[currentStep], true
}

// Len is the total step count.
func (s Sequence) Len() int { return len(s.Steps) }

var weekdayByName = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseSendDays parses "mon,tue,wed". An empty string yields DefaultSendDays.
func ParseSendDays(s string) ([]time.Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return append([]time.Weekday(nil), DefaultSendDays...), nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		d, ok := weekdayByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		days = append(days, d)
	}
	return days, nil
}

// FormatSendDays is the inverse of ParseSendDays.
func FormatSendDays(days []time.Weekday) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}
