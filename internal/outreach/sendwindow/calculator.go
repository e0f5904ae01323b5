// Package sendwindow computes when a channel may contact a lead, in the
// configured business timezone.
package sendwindow

import (
	"fmt"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/config"
)

// horizonDays bounds the forward scan.
const horizonDays = 7

// Window is a half-open [Start, End) range of local hours.
type Window struct {
	Start int
	End   int
}

func (w Window) contains(hour int) bool {
	return hour >= w.Start && hour < w.End
}

func (w Window) empty() bool {
	return w.End <= w.Start
}

// Rules are the per-channel windows keyed by ledger channel (sms, email, call),
// plus the Saturday email override.
type Rules struct {
	Windows       map[domain.ActivityChannel]Window
	SaturdayEmail Window
}

// DefaultRules: sms 9-20, email 8-21, call 10-17, Saturday email 10-14.
func DefaultRules() Rules {
	return Rules{
		Windows: map[domain.ActivityChannel]Window{
			domain.ActivitySMS:   {Start: 9, End: 20},
			domain.ActivityEmail: {Start: 8, End: 21},
			domain.ActivityCall:  {Start: 10, End: 17},
		},
		SaturdayEmail: Window{Start: 10, End: 14},
	}
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// Calculator answers window questions for one timezone.
type Calculator struct {
	loc   *time.Location
	rules Rules
	now   func() time.Time
}

// New validates rules and builds a Calculator.
func New(loc *time.Location, rules Rules, opts ...Option) (*Calculator, error) {
	if loc == nil {
		return nil, fmt.Errorf("sendwindow: location is required")
	}
	for _, ch := range []domain.ActivityChannel{domain.ActivitySMS, domain.ActivityEmail, domain.ActivityCall} {
		w, ok := rules.Windows[ch]
		if !ok {
			return nil, fmt.Errorf("sendwindow: no window for channel %s", ch)
		}
		if err := checkHours(w); err != nil {
			return nil, fmt.Errorf("sendwindow: %s: %w", ch, err)
		}
	}
	if err := checkHours(rules.SaturdayEmail); err != nil {
		return nil, fmt.Errorf("sendwindow: saturday email: %w", err)
	}

	c := &Calculator{loc: loc, rules: rules, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromConfig loads the business timezone and the configured windows.
func FromConfig(cfg config.SendWindowConfig, opts ...Option) (*Calculator, error) {
	loc, err := time.LoadLocation(cfg.GetTimezone())
	if err != nil {
		return nil, fmt.Errorf("sendwindow: load timezone %q: %w", cfg.GetTimezone(), err)
	}
	rules := Rules{Windows: make(map[domain.ActivityChannel]Window)}
	for channel, w := range cfg.GetSendWindows() {
		rules.Windows[domain.ActivityChannel(channel)] = Window{Start: w.Start, End: w.End}
	}
	sat := cfg.GetSaturdayEmailWindow()
	rules.SaturdayEmail = Window{Start: sat.Start, End: sat.End}
	return New(loc, rules, opts...)
}

func checkHours(w Window) error {
	if w.Start < 0 || w.Start > 24 || w.End < 0 || w.End > 24 {
		return fmt.Errorf("hours must be within 0-24, got [%d,%d)", w.Start, w.End)
	}
	return nil
}

// Location is the business timezone.
func (c *Calculator) Location() *time.Location { return c.loc }

// Now returns the calculator's clock reading in the business timezone.
func (c *Calculator) Now() time.Time { return c.now().In(c.loc) }

// NextValidSendTime is NextValidSendTimeAt with the calculator's clock.
func (c *Calculator) NextValidSendTime(channel domain.Channel, delayHours int) time.Time {
	return c.NextValidSendTimeAt(c.now(), channel, delayHours)
}

// NextValidSendTimeAt returns the earliest instant at or after now+delayHours
// at which channel may send. Weekdays use the channel window, Saturday only
// allows email inside the Saturday window, Sunday allows nothing. The scan
// covers seven days; if nothing qualifies it falls back to tomorrow at the
// channel's window start.
func (c *Calculator) NextValidSendTimeAt(now time.Time, channel domain.Channel, delayHours int) time.Time {
	candidate := now.In(c.loc).Add(time.Duration(delayHours) * time.Hour)

	for i := 0; i < horizonDays; i++ {
		day := candidate
		if i > 0 {
			y, m, d := candidate.Date()
			day = time.Date(y, m, d+i, 0, 0, 0, 0, c.loc)
		}

		w, ok := c.windowFor(channel, day.Weekday())
		if !ok || w.empty() {
			continue
		}

		if i == 0 {
			hour := day.Hour()
			if w.contains(hour) {
				return day
			}
			if hour < w.Start {
				return c.atHour(day, w.Start)
			}
			continue
		}
		return c.atHour(day, w.Start)
	}

	tomorrow := now.In(c.loc).AddDate(0, 0, 1)
	return c.atHour(tomorrow, c.channelWindow(channel).Start)
}

// IsWithinWindow is IsWithinWindowAt with the calculator's clock.
func (c *Calculator) IsWithinWindow(startHour, endHour int, days []time.Weekday) bool {
	return c.IsWithinWindowAt(c.now(), startHour, endHour, days)
}

// IsWithinWindowAt reports whether now falls on one of days and inside
// [startHour, endHour) local time. No days means Monday to Friday.
func (c *Calculator) IsWithinWindowAt(now time.Time, startHour, endHour int, days []time.Weekday) bool {
	local := now.In(c.loc)
	if len(days) == 0 {
		days = domain.DefaultSendDays
	}
	allowed := false
	for _, d := range days {
		if d == local.Weekday() {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	return Window{Start: startHour, End: endHour}.contains(local.Hour())
}

// IsChannelOpenAt reports whether the channel's own window is open at now.
func (c *Calculator) IsChannelOpenAt(now time.Time, channel domain.Channel) bool {
	local := now.In(c.loc)
	w, ok := c.windowFor(channel, local.Weekday())
	return ok && w.contains(local.Hour())
}

// StartOfDay returns local midnight of the day containing now.
func (c *Calculator) StartOfDay(now time.Time) time.Time {
	y, m, d := now.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

func (c *Calculator) windowFor(channel domain.Channel, day time.Weekday) (Window, bool) {
	switch day {
	case time.Sunday:
		return Window{}, false
	case time.Saturday:
		if channel != domain.ChannelEmail {
			return Window{}, false
		}
		return c.rules.SaturdayEmail, true
	}
	return c.channelWindow(channel), true
}

func (c *Calculator) channelWindow(channel domain.Channel) Window {
	if w, ok := c.rules.Windows[channel.Ledger()]; ok {
		return w
	}
	return c.rules.Windows[domain.ActivitySMS]
}

func (c *Calculator) atHour(t time.Time, hour int) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, hour, 0, 0, 0, c.loc)
}
