package sendwindow

import (
	"testing"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newCalculator(t *testing.T, rules Rules) *Calculator {
	t.Helper()
	calc, err := New(newYork(t), rules)
	require.NoError(t, err)
	return calc
}

func TestNextValidSendTime(t *testing.T) {
	loc := newYork(t)
	calc := newCalculator(t, DefaultRules())
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, time.June, day, hour, minute, 0, 0, loc)
	}

	cases := []struct {
		name    string
		now     time.Time
		channel domain.Channel
		delay   int
		want    time.Time
	}{
		{"sms on sunday goes to monday start", at(7, 11, 0), domain.ChannelSMS, 0, at(8, 9, 0)},
		{"sms on saturday goes to monday start", at(6, 11, 0), domain.ChannelSMS, 0, at(8, 9, 0)},
		{"email on saturday before window snaps to 10", at(6, 9, 0), domain.ChannelEmail, 0, at(6, 10, 0)},
		{"email on saturday inside window unchanged", at(6, 12, 30), domain.ChannelEmail, 0, at(6, 12, 30)},
		{"email on saturday after window goes to monday", at(6, 15, 0), domain.ChannelEmail, 0, at(8, 8, 0)},
		{"email on friday after window goes to saturday", at(5, 22, 0), domain.ChannelEmail, 0, at(6, 10, 0)},
		{"weekday inside window unchanged", at(9, 10, 30), domain.ChannelSMS, 0, at(9, 10, 30)},
		{"weekday before window snaps", at(9, 7, 45), domain.ChannelSMS, 0, at(9, 9, 0)},
		{"end hour is exclusive", at(9, 20, 0), domain.ChannelSMS, 0, at(10, 9, 0)},
		{"friday evening sms goes to monday", at(5, 21, 0), domain.ChannelSMS, 0, at(8, 9, 0)},
		{"delay is applied before the scan", at(9, 10, 0), domain.ChannelSMS, 24, at(10, 10, 0)},
		{"delay into the night rolls to next morning", at(5, 10, 0), domain.ChannelSMS, 12, at(8, 9, 0)},
		{"ai_call uses the call window", at(9, 9, 30), domain.ChannelAICall, 0, at(9, 10, 0)},
		{"ai_call never on saturday", at(6, 12, 0), domain.ChannelAICall, 0, at(8, 10, 0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc.NextValidSendTimeAt(tc.now, tc.channel, tc.delay)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
		})
	}
}

func TestNextValidSendTimeUsesClock(t *testing.T) {
	loc := newYork(t)
	sunday := time.Date(2026, time.June, 7, 11, 0, 0, 0, loc)
	calc, err := New(loc, DefaultRules(), WithClock(func() time.Time { return sunday.UTC() }))
	require.NoError(t, err)

	got := calc.NextValidSendTime(domain.ChannelSMS, 0)
	assert.Equal(t, time.Monday, got.Weekday())
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, "America/New_York", got.Location().String())
}

func TestNextValidSendTimeNeverReturnsDisallowedDay(t *testing.T) {
	loc := newYork(t)
	calc := newCalculator(t, DefaultRules())
	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, loc)

	for h := 0; h < 7*24; h++ {
		now := start.Add(time.Duration(h) * time.Hour)
		for _, ch := range domain.Channels {
			got := calc.NextValidSendTimeAt(now, ch, 0)
			require.False(t, got.Before(now), "%s at %s went backwards", ch, now)
			require.NotEqual(t, time.Sunday, got.Weekday(), "%s at %s", ch, now)
			if ch != domain.ChannelEmail {
				require.NotEqual(t, time.Saturday, got.Weekday(), "%s at %s", ch, now)
			}
			require.True(t, calc.IsChannelOpenAt(got, ch), "%s at %s -> %s is outside the window", ch, now, got)
		}
	}
}

func TestNextValidSendTimeAcrossDSTStart(t *testing.T) {
	loc := newYork(t)
	calc := newCalculator(t, DefaultRules())
	saturdayNight := time.Date(2026, time.March, 7, 22, 0, 0, 0, loc)

	got := calc.NextValidSendTimeAt(saturdayNight, domain.ChannelSMS, 0)

	want := time.Date(2026, time.March, 9, 9, 0, 0, 0, loc)
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
	_, offset := got.Zone()
	assert.Equal(t, -4*3600, offset)
}

func TestNextValidSendTimeFallsBackToTomorrow(t *testing.T) {
	loc := newYork(t)
	rules := DefaultRules()
	rules.Windows[domain.ActivitySMS] = Window{Start: 9, End: 9}
	calc := newCalculator(t, rules)

	tuesday := time.Date(2026, time.June, 9, 10, 0, 0, 0, loc)
	got := calc.NextValidSendTimeAt(tuesday, domain.ChannelSMS, 0)

	want := time.Date(2026, time.June, 10, 9, 0, 0, 0, loc)
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestIsWithinWindowAt(t *testing.T) {
	loc := newYork(t)
	calc := newCalculator(t, DefaultRules())
	tuesday := func(hour int) time.Time { return time.Date(2026, time.June, 9, hour, 0, 0, 0, loc) }
	saturday := time.Date(2026, time.June, 6, 11, 0, 0, 0, loc)

	assert.True(t, calc.IsWithinWindowAt(tuesday(9), 9, 17, nil))
	assert.True(t, calc.IsWithinWindowAt(tuesday(16), 9, 17, nil))
	assert.False(t, calc.IsWithinWindowAt(tuesday(17), 9, 17, nil))
	assert.False(t, calc.IsWithinWindowAt(tuesday(8), 9, 17, nil))
	assert.False(t, calc.IsWithinWindowAt(saturday, 9, 17, nil))
	assert.True(t, calc.IsWithinWindowAt(saturday, 9, 17, []time.Weekday{time.Saturday}))
	assert.False(t, calc.IsWithinWindowAt(tuesday(10), 9, 17, []time.Weekday{time.Monday}))

	// instants are converted to the business timezone before comparing
	assert.True(t, calc.IsWithinWindowAt(tuesday(10).UTC(), 9, 17, nil))
}

func TestNewRejectsInvalidRules(t *testing.T) {
	loc := newYork(t)

	rules := DefaultRules()
	rules.Windows[domain.ActivityCall] = Window{Start: -1, End: 17}
	_, err := New(loc, rules)
	assert.Error(t, err)

	rules = DefaultRules()
	delete(rules.Windows, domain.ActivityEmail)
	_, err = New(loc, rules)
	assert.Error(t, err)

	_, err = New(nil, DefaultRules())
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		Timezone: "America/Chicago",
		SendWindows: map[string]config.HourWindow{
			"sms":   {Start: 9, End: 20},
			"email": {Start: 8, End: 21},
			"call":  {Start: 11, End: 16},
		},
		SaturdayEmailWindow: config.HourWindow{Start: 10, End: 14},
	}
	calc, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", calc.Location().String())

	tue := time.Date(2026, time.June, 9, 10, 30, 0, 0, calc.Location())
	assert.False(t, calc.IsChannelOpenAt(tue, domain.ChannelAICall))
	assert.True(t, calc.IsChannelOpenAt(tue.Add(time.Hour), domain.ChannelAICall))

	cfg.Timezone = "Mars/Olympus_Mons"
	_, err = FromConfig(cfg)
	assert.Error(t, err)

	cfg.Timezone = "UTC"
	delete(cfg.SendWindows, "call")
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}
