package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/outreach")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.GetTimezone())
	assert.Equal(t, 5*time.Minute, cfg.GetSequenceInterval())
	assert.Equal(t, 50, cfg.GetSequenceBatchSize())
	assert.Equal(t, 30*time.Second, cfg.GetSendTimeout())
	assert.Equal(t, map[string]int{"sms": 200, "email": 500, "call": 75}, cfg.GetDailyLimits())
	assert.Equal(t, HourWindow{Start: 9, End: 20}, cfg.GetSendWindows()["sms"])
	assert.Equal(t, HourWindow{Start: 10, End: 14}, cfg.GetSaturdayEmailWindow())
	assert.False(t, cfg.IsSMSEnabled())
	assert.False(t, cfg.IsEmailEnabled())
	assert.False(t, cfg.IsVoiceEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/outreach")
	t.Setenv("TIMEZONE", "Europe/Amsterdam")
	t.Setenv("DAILY_SMS_LIMIT", "25")
	t.Setenv("CALL_WINDOW_START", "11")
	t.Setenv("NOTIFICATION_CC", "a@example.com, b@example.com,")
	t.Setenv("CORS_ORIGINS", "*")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Amsterdam", cfg.GetTimezone())
	assert.Equal(t, 25, cfg.GetDailyLimits()["sms"])
	assert.Equal(t, 11, cfg.GetSendWindows()["call"].Start)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.GetNotificationCC())
	assert.True(t, cfg.GetCORSAllowAll())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database url", env: map[string]string{"DATABASE_URL": ""}},
		{name: "unknown timezone", env: map[string]string{"TIMEZONE": "Nowhere/Town"}},
		{name: "bad interval", env: map[string]string{"SEQUENCE_INTERVAL": "soon"}},
		{name: "zero batch", env: map[string]string{"SEQUENCE_BATCH_SIZE": "0"}},
		{name: "window out of range", env: map[string]string{"SMS_WINDOW_END": "25"}},
		{name: "negative limit", env: map[string]string{"DAILY_EMAIL_LIMIT": "-1"}},
		{name: "twilio without number", env: map[string]string{"TWILIO_ACCOUNT_SID": "AC1", "TWILIO_AUTH_TOKEN": "tok"}},
		{name: "smtp without sender", env: map[string]string{"SMTP_HOST": "smtp.example.com"}},
		{name: "credentials with wildcard cors", env: map[string]string{"CORS_ALLOW_ALL": "true", "CORS_ALLOW_CREDENTIALS": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/outreach")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
