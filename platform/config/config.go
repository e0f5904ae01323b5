// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides the Redis connection shared by asynq and the tick lock.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SequencerConfig provides settings for the sequence tick.
type SequencerConfig interface {
	GetSequenceInterval() time.Duration
	GetSequenceBatchSize() int
	GetSequenceConcurrency() int
	GetSendTimeout() time.Duration
	GetTickLockTTL() time.Duration
	GetDailyLimits() map[string]int
}

// SendWindowConfig provides per-channel send windows.
type SendWindowConfig interface {
	GetTimezone() string
	GetSendWindows() map[string]HourWindow
	GetSaturdayEmailWindow() HourWindow
}

// SMSConfig provides Twilio credentials.
type SMSConfig interface {
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioFromNumber() string
	IsSMSEnabled() bool
}

// EmailConfig provides SMTP settings for outreach and notification email.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// VoiceConfig provides Vapi credentials for AI calls.
type VoiceConfig interface {
	GetVapiAPIKey() string
	GetVapiAssistantID() string
	GetVapiPhoneNumberID() string
	IsVoiceEnabled() bool
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetNotificationEmail() string
	GetNotificationCC() []string
	GetAppBaseURL() string
}

// LinksConfig provides links injected into templates and auto-actions.
type LinksConfig interface {
	GetMeetingLink() string
	GetAppLink() string
}

// HourWindow is a half-open [Start, End) range of local hours.
type HourWindow struct {
	Start int
	End   int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	AppBaseURL          string
	Timezone            string
	SequenceInterval    time.Duration
	SequenceBatchSize   int
	SequenceConcurrency int
	SendTimeout         time.Duration
	TickLockTTL         time.Duration
	DailyLimits         map[string]int
	SendWindows         map[string]HourWindow
	SaturdayEmailWindow HourWindow
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	VapiAPIKey          string
	VapiAssistantID     string
	VapiPhoneNumberID   string
	NotificationEmail   string
	NotificationCC      []string
	MeetingLink         string
	AppLink             string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// SequencerConfig implementation
func (c *Config) GetSequenceInterval() time.Duration { return c.SequenceInterval }
func (c *Config) GetSequenceBatchSize() int          { return c.SequenceBatchSize }
func (c *Config) GetSequenceConcurrency() int        { return c.SequenceConcurrency }
func (c *Config) GetSendTimeout() time.Duration      { return c.SendTimeout }
func (c *Config) GetTickLockTTL() time.Duration      { return c.TickLockTTL }
func (c *Config) GetDailyLimits() map[string]int     { return c.DailyLimits }

// SendWindowConfig implementation
func (c *Config) GetTimezone() string                   { return c.Timezone }
func (c *Config) GetSendWindows() map[string]HourWindow { return c.SendWindows }
func (c *Config) GetSaturdayEmailWindow() HourWindow    { return c.SaturdayEmailWindow }

// SMSConfig implementation
func (c *Config) GetTwilioAccountSID() string { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string  { return c.TwilioAuthToken }
func (c *Config) GetTwilioFromNumber() string { return c.TwilioFromNumber }
func (c *Config) IsSMSEnabled() bool          { return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.SMTPHost != "" }

// VoiceConfig implementation
func (c *Config) GetVapiAPIKey() string        { return c.VapiAPIKey }
func (c *Config) GetVapiAssistantID() string   { return c.VapiAssistantID }
func (c *Config) GetVapiPhoneNumberID() string { return c.VapiPhoneNumberID }
func (c *Config) IsVoiceEnabled() bool         { return c.VapiAPIKey != "" }

// NotificationConfig implementation
func (c *Config) GetNotificationEmail() string { return c.NotificationEmail }
func (c *Config) GetNotificationCC() []string  { return c.NotificationCC }
func (c *Config) GetAppBaseURL() string        { return c.AppBaseURL }

// LinksConfig implementation
func (c *Config) GetMeetingLink() string { return c.MeetingLink }
func (c *Config) GetAppLink() string     { return c.AppLink }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		AppBaseURL:          getEnv("APP_BASE_URL", "http://localhost:3000"),
		Timezone:            getEnv("TIMEZONE", "America/New_York"),
		SequenceInterval:    mustDuration(getEnv("SEQUENCE_INTERVAL", "5m")),
		SequenceBatchSize:   mustInt(getEnv("SEQUENCE_BATCH_SIZE", "50")),
		SequenceConcurrency: mustInt(getEnv("SEQUENCE_CONCURRENCY", "1")),
		SendTimeout:         mustDuration(getEnv("SEND_TIMEOUT", "30s")),
		TickLockTTL:         mustDuration(getEnv("TICK_LOCK_TTL", "10m")),
		DailyLimits: map[string]int{
			"sms":   mustInt(getEnv("DAILY_SMS_LIMIT", "200")),
			"email": mustInt(getEnv("DAILY_EMAIL_LIMIT", "500")),
			"call":  mustInt(getEnv("DAILY_CALL_LIMIT", "75")),
		},
		SendWindows: map[string]HourWindow{
			"sms":   {Start: mustInt(getEnv("SMS_WINDOW_START", "9")), End: mustInt(getEnv("SMS_WINDOW_END", "20"))},
			"email": {Start: mustInt(getEnv("EMAIL_WINDOW_START", "8")), End: mustInt(getEnv("EMAIL_WINDOW_END", "21"))},
			"call":  {Start: mustInt(getEnv("CALL_WINDOW_START", "10")), End: mustInt(getEnv("CALL_WINDOW_END", "17"))},
		},
		SaturdayEmailWindow: HourWindow{
			Start: mustInt(getEnv("SATURDAY_EMAIL_WINDOW_START", "10")),
			End:   mustInt(getEnv("SATURDAY_EMAIL_WINDOW_END", "14")),
		},
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_PHONE_NUMBER", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Outreach"),
		EmailFromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
		VapiAPIKey:        getEnv("VAPI_API_KEY", ""),
		VapiAssistantID:   getEnv("VAPI_ASSISTANT_ID", ""),
		VapiPhoneNumberID: getEnv("VAPI_PHONE_NUMBER_ID", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		NotificationCC:    splitCSV(getEnv("NOTIFICATION_CC", "")),
		MeetingLink:       getEnv("MEETING_LINK", ""),
		AppLink:           getEnv("APP_LINK", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.IsSMSEnabled() && cfg.TwilioFromNumber == "" {
		return nil, fmt.Errorf("TWILIO_PHONE_NUMBER is required when Twilio is configured")
	}
	if cfg.IsEmailEnabled() && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when SMTP is configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the numeric settings that the scheduler depends on.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.SequenceInterval <= 0 {
		return fmt.Errorf("SEQUENCE_INTERVAL must be a positive duration")
	}
	if c.SequenceBatchSize <= 0 {
		return fmt.Errorf("SEQUENCE_BATCH_SIZE must be positive")
	}
	if c.SequenceConcurrency <= 0 {
		return fmt.Errorf("SEQUENCE_CONCURRENCY must be positive")
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("SEND_TIMEOUT must be a positive duration")
	}
	for channel, limit := range c.DailyLimits {
		if limit < 0 {
			return fmt.Errorf("daily limit for %s must not be negative", channel)
		}
	}
	windows := make(map[string]HourWindow, len(c.SendWindows)+1)
	for channel, w := range c.SendWindows {
		windows[channel] = w
	}
	windows["saturday_email"] = c.SaturdayEmailWindow
	for channel, w := range windows {
		if w.Start < 0 || w.Start > 24 || w.End < 0 || w.End > 24 {
			return fmt.Errorf("send window for %s must use hours 0-24", channel)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
