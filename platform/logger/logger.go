// Package logger wraps slog with the correlation ids and event helpers the
// services log with.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

// Context keys picked up by WithContext.
const (
	RequestIDKey contextKey = "request_id"
	LeadIDKey    contextKey = "lead_id"
	TickIDKey    contextKey = "tick_id"
)

var contextKeys = []contextKey{RequestIDKey, LeadIDKey, TickIDKey}

type Logger struct {
	*slog.Logger
}

// New logs text at debug level in development and JSON at info level
// everywhere else.
func New(env string) *Logger {
	if strings.EqualFold(env, "development") {
		return &Logger{slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

func NewNop() *Logger {
	return &Logger{slog.New(slog.DiscardHandler)}
}

// WithContext attaches whichever correlation ids ctx carries.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var attrs []any
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{l.With(attrs...)}
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{l.With(slog.String(string(RequestIDKey), requestID))}
}

func (l *Logger) WithLeadID(leadID string) *Logger {
	return &Logger{l.With(slog.String(string(LeadIDKey), leadID))}
}

func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// SchedulerBatch records one sequence tick. Ticks with errors log at warn.
func (l *Logger) SchedulerBatch(trigger string, processed, skipped, deferred, failed, errs int, reason string, elapsed time.Duration) {
	attrs := []any{
		slog.String("trigger", trigger),
		slog.Int("processed", processed),
		slog.Int("skipped", skipped),
		slog.Int("deferred", deferred),
		slog.Int("failed", failed),
		slog.Int("errors", errs),
		slog.Duration("elapsed", elapsed),
	}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	level := slog.LevelInfo
	if errs > 0 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "sequence_batch", attrs...)
}

// SendAttempt records one outbound message or call.
func (l *Logger) SendAttempt(channel, leadID string, success bool, err error) {
	attrs := []any{
		slog.String("channel", channel),
		slog.String("lead_id", leadID),
		slog.Bool("success", success),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if success {
		l.Info("send_attempt", attrs...)
		return
	}
	l.Warn("send_attempt", attrs...)
}

func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
