// Package notification dispatches the side effects of lead transitions after
// they commit: qualifying hand-off emails and auto-action follow-ups go
// through the durable outbox, alerts and lifecycle events are pushed to
// dashboards over SSE.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	notificationoutbox "outreach_backend/internal/notification/outbox"
	"outreach_backend/internal/notification/sse"
	"outreach_backend/internal/outreach/delivery"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute
	leadPathFmt                = "%s/leads/%s"
)

const (
	meetingLinkMessage = "Hey {{first_name}}, great chatting! Here's the link to book a quick call with our team:\n\n{{meeting_link}}\n\nPick whatever time works best."
	appLinkMessage     = "{{first_name}}, as promised, here's the free app download:\n\n{{app_link}}\n\nTakes about 2 min to set up. Text me if you have any questions!"
)

// OutboxStore is the slice of the outbox repository the module uses.
type OutboxStore interface {
	Insert(ctx context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (notificationoutbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

// LeadReader loads the lead details attached to a qualifying notification.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	LatestCallSummary(ctx context.Context, leadID uuid.UUID) (string, error)
}

// AutoActionSender sends free-form follow-up text to a lead.
type AutoActionSender interface {
	SendBody(ctx context.Context, leadID uuid.UUID, body string) (*delivery.SendResult, error)
}

// Config combines the settings the module reads.
type Config interface {
	config.NotificationConfig
	config.LinksConfig
}

type qualifyingPayload struct {
	Score   int    `json:"score"`
	Message string `json:"message,omitempty"`
}

type autoActionPayload struct {
	Action domain.AutoActionKind `json:"action"`
}

// Module handles post-commit dispatch and the outbox worker side.
type Module struct {
	outbox OutboxStore
	leads  LeadReader
	sender email.Sender
	sms    AutoActionSender
	bus    events.Bus
	sse    *sse.Service
	cfg    Config
	log    *logger.Logger
	now    func() time.Time
}

// New creates a new notification module.
func New(outbox OutboxStore, leads LeadReader, sender email.Sender, cfg Config, log *logger.Logger) *Module {
	return &Module{
		outbox: outbox,
		leads:  leads,
		sender: sender,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

func (m *Module) Name() string { return "notification" }

// RegisterRoutes mounts the dashboard event stream.
func (m *Module) RegisterRoutes(r *apphttp.Routes) {
	if m.sse == nil {
		return
	}
	r.V1.GET("/events/stream", m.sse.Handler())
}

// SetSSE injects the SSE service used to broadcast lifecycle events.
func (m *Module) SetSSE(s *sse.Service) { m.sse = s }

// SetAutoActionSender injects the SMS sender used for auto-actions.
func (m *Module) SetAutoActionSender(s AutoActionSender) { m.sms = s }

// SetBus injects the bus alerts are published on.
func (m *Module) SetBus(bus events.Bus) { m.bus = bus }

// SetClock overrides the time source used for retry scheduling.
func (m *Module) SetClock(now func() time.Time) { m.now = now }

func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	bus.Subscribe(events.LeadTierChanged{}.EventName(), m)
	bus.Subscribe(events.LeadReplied{}.EventName(), m)
	bus.Subscribe(events.LeadOptedOut{}.EventName(), m)
	bus.Subscribe(events.AlertRaised{}.EventName(), m)
	bus.Subscribe(events.SequenceBatchCompleted{}.EventName(), m)
	bus.Subscribe(events.SystemPauseChanged{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	case events.LeadTierChanged:
		m.broadcast(sse.Event{Type: sse.EventTierChanged, LeadID: e.LeadID, Data: e})
	case events.LeadReplied:
		m.broadcast(sse.Event{Type: sse.EventLeadReplied, LeadID: e.LeadID, Message: e.Preview, Data: e})
	case events.LeadOptedOut:
		m.broadcast(sse.Event{Type: sse.EventLeadOptedOut, LeadID: e.LeadID, Data: e})
	case events.AlertRaised:
		m.broadcast(sse.Event{Type: alertEventType(e.Kind), LeadID: e.LeadID, Message: e.Message, Data: e})
	case events.SequenceBatchCompleted:
		m.broadcast(sse.Event{Type: sse.EventBatchCompleted, Data: e})
	case events.SystemPauseChanged:
		m.broadcast(sse.Event{Type: sse.EventSystemPause, Data: e})
	default:
		m.log.Debug("unhandled event", "event", event.EventName())
	}
	return nil
}

func (m *Module) broadcast(e sse.Event) {
	if m.sse == nil {
		return
	}
	m.sse.Broadcast(e)
}

func alertEventType(kind string) sse.EventType {
	if kind == string(domain.NotifyRepAlert) {
		return sse.EventRepAlert
	}
	return sse.EventOpsAlert
}

// Notify dispatches one routing notification. Qualifying hand-offs are
// written to the outbox; alerts are published immediately.
func (m *Module) Notify(ctx context.Context, lead domain.Lead, n domain.Notification) error {
	leadID := n.LeadID
	if leadID == uuid.Nil {
		leadID = lead.ID
	}

	switch n.Kind {
	case domain.NotifyQualifying:
		id, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
			LeadID:  leadID,
			Kind:    notificationoutbox.KindQualifyingNotification,
			Payload: qualifyingPayload{Score: n.Score, Message: n.Message},
		})
		if err != nil {
			return fmt.Errorf("queue qualifying notification: %w", err)
		}
		m.log.Info("qualifying notification queued", "leadId", leadID, "outboxId", id, "score", n.Score)
		return nil
	case domain.NotifyOpsAlert, domain.NotifyRepAlert:
		m.log.Info("lead alert", "kind", n.Kind, "leadId", leadID, "score", n.Score, "message", n.Message)
		if m.bus != nil {
			m.bus.Publish(ctx, events.AlertRaised{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    leadID,
				Kind:      string(n.Kind),
				Message:   n.Message,
				Score:     n.Score,
			})
		}
		return nil
	}
	return fmt.Errorf("unsupported notification kind %q", n.Kind)
}

// EnqueueAutoAction writes a follow-up to the outbox.
func (m *Module) EnqueueAutoAction(ctx context.Context, lead domain.Lead, a domain.AutoAction) error {
	if _, ok := autoActionBody(a.Kind); !ok {
		return fmt.Errorf("unsupported auto-action %q", a.Kind)
	}
	leadID := a.LeadID
	if leadID == uuid.Nil {
		leadID = lead.ID
	}
	id, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
		LeadID:  leadID,
		Kind:    notificationoutbox.KindAutoAction,
		Payload: autoActionPayload{Action: a.Kind},
	})
	if err != nil {
		return fmt.Errorf("queue auto-action: %w", err)
	}
	m.log.Info("auto-action queued", "leadId", leadID, "action", a.Kind, "outboxId", id)
	return nil
}

func autoActionBody(kind domain.AutoActionKind) (string, bool) {
	switch kind {
	case domain.AutoSendMeetingLink:
		return meetingLinkMessage, true
	case domain.AutoSendAppLink:
		return appLinkMessage, true
	}
	return "", false
}

// handleNotificationOutboxDue delivers one outbox record. Delivery errors are
// retried through the outbox, so they are not returned to the task queue.
func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	var processErr error
	switch rec.Kind {
	case notificationoutbox.KindQualifyingNotification:
		processErr = m.processQualifyingOutbox(ctx, rec)
	case notificationoutbox.KindAutoAction:
		processErr = m.processAutoActionOutbox(ctx, rec)
	default:
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if processErr != nil {
		m.handleOutboxDeliveryError(ctx, rec, processErr)
		return nil
	}
	m.log.Info("outbox record processed successfully", "outboxId", rec.ID, "kind", rec.Kind, "leadId", rec.LeadID)
	return nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Terminal() {
		m.log.Debug("outbox record already finished; skipping", "outboxId", rec.ID, "status", rec.Status)
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	return rec, true, nil
}

func (m *Module) processQualifyingOutbox(ctx context.Context, rec notificationoutbox.Record) error {
	var payload qualifyingPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}

	to := strings.TrimSpace(m.cfg.GetNotificationEmail())
	if to == "" {
		m.log.Warn("no notification email configured; qualifying notification dropped", "outboxId", rec.ID, "leadId", rec.LeadID)
		_ = m.outbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}

	lead, err := m.leads.GetLead(ctx, rec.LeadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = m.outbox.MarkFailed(ctx, rec.ID, "lead not found")
			return nil
		}
		return err
	}

	summary, err := m.leads.LatestCallSummary(ctx, lead.ID)
	if err != nil {
		m.log.Warn("call summary lookup failed", "leadId", lead.ID, "error", err)
		summary = ""
	}

	score := lead.Score
	if score < payload.Score {
		score = payload.Score
	}

	n := email.QualifyingNotification{
		To:          to,
		CC:          m.cfg.GetNotificationCC(),
		LeadName:    strings.TrimSpace(lead.FirstName + " " + lead.LastName),
		Company:     lead.Company,
		Phone:       lead.Phone,
		Email:       lead.Email,
		Score:       score,
		Tier:        string(lead.Tier),
		CallSummary: summary,
		LeadURL:     m.leadURL(lead.ID),
		MeetingLink: m.cfg.GetMeetingLink(),
		AppLink:     m.cfg.GetAppLink(),
	}
	if err := m.sender.SendQualifyingNotification(ctx, n); err != nil {
		return err
	}
	return m.outbox.MarkSucceeded(ctx, rec.ID)
}

func (m *Module) processAutoActionOutbox(ctx context.Context, rec notificationoutbox.Record) error {
	var payload autoActionPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}
	body, ok := autoActionBody(payload.Action)
	if !ok {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}
	if m.sms == nil {
		return errors.New("auto-action sender not configured")
	}

	res, err := m.sms.SendBody(ctx, rec.LeadID, body)
	switch {
	case errors.Is(err, delivery.ErrContactBlocked), errors.Is(err, repository.ErrNotFound):
		_ = m.outbox.MarkFailed(ctx, rec.ID, err.Error())
		m.log.Info("auto-action not sent", "outboxId", rec.ID, "leadId", rec.LeadID, "action", payload.Action, "reason", err)
		return nil
	case err != nil:
		return err
	}
	m.log.Info("auto-action sent", "outboxId", rec.ID, "leadId", rec.LeadID, "action", payload.Action, "providerId", res.ProviderID)
	return m.outbox.MarkSucceeded(ctx, rec.ID)
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID,
			"kind", rec.Kind,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := m.now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID,
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID,
		"kind", rec.Kind,
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec notificationoutbox.Record) {
	msg := fmt.Sprintf("unsupported outbox record kind: %s", rec.Kind)
	_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID, "kind", rec.Kind)
}

func (m *Module) leadURL(id uuid.UUID) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf(leadPathFmt, base, id)
}
