// Package outreach provides the lead lifecycle bounded context module.
// This file wires scoring, routing, delivery and the sequence scheduler and
// registers the outreach routes.
package outreach

import (
	"fmt"

	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/outreach/delivery"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/handler"
	"outreach_backend/internal/outreach/lifecycle"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/internal/outreach/scoring"
	"outreach_backend/internal/outreach/sendwindow"
	"outreach_backend/internal/outreach/sequencer"
	"outreach_backend/platform/config"
	"outreach_backend/platform/lock"
	"outreach_backend/platform/logger"
)

// Config is the settings surface the module reads.
type Config interface {
	config.SequencerConfig
	config.SendWindowConfig
	config.LinksConfig
}

// Providers are the outbound channel clients. A nil provider falls back to a
// dry-run client that only logs.
type Providers struct {
	SMS   delivery.SMSProvider
	Email delivery.EmailProvider
	Call  delivery.CallProvider
}

// Module is the outreach bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *lifecycle.Service
	runner  *sequencer.Runner
	sms     *delivery.SMSSender
}

// NewModule builds the module. ticks may be nil, in which case overlapping
// ticks are only prevented within this process.
func NewModule(store repository.Store, notifier lifecycle.Notifier, providers Providers, cfg Config, ticks lock.Factory, bus events.Bus, log *logger.Logger) (*Module, error) {
	engine, err := scoring.New(domain.DefaultPointTable(), domain.DefaultTierTable())
	if err != nil {
		return nil, fmt.Errorf("scoring engine: %w", err)
	}
	windows, err := sendwindow.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	dryRun := delivery.NewDryRun(log)
	if providers.SMS == nil {
		log.Warn("twilio not configured, sms runs in dry-run mode")
		providers.SMS = dryRun
	}
	if providers.Call == nil {
		log.Warn("vapi not configured, ai calls run in dry-run mode")
		providers.Call = dryRun
	}
	if providers.Email == nil {
		return nil, fmt.Errorf("email provider is required")
	}

	links := delivery.Links{Meeting: cfg.GetMeetingLink(), App: cfg.GetAppLink()}
	smsSender := delivery.NewSMSSender(store, providers.SMS, links, log)
	senders := map[domain.Channel]delivery.Sender{
		domain.ChannelSMS:    smsSender,
		domain.ChannelEmail:  delivery.NewEmailSender(store, providers.Email, links, log),
		domain.ChannelAICall: delivery.NewCallSender(store, providers.Call, links, log),
	}

	// One keyed mutex serializes webhook mutations against scheduler sends.
	locks := lock.NewKeyedMutex()
	svc := lifecycle.New(store, engine, locks, notifier, log, lifecycle.WithBus(bus))
	sched := sequencer.New(store, windows, senders, locks, log, sequencer.WithConcurrency(cfg.GetSequenceConcurrency()))
	runner := sequencer.NewRunner(sched, svc, cfg, ticks, log, sequencer.WithRunnerBus(bus))

	return &Module{
		handler: handler.New(svc, runner, store, log),
		service: svc,
		runner:  runner,
		sms:     smsSender,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "outreach"
}

// Service exposes the lifecycle service for background jobs.
func (m *Module) Service() *lifecycle.Service {
	return m.service
}

// Runner exposes the sequence runner for the scheduler process.
func (m *Module) Runner() *sequencer.Runner {
	return m.runner
}

// SMSSender sends auto-action follow-ups through the same ledger-recording path.
func (m *Module) SMSSender() *delivery.SMSSender {
	return m.sms
}

// RegisterRoutes mounts outreach routes and provider webhooks.
func (m *Module) RegisterRoutes(r *apphttp.Routes) {
	m.handler.RegisterRoutes(r.V1)
	m.handler.RegisterWebhooks(r.Webhooks)
}

var _ apphttp.Module = (*Module)(nil)
