package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/lifecycle"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/internal/outreach/sequencer"
	"outreach_backend/internal/outreach/transport"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/phone"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"

	defaultActivityLimit = 100
	maxActivityLimit     = 500

	emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// PhoneLookup resolves an inbound sender to a lead.
type PhoneLookup interface {
	GetLeadByPhone(ctx context.Context, phone string) (domain.Lead, error)
}

// BatchTrigger runs one sequence batch on demand.
type BatchTrigger interface {
	Tick(ctx context.Context, trigger string) (sequencer.BatchResult, error)
}

type Handler struct {
	svc    *lifecycle.Service
	runner BatchTrigger
	phones PhoneLookup
	log    *logger.Logger
}

func New(svc *lifecycle.Service, runner BatchTrigger, phones PhoneLookup, log *logger.Logger) *Handler {
	return &Handler{svc: svc, runner: runner, phones: phones, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads/:id", h.GetLead)
	rg.GET("/leads/:id/activities", h.ListActivities)
	rg.POST("/leads/:id/events", h.ApplyEvent)
	rg.POST("/leads/:id/replies", h.RecordReply)
	rg.POST("/leads/:id/opt-out", h.OptOut)
	rg.POST("/leads/:id/resubscribe", h.Resubscribe)
	rg.POST("/leads/:id/call-outcome", h.RecordCallOutcome)
	rg.POST("/leads/:id/pause", h.Pause)
	rg.POST("/leads/:id/resume", h.Resume)
	rg.POST("/leads/:id/mark-qualified", h.MarkQualified)
	rg.POST("/leads/:id/mark-dnc", h.MarkDNC)
	rg.POST("/leads/:id/meeting-booked", h.MeetingBooked)
	rg.POST("/leads/:id/app-downloaded", h.AppDownloaded)

	rg.GET("/system/pause", h.GetSystemPause)
	rg.PUT("/system/pause", h.SetSystemPause)
	rg.POST("/scheduler/run", h.RunScheduler)
}

// RegisterWebhooks mounts provider callbacks. They carry no session and are
// rate limited by the caller.
func (h *Handler) RegisterWebhooks(rg *gin.RouterGroup) {
	rg.POST("/twilio/sms", h.TwilioInboundSMS)
}

func (h *Handler) GetLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ListActivities(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := h.svc.ListActivities(c.Request.Context(), id, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToActivityResponses(entries)})
}

func (h *Handler) ApplyEvent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.ApplyEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	out, err := h.svc.ApplyEvent(c.Request.Context(), id, domain.EventType(req.EventType), req.BonusPoints)
	h.respondOutcome(c, out, err)
}

func (h *Handler) RecordReply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.ReplyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	out, err := h.svc.RecordReply(c.Request.Context(), id, ch, req.Content)
	h.respondOutcome(c, out, err)
}

func (h *Handler) OptOut(c *gin.Context) {
	h.channelOperation(c, h.svc.OptOut)
}

func (h *Handler) Resubscribe(c *gin.Context) {
	h.channelOperation(c, h.svc.Resubscribe)
}

func (h *Handler) channelOperation(c *gin.Context, op func(context.Context, uuid.UUID, domain.Channel) (lifecycle.Outcome, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.OptOutRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	out, err := op(c.Request.Context(), id, ch)
	h.respondOutcome(c, out, err)
}

func (h *Handler) RecordCallOutcome(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.CallOutcomeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	out, err := h.svc.RecordCallOutcome(c.Request.Context(), id, lifecycle.CallOutcomeInput{
		Outcome:         domain.CallOutcome(req.Outcome),
		Summary:         req.Summary,
		DurationSeconds: req.DurationSeconds,
		ProviderCallID:  req.ProviderCallID,
		WantsMeeting:    req.WantsMeeting,
		WantsApp:        req.WantsApp,
	})
	h.respondOutcome(c, out, err)
}

func (h *Handler) Pause(c *gin.Context)         { h.leadOperation(c, h.svc.Pause) }
func (h *Handler) Resume(c *gin.Context)        { h.leadOperation(c, h.svc.Resume) }
func (h *Handler) MarkQualified(c *gin.Context) { h.leadOperation(c, h.svc.MarkQualified) }
func (h *Handler) MarkDNC(c *gin.Context)       { h.leadOperation(c, h.svc.MarkDNC) }
func (h *Handler) MeetingBooked(c *gin.Context) { h.leadOperation(c, h.svc.MeetingBooked) }
func (h *Handler) AppDownloaded(c *gin.Context) { h.leadOperation(c, h.svc.AppDownloaded) }

func (h *Handler) leadOperation(c *gin.Context, op func(context.Context, uuid.UUID) (lifecycle.Outcome, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	out, err := op(c.Request.Context(), id)
	h.respondOutcome(c, out, err)
}

func (h *Handler) GetSystemPause(c *gin.Context) {
	paused, err := h.svc.IsSystemPaused(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SystemPauseResponse{Paused: paused})
}

func (h *Handler) SetSystemPause(c *gin.Context) {
	var req transport.SystemPauseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.SetSystemPaused(c.Request.Context(), *req.Paused); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SystemPauseResponse{Paused: *req.Paused})
}

// RunScheduler runs one batch synchronously and returns its counts.
func (h *Handler) RunScheduler(c *gin.Context) {
	result, err := h.runner.Tick(c.Request.Context(), sequencer.TriggerManual)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// TwilioInboundSMS records an inbound SMS as a reply. Unknown senders are
// acknowledged so the provider does not retry.
func (h *Handler) TwilioInboundSMS(c *gin.Context) {
	var form transport.TwilioSMSForm
	if err := c.ShouldBind(&form); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := validator.Validate.Struct(form); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ctx := c.Request.Context()
	from := phone.NormalizeE164(form.From)
	lead, err := h.phones.GetLeadByPhone(ctx, from)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.log.Info("inbound sms from unknown number", "from", from, "messageSid", form.MessageSID)
			c.Data(http.StatusOK, "text/xml", []byte(emptyTwiML))
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	if _, err := h.svc.RecordReply(ctx, lead.ID, domain.ChannelSMS, form.Body); httpkit.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(emptyTwiML))
}

func (h *Handler) respondOutcome(c *gin.Context, out lifecycle.Outcome, err error) {
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToOutcomeResponse(out))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := validator.Validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}
