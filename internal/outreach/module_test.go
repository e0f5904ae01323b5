package outreach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/outreachtest"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Lead, domain.Notification) error { return nil }
func (nopNotifier) EnqueueAutoAction(context.Context, domain.Lead, domain.AutoAction) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Timezone:            "America/New_York",
		SequenceInterval:    time.Minute,
		SequenceBatchSize:   10,
		SequenceConcurrency: 1,
		SendTimeout:         time.Second,
		TickLockTTL:         time.Minute,
		DailyLimits:         map[string]int{"sms": 200, "email": 500, "call": 75},
		SendWindows: map[string]config.HourWindow{
			"sms":   {Start: 9, End: 20},
			"email": {Start: 8, End: 21},
			"call":  {Start: 10, End: 17},
		},
		SaturdayEmailWindow: config.HourWindow{Start: 10, End: 14},
		MeetingLink:         "https://cal.example.com/intro",
	}
}

func TestNewModuleRequiresEmailProvider(t *testing.T) {
	_, err := NewModule(outreachtest.NewStore(), nopNotifier{}, Providers{}, testConfig(), nil, events.NewInMemoryBus(logger.NewNop()), logger.NewNop())
	assert.Error(t, err)
}

func TestNewModuleRejectsBadTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Nowhere/Special"
	_, err := NewModule(outreachtest.NewStore(), nopNotifier{}, Providers{Email: email.NoopSender{}}, cfg, nil, events.NewInMemoryBus(logger.NewNop()), logger.NewNop())
	assert.Error(t, err)
}

func TestModuleRegistersRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := outreachtest.NewStore()
	lead := outreachtest.NewLead(30, domain.TierWarm)
	store.PutLead(lead)

	m, err := NewModule(store, nopNotifier{}, Providers{Email: email.NoopSender{}}, testConfig(), nil, events.NewInMemoryBus(logger.NewNop()), logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "outreach", m.Name())
	assert.NotNil(t, m.Service())
	assert.NotNil(t, m.Runner())
	assert.NotNil(t, m.SMSSender())

	engine := gin.New()
	m.RegisterRoutes(&apphttp.Routes{
		V1:       engine.Group("/api/v1"),
		Webhooks: engine.Group("/api/webhooks"),
	})

	for _, path := range []string{"/api/v1/system/pause", "/api/v1/leads/" + lead.ID.String()} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestModuleSMSSenderFallsBackToDryRun(t *testing.T) {
	store := outreachtest.NewStore()
	lead := outreachtest.NewLead(30, domain.TierWarm)
	store.PutLead(lead)

	m, err := NewModule(store, nopNotifier{}, Providers{Email: email.NoopSender{}}, testConfig(), nil, events.NewInMemoryBus(logger.NewNop()), logger.NewNop())
	require.NoError(t, err)

	res, err := m.SMSSender().SendBody(context.Background(), lead.ID, "Hi {{first_name}}")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.ProviderID)
	assert.Equal(t, 1, store.Lead(lead.ID).TotalSMSSent)
}
