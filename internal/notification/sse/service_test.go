package sse

import (
	"net/http/httptest"
	"testing"
	"time"

	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesEveryClient(t *testing.T) {
	s := New(logger.NewNop())
	a, closeA := s.subscribe()
	b, closeB := s.subscribe()
	defer closeA()
	defer closeB()

	leadID := uuid.New()
	s.Broadcast(Event{Type: EventTierChanged, LeadID: leadID})

	for _, c := range []*client{a, b} {
		select {
		case e := <-c.events:
			assert.Equal(t, EventTierChanged, e.Type)
			assert.Equal(t, leadID, e.LeadID)
		default:
			t.Fatal("event not delivered")
		}
	}
}

func TestBroadcastDropsForFullClient(t *testing.T) {
	s := New(logger.NewNop())
	c, cleanup := s.subscribe()
	defer cleanup()

	for i := 0; i < clientBuffer+5; i++ {
		s.Broadcast(Event{Type: EventBatchCompleted})
	}
	assert.Len(t, c.events, clientBuffer)
}

func TestRemoveClientTwiceIsSafe(t *testing.T) {
	s := New(logger.NewNop())
	_, cleanup := s.subscribe()
	require.Equal(t, 1, s.ClientCount())

	s.Close()
	cleanup()
	assert.Equal(t, 0, s.ClientCount())
}

func TestHandlerStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(logger.NewNop())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/events/stream", nil)

	done := make(chan struct{})
	go func() {
		s.Handler()(c)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	s.Broadcast(Event{Type: EventOpsAlert, Message: "hot lead"})
	s.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event:connected")
	assert.Contains(t, body, "event:ops_alert")
	assert.Contains(t, body, "hot lead")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}
