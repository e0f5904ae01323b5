// Package sse broadcasts lifecycle events to connected dashboards over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventTierChanged    EventType = "tier_changed"
	EventLeadReplied    EventType = "lead_replied"
	EventLeadOptedOut   EventType = "lead_opted_out"
	EventOpsAlert       EventType = "ops_alert"
	EventRepAlert       EventType = "rep_alert"
	EventBatchCompleted EventType = "batch_completed"
	EventSystemPause    EventType = "system_pause"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType `json:"type"`
	LeadID  uuid.UUID `json:"leadId,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

const clientBuffer = 32

type client struct {
	id     uuid.UUID
	events chan Event
}

// Service fans events out to every connected client.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	log     *logger.Logger
}

func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	close(c.events)
}

// ClientCount returns the number of connected clients.
func (s *Service) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends event to every client. Slow clients drop events instead of
// blocking the publisher.
func (s *Service) Broadcast(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full, event dropped", "clientId", c.id, "type", event.Type)
		}
	}
	s.log.Debug("sse event broadcast", "type", event.Type, "clients", len(s.clients))
}

// subscribe registers a client and returns it with its cleanup func.
func (s *Service) subscribe() (*client, func()) {
	c := &client{id: uuid.New(), events: make(chan Event, clientBuffer)}
	s.addClient(c)
	return c, func() { s.removeClient(c) }
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl, cleanup := s.subscribe()
		defer cleanup()

		c.Status(http.StatusOK)
		c.SSEvent("connected", gin.H{"clientId": cl.id})
		c.Writer.Flush()

		s.log.Debug("sse client connected", "clientId", cl.id)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "clientId", cl.id)
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every client.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		close(c.events)
	}
	s.clients = make(map[uuid.UUID]*client)
}
