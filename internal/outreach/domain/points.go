package domain

import (
	"errors"
	"fmt"
)

// EventType is a named scoring signal.
type EventType string

const (
	EventSMSDelivered     EventType = "sms_delivered"
	EventEmailDelivered   EventType = "email_delivered"
	EventEmailOpened      EventType = "email_opened"
	EventEmailOpenedAgain EventType = "email_opened_again"
	EventEmailClicked     EventType = "email_clicked"
	EventVideoClicked     EventType = "video_clicked"
	EventSMSReplied       EventType = "sms_replied"
	EventEmailReplied     EventType = "email_replied"
	EventCallAnswered     EventType = "call_answered"
	EventCallLong         EventType = "call_long"
	EventCallQualified    EventType = "call_qualified"
	EventWantsMeeting     EventType = "wants_meeting"
	EventWantsApp         EventType = "wants_app"
	EventMeetingBooked    EventType = "meeting_booked"
	EventAppDownloaded    EventType = "app_downloaded"
	EventNegativeReply    EventType = "negative_reply"
	EventOptOut           EventType = "opt_out"
	EventWrongNumber      EventType = "wrong_number"
	EventNoAnswer3x       EventType = "no_answer_3x"
	EventInactivityDecay  EventType = "inactivity_decay"
	EventManual           EventType = "manual"
)

// ErrUnknownEvent is returned for event types missing from the point table.
var ErrUnknownEvent = errors.New("unknown event type")

// EventTypes lists every scoring event.
var EventTypes = []EventType{
	EventSMSDelivered, EventEmailDelivered, EventEmailOpened, EventEmailOpenedAgain,
	EventEmailClicked, EventVideoClicked, EventSMSReplied, EventEmailReplied,
	EventCallAnswered, EventCallLong, EventCallQualified, EventWantsMeeting,
	EventWantsApp, EventMeetingBooked, EventAppDownloaded, EventNegativeReply,
	EventOptOut, EventWrongNumber, EventNoAnswer3x, EventInactivityDecay, EventManual,
}

// PointTable maps each event to a signed point value.
type PointTable map[EventType]int

// DefaultPointTable returns the stock point values.
func DefaultPointTable() PointTable {
	return PointTable{
		EventSMSDelivered:     1,
		EventEmailDelivered:   1,
		EventEmailOpened:      3,
		EventEmailOpenedAgain: 2,
		EventEmailClicked:     5,
		EventVideoClicked:     7,
		EventSMSReplied:       10,
		EventEmailReplied:     10,
		EventCallAnswered:     10,
		EventCallLong:         5,
		EventCallQualified:    20,
		EventWantsMeeting:     15,
		EventWantsApp:         10,
		EventMeetingBooked:    30,
		EventAppDownloaded:    25,
		EventNegativeReply:    -15,
		EventOptOut:           -100,
		EventWrongNumber:      -50,
		EventNoAnswer3x:       -10,
		EventInactivityDecay:  -3,
		EventManual:           0,
	}
}

// Validate checks every known event has a value and nothing else is present.
func (p PointTable) Validate() error {
	for _, e := range EventTypes {
		if _, ok := p[e]; !ok {
			return fmt.Errorf("point table missing %s", e)
		}
	}
	if len(p) != len(EventTypes) {
		for e := range p {
			if !e.Known() {
				return fmt.Errorf("point table has unknown event %s", e)
			}
		}
	}
	return nil
}

// Points looks up the value for event.
func (p PointTable) Points(event EventType) (int, error) {
	v, ok := p[event]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	return v, nil
}

// Known reports whether e is a defined event type.
func (e EventType) Known() bool {
	for _, known := range EventTypes {
		if e == known {
			return true
		}
	}
	return false
}
