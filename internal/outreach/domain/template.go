package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template is the message body a step references by id.
type Template struct {
	ID      string
	Channel Channel
	Subject string
	Body    string
}

// MergeData fills {{tag}} placeholders.
type MergeData struct {
	FirstName   string
	LastName    string
	Company     string
	MeetingLink string
	AppLink     string
}

// MergeDataFor builds merge data from a lead and the configured links.
func MergeDataFor(l Lead, meetingLink, appLink string) MergeData {
	return MergeData{
		FirstName:   l.FirstName,
		LastName:    l.LastName,
		Company:     l.Company,
		MeetingLink: meetingLink,
		AppLink:     appLink,
	}
}

// Merge replaces the supported tags in text. Unknown tags are left as is.
func (d MergeData) Merge(text string) string {
	firstName := d.FirstName
	if firstName == "" {
		firstName = "there"
	}
	return strings.NewReplacer(
		"{{first_name}}", firstName,
		"{{last_name}}", d.LastName,
		"{{company}}", d.Company,
		"{{meeting_link}}", d.MeetingLink,
		"{{app_link}}", d.AppLink,
	).Replace(text)
}

// CallOutcome is the disposition reported for an AI call.
type CallOutcome string

const (
	CallQualified     CallOutcome = "qualified"
	CallCallback      CallOutcome = "callback"
	CallNotInterested CallOutcome = "not_interested"
	CallWrongNumber   CallOutcome = "wrong_number"
	CallNoAnswer      CallOutcome = "no_answer"
	CallBusy          CallOutcome = "busy"
)

// CallLog is one completed AI call.
type CallLog struct {
	ID              int64
	LeadID          uuid.UUID
	ProviderCallID  string
	Outcome         CallOutcome
	Summary         string
	DurationSeconds int
	CreatedAt       time.Time
}
