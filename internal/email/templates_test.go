package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOutreachEmailSplitsParagraphs(t *testing.T) {
	html, err := renderOutreachEmail("Quick question", "Hi Dana,\r\n\r\nDo you have a minute?\n\n\n<b>Thanks</b>")
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Quick question</title>")
	assert.Contains(t, html, ">Hi Dana,</p>")
	assert.Contains(t, html, ">Do you have a minute?</p>")
	assert.Contains(t, html, "&lt;b&gt;Thanks&lt;/b&gt;")
}

func TestRenderQualifyingEmail(t *testing.T) {
	html, err := renderQualifyingEmail(QualifyingNotification{
		To:          "sales@example.com",
		LeadName:    "Dana Reyes",
		Phone:       "+15125550100",
		Score:       72,
		Tier:        "qualified",
		CallSummary: "Wants a walkthrough next week.",
		LeadURL:     "https://app.example.com/leads/1",
		MeetingLink: "https://cal.example.com/demo",
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Score: 72")
	assert.Contains(t, html, "Wants a walkthrough next week.")
	assert.Contains(t, html, "15125550100")
	assert.Contains(t, html, "https://cal.example.com/demo")
	assert.NotContains(t, html, "App download link")
}

func TestQualifyingSubjectFallsBackToUnknownCompany(t *testing.T) {
	assert.Equal(t, "[Qualifying Lead] Dana Reyes - Unknown", qualifyingSubject(QualifyingNotification{LeadName: "Dana Reyes"}))
	assert.Equal(t, "[Qualifying Lead] Dana Reyes - Reyes Plumbing",
		qualifyingSubject(QualifyingNotification{LeadName: "Dana Reyes", Company: "Reyes Plumbing"}))
}
