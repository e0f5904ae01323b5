package playbook

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/outreachtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11
name: Short
templates:
  - id: hello
    channel: sms
    body: "Hi {{first_name}}"
  - id: mail
    channel: email
    subject: "Hello"
    body: "Body"
steps:
  - channel: sms
    template: hello
    start_hour: 9
    end_hour: 20
  - channel: email
    delay_hours: 24
    template: mail
    start_hour: 8
    end_hour: 21
    days: [mon, sat]
    skip_if_replied: true
    skip_if_score_above: 40
`

func TestParseAndConvert(t *testing.T) {
	pb, err := Parse([]byte(minimal))
	require.NoError(t, err)

	seq, err := pb.Sequence()
	require.NoError(t, err)
	require.Equal(t, 2, seq.Len())

	first := seq.Steps[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, domain.ChannelSMS, first.Channel)
	assert.Equal(t, domain.DefaultSendDays, first.SendDays)
	assert.Nil(t, first.SkipIfScoreAbove)

	second := seq.Steps[1]
	assert.Equal(t, 2, second.Number)
	assert.Equal(t, 24, second.DelayHours)
	assert.Equal(t, []time.Weekday{time.Monday, time.Saturday}, second.SendDays)
	assert.True(t, second.SkipIfReplied)
	require.NotNil(t, second.SkipIfScoreAbove)
	assert.Equal(t, 40, *second.SkipIfScoreAbove)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "   "},
		{"bad id", "id: nope\nname: x\ntemplates: [{id: a, channel: sms, body: b}]\nsteps: [{channel: sms, template: a, start_hour: 9, end_hour: 20}]"},
		{"no steps", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\nsteps: []"},
		{"unknown channel", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\ntemplates: [{id: a, channel: fax, body: b}]\nsteps: [{channel: fax, template: a, start_hour: 9, end_hour: 20}]"},
		{"inverted window", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\ntemplates: [{id: a, channel: sms, body: b}]\nsteps: [{channel: sms, template: a, start_hour: 20, end_hour: 9}]"},
		{"bad weekday", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\ntemplates: [{id: a, channel: sms, body: b}]\nsteps: [{channel: sms, template: a, start_hour: 9, end_hour: 20, days: [funday]}]"},
		{"email without subject", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\ntemplates: [{id: a, channel: email, body: b}]\nsteps: [{channel: email, template: a, start_hour: 9, end_hour: 20}]"},
		{"unknown template", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\ntemplates: [{id: a, channel: sms, body: b}]\nsteps: [{channel: sms, template: z, start_hour: 9, end_hour: 20}]"},
		{"channel mismatch", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\ntemplates: [{id: a, channel: sms, body: b}]\nsteps: [{channel: ai_call, template: a, start_hour: 9, end_hour: 17}]"},
		{"duplicate template", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\ntemplates: [{id: a, channel: sms, body: b}, {id: a, channel: sms, body: c}]\nsteps: [{channel: sms, template: a, start_hour: 9, end_hour: 20}]"},
		{"unknown field", "id: 0b7e1c52-8f0e-4f6c-a1a4-5a3f8f4e2d11\nname: x\nwindow: 9-20\ntemplates: [{id: a, channel: sms, body: b}]\nsteps: [{channel: sms, template: a, start_hour: 9, end_hour: 20}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestShippedPlaybooksAreValid(t *testing.T) {
	playbooks, err := LoadDir(filepath.Join("..", "..", "..", "playbooks"))
	require.NoError(t, err)
	require.NotEmpty(t, playbooks)

	for _, pb := range playbooks {
		seq, err := pb.Sequence()
		require.NoError(t, err, pb.Name)
		assert.Equal(t, 7, seq.Len(), pb.Name)
	}
}

func TestLoadDirRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(minimal), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(minimal), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.yaml")
}

func TestSyncWritesTemplatesAndSequence(t *testing.T) {
	pb, err := Parse([]byte(minimal))
	require.NoError(t, err)
	store := outreachtest.NewStore()

	n, err := Sync(context.Background(), store, []Playbook{pb})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	seq, err := pb.Sequence()
	require.NoError(t, err)
	got, err := store.GetSequence(context.Background(), seq.ID)
	require.NoError(t, err)
	assert.Equal(t, seq, got)

	tpl, err := store.GetTemplate(context.Background(), "mail")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelEmail, tpl.Channel)
	assert.Equal(t, "Hello", tpl.Subject)
}
