package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/outreachtest"
	"outreach_backend/internal/voice"
	"outreach_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	to, body string
	calls    int
	err      error
	block    bool
}

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) (string, error) {
	f.calls++
	f.to, f.body = to, body
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return "SM123", nil
}

type fakeEmail struct {
	to, name, subject, body string
	err                     error
}

func (f *fakeEmail) SendOutreachEmail(_ context.Context, to, name, subject, body string) (string, error) {
	f.to, f.name, f.subject, f.body = to, name, subject, body
	if f.err != nil {
		return "", f.err
	}
	return "<msg@example.com>", nil
}

type fakeCall struct {
	req voice.CallRequest
}

func (f *fakeCall) StartCall(_ context.Context, in voice.CallRequest) (string, error) {
	f.req = in
	return "call-1", nil
}

var testLinks = Links{Meeting: "https://cal.example.com/dana", App: "https://app.example.com/get"}

func newStore(t *testing.T) (*outreachtest.Store, domain.Lead) {
	t.Helper()
	store := outreachtest.NewStore()
	lead := outreachtest.NewLead(10, domain.TierCold)
	store.PutLead(lead)
	require.NoError(t, store.UpsertTemplate(context.Background(), domain.Template{
		ID: "sms_intro", Channel: domain.ChannelSMS,
		Body: "Hi {{first_name}}, book here: {{meeting_link}}",
	}))
	require.NoError(t, store.UpsertTemplate(context.Background(), domain.Template{
		ID: "email_intro", Channel: domain.ChannelEmail,
		Subject: "Quick question for {{company}}",
		Body:    "Hi {{first_name}},\n\nGet the app: {{app_link}}",
	}))
	require.NoError(t, store.UpsertTemplate(context.Background(), domain.Template{
		ID: "call_intro", Channel: domain.ChannelAICall,
		Body: "Hi {{first_name}}, this is a quick call about {{company}}.",
	}))
	return store, lead
}

func TestSMSSendRecordsOutboundAndPromotesLead(t *testing.T) {
	store, lead := newStore(t)
	provider := &fakeSMS{}
	sender := NewSMSSender(store, provider, testLinks, logger.NewNop())

	res, err := sender.Send(context.Background(), lead.ID, "sms_intro")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "SM123", res.ProviderID)
	assert.Equal(t, lead.Phone, provider.to)
	assert.Equal(t, "Hi Dana, book here: https://cal.example.com/dana", provider.body)

	entries := store.Activities(lead.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActivitySMSSent, entries[0].Type)
	assert.Equal(t, domain.ActivitySMS, entries[0].Channel)
	assert.Equal(t, domain.DirectionOutbound, entries[0].Direction)
	assert.Equal(t, provider.body, entries[0].Content)

	got := store.Lead(lead.ID)
	assert.Equal(t, domain.StatusLead, got.Status)
	assert.Zero(t, got.TotalSMSSent, "step counters belong to the scheduler")
}

func TestSMSSendTruncatesLedgerContent(t *testing.T) {
	store, lead := newStore(t)
	require.NoError(t, store.UpsertTemplate(context.Background(), domain.Template{
		ID: "long", Channel: domain.ChannelSMS, Body: strings.Repeat("x", 450),
	}))
	sender := NewSMSSender(store, &fakeSMS{}, testLinks, logger.NewNop())

	_, err := sender.Send(context.Background(), lead.ID, "long")
	require.NoError(t, err)

	entries := store.Activities(lead.ID)
	require.Len(t, entries, 1)
	assert.LessOrEqual(t, len([]rune(entries[0].Content)), ledgerContentLimit)
}

func TestProviderFailureIsLedgeredOnce(t *testing.T) {
	store, lead := newStore(t)
	sender := NewSMSSender(store, &fakeSMS{err: errors.New("invalid number")}, testLinks, logger.NewNop())

	res, err := sender.Send(context.Background(), lead.ID, "sms_intro")
	require.NoError(t, err)
	assert.Nil(t, res)

	entries := store.Activities(lead.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "sms_failed", entries[0].Type)
	assert.Equal(t, domain.DirectionNone, entries[0].Direction)
	assert.Contains(t, entries[0].Content, "invalid number")
	assert.Equal(t, domain.StatusNew, store.Lead(lead.ID).Status)
}

func TestTimeoutLeavesLedgerToCaller(t *testing.T) {
	store, lead := newStore(t)
	sender := NewSMSSender(store, &fakeSMS{block: true}, testLinks, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err := sender.Send(ctx, lead.ID, "sms_intro")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, store.Activities(lead.ID))
}

func TestConfigErrors(t *testing.T) {
	store, lead := newStore(t)
	provider := &fakeSMS{}
	sender := NewSMSSender(store, provider, testLinks, logger.NewNop())

	_, err := sender.Send(context.Background(), lead.ID, "missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.True(t, IsConfigError(err))

	_, err = sender.Send(context.Background(), lead.ID, "email_intro")
	assert.ErrorIs(t, err, ErrTemplateChannel)
	assert.True(t, IsConfigError(err))

	assert.Zero(t, provider.calls)
	assert.Empty(t, store.Activities(lead.ID))
}

func TestBlockedContacts(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*outreachtest.Store, *domain.Lead)
	}{
		{"opted out", func(_ *outreachtest.Store, l *domain.Lead) { l.SMSOptOut = true }},
		{"no phone", func(_ *outreachtest.Store, l *domain.Lead) { l.Phone = "" }},
		{"suppressed", func(s *outreachtest.Store, l *domain.Lead) {
			s.PutSuppression(domain.IdentifierPhone, l.Phone, "opt_out_sms")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, lead := newStore(t)
			tc.setup(store, &lead)
			store.PutLead(lead)
			provider := &fakeSMS{}
			sender := NewSMSSender(store, provider, testLinks, logger.NewNop())

			res, err := sender.Send(context.Background(), lead.ID, "sms_intro")
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrContactBlocked)
			assert.False(t, IsConfigError(err))
			assert.Zero(t, provider.calls)
		})
	}
}

func TestEmailSendMergesSubjectAndBody(t *testing.T) {
	store, lead := newStore(t)
	provider := &fakeEmail{}
	sender := NewEmailSender(store, provider, testLinks, logger.NewNop())

	res, err := sender.Send(context.Background(), lead.ID, "email_intro")
	require.NoError(t, err)
	assert.Equal(t, "<msg@example.com>", res.ProviderID)
	assert.Equal(t, "dana@example.com", provider.to)
	assert.Equal(t, "Dana Reyes", provider.name)
	assert.Equal(t, "Quick question for Reyes Plumbing", provider.subject)
	assert.Contains(t, provider.body, "https://app.example.com/get")

	assert.Equal(t, []string{domain.ActivityEmailSent}, store.ActivityTypes(lead.ID))
}

func TestEmailSendWithoutAddressIsBlocked(t *testing.T) {
	store, lead := newStore(t)
	lead.Email = ""
	store.PutLead(lead)
	sender := NewEmailSender(store, &fakeEmail{}, testLinks, logger.NewNop())

	_, err := sender.Send(context.Background(), lead.ID, "email_intro")
	assert.ErrorIs(t, err, ErrContactBlocked)
}

func TestCallSendStartsCall(t *testing.T) {
	store, lead := newStore(t)
	provider := &fakeCall{}
	sender := NewCallSender(store, provider, testLinks, logger.NewNop())

	res, err := sender.Send(context.Background(), lead.ID, "call_intro")
	require.NoError(t, err)
	assert.Equal(t, "call-1", res.ProviderID)
	assert.Equal(t, lead.Phone, provider.req.PhoneNumber)
	assert.Equal(t, "Hi Dana, this is a quick call about Reyes Plumbing.", provider.req.FirstMessage)
	assert.Equal(t, lead.ID.String(), provider.req.Variables["leadId"])

	entries := store.Activities(lead.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActivityCallInitiated, entries[0].Type)
	assert.Equal(t, domain.ActivityCall, entries[0].Channel)
}

func TestSendBodyCountsContact(t *testing.T) {
	store, lead := newStore(t)
	now := time.Date(2026, 6, 9, 15, 0, 0, 0, time.UTC)
	provider := &fakeSMS{}
	sender := NewSMSSender(store, provider, testLinks, logger.NewNop()).WithClock(func() time.Time { return now })

	res, err := sender.SendBody(context.Background(), lead.ID, "Here is the link: {{meeting_link}} ")
	require.NoError(t, err)
	assert.Equal(t, "SM123", res.ProviderID)
	assert.Equal(t, "Here is the link: https://cal.example.com/dana", provider.body)

	got := store.Lead(lead.ID)
	assert.Equal(t, 1, got.TotalSMSSent)
	require.NotNil(t, got.LastContactedAt)
	assert.True(t, now.Equal(*got.LastContactedAt))
}

func TestSendBodyReturnsProviderError(t *testing.T) {
	store, lead := newStore(t)
	sender := NewSMSSender(store, &fakeSMS{err: errors.New("carrier rejected")}, testLinks, logger.NewNop())

	_, err := sender.SendBody(context.Background(), lead.ID, "hello")
	assert.EqualError(t, err, "carrier rejected")
	assert.Equal(t, []string{"sms_failed"}, store.ActivityTypes(lead.ID))
	assert.Zero(t, store.Lead(lead.ID).TotalSMSSent)
}

func TestDryRunReportsSuccess(t *testing.T) {
	store, lead := newStore(t)
	sender := NewSMSSender(store, NewDryRun(logger.NewNop()), testLinks, logger.NewNop())

	res, err := sender.Send(context.Background(), lead.ID, "sms_intro")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ProviderID, "dryrun-sms-"))
}
