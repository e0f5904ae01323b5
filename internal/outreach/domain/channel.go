package domain

import "fmt"

// Channel is a sequence step channel.
type Channel string

const (
	ChannelSMS    Channel = "sms"
	ChannelEmail  Channel = "email"
	ChannelAICall Channel = "ai_call"
)

// Channels lists every step channel.
var Channels = []Channel{ChannelSMS, ChannelEmail, ChannelAICall}

// ParseChannel accepts sms, email, ai_call and the ledger alias call.
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "sms":
		return ChannelSMS, nil
	case "email":
		return ChannelEmail, nil
	case "ai_call", "call":
		return ChannelAICall, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// ActivityChannel is the channel recorded on ledger entries, and the key used
// for send windows and daily limits.
type ActivityChannel string

const (
	ActivitySMS    ActivityChannel = "sms"
	ActivityEmail  ActivityChannel = "email"
	ActivityCall   ActivityChannel = "call"
	ActivitySystem ActivityChannel = "system"
)

// Ledger maps a step channel onto its ledger channel (ai_call is recorded as call).
func (c Channel) Ledger() ActivityChannel {
	switch c {
	case ChannelSMS:
		return ActivitySMS
	case ChannelEmail:
		return ActivityEmail
	case ChannelAICall:
		return ActivityCall
	}
	return ActivitySystem
}

// OptedOut reports whether the lead has opted out of this channel.
func (c Channel) OptedOut(l Lead) bool {
	switch c {
	case ChannelSMS:
		return l.SMSOptOut
	case ChannelEmail:
		return l.EmailOptOut
	case ChannelAICall:
		return l.CallOptOut
	}
	return false
}

// SentType is the ledger type for a successful send on this channel.
func (c Channel) SentType() string {
	switch c {
	case ChannelEmail:
		return ActivityEmailSent
	case ChannelAICall:
		return ActivityCallInitiated
	}
	return ActivitySMSSent
}

// FailedType is the ledger type for a failed send on this channel.
func (c Channel) FailedType() string {
	return string(c.Ledger()) + "_failed"
}

// WithSendCounted returns l with this channel's send counter incremented.
func (c Channel) WithSendCounted(l Lead) Lead {
	switch c {
	case ChannelSMS:
		l.TotalSMSSent++
	case ChannelEmail:
		l.TotalEmailsSent++
	case ChannelAICall:
		l.TotalCallsMade++
	}
	return l
}
