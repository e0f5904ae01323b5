package delivery

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/internal/voice"
	"outreach_backend/platform/logger"
)

// DryRun stands in for an unconfigured provider: it logs the message and
// reports success with a synthetic id.
type DryRun struct {
	log *logger.Logger
}

func NewDryRun(log *logger.Logger) DryRun { return DryRun{log: log} }

func (d DryRun) SendSMS(_ context.Context, to, body string) (string, error) {
	d.log.Info("dry run: sms not sent", "to", to, "body", body)
	return d.id("sms"), nil
}

func (d DryRun) StartCall(_ context.Context, in voice.CallRequest) (string, error) {
	d.log.Info("dry run: call not started", "to", in.PhoneNumber)
	return d.id("call"), nil
}

func (DryRun) id(prefix string) string {
	return fmt.Sprintf("dryrun-%s-%d", prefix, time.Now().UnixNano())
}
