package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task types handled by Worker.
const (
	TaskNotificationOutboxDue = "notification.outbox.due"
	TaskMetricsRollup         = "outreach.metrics.rollup"
	TaskScoreDecay            = "outreach.scores.decay"
)

type NotificationOutboxDuePayload struct {
	OutboxID uuid.UUID `json:"outboxId"`
}

// MetricsRollupPayload names the local day to aggregate as YYYY-MM-DD. Empty
// means the current day.
type MetricsRollupPayload struct {
	Day string `json:"day,omitempty"`
}

func NewNotificationOutboxDueTask(outboxID uuid.UUID) (*asynq.Task, error) {
	if outboxID == uuid.Nil {
		return nil, fmt.Errorf("%s: outbox id is required", TaskNotificationOutboxDue)
	}
	return jsonTask(TaskNotificationOutboxDue, NotificationOutboxDuePayload{OutboxID: outboxID})
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	payload, err := decodePayload[NotificationOutboxDuePayload](task)
	if err == nil && payload.OutboxID == uuid.Nil {
		err = fmt.Errorf("%s: missing outbox id: %w", task.Type(), asynq.SkipRetry)
	}
	return payload, err
}

func NewMetricsRollupTask(payload MetricsRollupPayload) (*asynq.Task, error) {
	return jsonTask(TaskMetricsRollup, payload)
}

func ParseMetricsRollupPayload(task *asynq.Task) (MetricsRollupPayload, error) {
	return decodePayload[MetricsRollupPayload](task)
}

func NewScoreDecayTask() *asynq.Task {
	return asynq.NewTask(TaskScoreDecay, nil)
}

func jsonTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data), nil
}

// decodePayload treats an empty payload as the zero value. A malformed one is
// never retried.
func decodePayload[T any](task *asynq.Task) (T, error) {
	var payload T
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("%s: decode payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
