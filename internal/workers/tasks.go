package workers

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	TypeTicketAlert     = "support:ticket_alert"
	TypeAlertRetrySweep = "support:alert_retry_sweep"

	QueueAlerts = "alerts"
)

type ticketAlertPayload struct {
	TicketID int64 `json:"ticketId"`
}

func NewTicketAlertTask(ticketID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ticketAlertPayload{TicketID: ticketID})
	if err != nil {
		return nil, fmt.Errorf("marshal ticket alert payload: %w", err)
	}
	return asynq.NewTask(TypeTicketAlert, payload, asynq.Queue(QueueAlerts), asynq.MaxRetry(3)), nil
}

func NewAlertRetrySweepTask() *asynq.Task {
	return asynq.NewTask(TypeAlertRetrySweep, nil, asynq.Queue(QueueAlerts), asynq.MaxRetry(0))
}

// RedisConnOpt converts parsed go-redis options into the asynq connection option.
func RedisConnOpt(opts *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}
