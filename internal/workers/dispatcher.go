package workers

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues ticket alerts for the worker process.
type Dispatcher struct {
	client enqueuer
}

func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) DispatchTicketAlert(ctx context.Context, ticketID int64) error {
	task, err := NewTicketAlertTask(ticketID)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logrus.Debugf("[workers][enqueue] %s ticket=%d task=%s", TypeTicketAlert, ticketID, info.ID)
	return nil
}
