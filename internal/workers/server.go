package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"korner-support-service/internal/repositories"
	"korner-support-service/internal/services"
)

type Handlers struct {
	alerts services.TicketAlertService
}

func NewHandlers(alerts services.TicketAlertService) *Handlers {
	return &Handlers{alerts: alerts}
}

func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTicketAlert, h.HandleTicketAlert)
	mux.HandleFunc(TypeAlertRetrySweep, h.HandleAlertRetrySweep)
	return mux
}

func (h *Handlers) HandleTicketAlert(ctx context.Context, t *asynq.Task) error {
	var p ticketAlertPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logrus.Errorf("[workers][ticket_alert][err] bad payload: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	err := h.alerts.SendTicketAlert(ctx, p.TicketID)
	if errors.Is(err, repositories.ErrNotFound) {
		logrus.Warnf("[workers][ticket_alert] ticket=%d not found, dropping", p.TicketID)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (h *Handlers) HandleAlertRetrySweep(ctx context.Context, _ *asynq.Task) error {
	n, err := h.alerts.RetryFailedAlerts(ctx)
	if err != nil {
		logrus.Errorf("[workers][alert_sweep][err] after %d: %v", n, err)
		return err
	}
	logrus.Infof("[workers][alert_sweep] retried=%d", n)
	return nil
}

func NewServer(opt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueAlerts: 1},
		Logger:      logrus.StandardLogger(),
	})
}

// NewScheduler registers the periodic alert re-delivery sweep.
func NewScheduler(opt asynq.RedisConnOpt, spec string) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: logrus.StandardLogger()})
	entryID, err := scheduler.Register(spec, NewAlertRetrySweepTask())
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", TypeAlertRetrySweep, err)
	}
	logrus.Infof("[workers][scheduler] %s every %q entry=%s", TypeAlertRetrySweep, spec, entryID)
	return scheduler, nil
}
