package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"korner-support-service/internal/metrics"
	"korner-support-service/internal/models"
	"korner-support-service/internal/utils"
)

const (
	alertTriggerCreate = "create"
	alertTriggerRetry  = "retry"

	alertSweepBatch = 100
)

type ticketAlertStore interface {
	GetTicket(ctx context.Context, id int64) (*models.SupportTicket, error)
	RecordAlertAttempt(ctx context.Context, id int64, status string) error
	ListFailedAlerts(ctx context.Context, maxAttempts, limit int) ([]models.SupportTicket, error)
}

type TicketAlertOptions struct {
	Enabled     bool
	ChatID      int64
	MaxAttempts int
	Pause       time.Duration
}

type TicketAlertService interface {
	SendTicketAlert(ctx context.Context, ticketID int64) error
	RetryFailedAlerts(ctx context.Context) (int, error)
}

type ticketAlertService struct {
	store   ticketAlertStore
	sender  MessageSender
	metrics *metrics.AlertMetrics
	opts    TicketAlertOptions
}

func NewTicketAlertService(store ticketAlertStore, sender MessageSender, m *metrics.AlertMetrics, opts TicketAlertOptions) TicketAlertService {
	return &ticketAlertService{store: store, sender: sender, metrics: m, opts: opts}
}

// SendTicketAlert returns an error only when the ticket cannot be read or the attempt cannot be recorded;
// a failed delivery is recorded on the ticket and left to the sweep.
func (s *ticketAlertService) SendTicketAlert(ctx context.Context, ticketID int64) error {
	if !s.opts.Enabled {
		logrus.Infof("[alert][skip] ticket=%d: alerts disabled for this env", ticketID)
		return nil
	}
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load ticket %d: %w", ticketID, err)
	}
	return s.deliver(ctx, t, alertTriggerCreate)
}

func (s *ticketAlertService) deliver(ctx context.Context, t *models.SupportTicket, trigger string) error {
	status := models.AlertStatusSent
	if err := s.sender.SendMessage(s.opts.ChatID, formatTicketAlert(t)); err != nil {
		logrus.Errorf("[alert][send][err] ticket=%d attempt=%d: %v", t.ID, t.TelegramAlertAttempts+1, err)
		status = models.AlertStatusFailed
	}
	s.metrics.ObserveDelivery(trigger, status)

	if err := s.store.RecordAlertAttempt(ctx, t.ID, status); err != nil {
		return err
	}
	logrus.Infof("[alert][%s] ticket=%d status=%s", trigger, t.ID, status)
	return nil
}

// RetryFailedAlerts re-sends failed alerts of tickets that are still new, one at a time.
func (s *ticketAlertService) RetryFailedAlerts(ctx context.Context) (int, error) {
	if !s.opts.Enabled {
		return 0, nil
	}
	tickets, err := s.store.ListFailedAlerts(ctx, s.opts.MaxAttempts, alertSweepBatch)
	if err != nil {
		return 0, err
	}
	defer s.metrics.ObserveSweep()

	retried := 0
	for i := range tickets {
		if i > 0 && s.opts.Pause > 0 {
			select {
			case <-ctx.Done():
				return retried, ctx.Err()
			case <-time.After(s.opts.Pause):
			}
		}
		if err := ctx.Err(); err != nil {
			return retried, err
		}

		logrus.Infof("[alert][retry] ticket=%d attempts=%d", tickets[i].ID, tickets[i].TelegramAlertAttempts)
		if err := s.deliver(ctx, &tickets[i], alertTriggerRetry); err != nil {
			logrus.Errorf("[alert][retry][err] ticket=%d: %v", tickets[i].ID, err)
			continue
		}
		retried++
	}
	return retried, nil
}

var almaty = loadAlmaty()

func loadAlmaty() *time.Location {
	loc, err := time.LoadLocation("Asia/Almaty")
	if err != nil {
		return time.FixedZone("ALMT", 5*60*60)
	}
	return loc
}

func formatTicketAlert(t *models.SupportTicket) string {
	var b strings.Builder
	b.WriteString("🔔 <b>Новое обращение в поддержку</b>\n\n")
	fmt.Fprintf(&b, "📋 <b>ID:</b> %s\n", utils.FormatTicketID(t.ID))
	fmt.Fprintf(&b, "🏷 <b>Тип:</b> %s\n", html.EscapeString(t.TypeCode))

	requester := "Гость"
	if t.RequesterUserID != nil {
		requester = utils.FormatRequesterID(*t.RequesterUserID)
	}
	if t.RequesterName != nil && *t.RequesterName != "" {
		requester = *t.RequesterName + " (" + requester + ")"
	}
	fmt.Fprintf(&b, "👤 <b>Пользователь:</b> %s\n", html.EscapeString(requester))
	if t.RequesterEmail != nil && *t.RequesterEmail != "" {
		fmt.Fprintf(&b, "📧 <b>Email:</b> %s\n", html.EscapeString(*t.RequesterEmail))
	}
	if t.Subject != nil && *t.Subject != "" {
		fmt.Fprintf(&b, "📝 <b>Тема:</b> %s\n", html.EscapeString(*t.Subject))
	}
	fmt.Fprintf(&b, "\n💬 %s\n\n", html.EscapeString(t.Message))

	fmt.Fprintf(&b, "📍 <b>Источник:</b> %s", html.EscapeString(t.Source))
	if t.Screen != nil && *t.Screen != "" {
		fmt.Fprintf(&b, "\n📱 <b>Экран:</b> %s", html.EscapeString(*t.Screen))
	}
	fmt.Fprintf(&b, "\n⏰ <b>Создано:</b> %s", t.CreatedAt.In(almaty).Format("02.01.2006, 15:04"))
	return b.String()
}
