package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"korner-support-service/internal/config"
	"korner-support-service/internal/metrics"
	"korner-support-service/internal/models"
)

type mockAlertStore struct {
	mock.Mock
}

func (m *mockAlertStore) GetTicket(ctx context.Context, id int64) (*models.SupportTicket, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*models.SupportTicket)
	return t, args.Error(1)
}

func (m *mockAlertStore) RecordAlertAttempt(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockAlertStore) ListFailedAlerts(ctx context.Context, maxAttempts, limit int) ([]models.SupportTicket, error) {
	args := m.Called(ctx, maxAttempts, limit)
	t, _ := args.Get(0).([]models.SupportTicket)
	return t, args.Error(1)
}

type recordingSender struct {
	mu     sync.Mutex
	texts  []string
	errs   []error
	onSend func()
}

func (s *recordingSender) SendMessage(_ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.onSend != nil {
		s.onSend()
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

var enabledAlerts = TicketAlertOptions{Enabled: true, ChatID: -100, MaxAttempts: 3}

func newAlertMetrics(t *testing.T) *metrics.AlertMetrics {
	t.Helper()
	m, err := metrics.NewAlertMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestTicketAlertService_Disabled(t *testing.T) {
	store := new(mockAlertStore)
	sender := &recordingSender{}
	svc := NewTicketAlertService(store, sender, nil, TicketAlertOptions{ChatID: -100})

	require.NoError(t, svc.SendTicketAlert(context.Background(), 1))
	n, err := svc.RetryFailedAlerts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sender.texts)
	store.AssertNotCalled(t, "GetTicket", mock.Anything, mock.Anything)
}

func TestTicketAlertService_SendRecordsOutcome(t *testing.T) {
	store := new(mockAlertStore)
	sender := &recordingSender{errs: []error{nil, errors.New("chat not found")}}
	m := newAlertMetrics(t)
	svc := NewTicketAlertService(store, sender, m, enabledAlerts)

	store.On("GetTicket", mock.Anything, int64(1)).Return(&models.SupportTicket{ID: 1, TypeCode: "general", Message: "hi", Source: "web"}, nil)
	store.On("GetTicket", mock.Anything, int64(2)).Return(&models.SupportTicket{ID: 2, TypeCode: "general", Message: "hi", Source: "web"}, nil)
	store.On("RecordAlertAttempt", mock.Anything, int64(1), models.AlertStatusSent).Return(nil).Once()
	store.On("RecordAlertAttempt", mock.Anything, int64(2), models.AlertStatusFailed).Return(nil).Once()

	require.NoError(t, svc.SendTicketAlert(context.Background(), 1))
	require.NoError(t, svc.SendTicketAlert(context.Background(), 2))

	store.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("create", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("create", "failed")))
}

func TestTicketAlertService_StoreErrors(t *testing.T) {
	store := new(mockAlertStore)
	svc := NewTicketAlertService(store, &recordingSender{}, nil, enabledAlerts)

	store.On("GetTicket", mock.Anything, int64(1)).Return(nil, errors.New("db down"))
	assert.EqualError(t, svc.SendTicketAlert(context.Background(), 1), "load ticket 1: db down")

	store.On("GetTicket", mock.Anything, int64(2)).Return(&models.SupportTicket{ID: 2}, nil)
	store.On("RecordAlertAttempt", mock.Anything, int64(2), models.AlertStatusSent).Return(errors.New("db down"))
	assert.EqualError(t, svc.SendTicketAlert(context.Background(), 2), "db down")
}

func TestTicketAlertService_RetryFailedAlerts(t *testing.T) {
	store := new(mockAlertStore)
	sender := &recordingSender{errs: []error{errors.New("timeout"), nil}}
	m := newAlertMetrics(t)
	opts := enabledAlerts
	opts.Pause = time.Millisecond
	svc := NewTicketAlertService(store, sender, m, opts)

	store.On("ListFailedAlerts", mock.Anything, 3, 100).Return([]models.SupportTicket{
		{ID: 4, TelegramAlertAttempts: 1},
		{ID: 5, TelegramAlertAttempts: 2},
	}, nil)
	store.On("RecordAlertAttempt", mock.Anything, int64(4), models.AlertStatusFailed).Return(nil)
	store.On("RecordAlertAttempt", mock.Anything, int64(5), models.AlertStatusSent).Return(nil)

	n, err := svc.RetryFailedAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sender.texts, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sweeps))
	store.AssertExpectations(t)
}

func TestTicketAlertService_RetrySkipsFailingItem(t *testing.T) {
	store := new(mockAlertStore)
	svc := NewTicketAlertService(store, &recordingSender{}, nil, enabledAlerts)

	store.On("ListFailedAlerts", mock.Anything, 3, 100).Return([]models.SupportTicket{{ID: 4}, {ID: 5}}, nil)
	store.On("RecordAlertAttempt", mock.Anything, int64(4), models.AlertStatusSent).Return(errors.New("deadlock"))
	store.On("RecordAlertAttempt", mock.Anything, int64(5), models.AlertStatusSent).Return(nil)

	n, err := svc.RetryFailedAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTicketAlertService_RetryHonoursCancellation(t *testing.T) {
	store := new(mockAlertStore)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &recordingSender{onSend: cancel}
	opts := enabledAlerts
	opts.Pause = time.Minute
	svc := NewTicketAlertService(store, sender, nil, opts)

	store.On("ListFailedAlerts", mock.Anything, 3, 100).Return([]models.SupportTicket{{ID: 4}, {ID: 5}, {ID: 6}}, nil)
	store.On("RecordAlertAttempt", mock.Anything, int64(4), models.AlertStatusSent).Return(nil)

	n, err := svc.RetryFailedAlerts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Len(t, sender.texts, 1)
}

func TestFormatTicketAlert(t *testing.T) {
	uid := int64(42)
	text := formatTicketAlert(&models.SupportTicket{
		ID:              9,
		TypeCode:        "technical",
		RequesterUserID: &uid,
		RequesterName:   strPtr("Dana <admin>"),
		Subject:         strPtr("App & login"),
		Message:         "<script>alert(1)</script>",
		Source:          "ios",
		Screen:          strPtr("settings"),
		CreatedAt:       time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, text, "<b>ID:</b> tck_9")
	assert.Contains(t, text, "Dana &lt;admin&gt; (usr_42)")
	assert.Contains(t, text, "App &amp; login")
	assert.Contains(t, text, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, text, "📱 <b>Экран:</b> settings")
	assert.Contains(t, text, "01.03.2025")
	assert.NotContains(t, text, "Email")

	guest := formatTicketAlert(&models.SupportTicket{ID: 1, Message: "m", Source: "web"})
	assert.Contains(t, guest, "Гость")
	assert.NotContains(t, guest, "Экран")
}

func TestTelegramService_SendMessage(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://api.telegram.org/botTEST/getMe",
		httpmock.NewStringResponder(200, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"korner","username":"korner_bot"}}`))
	httpmock.RegisterResponder(http.MethodPost, "https://api.telegram.org/botTEST/sendMessage",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseForm(); err != nil {
				return nil, err
			}
			if req.FormValue("parse_mode") != "HTML" || req.FormValue("chat_id") != "-100" {
				return httpmock.NewStringResponse(400, `{"ok":false,"error_code":400,"description":"Bad Request"}`), nil
			}
			return httpmock.NewStringResponse(200, `{"ok":true,"result":{"message_id":7,"date":1,"chat":{"id":-100,"type":"group"}}}`), nil
		})

	svc := NewTelegramService(config.TelegramConfig{BotToken: "TEST"}, client)
	require.NoError(t, svc.SendMessage(-100, "<b>hi</b>"))
	require.NoError(t, svc.SendMessage(-100, "again"))

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST https://api.telegram.org/botTEST/getMe"])
	assert.Equal(t, 2, info["POST https://api.telegram.org/botTEST/sendMessage"])
}

func TestTelegramService_SendMessage_APIError(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://api.telegram.org/botTEST/getMe",
		httpmock.NewStringResponder(200, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"korner"}}`))
	httpmock.RegisterResponder(http.MethodPost, "https://api.telegram.org/botTEST/sendMessage",
		httpmock.NewStringResponder(400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))

	svc := NewTelegramService(config.TelegramConfig{BotToken: "TEST"}, client)
	err := svc.SendMessage(-100, "hi")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "chat not found"))
}

func TestTelegramService_NotConfigured(t *testing.T) {
	svc := NewTelegramService(config.TelegramConfig{}, nil)
	assert.ErrorIs(t, svc.SendMessage(-100, "hi"), ErrTelegramNotConfigured)

	svc = NewTelegramService(config.TelegramConfig{BotToken: "TEST"}, nil)
	assert.ErrorIs(t, svc.SendMessage(0, "hi"), ErrTelegramNotConfigured)
}
