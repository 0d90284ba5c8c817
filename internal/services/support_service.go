package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/cache"
	"korner-support-service/internal/models"
	"korner-support-service/internal/repositories"
	"korner-support-service/internal/utils"
)

const (
	defaultTicketPageSize = 20
	maxTicketPageSize     = 100
)

type TicketStore interface {
	ListTypes(ctx context.Context, locale string) ([]models.SupportTicketType, error)
	CreateTicket(ctx context.Context, t *models.SupportTicket) error
	ListTickets(ctx context.Context, f models.TicketListFilter) ([]models.SupportTicket, int, error)
	GetTicket(ctx context.Context, id int64) (*models.SupportTicket, error)
	ListHistory(ctx context.Context, ticketID int64) ([]models.SupportTicketStatusHistory, error)
	UpdateStatus(ctx context.Context, id, adminID int64, to string, comment *string) (*models.SupportTicket, error)
}

// AlertDispatcher schedules the Telegram alert for a freshly created ticket.
type AlertDispatcher interface {
	DispatchTicketAlert(ctx context.Context, ticketID int64) error
}

type SupportService interface {
	ListTypes(ctx context.Context, locale string) (*models.SupportTicketTypeListResponse, error)
	Create(ctx context.Context, userID *int64, req models.CreateTicketRequest) (*models.CreateTicketResponse, error)
	List(ctx context.Context, q models.TicketListQuery) (*models.TicketListResponse, error)
	GetDetails(ctx context.Context, ticketID string) (*models.TicketDetails, error)
	UpdateStatus(ctx context.Context, adminID int64, ticketID string, req models.UpdateTicketStatusRequest) (*models.UpdateTicketStatusResponse, error)
}

type supportService struct {
	store    TicketStore
	cache    cache.Cache
	alerts   AlertDispatcher
	cacheTTL time.Duration
}

func NewSupportService(store TicketStore, c cache.Cache, alerts AlertDispatcher, cacheTTL time.Duration) SupportService {
	return &supportService{store: store, cache: c, alerts: alerts, cacheTTL: cacheTTL}
}

var (
	errTicketNotFound  = apierror.New(apierror.SupportTicketNotFound, "Support ticket not found")
	errInvalidTicketID = apierror.New(apierror.SupportInvalidTicketID, "Invalid ticket ID format")
)

func (s *supportService) ListTypes(ctx context.Context, locale string) (*models.SupportTicketTypeListResponse, error) {
	locale, ok := normalizeLocale(locale)
	if !ok {
		return nil, apierror.New(apierror.SupportInvalidLocale, "Invalid locale format")
	}

	key := "support_ticket_types:" + locale
	var cached models.SupportTicketTypeListResponse
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		logrus.Warnf("[support][types][cache] get %s: %v", key, err)
	}
	if found {
		return &cached, nil
	}

	types, err := s.store.ListTypes(ctx, locale)
	if err != nil {
		return nil, err
	}
	items := make([]models.SupportTicketTypeItem, 0, len(types))
	for _, t := range types {
		items = append(items, models.SupportTicketTypeItem{
			ID:          strconv.FormatInt(t.ID, 10),
			Code:        t.Code,
			Title:       t.Title,
			Description: t.Description,
			IsActive:    t.IsActive,
			SortOrder:   t.ID,
			Visibility: models.TicketTypeVisibility{
				AllowedForGuest:      t.Code == models.TicketTypeGeneral,
				AllowedForAuthorized: true,
			},
		})
	}
	resp := &models.SupportTicketTypeListResponse{
		Items: items,
		Meta:  models.LocaleMeta{Locale: locale, FallbackLocale: defaultLocale},
	}
	if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
		logrus.Warnf("[support][types][cache] set %s: %v", key, err)
	}
	return resp, nil
}

func (s *supportService) Create(ctx context.Context, userID *int64, req models.CreateTicketRequest) (*models.CreateTicketResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.SupportValidationError, "Invalid request", err)
	}
	if req.SupportTicketTypeCode == models.TicketTypePayout && userID == nil {
		return nil, apierror.New(apierror.SupportUnauthorized, "Authorization required for payout issues")
	}
	if userID == nil {
		if missing := req.MissingGuestFields(); len(missing) > 0 {
			return nil, apierror.WithFields(apierror.SupportGuestFieldsRequired,
				"Name and email are required for guest requests", sortedFieldErrors(missing)...)
		}
	}

	ticket := &models.SupportTicket{
		TypeCode:        req.SupportTicketTypeCode,
		RequesterUserID: userID,
		RequesterName:   nonEmpty(req.RequesterName),
		RequesterEmail:  nonEmpty(req.RequesterEmail),
		Subject:         nonEmpty(req.Subject),
		Message:         req.Message,
		Source:          req.Context.Source,
		Screen:          nonEmpty(req.Context.Screen),
		URL:             nonEmpty(req.Context.URL),
	}
	if req.Context.Metadata != nil {
		raw, err := json.Marshal(req.Context.Metadata)
		if err != nil {
			return nil, err
		}
		ticket.Metadata = raw
	}

	err := s.store.CreateTicket(ctx, ticket)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apierror.New(apierror.SupportInvalidTicketType, "Invalid support ticket type code")
	}
	if err != nil {
		return nil, err
	}
	logrus.Infof("[support][create] ticket=%d type=%s guest=%v", ticket.ID, ticket.TypeCode, userID == nil)

	// алерт уходит после коммита; ошибка доставки не влияет на ответ
	if err := s.alerts.DispatchTicketAlert(ctx, ticket.ID); err != nil {
		logrus.Errorf("[support][alert][dispatch][err] ticket=%d: %v", ticket.ID, err)
	}

	return &models.CreateTicketResponse{
		TicketID:  utils.FormatTicketID(ticket.ID),
		Status:    ticket.Status,
		CreatedAt: ticket.CreatedAt,
	}, nil
}

func sortedFieldErrors(fields map[string]string) []apierror.FieldError {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]apierror.FieldError, 0, len(keys))
	for _, k := range keys {
		out = append(out, apierror.FieldError{Field: k, Message: fields[k]})
	}
	return out
}

func (s *supportService) List(ctx context.Context, q models.TicketListQuery) (*models.TicketListResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, apierror.Validation(apierror.SupportValidationError, "Invalid query parameters", err)
	}
	filter, err := listFilter(q)
	if err != nil {
		return nil, err
	}

	tickets, total, err := s.store.ListTickets(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]models.TicketListItem, 0, len(tickets))
	for i := range tickets {
		item := listItem(&tickets[i])
		item.Context = models.TicketContext{Source: tickets[i].Source, Screen: tickets[i].Screen}
		items = append(items, item)
	}
	return &models.TicketListResponse{
		Items:    items,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    total,
	}, nil
}

func listFilter(q models.TicketListQuery) (models.TicketListFilter, error) {
	f := models.TicketListFilter{
		Type:     q.Type,
		Status:   q.Status,
		Page:     1,
		PageSize: defaultTicketPageSize,
	}
	var fields []apierror.FieldError
	invalid := func(field, message string) {
		fields = append(fields, apierror.FieldError{Field: field, Message: message})
	}

	if q.Page != "" {
		n, err := strconv.Atoi(q.Page)
		if err != nil || n < 1 {
			invalid("page", "Must be a positive integer")
		}
		f.Page = n
	}
	if q.PageSize != "" {
		n, err := strconv.Atoi(q.PageSize)
		if err != nil || n < 1 {
			invalid("pageSize", "Must be a positive integer")
		}
		f.PageSize = n
	}
	if f.PageSize > maxTicketPageSize {
		f.PageSize = maxTicketPageSize
	}
	if q.DateFrom != "" {
		if t, err := models.ParseListDate(q.DateFrom); err != nil {
			invalid("dateFrom", "Expected RFC3339 or YYYY-MM-DD")
		} else {
			f.DateFrom = &t
		}
	}
	if q.DateTo != "" {
		if t, err := models.ParseListDate(q.DateTo); err != nil {
			invalid("dateTo", "Expected RFC3339 or YYYY-MM-DD")
		} else {
			f.DateTo = &t
		}
	}
	if q.RequesterUserID != "" {
		if id, err := strconv.ParseInt(q.RequesterUserID, 10, 64); err != nil || id < 1 {
			invalid("requesterUserId", "Must be a numeric user id")
		} else {
			f.RequesterUserID = &id
		}
	}

	if len(fields) > 0 {
		return f, apierror.WithFields(apierror.SupportValidationError, "Invalid query parameters", fields...)
	}
	return f, nil
}

func listItem(t *models.SupportTicket) models.TicketListItem {
	item := models.TicketListItem{
		TicketID:  utils.FormatTicketID(t.ID),
		Type:      t.TypeCode,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		Requester: models.TicketRequester{
			Name:  t.RequesterName,
			Email: t.RequesterEmail,
		},
	}
	if t.RequesterUserID != nil {
		uid := utils.FormatRequesterID(*t.RequesterUserID)
		item.Requester.UserID = &uid
	}
	return item
}

func (s *supportService) GetDetails(ctx context.Context, ticketID string) (*models.TicketDetails, error) {
	id, ok := utils.ParseTicketID(ticketID)
	if !ok {
		return nil, errInvalidTicketID
	}
	t, err := s.store.GetTicket(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	item := listItem(t)
	item.Context = models.TicketContext{
		Source:   t.Source,
		Screen:   t.Screen,
		URL:      t.URL,
		Metadata: t.Metadata,
	}
	details := &models.TicketDetails{
		TicketListItem: item,
		UpdatedAt:      t.UpdatedAt,
		Subject:        t.Subject,
		Message:        t.Message,
		TelegramAlert: models.TelegramAlertState{
			Status:   t.TelegramAlertStatus,
			Attempts: t.TelegramAlertAttempts,
		},
		History: make([]models.TicketHistoryItem, 0, len(history)),
	}
	for _, h := range history {
		hi := models.TicketHistoryItem{
			FromStatus:   h.FromStatus,
			ToStatus:     h.ToStatus,
			AdminComment: h.AdminComment,
			CreatedAt:    h.CreatedAt,
		}
		if h.ChangedByAdminUserID != nil {
			admin := utils.FormatRequesterID(*h.ChangedByAdminUserID)
			hi.ChangedByAdminUserID = &admin
		}
		details.History = append(details.History, hi)
	}
	return details, nil
}

func (s *supportService) UpdateStatus(ctx context.Context, adminID int64, ticketID string, req models.UpdateTicketStatusRequest) (*models.UpdateTicketStatusResponse, error) {
	id, ok := utils.ParseTicketID(ticketID)
	if !ok {
		return nil, errInvalidTicketID
	}
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.SupportValidationError, "Invalid request", err)
	}

	current, err := s.store.GetTicket(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if !canTransition(current.Status, req.Status, TicketTransitions) {
		return nil, apierror.WithFields(apierror.SupportValidationError, "Invalid request",
			apierror.FieldError{Field: "status", Message: "Allowed: new, inProgress, resolved, closed"})
	}

	updated, err := s.store.UpdateStatus(ctx, id, adminID, req.Status, nonEmpty(req.AdminComment))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	logrus.Infof("[support][status] admin=%d ticket=%d %s -> %s", adminID, id, current.Status, updated.Status)

	return &models.UpdateTicketStatusResponse{
		TicketID:  utils.FormatTicketID(id),
		Status:    updated.Status,
		UpdatedAt: updated.UpdatedAt,
	}, nil
}
