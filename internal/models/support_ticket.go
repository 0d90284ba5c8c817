package models

import (
	"encoding/json"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	TicketStatusNew        = "new"
	TicketStatusInProgress = "inProgress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

const (
	AlertStatusPending = "pending"
	AlertStatusSent    = "sent"
	AlertStatusFailed  = "failed"
)

const (
	TicketTypeGeneral = "general"
	TicketTypePayout  = "payout"
)

var TicketStatuses = []interface{}{TicketStatusNew, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed}

type SupportTicketType struct {
	ID          int64
	Code        string
	Title       string
	Description *string
	IsActive    bool
}

type TicketTypeVisibility struct {
	AllowedForGuest      bool `json:"allowedForGuest"`
	AllowedForAuthorized bool `json:"allowedForAuthorized"`
}

type SupportTicketTypeItem struct {
	ID          string               `json:"id"`
	Code        string               `json:"code"`
	Title       string               `json:"title"`
	Description *string              `json:"description"`
	IsActive    bool                 `json:"isActive"`
	SortOrder   int64                `json:"sortOrder"`
	Visibility  TicketTypeVisibility `json:"visibility"`
}

type LocaleMeta struct {
	Locale         string `json:"locale"`
	FallbackLocale string `json:"fallbackLocale"`
}

type SupportTicketTypeListResponse struct {
	Items []SupportTicketTypeItem `json:"items"`
	Meta  LocaleMeta              `json:"meta"`
}

type SupportTicket struct {
	ID                    int64
	TypeID                int64
	TypeCode              string
	Status                string
	RequesterUserID       *int64
	RequesterName         *string
	RequesterEmail        *string
	Subject               *string
	Message               string
	Source                string
	Screen                *string
	URL                   *string
	Metadata              json.RawMessage
	TelegramAlertStatus   string
	TelegramAlertAttempts int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type SupportTicketStatusHistory struct {
	ID                   int64
	TicketID             int64
	FromStatus           *string
	ToStatus             string
	ChangedByAdminUserID *int64
	AdminComment         *string
	CreatedAt            time.Time
}

// ==== requests ====

// TicketMetadata is stored as sent; both keys are optional and may be empty.
type TicketMetadata struct {
	Device     *string `json:"device,omitempty"`
	AppVersion *string `json:"appVersion,omitempty"`
}

type TicketContextRequest struct {
	Source   string          `json:"source"`
	Screen   *string         `json:"screen"`
	URL      *string         `json:"url"`
	Metadata *TicketMetadata `json:"metadata"`
}

func (c TicketContextRequest) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Source, validation.Required.Error("Source is required")),
	)
}

type CreateTicketRequest struct {
	SupportTicketTypeCode string               `json:"supportTicketTypeCode"`
	RequesterName         *string              `json:"requesterName"`
	RequesterEmail        *string              `json:"requesterEmail"`
	Subject               *string              `json:"subject"`
	Message               string               `json:"message"`
	Context               TicketContextRequest `json:"context"`
}

func (r CreateTicketRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SupportTicketTypeCode,
			validation.Required.Error("Invalid support ticket type code"),
			validation.In("general", "technical", "billing", "account", "payout").Error("Invalid support ticket type code")),
		validation.Field(&r.RequesterName, validation.NilOrNotEmpty.Error("Requester name is required"), validation.RuneLength(1, 255).Error("Requester name must be at most 255 characters")),
		validation.Field(&r.RequesterEmail, is.EmailFormat.Error("Invalid email format"), validation.RuneLength(0, 255).Error("Email must be at most 255 characters")),
		validation.Field(&r.Subject, validation.RuneLength(0, 255).Error("Subject must be at most 255 characters")),
		validation.Field(&r.Message, validation.Required.Error("Message is required"), validation.RuneLength(1, 2000).Error("Message must be at most 2000 characters")),
		validation.Field(&r.Context),
	)
}

// MissingGuestFields reports one field error per absent guest identity field.
func (r CreateTicketRequest) MissingGuestFields() map[string]string {
	missing := map[string]string{}
	if r.RequesterName == nil || *r.RequesterName == "" {
		missing["requesterName"] = "Name is required for guest requests"
	}
	if r.RequesterEmail == nil || *r.RequesterEmail == "" {
		missing["requesterEmail"] = "Email is required for guest requests"
	}
	return missing
}

type UpdateTicketStatusRequest struct {
	Status       string  `json:"status"`
	AdminComment *string `json:"adminComment"`
}

func (r UpdateTicketStatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.In(TicketStatuses...).Error("Allowed: new, inProgress, resolved, closed")),
		validation.Field(&r.AdminComment, validation.RuneLength(0, 500).Error("Admin comment must be at most 500 characters")),
	)
}

// TicketListQuery is the raw admin list query string.
type TicketListQuery struct {
	Type            string `form:"type"`
	Status          string `form:"status"`
	DateFrom        string `form:"dateFrom"`
	DateTo          string `form:"dateTo"`
	RequesterUserID string `form:"requesterUserId"`
	Page            string `form:"page"`
	PageSize        string `form:"pageSize"`
}

func (q TicketListQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Status, validation.In(TicketStatuses...).Error("Allowed: new, inProgress, resolved, closed")),
		validation.Field(&q.DateFrom, validation.By(isListDate)),
		validation.Field(&q.DateTo, validation.By(isListDate)),
		validation.Field(&q.RequesterUserID, validation.Match(numericPattern).Error("Must be a numeric user id")),
		validation.Field(&q.Page, validation.Match(positivePattern).Error("Must be a positive integer")),
		validation.Field(&q.PageSize, validation.Match(positivePattern).Error("Must be a positive integer")),
	)
}

var positivePattern = regexp.MustCompile(`^[1-9]\d*$`)

// ParseListDate accepts RFC3339 or a bare YYYY-MM-DD (UTC midnight).
func ParseListDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func isListDate(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := ParseListDate(s); err != nil {
		return validation.NewError("validation_date", "Expected RFC3339 or YYYY-MM-DD")
	}
	return nil
}

type TicketListFilter struct {
	Type            string
	Status          string
	DateFrom        *time.Time
	DateTo          *time.Time
	RequesterUserID *int64
	Page            int
	PageSize        int
}

// ==== responses ====

type CreateTicketResponse struct {
	TicketID  string    `json:"ticketId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type TicketRequester struct {
	UserID *string `json:"userId,omitempty"`
	Name   *string `json:"name"`
	Email  *string `json:"email"`
}

type TicketContext struct {
	Source   string          `json:"source"`
	Screen   *string         `json:"screen"`
	URL      *string         `json:"url,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
}

type TicketListItem struct {
	TicketID  string          `json:"ticketId"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	Requester TicketRequester `json:"requester"`
	Context   TicketContext   `json:"context"`
}

type TicketListResponse struct {
	Items    []TicketListItem `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int              `json:"total"`
}

type TelegramAlertState struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
}

type TicketHistoryItem struct {
	FromStatus           *string   `json:"fromStatus"`
	ToStatus             string    `json:"toStatus"`
	ChangedByAdminUserID *string   `json:"changedByAdminUserId"`
	AdminComment         *string   `json:"adminComment"`
	CreatedAt            time.Time `json:"createdAt"`
}

type TicketDetails struct {
	TicketListItem
	UpdatedAt     time.Time           `json:"updatedAt"`
	Subject       *string             `json:"subject"`
	Message       string              `json:"message"`
	TelegramAlert TelegramAlertState  `json:"telegramAlert"`
	History       []TicketHistoryItem `json:"history"`
}

type UpdateTicketStatusResponse struct {
	TicketID  string    `json:"ticketId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}
