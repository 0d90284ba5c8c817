package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	ReportStatusCreated  = "created"
	ReportStatusInReview = "inReview"
	ReportStatusResolved = "resolved"
	ReportStatusRejected = "rejected"
)

var (
	LocalePattern  = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)
	numericPattern = regexp.MustCompile(`^\d+$`)
)

// типы, для которых комментарий обязателен
var commentRequiredReportTypes = map[string]bool{
	"technicalIssue": true,
	"other":          true,
}

type ReportType struct {
	ID                int64
	Code              string
	IsCommentRequired bool
	IsActive          bool
	SortOrder         int
}

type ReportTypeItem struct {
	ID                int64   `json:"id"`
	Code              string  `json:"code"`
	Title             string  `json:"title"`
	Description       *string `json:"description"`
	IsCommentRequired bool    `json:"isCommentRequired"`
	SortOrder         int     `json:"sortOrder"`
}

type ReportTypeListResponse struct {
	Items []ReportTypeItem `json:"items"`
}

type Report struct {
	ID             int64
	ReportTypeID   int64
	ReporterUserID *int64
	ReporterEmail  *string
	Comment        *string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ReportContextRequest struct {
	Source        string          `json:"source"`
	Screen        *string         `json:"screen"`
	ContentType   string          `json:"contentType"`
	ContentID     string          `json:"contentId"`
	CreatorUserID *string         `json:"creatorUserId"`
	URL           *string         `json:"url"`
	Metadata      json.RawMessage `json:"metadata" swaggertype:"object"`
}

func (c ReportContextRequest) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Source, validation.Required, validation.In("bar_menu", "page").Error("Expected: bar_menu or page")),
		validation.Field(&c.ContentType, validation.Required, validation.In("bar", "comment").Error("Expected: bar or comment")),
		validation.Field(&c.ContentID, validation.Required),
		validation.Field(&c.CreatorUserID, validation.Match(numericPattern).Error("Must be a numeric user id")),
	)
}

type CreateReportRequest struct {
	ReportTypeCode string               `json:"reportTypeCode"`
	Comment        *string              `json:"comment"`
	Context        ReportContextRequest `json:"context"`
}

func (r CreateReportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ReportTypeCode, validation.Required.Error("Report type code is required")),
		validation.Field(&r.Comment,
			validation.When(commentRequiredReportTypes[r.ReportTypeCode],
				validation.By(requireNonBlank("Comment is required for technical issues and other report types"))),
			validation.RuneLength(10, 500).Error("Comment must be between 10 and 500 characters"),
		),
		validation.Field(&r.Context),
	)
}

type CreateReportResponse struct {
	ReportID  string    `json:"reportId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func requireNonBlank(message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(*string)
		if s == nil || strings.TrimSpace(*s) == "" {
			return validation.NewError("validation_required", message)
		}
		return nil
	}
}
