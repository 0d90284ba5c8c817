package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/cache"
	"korner-support-service/internal/models"
	"korner-support-service/internal/repositories"
)

const defaultLocale = "en"

type ReportStore interface {
	ListTypes(ctx context.Context, locale string) ([]models.ReportTypeItem, error)
	CreateReport(ctx context.Context, typeCode string, report *models.Report, rc *models.ReportContextRequest) error
}

type ReportService interface {
	ListTypes(ctx context.Context, locale string) (*models.ReportTypeListResponse, error)
	Create(ctx context.Context, userID *int64, req models.CreateReportRequest) (*models.CreateReportResponse, error)
}

type reportService struct {
	store    ReportStore
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewReportService(store ReportStore, c cache.Cache, cacheTTL time.Duration) ReportService {
	return &reportService{store: store, cache: c, cacheTTL: cacheTTL}
}

// normalizeLocale returns the default locale for an empty value and false for a malformed one.
func normalizeLocale(locale string) (string, bool) {
	if locale == "" {
		return defaultLocale, true
	}
	return locale, models.LocalePattern.MatchString(locale)
}

func (s *reportService) ListTypes(ctx context.Context, locale string) (*models.ReportTypeListResponse, error) {
	locale, ok := normalizeLocale(locale)
	if !ok {
		return nil, apierror.New(apierror.ReportsInvalidLocale, "Invalid locale format")
	}

	key := "report_types:" + locale
	var cached models.ReportTypeListResponse
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		logrus.Warnf("[reports][types][cache] get %s: %v", key, err)
	}
	if found {
		return &cached, nil
	}

	items, err := s.store.ListTypes(ctx, locale)
	if err != nil {
		return nil, err
	}
	resp := &models.ReportTypeListResponse{Items: items}
	if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
		logrus.Warnf("[reports][types][cache] set %s: %v", key, err)
	}
	return resp, nil
}

func (s *reportService) Create(ctx context.Context, userID *int64, req models.CreateReportRequest) (*models.CreateReportResponse, error) {
	if userID == nil {
		return nil, apierror.New(apierror.ReportsUnauthorized, "Authorization required")
	}
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.ReportsValidationError, "Invalid request", err)
	}

	report := &models.Report{
		ReporterUserID: userID,
		Comment:        nonEmpty(req.Comment),
	}
	err := s.store.CreateReport(ctx, req.ReportTypeCode, report, &req.Context)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apierror.New(apierror.ReportsInvalidReportType, "Invalid report type code")
	}
	if err != nil {
		return nil, err
	}
	logrus.Infof("[reports][create] user=%d report=%d type=%s", *userID, report.ID, req.ReportTypeCode)

	return &models.CreateReportResponse{
		ReportID:  strconv.FormatInt(report.ID, 10),
		Status:    report.Status,
		CreatedAt: report.CreatedAt,
	}, nil
}
