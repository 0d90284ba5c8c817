package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/models"
	"korner-support-service/internal/repositories"
	"korner-support-service/internal/utils"
)

const (
	defaultKYCListLimit = 20
	maxKYCListLimit     = 100
)

type KYCAdminService interface {
	ListApplications(ctx context.Context, filter models.KYCApplicationFilter) (*models.KYCApplicationListResponse, error)
	GetApplicationDetails(ctx context.Context, kycID string) (*models.KYCApplicationDetails, error)
	Decide(ctx context.Context, adminID int64, kycID string, req models.KYCDecisionRequest) (*models.KYCActionResponse, error)
	Revoke(ctx context.Context, adminID int64, userID string, req models.KYCRevokeRequest) (*models.KYCActionResponse, error)
	ListReasonCodes(ctx context.Context) (*models.KYCReasonCodeListResponse, error)
}

type kycAdminService struct {
	store     KYCStore
	presigner Presigner
}

func NewKYCAdminService(store KYCStore, presigner Presigner) KYCAdminService {
	return &kycAdminService{store: store, presigner: presigner}
}

func (s *kycAdminService) ListApplications(ctx context.Context, filter models.KYCApplicationFilter) (*models.KYCApplicationListResponse, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultKYCListLimit
	}
	if limit > maxKYCListLimit {
		limit = maxKYCListLimit
	}
	// невалидный курсор просто игнорируем
	afterID, _ := utils.DecodeCursor(filter.Cursor)

	query := filter
	query.Limit = limit + 1
	apps, err := s.store.ListApplications(ctx, query, afterID)
	if err != nil {
		return nil, err
	}

	var nextCursor *string
	if len(apps) > limit {
		apps = apps[:limit]
		c := utils.EncodeCursor(apps[len(apps)-1].ID)
		nextCursor = &c
	}

	items := make([]models.KYCApplicationListItem, 0, len(apps))
	for i := range apps {
		a := &apps[i]
		items = append(items, models.KYCApplicationListItem{
			KYCID:              utils.FormatKYCID(a.ID),
			UserID:             utils.FormatUserID(a.UserID),
			Status:             a.Status,
			AttemptNumber:      a.AttemptNumber,
			CreatedAt:          a.CreatedAt,
			SubmittedAt:        a.SubmittedAt,
			FullName:           fullName(a),
			DateOfBirth:        formatDate(a),
			CountryOfResidence: a.CountryOfResidence,
		})
	}
	return &models.KYCApplicationListResponse{
		Items:      items,
		Pagination: models.CursorPagination{Limit: limit, NextCursor: nextCursor},
	}, nil
}

// "last first middle", пустые части пропускаются
func fullName(a *models.KYCApplication) string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{a.LastName, a.FirstName, a.MiddleName} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, " ")
}

func formatDate(a *models.KYCApplication) *string {
	if a.DateOfBirth == nil {
		return nil
	}
	s := a.DateOfBirth.Format("2006-01-02")
	return &s
}

func (s *kycAdminService) applicationByPublicID(ctx context.Context, kycID string) (*models.KYCApplication, error) {
	id, ok := utils.ParseKYCID(kycID)
	if !ok {
		return nil, errKYCNotFound
	}
	app, err := s.store.GetApplicationByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errKYCNotFound
	}
	return app, err
}

func (s *kycAdminService) GetApplicationDetails(ctx context.Context, kycID string) (*models.KYCApplicationDetails, error) {
	app, err := s.applicationByPublicID(ctx, kycID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListConfirmedFiles(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	documents := make(map[string]models.KYCDocument, len(files))
	for _, f := range files {
		viewURL, err := s.presigner.PresignView(ctx, f.StorageKey)
		if err != nil {
			return nil, err
		}
		documents[documentSlot(f)] = models.KYCDocument{
			FileID:    f.FileID,
			FileType:  f.FileType,
			Side:      f.Side,
			MimeType:  f.MimeType,
			SizeBytes: f.SizeBytes,
			ViewURL:   viewURL,
		}
	}

	return &models.KYCApplicationDetails{
		KYCID:         utils.FormatKYCID(app.ID),
		UserID:        utils.FormatUserID(app.UserID),
		Status:        app.Status,
		AttemptNumber: app.AttemptNumber,
		CreatedAt:     app.CreatedAt,
		SubmittedAt:   app.SubmittedAt,
		Profile: models.KYCProfile{
			Email:              app.Email,
			Phone:              app.Phone,
			FirstName:          app.FirstName,
			LastName:           app.LastName,
			MiddleName:         app.MiddleName,
			DateOfBirth:        formatDate(app),
			CountryOfResidence: app.CountryOfResidence,
		},
		Documents: documents,
	}, nil
}

func documentSlot(f models.KYCFile) string {
	if f.FileType == models.KYCFileTypeSelfie {
		return "selfieWithDocument"
	}
	if f.Side != nil && *f.Side == models.KYCSideFront {
		return "documentFront"
	}
	return "documentBack"
}

func (s *kycAdminService) checkReasonCodes(ctx context.Context, codes []string) error {
	unknown, err := s.store.UnknownReasonCodes(ctx, codes)
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		return apierror.WithFields(apierror.KYCInvalidReasonCode,
			fmt.Sprintf("Unknown reason code(s): %s", strings.Join(unknown, ", ")),
			apierror.FieldError{Field: "reasonCodes", Message: "Unknown reason code"})
	}
	return nil
}

func (s *kycAdminService) Decide(ctx context.Context, adminID int64, kycID string, req models.KYCDecisionRequest) (*models.KYCActionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.KYCValidationError, "Invalid request", err)
	}
	// коды проверяем до любых записей
	if err := s.checkReasonCodes(ctx, req.ReasonCodes); err != nil {
		return nil, err
	}

	app, err := s.applicationByPublicID(ctx, kycID)
	if err != nil {
		return nil, err
	}
	to := req.Outcome()
	if !canTransition(app.Status, to, KYCTransitions) {
		return nil, errKYCInvalidStatus
	}

	d := &models.KYCDecision{
		AdminUserID: &adminID,
		Decision:    to,
		ReasonCodes: req.ReasonCodes,
		Comment:     nonEmpty(req.Comment),
	}
	err = s.store.ApplyDecision(ctx, app.ID, app.Status, to, d)
	if errors.Is(err, repositories.ErrStatusChanged) {
		return nil, errKYCInvalidStatus
	}
	if err != nil {
		return nil, err
	}
	logrus.Infof("[kyc][decision] admin=%d kyc_%d %s -> %s codes=%v", adminID, app.ID, app.Status, to, req.ReasonCodes)

	return &models.KYCActionResponse{Success: true, Message: "KYC application " + to}, nil
}

func (s *kycAdminService) Revoke(ctx context.Context, adminID int64, userID string, req models.KYCRevokeRequest) (*models.KYCActionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.KYCValidationError, "Invalid request", err)
	}
	uid, ok := utils.ParseUserID(userID)
	if !ok {
		return nil, apierror.WithFields(apierror.KYCValidationError, "Invalid request",
			apierror.FieldError{Field: "userId", Message: "Invalid user ID format"})
	}
	if err := s.checkReasonCodes(ctx, req.ReasonCodes); err != nil {
		return nil, err
	}

	app, err := s.store.GetLatestApprovedApplication(ctx, uid)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apierror.New(apierror.KYCCannotRevoke, "No approved KYC application to revoke")
	}
	if err != nil {
		return nil, err
	}

	d := &models.KYCDecision{
		AdminUserID: &adminID,
		Decision:    models.KYCDecisionRevoked,
		ReasonCodes: req.ReasonCodes,
		Comment:     nonEmpty(req.Comment),
	}
	err = s.store.ApplyDecision(ctx, app.ID, models.KYCStatusApproved, models.KYCStatusRevoked, d)
	if errors.Is(err, repositories.ErrStatusChanged) {
		return nil, apierror.New(apierror.KYCCannotRevoke, "No approved KYC application to revoke")
	}
	if err != nil {
		return nil, err
	}
	logrus.Infof("[kyc][revoke] admin=%d user=%d kyc_%d codes=%v", adminID, uid, app.ID, req.ReasonCodes)

	return &models.KYCActionResponse{Success: true, Message: "KYC revoked"}, nil
}

func (s *kycAdminService) ListReasonCodes(ctx context.Context) (*models.KYCReasonCodeListResponse, error) {
	items, err := s.store.ListReasonCodes(ctx)
	if err != nil {
		return nil, err
	}
	return &models.KYCReasonCodeListResponse{Items: items}, nil
}
