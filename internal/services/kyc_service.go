package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/config"
	"korner-support-service/internal/lock"
	"korner-support-service/internal/models"
	"korner-support-service/internal/repositories"
	"korner-support-service/internal/utils"
)

var allowedKYCMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// KYCStore is the persistence surface of the KYC lifecycle.
type KYCStore interface {
	kycSettingsStore

	GetActiveApplication(ctx context.Context, userID int64) (*models.KYCApplication, error)
	GetApplicationByID(ctx context.Context, id int64) (*models.KYCApplication, error)
	GetLatestApprovedApplication(ctx context.Context, userID int64) (*models.KYCApplication, error)
	DeleteExpiredDraft(ctx context.Context, id int64) error
	CreateDraft(ctx context.Context, a *models.KYCApplication) (*models.KYCApplication, error)
	UpdateDraft(ctx context.Context, id int64, p *models.KYCApplication, expiresAt time.Time) (*models.KYCApplication, error)
	SubmitApplication(ctx context.Context, id, userID int64, maxAttempts int) (*models.KYCApplication, *models.KYCUserSettings, error)
	ListApplications(ctx context.Context, f models.KYCApplicationFilter, afterID int64) ([]models.KYCApplication, error)

	CreateFile(ctx context.Context, f *models.KYCFile) error
	ConfirmUpload(ctx context.Context, userID int64, fileID string) (bool, error)
	AttachFiles(ctx context.Context, applicationID int64, fileIDs []string) (bool, error)
	ListConfirmedFiles(ctx context.Context, applicationID int64) ([]models.KYCFile, error)

	GetLatestDecision(ctx context.Context, applicationID int64) (*models.KYCDecision, error)
	UnknownReasonCodes(ctx context.Context, codes []string) ([]string, error)
	ListReasonCodes(ctx context.Context) ([]models.KYCReasonCode, error)
	ApplyDecision(ctx context.Context, applicationID int64, from, to string, d *models.KYCDecision) error
}

// Presigner signs object storage URLs for KYC files.
type Presigner interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignView(ctx context.Context, key string) (string, error)
}

type SubmitLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type KYCService interface {
	GetStatus(ctx context.Context, userID int64) (*models.KYCStatusResponse, error)
	UpsertProfile(ctx context.Context, userID int64, req models.KYCProfileRequest) (*models.KYCProfileResponse, error)
	InitFileUpload(ctx context.Context, userID int64, req models.KYCFileInitRequest) (*models.KYCFileInitResponse, error)
	ConfirmFileUpload(ctx context.Context, userID int64, req models.KYCFileConfirmRequest) (*models.KYCActionResponse, error)
	AttachFiles(ctx context.Context, userID int64, req models.KYCAttachFilesRequest) (*models.KYCActionResponse, error)
	Submit(ctx context.Context, userID int64) (*models.KYCSubmitResponse, error)
	GetLatestDecision(ctx context.Context, userID int64) (*models.KYCLatestDecisionResponse, error)
}

type kycService struct {
	store     KYCStore
	policy    KYCPolicyService
	presigner Presigner
	locker    SubmitLocker
	cfg       config.KYCConfig
	now       func() time.Time
}

func NewKYCService(store KYCStore, policy KYCPolicyService, presigner Presigner, locker SubmitLocker, cfg config.KYCConfig) KYCService {
	return &kycService{
		store:     store,
		policy:    policy,
		presigner: presigner,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
	}
}

var (
	errKYCBlocked          = apierror.New(apierror.KYCBlocked, "Maximum number of KYC attempts exceeded")
	errKYCAlreadyApproved  = apierror.New(apierror.KYCAlreadyApproved, "KYC is already approved")
	errKYCAlreadySubmitted = apierror.New(apierror.KYCAlreadySubmitted, "KYC is already submitted for review")
	errKYCFileTooLarge     = apierror.New(apierror.KYCFileSizeExceeded, "File size exceeds maximum allowed (5MB)")
	errKYCInvalidFileType  = apierror.New(apierror.KYCInvalidFileType, "Invalid file type. Allowed: image/jpeg, image/png, image/webp")
	errKYCNotFound         = apierror.New(apierror.KYCApplicationNotFound, "KYC application not found")
	errKYCInvalidStatus    = apierror.New(apierror.KYCInvalidStatus, "Cannot perform this action in current KYC status")
	errKYCMissingFiles     = apierror.New(apierror.KYCMissingRequiredFiles, "Please upload document (front) and selfie with document")
	errKYCFileNotFound     = apierror.New(apierror.KYCFileNotFound, "File not found or not uploaded")
	errKYCSubmitInProgress = apierror.New(apierror.KYCSubmitInProgress, "KYC submission is already in progress")
)

// activeApplication returns the user's current application, deleting it first
// when it is an expired draft. ErrNotFound when there is none left.
func (s *kycService) activeApplication(ctx context.Context, userID int64) (*models.KYCApplication, error) {
	app, err := s.store.GetActiveApplication(ctx, userID)
	if err != nil {
		return nil, err
	}
	if app.IsExpiredDraft(s.now()) {
		logrus.Infof("[kyc][draft] expired draft kyc_%d of user=%d removed", app.ID, userID)
		if err := s.store.DeleteExpiredDraft(ctx, app.ID); err != nil {
			return nil, err
		}
		return nil, repositories.ErrNotFound
	}
	return app, nil
}

func (s *kycService) GetStatus(ctx context.Context, userID int64) (*models.KYCStatusResponse, error) {
	settings, err := s.policy.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := models.KYCStatusNotStarted
	app, err := s.activeApplication(ctx, userID)
	switch {
	case err == nil:
		status = app.Status
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	if settings.IsBlocked {
		status = models.KYCStatusBlocked
	}

	approved := status == models.KYCStatusApproved
	return &models.KYCStatusResponse{
		Status:       status,
		AttemptsUsed: settings.TotalAttempts,
		AttemptsLeft: settings.AttemptsLeft(),
		Requirements: models.KYCRequirements{
			CanWithdraw:            approved,
			CanAccessSellerCabinet: approved,
		},
	}, nil
}

func (s *kycService) UpsertProfile(ctx context.Context, userID int64, req models.KYCProfileRequest) (*models.KYCProfileResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.KYCValidationError, "Invalid request", err)
	}

	settings, err := s.policy.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings.IsBlocked {
		return nil, errKYCBlocked
	}

	app, err := s.activeApplication(ctx, userID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if app != nil {
		switch app.Status {
		case models.KYCStatusApproved:
			return nil, errKYCAlreadyApproved
		case models.KYCStatusPending:
			return nil, errKYCAlreadySubmitted
		}
	}

	profile, err := profileFromRequest(req)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.DraftTTL)

	var saved *models.KYCApplication
	if app == nil || app.Status == models.KYCStatusRejected || app.Status == models.KYCStatusRevoked {
		// новая попытка, счётчик увеличится только при submit
		profile.UserID = userID
		profile.AttemptNumber = settings.TotalAttempts + 1
		profile.ExpiresAt = &expiresAt
		saved, err = s.store.CreateDraft(ctx, profile)
	} else {
		saved, err = s.store.UpdateDraft(ctx, app.ID, profile, expiresAt)
		if errors.Is(err, repositories.ErrStatusChanged) {
			return nil, errKYCAlreadySubmitted
		}
	}
	if err != nil {
		return nil, err
	}

	return &models.KYCProfileResponse{
		KYCID:  utils.FormatKYCID(saved.ID),
		Status: saved.Status,
	}, nil
}

func profileFromRequest(req models.KYCProfileRequest) (*models.KYCApplication, error) {
	p := &models.KYCApplication{
		Email:              nonEmpty(req.Email),
		Phone:              nonEmpty(req.Phone),
		FirstName:          nonEmpty(req.FirstName),
		LastName:           nonEmpty(req.LastName),
		MiddleName:         nonEmpty(req.MiddleName),
		CountryOfResidence: nonEmpty(req.CountryOfResidence),
	}
	if dob := nonEmpty(req.DateOfBirth); dob != nil {
		t, err := time.Parse("2006-01-02", *dob)
		if err != nil {
			return nil, apierror.WithFields(apierror.KYCValidationError, "Invalid request",
				apierror.FieldError{Field: "dateOfBirth", Message: "Invalid date format. Expected: YYYY-MM-DD"})
		}
		p.DateOfBirth = &t
	}
	return p, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *kycService) InitFileUpload(ctx context.Context, userID int64, req models.KYCFileInitRequest) (*models.KYCFileInitResponse, error) {
	// размер и тип проверяем до любых записей
	if req.SizeBytes > s.cfg.MaxFileSizeBytes {
		return nil, errKYCFileTooLarge
	}
	if !allowedKYCMimeTypes[req.MimeType] {
		return nil, errKYCInvalidFileType
	}
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.KYCValidationError, "Invalid request", err)
	}

	app, err := s.activeApplication(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errKYCNotFound
	}
	if err != nil {
		return nil, err
	}
	if app.Status != models.KYCStatusDraft {
		return nil, errKYCInvalidStatus
	}

	file := &models.KYCFile{
		ApplicationID: app.ID,
		FileID:        utils.NewFileID(),
		FileType:      req.FileType,
		Side:          nonEmpty(req.Side),
		MimeType:      req.MimeType,
		SizeBytes:     req.SizeBytes,
	}
	file.StorageKey = storageKey(userID, app.ID, file)

	if err := s.store.CreateFile(ctx, file); err != nil {
		return nil, err
	}
	uploadURL, err := s.presigner.PresignUpload(ctx, file.StorageKey, file.MimeType)
	if err != nil {
		return nil, err
	}

	return &models.KYCFileInitResponse{
		FileID:       file.FileID,
		UploadURL:    uploadURL,
		MaxSizeBytes: s.cfg.MaxFileSizeBytes,
	}, nil
}

// kyc/{userId}/{appId}/{fileType}[_{side}]_{fileId}.{ext}
func storageKey(userID, appID int64, f *models.KYCFile) string {
	ext := "jpg"
	if i := strings.Index(f.MimeType, "/"); i >= 0 && i < len(f.MimeType)-1 {
		ext = f.MimeType[i+1:]
	}
	kind := f.FileType
	if f.Side != nil {
		kind += "_" + *f.Side
	}
	return fmt.Sprintf("kyc/%d/%d/%s_%s.%s", userID, appID, kind, f.FileID, ext)
}

func (s *kycService) ConfirmFileUpload(ctx context.Context, userID int64, req models.KYCFileConfirmRequest) (*models.KYCActionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.KYCValidationError, "Invalid request", err)
	}
	ok, err := s.store.ConfirmUpload(ctx, userID, req.FileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errKYCFileNotFound
	}
	return &models.KYCActionResponse{Success: true, Message: "File upload confirmed"}, nil
}

func (s *kycService) AttachFiles(ctx context.Context, userID int64, req models.KYCAttachFilesRequest) (*models.KYCActionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation(apierror.KYCValidationError, "Invalid request", err)
	}

	app, err := s.activeApplication(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errKYCNotFound
	}
	if err != nil {
		return nil, err
	}
	if app.Status != models.KYCStatusDraft {
		return nil, errKYCInvalidStatus
	}

	ok, err := s.store.AttachFiles(ctx, app.ID, req.FileIDs())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errKYCFileNotFound
	}
	return &models.KYCActionResponse{Success: true, Message: "Files attached to KYC application"}, nil
}

func (s *kycService) Submit(ctx context.Context, userID int64) (*models.KYCSubmitResponse, error) {
	release, err := s.locker.TryLock(ctx, lock.SubmitKey(userID), s.cfg.SubmitLockTTL)
	if errors.Is(err, lock.ErrLockHeld) {
		return nil, errKYCSubmitInProgress
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		// контекст запроса мог уже закончиться
		if err := release(context.Background()); err != nil {
			logrus.Warnf("[kyc][submit][unlock] user=%d: %v", userID, err)
		}
	}()

	blocked, err := s.policy.IsBlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, errKYCBlocked
	}

	app, err := s.activeApplication(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errKYCNotFound
	}
	if err != nil {
		return nil, err
	}
	if !canTransition(app.Status, models.KYCStatusPending, KYCTransitions) {
		return nil, errKYCInvalidStatus
	}

	if missing := missingSubmitFields(app); len(missing) > 0 {
		return nil, apierror.WithFields(apierror.KYCValidationError, "Please fill in all required fields", missing...)
	}

	files, err := s.store.ListConfirmedFiles(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if !hasRequiredFiles(files) {
		return nil, errKYCMissingFiles
	}

	submitted, settings, err := s.store.SubmitApplication(ctx, app.ID, userID, s.policy.MaxAttempts())
	if errors.Is(err, repositories.ErrStatusChanged) {
		return nil, errKYCInvalidStatus
	}
	if err != nil {
		return nil, err
	}
	logrus.Infof("[kyc][submit] user=%d kyc_%d attempt=%d/%d", userID, submitted.ID, settings.TotalAttempts, settings.MaxAttempts)

	return &models.KYCSubmitResponse{
		Message: "KYC submitted",
		KYC: models.KYCSubmitResult{
			ID:           utils.FormatKYCID(submitted.ID),
			Status:       submitted.Status,
			AttemptsUsed: settings.TotalAttempts,
			AttemptsLeft: settings.AttemptsLeft(),
		},
	}, nil
}

func missingSubmitFields(app *models.KYCApplication) []apierror.FieldError {
	var missing []apierror.FieldError
	if app.FirstName == nil || *app.FirstName == "" {
		missing = append(missing, apierror.FieldError{Field: "firstName", Message: "First name is required"})
	}
	if app.LastName == nil || *app.LastName == "" {
		missing = append(missing, apierror.FieldError{Field: "lastName", Message: "Last name is required"})
	}
	if app.DateOfBirth == nil {
		missing = append(missing, apierror.FieldError{Field: "dateOfBirth", Message: "Date of birth is required"})
	}
	return missing
}

func hasRequiredFiles(files []models.KYCFile) bool {
	var front, selfie bool
	for _, f := range files {
		switch {
		case f.FileType == models.KYCFileTypeDocument && f.Side != nil && *f.Side == models.KYCSideFront:
			front = true
		case f.FileType == models.KYCFileTypeSelfie:
			selfie = true
		}
	}
	return front && selfie
}

func (s *kycService) GetLatestDecision(ctx context.Context, userID int64) (*models.KYCLatestDecisionResponse, error) {
	app, err := s.store.GetActiveApplication(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errKYCNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := s.store.GetLatestDecision(ctx, app.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errKYCNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.KYCLatestDecisionResponse{
		Status:      d.Decision,
		ReasonCodes: d.ReasonCodes,
		Comment:     d.Comment,
	}, nil
}
