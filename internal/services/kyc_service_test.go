package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/config"
	"korner-support-service/internal/models"
)

var testKYCConfig = config.KYCConfig{
	MaxAttempts:      3,
	DraftTTL:         24 * time.Hour,
	MaxFileSizeBytes: 5 * 1024 * 1024,
	SubmitLockTTL:    10 * time.Second,
}

func strPtr(s string) *string { return &s }

func newTestKYCService(store *memKYCStore, locker SubmitLocker) KYCService {
	if locker == nil {
		locker = &stubLocker{}
	}
	policy := NewKYCPolicyService(store, testKYCConfig.MaxAttempts)
	return NewKYCService(store, policy, &stubPresigner{}, locker, testKYCConfig)
}

func requireAPIError(t *testing.T, err error, code apierror.ErrorCode) *apierror.APIError {
	t.Helper()
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
	return apiErr
}

func validProfile() models.KYCProfileRequest {
	return models.KYCProfileRequest{
		Email:              strPtr(gofakeit.Email()),
		Phone:              strPtr("+77771234567"),
		FirstName:          strPtr(gofakeit.FirstName()),
		LastName:           strPtr(gofakeit.LastName()),
		DateOfBirth:        strPtr("1994-05-17"),
		CountryOfResidence: strPtr("KZ"),
	}
}

// seedReadyDraft stores a complete draft with confirmed front and selfie files.
func seedReadyDraft(store *memKYCStore, userID int64) *models.KYCApplication {
	dob := time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)
	expires := time.Now().Add(time.Hour)
	app, _ := store.CreateDraft(context.Background(), &models.KYCApplication{
		UserID:        userID,
		AttemptNumber: 1,
		FirstName:     strPtr("Aidar"),
		LastName:      strPtr("Nurlanov"),
		DateOfBirth:   &dob,
		ExpiresAt:     &expires,
	})
	for _, f := range []models.KYCFile{
		{FileID: gofakeit.UUID(), FileType: models.KYCFileTypeDocument, Side: strPtr(models.KYCSideFront), MimeType: "image/jpeg"},
		{FileID: gofakeit.UUID(), FileType: models.KYCFileTypeSelfie, MimeType: "image/jpeg"},
	} {
		f := f
		f.ApplicationID = app.ID
		_ = store.CreateFile(context.Background(), &f)
		store.files[f.FileID].UploadStatus = models.KYCUploadConfirmed
	}
	return app
}

func TestKYCService_GetStatus_NewUser(t *testing.T) {
	svc := newTestKYCService(newMemKYCStore(), nil)

	status, err := svc.GetStatus(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusNotStarted, status.Status)
	assert.Equal(t, 0, status.AttemptsUsed)
	assert.Equal(t, 3, status.AttemptsLeft)
	assert.False(t, status.Requirements.CanWithdraw)
}

func TestKYCService_EndToEnd(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()
	const userID = 7

	profile, err := svc.UpsertProfile(ctx, userID, validProfile())
	require.NoError(t, err)
	assert.Equal(t, "kyc_1", profile.KYCID)
	assert.Equal(t, models.KYCStatusDraft, profile.Status)

	front, err := svc.InitFileUpload(ctx, userID, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeDocument, Side: strPtr(models.KYCSideFront), MimeType: "image/jpeg", SizeBytes: 1024,
	})
	require.NoError(t, err)
	assert.Contains(t, front.UploadURL, "kyc/7/1/document_front_"+front.FileID+".jpeg")
	assert.Equal(t, testKYCConfig.MaxFileSizeBytes, front.MaxSizeBytes)

	selfie, err := svc.InitFileUpload(ctx, userID, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeSelfie, MimeType: "image/png", SizeBytes: 2048,
	})
	require.NoError(t, err)

	for _, id := range []string{front.FileID, selfie.FileID} {
		_, err := svc.ConfirmFileUpload(ctx, userID, models.KYCFileConfirmRequest{FileID: id})
		require.NoError(t, err)
	}
	_, err = svc.AttachFiles(ctx, userID, models.KYCAttachFilesRequest{
		DocumentFront:      front.FileID,
		SelfieWithDocument: selfie.FileID,
	})
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "KYC submitted", submitted.Message)
	assert.Equal(t, "kyc_1", submitted.KYC.ID)
	assert.Equal(t, models.KYCStatusPending, submitted.KYC.Status)
	assert.Equal(t, 1, submitted.KYC.AttemptsUsed)
	assert.Equal(t, 2, submitted.KYC.AttemptsLeft)

	status, err := svc.GetStatus(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusPending, status.Status)
	assert.Equal(t, 1, status.AttemptsUsed)
	assert.Equal(t, 2, status.AttemptsLeft)

	// повторный submit не должен списать попытку
	_, err = svc.Submit(ctx, userID)
	requireAPIError(t, err, apierror.KYCInvalidStatus)
	assert.Equal(t, 1, store.settings[userID].TotalAttempts)

	_, err = svc.UpsertProfile(ctx, userID, validProfile())
	requireAPIError(t, err, apierror.KYCAlreadySubmitted)
}

func TestKYCService_ExpiredDraftDeletedOnRead(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	app := seedReadyDraft(store, 7)
	past := time.Now().Add(-time.Minute)
	store.apps[app.ID].ExpiresAt = &past

	status, err := svc.GetStatus(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusNotStarted, status.Status)
	assert.NotContains(t, store.apps, app.ID)
}

func TestKYCService_Submit_ExpiredDraft(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	app := seedReadyDraft(store, 7)
	past := time.Now().Add(-time.Minute)
	store.apps[app.ID].ExpiresAt = &past

	_, err := svc.Submit(context.Background(), 7)
	requireAPIError(t, err, apierror.KYCApplicationNotFound)
	assert.Equal(t, 0, store.settings[7].TotalAttempts)
}

func TestKYCService_BlocksAtMaxAttempts(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()
	store.settings[7] = &models.KYCUserSettings{UserID: 7, TotalAttempts: 2, MaxAttempts: 3}
	seedReadyDraft(store, 7)

	res, err := svc.Submit(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, res.KYC.AttemptsUsed)
	assert.Equal(t, 0, res.KYC.AttemptsLeft)
	assert.True(t, store.settings[7].IsBlocked)
	assert.NotNil(t, store.settings[7].BlockedAt)

	status, err := svc.GetStatus(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusBlocked, status.Status)

	_, err = svc.UpsertProfile(ctx, 7, validProfile())
	requireAPIError(t, err, apierror.KYCBlocked)
}

func TestKYCService_BlockedOverridesApproved(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	app := seedReadyDraft(store, 7)
	store.apps[app.ID].Status = models.KYCStatusApproved
	store.settings[7] = &models.KYCUserSettings{UserID: 7, TotalAttempts: 3, MaxAttempts: 3, IsBlocked: true}

	status, err := svc.GetStatus(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusBlocked, status.Status)
	assert.False(t, status.Requirements.CanWithdraw)
}

func TestKYCService_InitFileUpload_RejectsBeforeWriting(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()
	_, err := svc.UpsertProfile(ctx, 7, validProfile())
	require.NoError(t, err)
	before := store.writeCount()

	_, err = svc.InitFileUpload(ctx, 7, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeDocument, Side: strPtr(models.KYCSideFront), MimeType: "image/jpeg",
		SizeBytes: testKYCConfig.MaxFileSizeBytes + 1,
	})
	requireAPIError(t, err, apierror.KYCFileSizeExceeded)

	_, err = svc.InitFileUpload(ctx, 7, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeDocument, MimeType: "application/pdf", SizeBytes: 10,
	})
	requireAPIError(t, err, apierror.KYCInvalidFileType)

	assert.Equal(t, before, store.writeCount())
	assert.Empty(t, store.files)
}

func TestKYCService_InitFileUpload_NoDraft(t *testing.T) {
	svc := newTestKYCService(newMemKYCStore(), nil)

	_, err := svc.InitFileUpload(context.Background(), 7, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeSelfie, MimeType: "image/webp", SizeBytes: 10,
	})
	requireAPIError(t, err, apierror.KYCApplicationNotFound)
}

func TestKYCService_AttachFiles_RequiresUploaded(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()
	_, err := svc.UpsertProfile(ctx, 7, validProfile())
	require.NoError(t, err)

	front, err := svc.InitFileUpload(ctx, 7, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeDocument, Side: strPtr(models.KYCSideFront), MimeType: "image/jpeg", SizeBytes: 10,
	})
	require.NoError(t, err)
	selfie, err := svc.InitFileUpload(ctx, 7, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeSelfie, MimeType: "image/jpeg", SizeBytes: 10,
	})
	require.NoError(t, err)
	_, err = svc.ConfirmFileUpload(ctx, 7, models.KYCFileConfirmRequest{FileID: front.FileID})
	require.NoError(t, err)

	// селфи не подтверждено
	_, err = svc.AttachFiles(ctx, 7, models.KYCAttachFilesRequest{DocumentFront: front.FileID, SelfieWithDocument: selfie.FileID})
	requireAPIError(t, err, apierror.KYCFileNotFound)
	assert.Equal(t, models.KYCUploadUploaded, store.files[front.FileID].UploadStatus)
}

func TestKYCService_ConfirmFileUpload_OtherUsersFile(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()
	_, err := svc.UpsertProfile(ctx, 7, validProfile())
	require.NoError(t, err)
	file, err := svc.InitFileUpload(ctx, 7, models.KYCFileInitRequest{
		FileType: models.KYCFileTypeSelfie, MimeType: "image/jpeg", SizeBytes: 10,
	})
	require.NoError(t, err)

	_, err = svc.ConfirmFileUpload(ctx, 8, models.KYCFileConfirmRequest{FileID: file.FileID})
	requireAPIError(t, err, apierror.KYCFileNotFound)
}

func TestKYCService_Submit_MissingFieldsAndFiles(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()

	_, err := svc.UpsertProfile(ctx, 7, models.KYCProfileRequest{Email: strPtr("a@b.kz")})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, 7)
	apiErr := requireAPIError(t, err, apierror.KYCValidationError)
	fields := make([]string, 0, len(apiErr.Fields))
	for _, f := range apiErr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"firstName", "lastName", "dateOfBirth"}, fields)

	_, err = svc.UpsertProfile(ctx, 7, validProfile())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, 7)
	requireAPIError(t, err, apierror.KYCMissingRequiredFiles)
	assert.Equal(t, 0, store.settings[7].TotalAttempts)
}

func TestKYCService_Submit_LockHeld(t *testing.T) {
	store := newMemKYCStore()
	locker := &stubLocker{held: map[string]bool{"kyc:submit:7": true}}
	svc := newTestKYCService(store, locker)
	seedReadyDraft(store, 7)

	_, err := svc.Submit(context.Background(), 7)
	requireAPIError(t, err, apierror.KYCSubmitInProgress)
	assert.Equal(t, models.KYCStatusDraft, store.apps[1].Status)
}

func TestKYCService_Submit_ReleasesLock(t *testing.T) {
	store := newMemKYCStore()
	locker := &stubLocker{}
	svc := newTestKYCService(store, locker)
	seedReadyDraft(store, 7)

	_, err := svc.Submit(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, locker.held)
}

func TestKYCService_Submit_LockerDown(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, &stubLocker{err: errors.New("redis down")})
	seedReadyDraft(store, 7)

	_, err := svc.Submit(context.Background(), 7)
	assert.EqualError(t, err, "redis down")
}

func TestKYCService_ResubmitAfterRejection(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()
	app := seedReadyDraft(store, 7)
	store.apps[app.ID].Status = models.KYCStatusRejected
	store.settings[7] = &models.KYCUserSettings{UserID: 7, TotalAttempts: 1, MaxAttempts: 3}

	res, err := svc.UpsertProfile(ctx, 7, validProfile())
	require.NoError(t, err)
	assert.Equal(t, "kyc_2", res.KYCID)
	assert.Equal(t, 2, store.apps[2].AttemptNumber)
}

func TestKYCService_UpsertProfile_InvalidDate(t *testing.T) {
	svc := newTestKYCService(newMemKYCStore(), nil)

	_, err := svc.UpsertProfile(context.Background(), 7, models.KYCProfileRequest{DateOfBirth: strPtr("1994-13-45")})
	apiErr := requireAPIError(t, err, apierror.KYCValidationError)
	require.NotEmpty(t, apiErr.Fields)
	assert.Equal(t, "dateOfBirth", apiErr.Fields[0].Field)
}

func TestKYCService_GetLatestDecision(t *testing.T) {
	store := newMemKYCStore()
	svc := newTestKYCService(store, nil)
	ctx := context.Background()

	_, err := svc.GetLatestDecision(ctx, 7)
	requireAPIError(t, err, apierror.KYCApplicationNotFound)

	app := seedReadyDraft(store, 7)
	store.apps[app.ID].Status = models.KYCStatusPending
	require.NoError(t, store.ApplyDecision(ctx, app.ID, models.KYCStatusPending, models.KYCStatusRejected, &models.KYCDecision{
		Decision:    models.KYCDecisionRejected,
		ReasonCodes: []string{"DOC_BLURRY"},
	}))

	d, err := svc.GetLatestDecision(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.KYCDecisionRejected, d.Status)
	assert.Equal(t, []string{"DOC_BLURRY"}, d.ReasonCodes)
}
