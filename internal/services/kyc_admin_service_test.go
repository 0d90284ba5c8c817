package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/models"
	"korner-support-service/internal/utils"
)

func pendingApplication(store *memKYCStore, userID int64) *models.KYCApplication {
	app := seedReadyDraft(store, userID)
	store.apps[app.ID].Status = models.KYCStatusPending
	return store.apps[app.ID]
}

func TestKYCAdminService_Decide_Approve(t *testing.T) {
	store := newMemKYCStore()
	svc := NewKYCAdminService(store, &stubPresigner{})
	app := pendingApplication(store, 7)

	res, err := svc.Decide(context.Background(), 1, utils.FormatKYCID(app.ID), models.KYCDecisionRequest{Decision: "approve"})
	require.NoError(t, err)
	assert.Equal(t, "KYC application approved", res.Message)
	assert.Equal(t, models.KYCStatusApproved, store.apps[app.ID].Status)
	require.Len(t, store.decisions, 1)
	assert.Equal(t, int64(1), *store.decisions[0].AdminUserID)
}

func TestKYCAdminService_Decide_UnknownReasonCodeWritesNothing(t *testing.T) {
	store := newMemKYCStore()
	svc := NewKYCAdminService(store, &stubPresigner{})
	app := pendingApplication(store, 7)
	before := store.writeCount()

	_, err := svc.Decide(context.Background(), 1, utils.FormatKYCID(app.ID), models.KYCDecisionRequest{
		Decision:    "reject",
		ReasonCodes: []string{"DOC_BLURRY", "NOPE"},
	})
	apiErr := requireAPIError(t, err, apierror.KYCInvalidReasonCode)
	assert.Contains(t, apiErr.Message, "NOPE")
	assert.Equal(t, before, store.writeCount())
	assert.Equal(t, models.KYCStatusPending, store.apps[app.ID].Status)
	assert.Empty(t, store.decisions)
}

func TestKYCAdminService_Decide_InvalidStatus(t *testing.T) {
	store := newMemKYCStore()
	svc := NewKYCAdminService(store, &stubPresigner{})
	app := seedReadyDraft(store, 7)

	_, err := svc.Decide(context.Background(), 1, utils.FormatKYCID(app.ID), models.KYCDecisionRequest{Decision: "approve"})
	requireAPIError(t, err, apierror.KYCInvalidStatus)
}

func TestKYCAdminService_Decide_NotFound(t *testing.T) {
	svc := NewKYCAdminService(newMemKYCStore(), &stubPresigner{})

	for _, id := range []string{"kyc_99", "99", "kyc_x"} {
		_, err := svc.Decide(context.Background(), 1, id, models.KYCDecisionRequest{Decision: "reject"})
		requireAPIError(t, err, apierror.KYCApplicationNotFound)
	}
}

func TestKYCAdminService_Decide_Validation(t *testing.T) {
	svc := NewKYCAdminService(newMemKYCStore(), &stubPresigner{})

	_, err := svc.Decide(context.Background(), 1, "kyc_1", models.KYCDecisionRequest{Decision: "maybe"})
	apiErr := requireAPIError(t, err, apierror.KYCValidationError)
	require.Len(t, apiErr.Fields, 1)
	assert.Equal(t, "decision", apiErr.Fields[0].Field)
}

func TestKYCAdminService_Revoke(t *testing.T) {
	store := newMemKYCStore()
	svc := NewKYCAdminService(store, &stubPresigner{})
	ctx := context.Background()
	req := models.KYCRevokeRequest{ReasonCodes: []string{"FRAUD_SUSPECTED"}, Comment: strPtr("chargeback")}

	_, err := svc.Revoke(ctx, 1, "u_7", req)
	requireAPIError(t, err, apierror.KYCCannotRevoke)

	app := pendingApplication(store, 7)
	store.apps[app.ID].Status = models.KYCStatusApproved

	res, err := svc.Revoke(ctx, 1, "u_7", req)
	require.NoError(t, err)
	assert.Equal(t, "KYC revoked", res.Message)
	assert.Equal(t, models.KYCStatusRevoked, store.apps[app.ID].Status)
	assert.Equal(t, models.KYCDecisionRevoked, store.decisions[0].Decision)

	_, err = svc.Revoke(ctx, 1, "u_7", req)
	requireAPIError(t, err, apierror.KYCCannotRevoke)
}

func TestKYCAdminService_Revoke_RequiresReasonCodes(t *testing.T) {
	svc := NewKYCAdminService(newMemKYCStore(), &stubPresigner{})

	_, err := svc.Revoke(context.Background(), 1, "u_7", models.KYCRevokeRequest{})
	apiErr := requireAPIError(t, err, apierror.KYCValidationError)
	assert.Equal(t, "reasonCodes", apiErr.Fields[0].Field)

	_, err = svc.Revoke(context.Background(), 1, "user7", models.KYCRevokeRequest{ReasonCodes: []string{"DOC_BLURRY"}})
	apiErr = requireAPIError(t, err, apierror.KYCValidationError)
	assert.Equal(t, "userId", apiErr.Fields[0].Field)
}

func TestKYCAdminService_ListApplications_Pagination(t *testing.T) {
	store := newMemKYCStore()
	svc := NewKYCAdminService(store, &stubPresigner{})
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		pendingApplication(store, i)
	}

	page, err := svc.ListApplications(ctx, models.KYCApplicationFilter{Status: models.KYCStatusPending, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "kyc_3", page.Items[0].KYCID)
	assert.Equal(t, "u_3", page.Items[0].UserID)
	assert.Equal(t, "Nurlanov Aidar", page.Items[0].FullName)
	assert.Equal(t, "1990-01-02", *page.Items[0].DateOfBirth)
	require.NotNil(t, page.Pagination.NextCursor)

	next, err := svc.ListApplications(ctx, models.KYCApplicationFilter{
		Status: models.KYCStatusPending, Limit: 2, Cursor: *page.Pagination.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "kyc_1", next.Items[0].KYCID)
	assert.Nil(t, next.Pagination.NextCursor)
}

func TestKYCAdminService_ListApplications_LimitClamp(t *testing.T) {
	svc := NewKYCAdminService(newMemKYCStore(), &stubPresigner{})

	res, err := svc.ListApplications(context.Background(), models.KYCApplicationFilter{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Pagination.Limit)
	assert.Empty(t, res.Items)

	res, err = svc.ListApplications(context.Background(), models.KYCApplicationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Pagination.Limit)
}

func TestKYCAdminService_GetApplicationDetails(t *testing.T) {
	store := newMemKYCStore()
	svc := NewKYCAdminService(store, &stubPresigner{})
	app := pendingApplication(store, 7)

	d, err := svc.GetApplicationDetails(context.Background(), utils.FormatKYCID(app.ID))
	require.NoError(t, err)
	assert.Equal(t, "u_7", d.UserID)
	require.Contains(t, d.Documents, "documentFront")
	require.Contains(t, d.Documents, "selfieWithDocument")
	assert.NotContains(t, d.Documents, "documentBack")
	assert.Contains(t, d.Documents["documentFront"].ViewURL, "https://s3.test/view/")
	assert.Equal(t, "1990-01-02", *d.Profile.DateOfBirth)
}

func TestKYCAdminService_ListReasonCodes(t *testing.T) {
	svc := NewKYCAdminService(newMemKYCStore(), &stubPresigner{})

	res, err := svc.ListReasonCodes(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
}
