package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/models"
	"korner-support-service/internal/services"
)

type KYCAdminHandler struct {
	service    services.KYCAdminService
	production bool
}

func NewKYCAdminHandler(service services.KYCAdminService, production bool) *KYCAdminHandler {
	return &KYCAdminHandler{service: service, production: production}
}

func (h *KYCAdminHandler) fail(c *gin.Context, err error) {
	respondError(c, err, apierror.KYCServerError, h.production)
}

// @Summary      Список заявок KYC
// @Tags         KYC Admin
// @Produce      json
// @Security     BearerAuth
// @Param        status         query     string  false  "Статус заявки"
// @Param        country        query     string  false  "Страна проживания"
// @Param        attemptNumber  query     int     false  "Номер попытки"
// @Param        limit          query     int     false  "Размер страницы (1..100)"
// @Param        cursor         query     string  false  "Курсор следующей страницы"
// @Success      200            {object}  models.KYCApplicationListResponse
// @Failure      403            {object}  map[string]interface{}
// @Router       /api/v1/admin/kyc/applications [get]
func (h *KYCAdminHandler) ListApplications(c *gin.Context) {
	filter := models.KYCApplicationFilter{
		Status:        c.Query("status"),
		Country:       c.Query("country"),
		AttemptNumber: queryInt(c, "attemptNumber"),
		Limit:         queryInt(c, "limit"),
		Cursor:        c.Query("cursor"),
	}
	res, err := h.service.ListApplications(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Детали заявки KYC
// @Tags         KYC Admin
// @Produce      json
// @Security     BearerAuth
// @Param        kycId  path      string  true  "ID заявки (kyc_123)"
// @Success      200    {object}  models.KYCApplicationDetails
// @Failure      404    {object}  map[string]interface{}
// @Router       /api/v1/admin/kyc/applications/{kycId} [get]
func (h *KYCAdminHandler) GetApplicationDetails(c *gin.Context) {
	res, err := h.service.GetApplicationDetails(c.Request.Context(), c.Param("kycId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Решение по заявке
// @Tags         KYC Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        kycId     path      string                     true  "ID заявки"
// @Param        decision  body      models.KYCDecisionRequest  true  "approve или reject"
// @Success      200       {object}  models.KYCActionResponse
// @Failure      400       {object}  map[string]interface{}
// @Router       /api/v1/admin/kyc/applications/{kycId}/decision [post]
func (h *KYCAdminHandler) Decide(c *gin.Context) {
	adminID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	var req models.KYCDecisionRequest
	if !bindJSON(c, &req, apierror.KYCValidationError) {
		return
	}
	res, err := h.service.Decide(c.Request.Context(), adminID, c.Param("kycId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Отзыв верификации
// @Tags         KYC Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string                   true  "ID пользователя (u_123)"
// @Param        revoke  body      models.KYCRevokeRequest  true  "Причины отзыва"
// @Success      200     {object}  models.KYCActionResponse
// @Failure      400     {object}  map[string]interface{}
// @Router       /api/v1/admin/kyc/users/{userId}/revoke [post]
func (h *KYCAdminHandler) Revoke(c *gin.Context) {
	adminID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	var req models.KYCRevokeRequest
	if !bindJSON(c, &req, apierror.KYCValidationError) {
		return
	}
	res, err := h.service.Revoke(c.Request.Context(), adminID, c.Param("userId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Справочник причин отказа
// @Tags         KYC Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.KYCReasonCodeListResponse
// @Router       /api/v1/admin/kyc/reason-codes [get]
func (h *KYCAdminHandler) ListReasonCodes(c *gin.Context) {
	res, err := h.service.ListReasonCodes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
