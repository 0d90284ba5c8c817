package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/models"
	"korner-support-service/internal/services"
)

type KYCHandler struct {
	service    services.KYCService
	production bool
}

func NewKYCHandler(service services.KYCService, production bool) *KYCHandler {
	return &KYCHandler{service: service, production: production}
}

func (h *KYCHandler) fail(c *gin.Context, err error) {
	respondError(c, err, apierror.KYCServerError, h.production)
}

// @Summary      Статус верификации
// @Description  Текущий статус KYC пользователя, попытки и требования
// @Tags         KYC
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.KYCStatusResponse
// @Failure      401  {object}  map[string]interface{}
// @Router       /api/v1/kyc/status [get]
func (h *KYCHandler) GetStatus(c *gin.Context) {
	userID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	res, err := h.service.GetStatus(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Анкета KYC
// @Description  Создаёт или обновляет черновик заявки
// @Tags         KYC
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        profile  body      models.KYCProfileRequest  true  "Данные анкеты"
// @Success      200      {object}  models.KYCProfileResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      423      {object}  map[string]interface{}
// @Router       /api/v1/kyc/profile [put]
func (h *KYCHandler) UpsertProfile(c *gin.Context) {
	userID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	var req models.KYCProfileRequest
	if !bindJSON(c, &req, apierror.KYCValidationError) {
		return
	}
	res, err := h.service.UpsertProfile(c.Request.Context(), userID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Загрузка документа
// @Description  Регистрирует файл и возвращает presigned URL для PUT в S3
// @Tags         KYC
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        file  body      models.KYCFileInitRequest  true  "Метаданные файла"
// @Success      200   {object}  models.KYCFileInitResponse
// @Failure      400   {object}  map[string]interface{}
// @Router       /api/v1/kyc/files/init [post]
func (h *KYCHandler) InitFileUpload(c *gin.Context) {
	userID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	var req models.KYCFileInitRequest
	if !bindJSON(c, &req, apierror.KYCValidationError) {
		return
	}
	res, err := h.service.InitFileUpload(c.Request.Context(), userID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Подтверждение загрузки
// @Tags         KYC
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        file  body      models.KYCFileConfirmRequest  true  "ID файла"
// @Success      200   {object}  models.KYCActionResponse
// @Failure      404   {object}  map[string]interface{}
// @Router       /api/v1/kyc/files/confirm [post]
func (h *KYCHandler) ConfirmFileUpload(c *gin.Context) {
	userID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	var req models.KYCFileConfirmRequest
	if !bindJSON(c, &req, apierror.KYCValidationError) {
		return
	}
	res, err := h.service.ConfirmFileUpload(c.Request.Context(), userID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Привязка файлов к заявке
// @Tags         KYC
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        files  body      models.KYCAttachFilesRequest  true  "Файлы по слотам"
// @Success      200    {object}  models.KYCActionResponse
// @Failure      400    {object}  map[string]interface{}
// @Router       /api/v1/kyc/files [put]
func (h *KYCHandler) AttachFiles(c *gin.Context) {
	userID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	var req models.KYCAttachFilesRequest
	if !bindJSON(c, &req, apierror.KYCValidationError) {
		return
	}
	res, err := h.service.AttachFiles(c.Request.Context(), userID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Отправка заявки на проверку
// @Tags         KYC
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.KYCSubmitResponse
// @Failure      400  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Failure      423  {object}  map[string]interface{}
// @Router       /api/v1/kyc/submit [post]
func (h *KYCHandler) Submit(c *gin.Context) {
	userID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	res, err := h.service.Submit(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Последнее решение по KYC
// @Tags         KYC
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.KYCLatestDecisionResponse
// @Router       /api/v1/kyc/decisions/latest [get]
func (h *KYCHandler) GetLatestDecision(c *gin.Context) {
	userID, ok := requireUser(c, apierror.KYCUnauthorized)
	if !ok {
		return
	}
	res, err := h.service.GetLatestDecision(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
