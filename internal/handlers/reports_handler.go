package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/middleware"
	"korner-support-service/internal/models"
	"korner-support-service/internal/services"
)

type ReportHandler struct {
	Service    services.ReportService
	production bool
}

func NewReportHandler(service services.ReportService, production bool) *ReportHandler {
	return &ReportHandler{Service: service, production: production}
}

// @Summary      Типы жалоб
// @Tags         Reports
// @Produce      json
// @Param        locale  query     string  false  "Локаль (en, ru, en-US)"
// @Success      200     {object}  models.ReportTypeListResponse
// @Failure      400     {object}  map[string]interface{}
// @Router       /api/reports/types [get]
func (h *ReportHandler) ListTypes(c *gin.Context) {
	data, err := h.Service.ListTypes(c.Request.Context(), c.Query("locale"))
	if err != nil {
		respondError(c, err, apierror.ReportsServerError, h.production)
		return
	}
	c.JSON(http.StatusOK, data)
}

// @Summary      Отправить жалобу
// @Tags         Reports
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        report  body      models.CreateReportRequest  true  "Жалоба"
// @Success      201     {object}  models.CreateReportResponse
// @Failure      400     {object}  map[string]interface{}
// @Failure      401     {object}  map[string]interface{}
// @Failure      429     {object}  map[string]interface{}
// @Router       /api/reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var req models.CreateReportRequest
	if !bindJSON(c, &req, apierror.ReportsValidationError) {
		return
	}
	// userId проверяет сервис: без него REPORTS_UNAUTHORIZED
	res, err := h.Service.Create(c.Request.Context(), middleware.UserIDPtr(c), req)
	if err != nil {
		respondError(c, err, apierror.ReportsServerError, h.production)
		return
	}
	c.JSON(http.StatusCreated, res)
}
