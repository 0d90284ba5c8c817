package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/middleware"
	"korner-support-service/internal/models"
	"korner-support-service/internal/services"
)

type SupportHandler struct {
	service    services.SupportService
	production bool
}

func NewSupportHandler(service services.SupportService, production bool) *SupportHandler {
	return &SupportHandler{service: service, production: production}
}

func (h *SupportHandler) fail(c *gin.Context, err error) {
	respondError(c, err, apierror.SupportServerError, h.production)
}

// @Summary      Типы обращений
// @Tags         Support
// @Produce      json
// @Param        locale  query     string  false  "Локаль"
// @Success      200     {object}  models.SupportTicketTypeListResponse
// @Router       /api/v1/support/ticket-types [get]
func (h *SupportHandler) ListTypes(c *gin.Context) {
	res, err := h.service.ListTypes(c.Request.Context(), c.Query("locale"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Создать обращение
// @Description  Доступно гостям; для гостя обязательны имя и email
// @Tags         Support
// @Accept       json
// @Produce      json
// @Param        ticket  body      models.CreateTicketRequest  true  "Обращение"
// @Success      201     {object}  models.CreateTicketResponse
// @Failure      400     {object}  map[string]interface{}
// @Failure      429     {object}  map[string]interface{}
// @Router       /api/v1/support/tickets [post]
func (h *SupportHandler) Create(c *gin.Context) {
	var req models.CreateTicketRequest
	if !bindJSON(c, &req, apierror.SupportValidationError) {
		return
	}
	res, err := h.service.Create(c.Request.Context(), middleware.UserIDPtr(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary      Список обращений
// @Tags         Support Admin
// @Produce      json
// @Security     BearerAuth
// @Param        type             query     string  false  "Код типа"
// @Param        status           query     string  false  "Статус"
// @Param        dateFrom         query     string  false  "С даты (YYYY-MM-DD или RFC3339)"
// @Param        dateTo           query     string  false  "По дату"
// @Param        requesterUserId  query     string  false  "ID пользователя"
// @Param        page             query     int     false  "Страница"
// @Param        pageSize         query     int     false  "Размер страницы"
// @Success      200              {object}  models.TicketListResponse
// @Failure      400              {object}  map[string]interface{}
// @Router       /api/v1/support/admin/tickets [get]
func (h *SupportHandler) List(c *gin.Context) {
	var q models.TicketListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apierror.WithFields(apierror.SupportValidationError, "Invalid query parameters",
			apierror.FieldError{Field: "query", Message: err.Error()}))
		return
	}
	res, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Детали обращения
// @Tags         Support Admin
// @Produce      json
// @Security     BearerAuth
// @Param        ticketId  path      string  true  "ID обращения (tck_123)"
// @Success      200       {object}  models.TicketDetails
// @Failure      404       {object}  map[string]interface{}
// @Router       /api/v1/support/admin/tickets/{ticketId} [get]
func (h *SupportHandler) GetDetails(c *gin.Context) {
	res, err := h.service.GetDetails(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Смена статуса обращения
// @Tags         Support Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        ticketId  path      string                            true  "ID обращения"
// @Param        status    body      models.UpdateTicketStatusRequest  true  "Новый статус"
// @Success      200       {object}  models.UpdateTicketStatusResponse
// @Failure      400       {object}  map[string]interface{}
// @Failure      404       {object}  map[string]interface{}
// @Router       /api/v1/support/admin/tickets/{ticketId}/status [patch]
func (h *SupportHandler) UpdateStatus(c *gin.Context) {
	adminID, ok := requireUser(c, apierror.SupportUnauthorized)
	if !ok {
		return
	}
	var req models.UpdateTicketStatusRequest
	if !bindJSON(c, &req, apierror.SupportValidationError) {
		return
	}
	res, err := h.service.UpdateStatus(c.Request.Context(), adminID, c.Param("ticketId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
