package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/authz"
	"korner-support-service/internal/config"
	"korner-support-service/internal/handlers"
	"korner-support-service/internal/middleware"
)

type Handlers struct {
	KYC      *handlers.KYCHandler
	KYCAdmin *handlers.KYCAdminHandler
	Reports  *handlers.ReportHandler
	Support  *handlers.SupportHandler
}

func SetupRoutes(
	r *gin.Engine,
	cfg *config.Config,
	h Handlers,
	auth *middleware.Auth,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	// ---- public
	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// общий лимит на создание жалоб и обращений
	limit := middleware.RateLimit(cfg.Server.RateLimit)

	// REPORTS
	reports := r.Group("/api/reports")
	{
		reports.GET("/types", h.Reports.ListTypes)
		reports.POST("", limit, auth.Required(), h.Reports.Create)
	}

	// KYC (user)
	kyc := r.Group("/api/v1/kyc", auth.Required())
	{
		kyc.GET("/status", h.KYC.GetStatus)
		kyc.PUT("/profile", h.KYC.UpsertProfile)
		kyc.POST("/files/init", h.KYC.InitFileUpload)
		kyc.POST("/files/confirm", h.KYC.ConfirmFileUpload)
		kyc.PUT("/files", h.KYC.AttachFiles)
		kyc.POST("/submit", h.KYC.Submit)
		kyc.GET("/decisions/latest", h.KYC.GetLatestDecision)
	}

	// KYC (admin)
	kycAdmin := r.Group("/api/v1/admin/kyc",
		auth.Required(),
		middleware.RequireRoles(apierror.KYCForbidden, authz.Staff...),
	)
	{
		kycAdmin.GET("/applications", h.KYCAdmin.ListApplications)
		kycAdmin.GET("/applications/:kycId", h.KYCAdmin.GetApplicationDetails)
		kycAdmin.POST("/applications/:kycId/decision", h.KYCAdmin.Decide)
		kycAdmin.POST("/users/:userId/revoke", h.KYCAdmin.Revoke)
		kycAdmin.GET("/reason-codes", h.KYCAdmin.ListReasonCodes)
	}

	// SUPPORT
	support := r.Group("/api/v1/support")
	{
		support.GET("/ticket-types", h.Support.ListTypes)
		support.POST("/tickets", limit, auth.Optional(), h.Support.Create)
	}

	supportAdmin := support.Group("/admin",
		auth.Required(),
		middleware.RequireRoles(apierror.SupportForbidden, authz.Staff...),
	)
	{
		supportAdmin.GET("/tickets", h.Support.List)
		supportAdmin.GET("/tickets/:ticketId", h.Support.GetDetails)
		supportAdmin.PATCH("/tickets/:ticketId/status", h.Support.UpdateStatus)
	}

	return r
}
