package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/handler"
	"github.com/noah-isme/admissions-api/internal/middleware"
	"github.com/noah-isme/admissions-api/internal/models"
	"github.com/noah-isme/admissions-api/pkg/config"
	"github.com/noah-isme/admissions-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/admissions-api/pkg/middleware/requestid"
)

type routes struct {
	auth        *handler.AuthHandler
	application *handler.ApplicationHandler
	step        *handler.StepHandler
	document    *handler.UserDocumentHandler
	metrics     *handler.MetricsHandler
	tokens      middleware.TokenValidator
	observer    middleware.RequestObserver
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.observer))

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.tokens))
	secured.GET("/auth/me", h.auth.Me)

	secured.POST("/processes/:id/applications", middleware.RequireRoles(models.RoleApplicant), h.application.Apply)

	secured.GET("/applications", h.application.List)

	apps := secured.Group("/applications/:id")
	apps.GET("", h.application.Get)
	apps.POST("/finish", h.application.Finish)
	apps.PATCH("/steps/:step", h.step.Update)
	apps.POST("/steps/:step/finalize", h.step.Finalize)
	apps.GET("/documents/eligible", h.application.EligibleDocuments)
	apps.POST("/documents/upload-url", h.document.RequestUpload)
	apps.POST("/documents", h.document.Create)
	apps.PUT("/documents/:docId", h.document.Update)
	apps.DELETE("/documents/:docId", h.document.Delete)

	secured.GET("/user-documents/:docId/download-url", h.document.DownloadLink)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/applications/sweep", h.application.Sweep)
	admin.POST("/applications/:id/review", h.application.Review)
	admin.POST("/user-documents/:docId/analysis", h.document.Analyse)

	return r
}
