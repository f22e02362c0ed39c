package handler

import (
	"github.com/gin-gonic/gin"

	"waste-portal/config"
	"waste-portal/internal/metrics"
	"waste-portal/internal/middleware"
	"waste-portal/internal/session"
	"waste-portal/internal/workspace"
)

type RouterDeps struct {
	Store     session.TokenStore
	Parser    *session.Parser
	Session   config.SessionConfig
	Workspace *workspace.Registry
	// Outbox is nil when domain events are disabled.
	Outbox    OutboxStats
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), metrics.Middleware())

	r.GET("/health", Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Outbox != nil {
		r.GET("/admin/outbox/stats", OutboxStatsHandler(deps.Outbox))
	}

	oauthHandler := NewOAuthHandler(deps.Store, deps.Workspace, deps.Session.LoginRedirect)
	scheduleHandler := NewScheduleHandler(deps.Workspace)
	paymentHandler := NewPaymentHandler(deps.Workspace)

	app := r.Group("/", middleware.Session(deps.Store, deps.Parser, deps.Session))
	{
		app.GET("/oauth/success", oauthHandler.Success)
		app.POST("/logout", oauthHandler.Logout)
	}

	schedules := app.Group("/schedules")
	{
		schedules.GET("/new", scheduleHandler.GetCreateForm)
		schedules.PATCH("/new", scheduleHandler.ChangeCreateForm)
		schedules.POST("/new", scheduleHandler.SubmitCreateForm)
		schedules.GET("/:id/edit", scheduleHandler.GetEditForm)
		schedules.PATCH("/:id/edit", scheduleHandler.ChangeEditForm)
		schedules.POST("/:id/edit", scheduleHandler.SubmitEditForm)
	}

	payments := app.Group("/admin/payments")
	{
		payments.GET("", paymentHandler.List)
		payments.POST("", paymentHandler.Create)
		payments.GET("/export", paymentHandler.Export)
		payments.GET("/users/:userId/history", paymentHandler.History)
		payments.PUT("/:id", paymentHandler.Update)
		payments.DELETE("/:id", paymentHandler.Delete)
	}

	return r
}
