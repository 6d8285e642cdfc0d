package main

import (
	"net/http"

	"protocolo-municipal/internal/app"
	"protocolo-municipal/internal/httpapi"
	"protocolo-municipal/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app.App, authMW gin.HandlerFunc) {
	h := httpapi.Handlers{
		Auth:     a.Auth,
		Users:    a.Users,
		Records:  a.Records,
		Audit:    a.Audit,
		SLA:      a.SLA,
		Workflow: a.Workflow,
		Inbox:    a.Inbox,
		Prefs:    a.Prefs,
		Notifier: a.Notifier,
		Calendar: a.Calendar,
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := a.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/v1/auth/refresh", h.Refresh)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireUser(), httpapi.RequestInfo())
	{
		v1.GET("/me", h.Me)

		gestor := rbac.RequireAnyRole(rbac.RoleGestor)
		reports := rbac.RequireAnyRole(rbac.RoleGestor, rbac.RoleAuditor)

		protocolos := v1.Group("/protocolos")
		{
			protocolos.POST("", h.CreateRecord)
			protocolos.GET("/:id", h.GetRecord)
			protocolos.PUT("/:id", h.UpdateRecord)
			protocolos.DELETE("/:id", gestor, h.DeleteRecord)
			protocolos.POST("/:id/movimentar", h.MoveRecord)
			protocolos.GET("/:id/prazo", h.GetDeadline)
			protocolos.GET("/:id/auditoria", reports, h.RecordAudit)
			protocolos.POST("/:id/aprovacao", h.OpenWorkflow)
		}

		workflows := v1.Group("/workflows")
		{
			workflows.GET("/pendentes", h.PendingApprovals)
			workflows.GET("/:wid", h.GetWorkflow)
			workflows.POST("/:wid/aprovar", h.Approve)
			workflows.POST("/:wid/rejeitar", h.Reject)
			workflows.POST("/:wid/cancelar", gestor, h.CancelWorkflow)
		}

		notificacoes := v1.Group("/notificacoes")
		{
			notificacoes.GET("", h.ListNotifications)
			notificacoes.GET("/nao-lidas", h.UnreadNotifications)
			notificacoes.POST("/lidas", h.MarkAllNotificationsRead)
			notificacoes.POST("/:nid/lida", h.MarkNotificationRead)
			notificacoes.GET("/preferencias", h.GetNotificationPreferences)
			notificacoes.PUT("/preferencias", h.UpdateNotificationPreferences)
		}

		// ADMIN routes
		// Admin passes every role guard.
		admin := v1.Group("/admin")
		{
			admin.GET("/auditoria/relatorio", reports, h.AuditReport)
			admin.GET("/auditoria/usuarios/:uid", reports, h.UserAudit)
			admin.POST("/auditoria/limpeza", gestor, h.AuditCleanup)
			admin.GET("/prazos/relatorio", reports, h.SLAReport)
			admin.POST("/prazos/verificar", gestor, h.SLASweep)
		}
	}
}
