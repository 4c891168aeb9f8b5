package handler

import (
	"github.com/gin-gonic/gin"

	"go-status-hub/internal/application/gateway"
	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/logger"
)

// InitRESTRouter mounts the /api/v1 service and incident routes. Writes
// require a signed-in user.
func InitRESTRouter(logger logger.Logger, gw *gateway.Gateway, identity *auth.Identity, rg *gin.RouterGroup) {
	services := NewServiceHandler(gw, logger)
	incidents := NewIncidentHandler(gw, logger)
	requireUser := identity.RequireUser()

	v1 := rg.Group("/api/v1")

	svc := v1.Group("/services")
	svc.GET("", services.List)
	svc.GET("/:id", services.Get)
	svc.GET("/:id/uptime", services.Uptime)
	svc.POST("", requireUser, services.Create)
	svc.PATCH("/:id", requireUser, services.Update)
	svc.PUT("/:id", requireUser, services.Update)
	svc.DELETE("/:id", requireUser, services.Delete)

	inc := v1.Group("/incidents")
	inc.GET("", incidents.List)
	inc.GET("/:id", incidents.Get)
	inc.POST("", requireUser, incidents.Create)
	inc.PATCH("/:id", requireUser, incidents.Update)
	inc.DELETE("/:id", requireUser, incidents.Delete)
}
