package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-status-hub/internal/application/gateway"
	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/logger"
)

const defaultUptimeDays = 30

type ServiceHandler struct {
	gateway *gateway.Gateway
	logger  logger.Logger
}

type CreateServiceRequest struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Status         domain.ServiceStatus `json:"status"`
	OrganizationID string               `json:"organizationId"`
}

func NewServiceHandler(gw *gateway.Gateway, logger logger.Logger) *ServiceHandler {
	return &ServiceHandler{
		gateway: gw,
		logger:  logger.WithField("handler", "services"),
	}
}

func (h *ServiceHandler) List(c *gin.Context) {
	services, err := h.gateway.ListServices(c.Request.Context())
	if err != nil {
		writeGatewayError(c, h.logger, "Service", err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *ServiceHandler) Get(c *gin.Context) {
	svc, err := h.gateway.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeGatewayError(c, h.logger, "Service", err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *ServiceHandler) Uptime(c *gin.Context) {
	days := defaultUptimeDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	uptime, err := h.gateway.ServiceUptime(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		writeGatewayError(c, h.logger, "Service", err)
		return
	}
	c.JSON(http.StatusOK, uptime)
}

func (h *ServiceHandler) Create(c *gin.Context) {
	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debugf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	svc, err := h.gateway.CreateService(c.Request.Context(), auth.UserID(c), domain.Service{
		Name:           req.Name,
		Description:    req.Description,
		Status:         req.Status,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		writeGatewayError(c, h.logger, "Service", err)
		return
	}
	h.logger.Infof("Service %s created by %s", svc.ID, svc.CreatedBy)
	c.JSON(http.StatusCreated, svc)
}

// Update serves both PATCH and PUT; absent fields are left untouched.
func (h *ServiceHandler) Update(c *gin.Context) {
	var patch domain.ServicePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Debugf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	svc, err := h.gateway.ApplyServiceChange(c.Request.Context(), auth.UserID(c), c.Param("id"), patch)
	if err != nil {
		writeGatewayError(c, h.logger, "Service", err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *ServiceHandler) Delete(c *gin.Context) {
	if _, err := h.gateway.DeleteService(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		writeGatewayError(c, h.logger, "Service", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Service deleted successfully"})
}
