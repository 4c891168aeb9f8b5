package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-status-hub/internal/application/gateway"
	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/logger"
)

type IncidentHandler struct {
	gateway *gateway.Gateway
	logger  logger.Logger
}

type CreateIncidentRequest struct {
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Status         domain.IncidentStatus   `json:"status"`
	Impact         domain.Impact           `json:"impact"`
	OrganizationID string                  `json:"organizationId"`
	Services       []string                `json:"services"`
	Updates        []domain.IncidentUpdate `json:"updates"`
}

func NewIncidentHandler(gw *gateway.Gateway, logger logger.Logger) *IncidentHandler {
	return &IncidentHandler{
		gateway: gw,
		logger:  logger.WithField("handler", "incidents"),
	}
}

func (h *IncidentHandler) List(c *gin.Context) {
	incidents, err := h.gateway.ListIncidents(c.Request.Context())
	if err != nil {
		writeGatewayError(c, h.logger, "Incident", err)
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (h *IncidentHandler) Get(c *gin.Context) {
	inc, err := h.gateway.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeGatewayError(c, h.logger, "Incident", err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h *IncidentHandler) Create(c *gin.Context) {
	var req CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debugf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	view, err := h.gateway.CreateIncident(c.Request.Context(), auth.UserID(c), domain.Incident{
		Title:          req.Title,
		Description:    req.Description,
		Status:         req.Status,
		Impact:         req.Impact,
		OrganizationID: req.OrganizationID,
		Services:       req.Services,
		Updates:        req.Updates,
	})
	if err != nil {
		writeGatewayError(c, h.logger, "Incident", err)
		return
	}
	h.logger.Infof("Incident %s opened by %s", view.ID, view.CreatedBy)
	c.JSON(http.StatusCreated, view)
}

func (h *IncidentHandler) Update(c *gin.Context) {
	var patch domain.IncidentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Debugf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	view, err := h.gateway.ApplyIncidentChange(c.Request.Context(), auth.UserID(c), c.Param("id"), patch)
	if err != nil {
		writeGatewayError(c, h.logger, "Incident", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *IncidentHandler) Delete(c *gin.Context) {
	if _, err := h.gateway.DeleteIncident(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		writeGatewayError(c, h.logger, "Incident", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Incident deleted successfully"})
}
