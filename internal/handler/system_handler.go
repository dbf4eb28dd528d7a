package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/pkg/response"
	"github.com/flockhq/flock/internal/service"
)

type SystemHandler struct {
	system *service.SystemService
}

func NewSystemHandler(system *service.SystemService) *SystemHandler {
	return &SystemHandler{system: system}
}

// Health is unauthenticated; it reports raw JSON (not the response
// envelope) so load balancers can read the status field directly.
func (h *SystemHandler) Health(c *gin.Context) {
	report := h.system.Health(c.Request.Context())
	status := http.StatusOK
	if report.Status == service.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *SystemHandler) Status(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	status, err := h.system.Status(c.Request.Context(), orgID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, status)
}
