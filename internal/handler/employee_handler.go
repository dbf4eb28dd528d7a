package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/errcode"
	"github.com/flockhq/flock/internal/pkg/response"
	"github.com/flockhq/flock/internal/service"
)

type EmployeeHandler struct {
	employees *service.EmployeeService
}

func NewEmployeeHandler(employees *service.EmployeeService) *EmployeeHandler {
	return &EmployeeHandler{employees: employees}
}

type generateEmbeddingRequest struct {
	OrgID   string                 `json:"org_id"`
	UserID  string                 `json:"user_id"`
	Profile *model.EmployeeProfile `json:"profile"`
}

func (h *EmployeeHandler) GenerateEmbedding(c *gin.Context) {
	var req generateEmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	if !requireOrg(c, req.OrgID) {
		return
	}
	taskID, err := h.employees.GenerateEmbedding(c.Request.Context(), req.OrgID, getUserID(c), req.UserID, isOrgAdmin(c, req.OrgID), req.Profile)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"task_id": taskID})
}
