package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/pkg/errcode"
	"github.com/flockhq/flock/internal/pkg/response"
	"github.com/flockhq/flock/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type documentSearchRequest struct {
	Query    string  `json:"query"`
	OrgID    string  `json:"org_id"`
	TopK     int     `json:"top_k"`
	DocType  string  `json:"doc_type"`
	MinScore float64 `json:"min_score"`
}

func (h *SearchHandler) Documents(c *gin.Context) {
	var req documentSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	if !requireOrg(c, req.OrgID) {
		return
	}
	results, err := h.search.SearchDocuments(c.Request.Context(), req.OrgID, req.Query, req.TopK, req.DocType, req.MinScore)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"results_count": len(results),
		"results":       results,
	})
}

type employeeSearchRequest struct {
	Query string `json:"query"`
	OrgID string `json:"org_id"`
	TopK  int    `json:"top_k"`
}

func (h *SearchHandler) Employees(c *gin.Context) {
	var req employeeSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	if !requireOrg(c, req.OrgID) {
		return
	}
	results, err := h.search.SearchEmployees(c.Request.Context(), req.OrgID, req.Query, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"results_count": len(results),
		"results":       results,
	})
}
