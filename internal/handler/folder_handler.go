package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/pkg/response"
	"github.com/flockhq/flock/internal/service"
)

type FolderHandler struct {
	folders *service.FolderService
}

func NewFolderHandler(folders *service.FolderService) *FolderHandler {
	return &FolderHandler{folders: folders}
}

// View serves /folders/by-{view}; the facet filter arrives as a query
// parameter named after the view (?team=Engineering and so on).
func (h *FolderHandler) View(view, filterParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Query("org_id")
		if !requireOrg(c, orgID) {
			return
		}
		buckets, err := h.folders.View(c.Request.Context(), orgID, view, c.Query(filterParam))
		if err != nil {
			handleError(c, err)
			return
		}
		response.Success(c, gin.H{"folders": buckets})
	}
}
