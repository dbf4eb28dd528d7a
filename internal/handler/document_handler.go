package handler

import (
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/pkg/response"
	"github.com/flockhq/flock/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	orgID := c.PostForm("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		handleError(c, err)
		return
	}
	headers := form.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, header := range headers {
		files = append(files, uploadFileOf(header))
	}
	result, err := h.documents.Upload(c.Request.Context(), orgID, getUserID(c), files)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func uploadFileOf(header *multipart.FileHeader) service.UploadFile {
	return service.UploadFile{
		Filename:    header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

func (h *DocumentHandler) List(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	docs, err := h.documents.List(c.Request.Context(), orgID)
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]gin.H, 0, len(docs))
	for _, doc := range docs {
		items = append(items, gin.H{
			"id":          doc.ID,
			"filename":    doc.Filename,
			"file_type":   doc.FileType,
			"upload_date": doc.Ctime,
			"status":      doc.Status,
		})
	}
	response.Success(c, items)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	docID, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	detail, err := h.documents.Get(c.Request.Context(), orgID, docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *DocumentHandler) Download(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	docID, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	url, expiresIn, err := h.documents.DownloadURL(c.Request.Context(), orgID, docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"download_url": url, "expires_in": expiresIn})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	docID, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), orgID, docID); err != nil {
		handleError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *DocumentHandler) Classification(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	docID, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	classification, err := h.documents.GetClassification(c.Request.Context(), orgID, docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, classification)
}

func (h *DocumentHandler) Reclassify(c *gin.Context) {
	orgID := c.Query("org_id")
	if orgID == "" {
		var body struct {
			OrgID string `json:"org_id"`
		}
		_ = c.ShouldBindJSON(&body)
		orgID = body.OrgID
	}
	if !requireOrg(c, orgID) {
		return
	}
	docID, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	taskID, err := h.documents.Reclassify(c.Request.Context(), orgID, docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"task_id": taskID})
}
