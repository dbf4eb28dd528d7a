package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadLimit caps the request body before multipart parsing buffers it.
// The per-file limit is enforced again in the service; this is the outer
// guard against oversized requests as a whole.
func UploadLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
