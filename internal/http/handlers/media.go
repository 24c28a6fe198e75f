package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/platform/gcp"
)

// MediaHandler serves photos held by the in-memory bucket, used when no
// object storage is configured.
type MediaHandler struct {
	bucket *gcp.MemoryBucketService
}

func NewMediaHandler(bucket *gcp.MemoryBucketService) *MediaHandler {
	return &MediaHandler{bucket: bucket}
}

func (h *MediaHandler) Serve(c *gin.Context) {
	category := gcp.BucketCategory(c.Param("category"))
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		c.Status(http.StatusNotFound)
		return
	}
	r, contentType, ok := h.bucket.Open(category, key)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.DataFromReader(http.StatusOK, -1, contentType, r, nil)
}

