package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mathscrap/mathscrap-backend/internal/apperr"
	"github.com/mathscrap/mathscrap-backend/internal/services"
)

type UploadHandler struct {
	svc services.PipelineService
}

func NewUploadHandler(svc services.PipelineService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// POST /upload
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	var tags []string
	if raw := strings.TrimSpace(c.PostForm("tags")); raw != "" {
		tags = strings.Split(raw, ",")
	}

	uploads := make([]services.ImageUpload, 0, len(files))
	for i, fh := range files {
		contentType := fh.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file " + fh.Filename + " is not an image"})
			return
		}

		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file " + fh.Filename})
			return
		}

		tag := ""
		if i < len(tags) {
			tag = strings.TrimSpace(tags[i])
		}
		uploads = append(uploads, services.ImageUpload{
			Name:        fh.Filename,
			ContentType: contentType,
			Tag:         tag,
			Data:        data,
		})
	}

	job, err := h.svc.Submit(c.Request.Context(), uploads)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":  job.ID.String(),
		"message": "Upload successful, processing started",
	})
}
