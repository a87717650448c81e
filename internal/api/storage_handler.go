package api

import (
	"errors"
	"net/http"
	"strings"

	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/service"
	"alcyxob/attachment-offload/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StorageHandler exposes direct object store access and status.
// The upload and lookup endpoints answer in plain text.
type StorageHandler struct {
	uploadService service.UploadService
	statusService service.StatusService
}

// NewStorageHandler creates a new StorageHandler.
func NewStorageHandler(uploadService service.UploadService, statusService service.StatusService) *StorageHandler {
	return &StorageHandler{uploadService: uploadService, statusService: statusService}
}

// Upload godoc
// @Summary Upload a file to <folder>/<filename> in the active bucket
// @Tags Storage
// @Accept multipart/form-data
// @Produce plain
// @Param file formData file true "Content"
// @Param checksum formData string true "Content checksum"
// @Param filename formData string true "Object file name"
// @Param folder formData string true "Object folder"
// @Success 200 {string} string "Public URL"
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Security BearerAuth
// @Router /s3/upload [post]
func (h *StorageHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.String(http.StatusBadRequest, "Missing parameter: file")
		return
	}
	data, err := readFormFile(c)
	if err != nil {
		c.String(http.StatusBadRequest, "Missing parameter: file")
		return
	}

	req := service.UploadRequest{
		Checksum:    c.PostForm("checksum"),
		Filename:    c.PostForm("filename"),
		Folder:      c.PostForm("folder"),
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}
	if missing := service.MissingUploadFields(req); len(missing) > 0 {
		logging.WithContext(c.Request.Context()).Warn("upload rejected", zap.Strings("missing", missing))
		c.String(http.StatusBadRequest, "Missing parameters: %s", strings.Join(missing, ", "))
		return
	}

	publicURL, err := h.uploadService.UploadDirect(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrNoActiveConfig) {
			c.String(http.StatusInternalServerError, "No active S3 configuration")
			return
		}
		c.String(http.StatusInternalServerError, "Error uploading to S3")
		return
	}
	c.String(http.StatusOK, publicURL)
}

// GetFile redirects to an existing object in the active bucket.
func (h *StorageHandler) GetFile(c *gin.Context) {
	publicURL, err := h.uploadService.LocateObject(c.Request.Context(), c.Query("file_key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidationFailed):
			c.String(http.StatusBadRequest, "Error: Missing parameter: file_key")
		case errors.Is(err, storage.ErrRemoteNotFound):
			c.String(http.StatusNotFound, "Error: File not found in S3.")
		case errors.Is(err, storage.ErrNoActiveConfig):
			c.String(http.StatusInternalServerError, "Error: No active S3 configuration found.")
		default:
			logging.WithContext(c.Request.Context()).Error("object lookup failed", zap.Error(err))
			c.String(http.StatusInternalServerError, "Error retrieving file from S3.")
		}
		return
	}
	c.Redirect(http.StatusFound, publicURL)
}

// Status godoc
// @Summary Remote storage configuration and offload statistics
// @Tags Storage
// @Produce json
// @Success 200 {object} service.StatusReport
// @Security BearerAuth
// @Router /s3/status [get]
func (h *StorageHandler) Status(c *gin.Context) {
	report, err := h.statusService.Status(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
