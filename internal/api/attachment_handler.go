package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxAttachmentSize bounds multipart uploads read into memory.
const maxAttachmentSize = 64 << 20

// AttachmentHandler serves attachment create and read endpoints.
type AttachmentHandler struct {
	attachmentService service.AttachmentService
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(attachmentService service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// AttachmentResponse is the client view of an attachment.
type AttachmentResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Mimetype    string    `json:"mimetype"`
	Size        int64     `json:"size"`
	Type        string    `json:"type"`
	Remote      bool      `json:"remote"`
	RemoteURL   string    `json:"remoteUrl,omitempty"`
	URL         string    `json:"url,omitempty"`
	Placeholder bool      `json:"placeholder"`
	ResModel    string    `json:"resModel,omitempty"`
	ResField    string    `json:"resField,omitempty"`
	ResID       string    `json:"resId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateAttachmentResponse adds the outcome of the create-time upload.
type CreateAttachmentResponse struct {
	Attachment  AttachmentResponse `json:"attachment"`
	UploadState string             `json:"uploadState"`
	SkipReason  string             `json:"skipReason,omitempty"`
	UploadError string             `json:"uploadError,omitempty"`
}

// CreateAttachment godoc
// @Summary Upload a new attachment
// @Description Stores the file and offloads it to the active remote store when possible.
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Attachment content"
// @Param res_model formData string false "Owning model"
// @Param res_field formData string false "Owning field"
// @Param res_id formData string false "Owning record id"
// @Success 201 {object} CreateAttachmentResponse
// @Failure 400 {object} gin.H
// @Security BearerAuth
// @Router /attachments [post]
func (h *AttachmentHandler) CreateAttachment(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Missing parameter: file")
		return
	}
	if fileHeader.Size > maxAttachmentSize {
		abortWithError(c, http.StatusRequestEntityTooLarge, "File exceeds the maximum attachment size")
		return
	}
	data, err := readFormFile(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Could not read file: %v", err))
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fileHeader.Filename
	}
	att, result, err := h.attachmentService.Create(c.Request.Context(), service.CreateAttachmentInput{
		Name:     name,
		Mimetype: fileHeader.Header.Get("Content-Type"),
		ResModel: c.PostForm("res_model"),
		ResField: c.PostForm("res_field"),
		ResID:    c.PostForm("res_id"),
		URL:      c.PostForm("url"),
		Data:     data,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	resp := CreateAttachmentResponse{
		Attachment:  MapAttachmentToResponse(att),
		UploadState: string(result.State),
		SkipReason:  result.SkipReason,
	}
	if result.Err != nil {
		resp.UploadError = result.Err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// GetAttachment godoc
// @Summary Get attachment metadata
// @Tags Attachments
// @Produce json
// @Param id path string true "Attachment ID"
// @Success 200 {object} AttachmentResponse
// @Failure 404 {object} gin.H
// @Security BearerAuth
// @Router /attachments/{id} [get]
func (h *AttachmentHandler) GetAttachment(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	att, err := h.attachmentService.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapAttachmentToResponse(att))
}

// ServeContent answers /web/content/:id with a redirect for offloaded
// attachments and the stored bytes otherwise.
func (h *AttachmentHandler) ServeContent(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	_, decision, err := h.attachmentService.Serve(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if decision.Redirect() {
		c.Redirect(http.StatusFound, decision.RedirectURL)
		return
	}
	writeContent(c, decision.Name, decision.Mimetype, decision.Content)
}

// GetRemoteURL godoc
// @Summary Resolve the remote URL of an attachment
// @Tags Attachments
// @Produce json
// @Param attachment_id query string true "Attachment id or /web/content/<id> URL"
// @Success 200 {object} gin.H
// @Failure 404 {object} gin.H
// @Security BearerAuth
// @Router /attachments/remote-url [get]
func (h *AttachmentHandler) GetRemoteURL(c *gin.Context) {
	ref := c.Query("attachment_id")
	if ref == "" {
		abortWithError(c, http.StatusBadRequest, "Missing parameter: attachment_id")
		return
	}
	remoteURL, err := h.attachmentService.RemoteURL(c.Request.Context(), ref)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": remoteURL})
}

// ProxyContent streams the remote copy of an attachment through the server.
func (h *AttachmentHandler) ProxyContent(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	att, data, err := h.attachmentService.Download(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAttachmentNotFound) || errors.Is(err, service.ErrRemoteURLUnavailable) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		abortWithServiceError(c, err)
		return
	}
	writeContent(c, att.Name, att.Mimetype, data)
}

// MapAttachmentToResponse converts a domain Attachment to its DTO.
func MapAttachmentToResponse(att *domain.Attachment) AttachmentResponse {
	if att == nil {
		return AttachmentResponse{}
	}
	return AttachmentResponse{
		ID:          att.ID.Hex(),
		Name:        att.Name,
		Mimetype:    att.Mimetype,
		Size:        att.Size,
		Type:        string(att.Type),
		Remote:      att.RemoteURL != "",
		RemoteURL:   att.RemoteURL,
		URL:         att.URL,
		Placeholder: att.Placeholder,
		ResModel:    att.ResModel,
		ResField:    att.ResField,
		ResID:       att.ResID,
		CreatedAt:   att.CreatedAt,
	}
}

func readFormFile(c *gin.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func writeContent(c *gin.Context, name, mimetype string, data []byte) {
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	if name != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	}
	c.Data(http.StatusOK, mimetype, data)
}

func parseObjectIDParam(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", param))
		return primitive.NilObjectID, false
	}
	return id, true
}
