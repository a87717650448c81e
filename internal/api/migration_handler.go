package api

import (
	"fmt"
	"net/http"

	"alcyxob/attachment-offload/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MigrationHandler runs bulk offloads of existing attachments.
type MigrationHandler struct {
	migrator service.BulkMigrator
}

// NewMigrationHandler creates a new MigrationHandler.
func NewMigrationHandler(migrator service.BulkMigrator) *MigrationHandler {
	return &MigrationHandler{migrator: migrator}
}

// MigrationRequest selects attachments by ids or, when none are given, by mimetype.
type MigrationRequest struct {
	Mimetype string   `json:"mimetype"`
	IDs      []string `json:"ids"`
}

func (r MigrationRequest) toService() (service.MigrationRequest, error) {
	out := service.MigrationRequest{Mimetype: r.Mimetype}
	for _, raw := range r.IDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return out, fmt.Errorf("invalid attachment id %q", raw)
		}
		out.IDs = append(out.IDs, id)
	}
	return out, nil
}

func bindMigrationRequest(c *gin.Context) (service.MigrationRequest, bool) {
	var req MigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return service.MigrationRequest{}, false
	}
	out, err := req.toService()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return service.MigrationRequest{}, false
	}
	return out, true
}

// Migrate godoc
// @Summary Upload existing local attachments to the active bucket
// @Tags Storage
// @Accept json
// @Produce json
// @Param selection body MigrationRequest true "Selection"
// @Success 200 {object} service.MigrationReport
// @Failure 400 {object} gin.H
// @Security BearerAuth
// @Router /s3/migrate [post]
func (h *MigrationHandler) Migrate(c *gin.Context) {
	req, ok := bindMigrationRequest(c)
	if !ok {
		return
	}
	report, err := h.migrator.Migrate(c.Request.Context(), req)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Preview reports the size of a selection without uploading it.
func (h *MigrationHandler) Preview(c *gin.Context) {
	req, ok := bindMigrationRequest(c)
	if !ok {
		return
	}
	preview, err := h.migrator.Preview(c.Request.Context(), req)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}
