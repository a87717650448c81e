package api

import (
	"fmt"
	"net/http"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/service"

	"github.com/gin-gonic/gin"
)

// ConfigHandler manages remote storage configurations.
type ConfigHandler struct {
	registry service.ConfigRegistry
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(registry service.ConfigRegistry) *ConfigHandler {
	return &ConfigHandler{registry: registry}
}

// RemoteConfigRequest is accepted on create and update. SecretKey may be
// left empty on update to keep the stored secret.
type RemoteConfigRequest struct {
	Name      string `json:"name" binding:"required"`
	AccessKey string `json:"access_key" binding:"required"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket" binding:"required"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Active    bool   `json:"active"`
}

// RemoteConfigResponse never carries the secret key.
type RemoteConfigResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AccessKey string    `json:"access_key"`
	HasSecret bool      `json:"has_secret"`
	Bucket    string    `json:"bucket"`
	Region    string    `json:"region"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r RemoteConfigRequest) toInput() service.RemoteConfigInput {
	return service.RemoteConfigInput{
		Name:      r.Name,
		AccessKey: r.AccessKey,
		SecretKey: r.SecretKey,
		Bucket:    r.Bucket,
		Region:    r.Region,
		Endpoint:  r.Endpoint,
		Active:    r.Active,
	}
}

// CreateConfig godoc
// @Summary Create a remote storage configuration
// @Tags RemoteConfigs
// @Accept json
// @Produce json
// @Param config body RemoteConfigRequest true "Configuration"
// @Success 201 {object} RemoteConfigResponse
// @Failure 400 {object} gin.H
// @Failure 409 {object} gin.H
// @Security BearerAuth
// @Router /remote-configs [post]
func (h *ConfigHandler) CreateConfig(c *gin.Context) {
	var req RemoteConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	cfg, err := h.registry.Create(c.Request.Context(), req.toInput())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapRemoteConfigToResponse(cfg))
}

// ListConfigs godoc
// @Summary List remote storage configurations
// @Tags RemoteConfigs
// @Produce json
// @Success 200 {array} RemoteConfigResponse
// @Security BearerAuth
// @Router /remote-configs [get]
func (h *ConfigHandler) ListConfigs(c *gin.Context) {
	configs, err := h.registry.List(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	resp := make([]RemoteConfigResponse, 0, len(configs))
	for i := range configs {
		resp = append(resp, MapRemoteConfigToResponse(&configs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ConfigHandler) GetConfig(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	cfg, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapRemoteConfigToResponse(cfg))
}

func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	var req RemoteConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	cfg, err := h.registry.Update(c.Request.Context(), id, req.toInput())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapRemoteConfigToResponse(cfg))
}

func (h *ConfigHandler) DeleteConfig(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.registry.Delete(c.Request.Context(), id); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ActivateConfig godoc
// @Summary Make a configuration the only active one
// @Tags RemoteConfigs
// @Produce json
// @Param id path string true "Config ID"
// @Success 200 {object} RemoteConfigResponse
// @Failure 404 {object} gin.H
// @Security BearerAuth
// @Router /remote-configs/{id}/activate [post]
func (h *ConfigHandler) ActivateConfig(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	cfg, err := h.registry.Activate(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapRemoteConfigToResponse(cfg))
}

// TestConfig godoc
// @Summary Test connectivity of a configuration
// @Description Remote failures are reported in the body with success=false.
// @Tags RemoteConfigs
// @Produce json
// @Param id path string true "Config ID"
// @Success 200 {object} service.TestResult
// @Security BearerAuth
// @Router /remote-configs/{id}/test [post]
func (h *ConfigHandler) TestConfig(c *gin.Context) {
	id, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}
	result, err := h.registry.TestConnection(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MapRemoteConfigToResponse converts a RemoteConfig to its DTO.
func MapRemoteConfigToResponse(cfg *domain.RemoteConfig) RemoteConfigResponse {
	if cfg == nil {
		return RemoteConfigResponse{}
	}
	return RemoteConfigResponse{
		ID:        cfg.ID.Hex(),
		Name:      cfg.Name,
		AccessKey: cfg.AccessKey,
		HasSecret: cfg.SecretKey != "",
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		Active:    cfg.Active,
		CreatedAt: cfg.CreatedAt,
		UpdatedAt: cfg.UpdatedAt,
	}
}
