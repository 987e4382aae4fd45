package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/verida/notification-server/internal/interfaces/http/middleware"
)

// DeviceRegistry is the registry surface the device endpoints need.
type DeviceRegistry interface {
	Register(ctx context.Context, did, appContext, token string) error
	Unregister(ctx context.Context, did, appContext, token string) (bool, error)
}

type deviceRequest struct {
	Data struct {
		DID      string `json:"did"`
		Context  string `json:"context"`
		DeviceID string `json:"deviceId"`
	} `json:"data"`
}

// DeviceHandler handles device registration endpoints.
type DeviceHandler struct {
	registry DeviceRegistry
}

// NewDeviceHandler creates a new device handler.
func NewDeviceHandler(registry DeviceRegistry) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

// Register adds a device token for the authenticated DID and context.
// POST /register
func (h *DeviceHandler) Register(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	err := h.registry.Register(c.Request.Context(), req.Data.DID, req.Data.Context, req.Data.DeviceID)
	if err != nil {
		handleRegistryError(c, err, "Unable to save DID / Device lookup")
		return
	}

	success(c, gin.H{
		"did":      req.Data.DID,
		"context":  req.Data.Context,
		"deviceId": req.Data.DeviceID,
	})
}

// Unregister removes a device token for the authenticated DID and context.
// POST /unregister
func (h *DeviceHandler) Unregister(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	removed, err := h.registry.Unregister(c.Request.Context(), req.Data.DID, req.Data.Context, req.Data.DeviceID)
	if err != nil {
		handleRegistryError(c, err, "Unable to remove DID / Device lookup")
		return
	}

	success(c, gin.H{
		"did":      req.Data.DID,
		"context":  req.Data.Context,
		"deviceId": req.Data.DeviceID,
		"removed":  removed,
	})
}

// bind decodes the body and checks it names the authenticated identity.
// A malformed body decodes as empty and is rejected by field validation.
func (h *DeviceHandler) bind(c *gin.Context) (deviceRequest, bool) {
	var req deviceRequest
	_ = c.ShouldBindJSON(&req)

	did, appContext, authenticated := middleware.GetIdentity(c)
	if !authenticated || req.Data.DID == "" || req.Data.Context == "" {
		return req, true
	}

	if strings.ToLower(req.Data.DID) != did || req.Data.Context != appContext {
		fail(c, http.StatusForbidden, "Credentials do not match the requested DID and context")
		return req, false
	}
	return req, true
}
