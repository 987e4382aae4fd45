package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verida/notification-server/pkg/errors"
)

// Pinger wakes the devices registered for a pair.
type Pinger interface {
	Ping(ctx context.Context, did, appContext string) error
}

type pingRequest struct {
	Data struct {
		DID     string `json:"did"`
		Context string `json:"context"`
	} `json:"data"`
}

// PingHandler handles the ping endpoint.
type PingHandler struct {
	relay Pinger
}

// NewPingHandler creates a new ping handler.
func NewPingHandler(relay Pinger) *PingHandler {
	return &PingHandler{relay: relay}
}

// Ping asks every device registered for the DID and context to refresh.
// The response is identical whether or not any device exists.
// POST /ping, GET /ping
func (h *PingHandler) Ping(c *gin.Context) {
	var req pingRequest
	_ = c.ShouldBindJSON(&req)
	if req.Data.DID == "" {
		req.Data.DID = c.Query("did")
	}
	if req.Data.Context == "" {
		req.Data.Context = c.Query("context")
	}

	if err := h.relay.Ping(c.Request.Context(), req.Data.DID, req.Data.Context); err != nil {
		var verr *errors.ValidationError
		if errors.As(err, &verr) {
			fail(c, http.StatusBadRequest, verr.Message)
			return
		}
		_ = c.Error(err)
	}

	success(c, gin.H{"did": req.Data.DID})
}
