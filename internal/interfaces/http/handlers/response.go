package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verida/notification-server/pkg/errors"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// success writes {"status":"success","data":data}.
func success(c *gin.Context, data gin.H) {
	c.JSON(http.StatusOK, gin.H{
		"status": StatusSuccess,
		"data":   data,
	})
}

// fail writes {"status":"fail","message":message}.
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"status":  StatusFail,
		"message": message,
	})
}

// handleRegistryError converts registry errors to HTTP responses. storeMessage
// is shown for store failures; the underlying cause is only logged.
func handleRegistryError(c *gin.Context, err error, storeMessage string) {
	var verr *errors.ValidationError
	switch {
	case errors.As(err, &verr):
		fail(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, errors.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, errors.ErrConcurrencyConflict):
		fail(c, http.StatusConflict, "Too many concurrent updates, please retry")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, storeMessage)
	}
}
