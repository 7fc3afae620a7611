// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps an error's kind to a status. Store failures are
// attached to the context for the logging middleware and answered opaquely.
func writeServiceError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeError(c, http.StatusBadRequest, err.Error())
	case apperr.KindNotFound, apperr.KindUnavailable:
		writeError(c, http.StatusNotFound, err.Error())
	case apperr.KindConflict:
		writeError(c, http.StatusConflict, err.Error())
	case apperr.KindTimeout:
		_ = c.Error(err)
		writeError(c, http.StatusServiceUnavailable, apperr.ErrLockTimeout.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// forbidden reports whether an authenticated caller is acting for someone
// else. With auth disabled there is no caller and nothing is forbidden.
func forbidden(c *gin.Context, callerUID, subject string) bool {
	if callerUID == "" || callerUID == subject {
		return false
	}
	writeError(c, http.StatusForbidden, "forbidden")
	return true
}
