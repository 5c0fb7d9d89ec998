// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gatehouse/internal/http/middleware"
	"gatehouse/internal/modules/lock"
	"gatehouse/internal/modules/membership"
	"gatehouse/internal/modules/policy"
	"gatehouse/internal/modules/session"
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

func writeServiceError(c *gin.Context, err error) {
	var blocked *session.EntryBlockedError
	switch {
	case errors.As(err, &blocked):
		writeJSON(c, http.StatusForbidden, gin.H{"error": "entry blocked", "message": blocked.Message})
	case errors.Is(err, session.ErrBadRequest), errors.Is(err, membership.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, policy.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionLocked), errors.Is(err, lock.ErrLeaseHeld):
		writeError(c, http.StatusLocked, err.Error())
	case errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrConflict),
		errors.Is(err, membership.ErrOverlap),
		errors.Is(err, lock.ErrLeaseExpired),
		errors.Is(err, lock.ErrNotOwner):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNoFeePolicy), errors.Is(err, membership.ErrNoPolicy):
		// Configuration fault: the operator must fix the policy set.
		writeError(c, http.StatusInternalServerError, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// operatorFrom reads the identity the auth middleware attached, nil when the
// request came in on an unauthenticated (device) route.
func operatorFrom(c *gin.Context) *session.Operator {
	id := c.GetString(middleware.OperatorIDKey)
	if id == "" {
		return nil
	}
	return &session.Operator{ID: id, Name: c.GetString(middleware.OperatorNameKey)}
}

func parseTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
