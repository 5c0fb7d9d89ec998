// README: Edit-lease handlers; acquire, heartbeat, and release on sessions.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gatehouse/internal/http/middleware"
	"gatehouse/internal/modules/lock"
	"gatehouse/internal/types"
)

type LockHandler struct {
	locks *lock.Coordinator
}

func NewLockHandler(locks *lock.Coordinator) *LockHandler {
	return &LockHandler{locks: locks}
}

type leaseView struct {
	SessionID types.ID `json:"session_id"`
	OwnerID   string   `json:"owner_id"`
	OwnerName string   `json:"owner_name"`
	ExpiresAt string   `json:"expires_at"`
}

func leaseOf(sessionID types.ID, l *lock.Lease) leaseView {
	return leaseView{
		SessionID: sessionID,
		OwnerID:   l.OwnerID,
		OwnerName: l.OwnerName,
		ExpiresAt: l.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Acquire grants the edit lease, or reports the current holder on 423 so the
// admin UI can show who is editing.
func (h *LockHandler) Acquire(c *gin.Context) {
	id := types.ID(c.Param("id"))
	ownerID := c.GetString(middleware.OperatorIDKey)
	ownerName := c.GetString(middleware.OperatorNameKey)

	lease, err := h.locks.Acquire(c.Request.Context(), lock.SessionKey(id), ownerID, ownerName)
	if errors.Is(err, lock.ErrLeaseHeld) {
		body := gin.H{"error": "session is being edited"}
		if lease != nil {
			body["holder"] = leaseOf(id, lease)
		}
		writeJSON(c, http.StatusLocked, body)
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, leaseOf(id, lease))
}

func (h *LockHandler) Extend(c *gin.Context) {
	id := types.ID(c.Param("id"))
	ownerID := c.GetString(middleware.OperatorIDKey)

	lease, err := h.locks.Extend(c.Request.Context(), lock.SessionKey(id), ownerID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, leaseOf(id, lease))
}

func (h *LockHandler) Release(c *gin.Context) {
	id := types.ID(c.Param("id"))
	ownerID := c.GetString(middleware.OperatorIDKey)

	if err := h.locks.Release(c.Request.Context(), lock.SessionKey(id), ownerID); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session_id": id, "released": true})
}
