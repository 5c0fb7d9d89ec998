// README: Session handlers for entry, exit, settlement, and admin resolution.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gatehouse/internal/modules/session"
	"gatehouse/internal/types"
)

type SessionHandler struct {
	svc *session.Service
}

func NewSessionHandler(svc *session.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type sessionView struct {
	SessionID        types.ID `json:"session_id"`
	SiteID           types.ID `json:"site_id"`
	CarNumber        string   `json:"car_number"`
	Status           string   `json:"status"`
	EntryTime        string   `json:"entry_time"`
	ExitTime         *string  `json:"exit_time,omitempty"`
	TotalFee         int64    `json:"total_fee"`
	DiscountFee      int64    `json:"discount_fee"`
	PaidFee          int64    `json:"paid_fee"`
	MemberCovered    bool     `json:"member_covered"`
	AppliedDiscounts any      `json:"applied_discounts"`
}

func viewOf(s *session.ParkingSession) sessionView {
	v := sessionView{
		SessionID:        s.ID,
		SiteID:           s.SiteID,
		CarNumber:        s.CarNumber,
		Status:           string(s.Status),
		EntryTime:        s.EntryTime.Format("2006-01-02T15:04:05Z07:00"),
		TotalFee:         s.TotalFee,
		DiscountFee:      s.DiscountFee,
		PaidFee:          s.PaidFee,
		MemberCovered:    s.MemberCovered,
		AppliedDiscounts: s.AppliedDiscounts,
	}
	if s.ExitTime != nil {
		t := s.ExitTime.Format("2006-01-02T15:04:05Z07:00")
		v.ExitTime = &t
	}
	return v
}

type enterReq struct {
	SiteID    string `json:"site_id"`
	ZoneID    string `json:"zone_id"`
	LaneID    string `json:"lane_id"`
	CarNumber string `json:"car_number"`
	EntryTime string `json:"entry_time"` // RFC3339; empty means now
}

func (h *SessionHandler) Enter(c *gin.Context) {
	var req enterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	entryTime, ok := parseTime(req.EntryTime)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid entry_time")
		return
	}
	sess, err := h.svc.Enter(c.Request.Context(), session.EnterCommand{
		SiteID:    types.ID(req.SiteID),
		ZoneID:    req.ZoneID,
		LaneID:    req.LaneID,
		CarNumber: req.CarNumber,
		EntryTime: entryTime,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, viewOf(sess))
}

func (h *SessionHandler) ConfirmEntry(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if err := h.svc.ConfirmEntry(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session_id": id, "status": session.StatusPending})
}

type preSettleReq struct {
	AsOf string `json:"as_of"`
}

func (h *SessionHandler) PreSettle(c *gin.Context) {
	var req preSettleReq
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	asOf, ok := parseTime(req.AsOf)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid as_of")
		return
	}
	sess, err := h.svc.PreSettle(c.Request.Context(), session.PreSettleCommand{
		SessionID: types.ID(c.Param("id")),
		AsOf:      asOf,
		Operator:  operatorFrom(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(sess))
}

type exitReq struct {
	ZoneID   string `json:"zone_id"`
	LaneID   string `json:"lane_id"`
	ExitTime string `json:"exit_time"`
}

func (h *SessionHandler) Exit(c *gin.Context) {
	var req exitReq
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	exitTime, ok := parseTime(req.ExitTime)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid exit_time")
		return
	}
	sess, err := h.svc.ComputeExit(c.Request.Context(), session.ExitCommand{
		SessionID: types.ID(c.Param("id")),
		ZoneID:    req.ZoneID,
		LaneID:    req.LaneID,
		ExitTime:  exitTime,
		Operator:  operatorFrom(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(sess))
}

type applyDiscountReq struct {
	PolicyID string `json:"policy_id"`
	AsOf     string `json:"as_of"`
}

func (h *SessionHandler) ApplyDiscount(c *gin.Context) {
	var req applyDiscountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PolicyID == "" {
		writeError(c, http.StatusBadRequest, "missing policy_id")
		return
	}
	op := operatorFrom(c)
	if op == nil {
		writeError(c, http.StatusUnauthorized, "operator identity required")
		return
	}
	asOf, ok := parseTime(req.AsOf)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid as_of")
		return
	}
	sess, err := h.svc.ApplyDiscount(c.Request.Context(), session.ApplyDiscountCommand{
		SessionID: types.ID(c.Param("id")),
		PolicyID:  types.ID(req.PolicyID),
		AsOf:      asOf,
		Operator:  *op,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(sess))
}

func (h *SessionHandler) Complete(c *gin.Context) {
	id := types.ID(c.Param("id"))
	err := h.svc.Complete(c.Request.Context(), session.CompleteCommand{
		SessionID: id,
		Operator:  operatorFrom(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session_id": id, "status": session.StatusCompleted})
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(sess))
}

// resolve handles the admin terminal resolutions behind one body shape.
type resolveReq struct {
	Resolution string `json:"resolution"` // CANCELED, FORCE_COMPLETED, RUNAWAY, UNRECOGNIZED
}

func (h *SessionHandler) Resolve(c *gin.Context) {
	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id := types.ID(c.Param("id"))
	op := operatorFrom(c)
	ctx := c.Request.Context()
	var err error
	switch session.Status(req.Resolution) {
	case session.StatusCanceled:
		err = h.svc.Cancel(ctx, id, op)
	case session.StatusForceCompleted:
		err = h.svc.ForceComplete(ctx, id, op)
	case session.StatusRunaway:
		err = h.svc.MarkRunaway(ctx, id, op)
	case session.StatusUnrecognized:
		err = h.svc.MarkUnrecognized(ctx, id, op)
	default:
		writeError(c, http.StatusBadRequest, "unknown resolution")
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session_id": id, "status": req.Resolution})
}
