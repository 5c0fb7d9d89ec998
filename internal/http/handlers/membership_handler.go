// README: Membership purchase handler.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gatehouse/internal/modules/membership"
	"gatehouse/internal/types"
)

type MembershipHandler struct {
	svc *membership.Service
}

func NewMembershipHandler(svc *membership.Service) *MembershipHandler {
	return &MembershipHandler{svc: svc}
}

type purchaseReq struct {
	MemberID  string `json:"member_id"`
	CarNumber string `json:"car_number"`
	PolicyID  string `json:"policy_id"`
	StartDate string `json:"start_date"` // "2006-01-02"; empty means today
}

func (h *MembershipHandler) Purchase(c *gin.Context) {
	var req purchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var start time.Time
	if req.StartDate != "" {
		var err error
		start, err = time.ParseInLocation("2006-01-02", req.StartDate, time.Local)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid start_date")
			return
		}
	}
	m, err := h.svc.Purchase(c.Request.Context(), membership.PurchaseCommand{
		MemberID:  types.ID(req.MemberID),
		CarNumber: req.CarNumber,
		PolicyID:  types.ID(req.PolicyID),
		StartDate: start,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"membership_id": m.ID,
		"member_id":     m.MemberID,
		"car_number":    m.CarNumber,
		"start_date":    m.StartDate.Format("2006-01-02"),
		"end_date":      m.EndDate.Format("2006-01-02"),
		"status":        m.Status,
	})
}
