// README: Policy admin handlers; list and create prioritized policies.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gatehouse/internal/modules/policy"
	"gatehouse/internal/types"
)

type PolicyHandler struct {
	store *policy.Store
}

func NewPolicyHandler(store *policy.Store) *PolicyHandler {
	return &PolicyHandler{store: store}
}

type policyView struct {
	ID       types.ID        `json:"id"`
	SiteID   *types.ID       `json:"site_id,omitempty"`
	Type     policy.Type     `json:"type"`
	Priority int             `json:"priority"`
	IsActive bool            `json:"is_active"`
	Config   json.RawMessage `json:"config"`
}

func policyViewOf(p policy.Policy) (policyView, error) {
	cfg, err := p.EncodeConfig()
	if err != nil {
		return policyView{}, err
	}
	return policyView{
		ID: p.ID, SiteID: p.SiteID, Type: p.Type,
		Priority: p.Priority, IsActive: p.IsActive, Config: cfg,
	}, nil
}

// List returns the active policies of one type for a site, in evaluation
// order.
func (h *PolicyHandler) List(c *gin.Context) {
	siteID := types.ID(c.Query("site_id"))
	ptype := policy.Type(c.Query("type"))
	switch ptype {
	case policy.TypeFee, policy.TypeDiscount, policy.TypeMembership, policy.TypeBlacklist:
	default:
		writeError(c, http.StatusBadRequest, "unknown policy type")
		return
	}
	policies, err := h.store.ActivePolicies(c.Request.Context(), siteID, ptype)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	views := make([]policyView, 0, len(policies))
	for _, p := range policies {
		v, err := policyViewOf(p)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		views = append(views, v)
	}
	writeJSON(c, http.StatusOK, gin.H{"policies": views})
}

type createPolicyReq struct {
	SiteID   string          `json:"site_id"`
	Type     string          `json:"type"`
	Priority int             `json:"priority"`
	IsActive *bool           `json:"is_active"`
	Config   json.RawMessage `json:"config"`
}

func (h *PolicyHandler) Create(c *gin.Context) {
	var req createPolicyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p := policy.Policy{
		ID:       types.ID(uuid.NewString()),
		Type:     policy.Type(req.Type),
		Priority: req.Priority,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if req.SiteID != "" {
		siteID := types.ID(req.SiteID)
		p.SiteID = &siteID
	}
	if err := p.DecodeConfig(req.Config); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Create(c.Request.Context(), &p); err != nil {
		writeServiceError(c, err)
		return
	}
	v, err := policyViewOf(p)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, v)
}
