package ginserver

import (
	"errors"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainpolicy "staybook/internal/domain/policy"
	"staybook/internal/domain/units"
)

type PolicyHandler struct {
	Policies domainpolicy.Repository
	Now      func() time.Time
}

type policyRequest struct {
	ID                     string `json:"id"`
	Type                   string `json:"type" binding:"required"`
	CancellationWindowDays int    `json:"cancellation_window_days"`
	MinHoursBeforeCheckIn  int    `json:"min_hours_before_check_in"`
	RequireFullPrepayment  bool   `json:"require_full_prepayment"`
	MinDepositPercent      int    `json:"min_deposit_percent"`
	Rules                  string `json:"rules"`
}

type policyResponse struct {
	ID                     string `json:"id"`
	PropertyID             string `json:"property_id"`
	Type                   string `json:"type"`
	CancellationWindowDays int    `json:"cancellation_window_days"`
	MinHoursBeforeCheckIn  int    `json:"min_hours_before_check_in"`
	RequireFullPrepayment  bool   `json:"require_full_prepayment"`
	MinDepositPercent      int    `json:"min_deposit_percent"`
	Rules                  string `json:"rules,omitempty"`
}

func (h PolicyHandler) Upsert(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := &domainpolicy.PropertyPolicy{
		ID:                     req.ID,
		PropertyID:             units.PropertyID(c.Param("id")),
		Type:                   domainpolicy.Type(req.Type),
		CancellationWindowDays: req.CancellationWindowDays,
		MinHoursBeforeCheckIn:  req.MinHoursBeforeCheckIn,
		RequireFullPrepayment:  req.RequireFullPrepayment,
		MinDepositPercent:      req.MinDepositPercent,
		Rules:                  req.Rules,
		Active:                 true,
		UpdatedAt:              h.now(),
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := h.Policies.Save(c.Request.Context(), p); err != nil {
		switch {
		case errors.Is(err, domainpolicy.ErrDuplicatePolicy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, domainpolicy.ErrInvalidPercent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, mapPolicy(p))
}

func (h PolicyHandler) Get(c *gin.Context) {
	p, err := h.Policies.ByPropertyAndType(c.Request.Context(), units.PropertyID(c.Param("id")), domainpolicy.Type(c.Param("type")))
	if err != nil {
		if errors.Is(err, domainpolicy.ErrPolicyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mapPolicy(p))
}

func (h PolicyHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func mapPolicy(p *domainpolicy.PropertyPolicy) policyResponse {
	return policyResponse{
		ID:                     p.ID,
		PropertyID:             string(p.PropertyID),
		Type:                   string(p.Type),
		CancellationWindowDays: p.CancellationWindowDays,
		MinHoursBeforeCheckIn:  p.MinHoursBeforeCheckIn,
		RequireFullPrepayment:  p.RequireFullPrepayment,
		MinDepositPercent:      p.MinDepositPercent,
		Rules:                  p.Rules,
	}
}

var _ PolicyHTTP = PolicyHandler{}
