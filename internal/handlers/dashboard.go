package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/autosem/autosem-backend/internal/services"
)

type DashboardHandler struct {
	optimizer services.OptimizerService
	audit     services.AuditService
}

func NewDashboardHandler(optimizer services.OptimizerService, audit services.AuditService) *DashboardHandler {
	return &DashboardHandler{optimizer: optimizer, audit: audit}
}

// Summary returns the account roll-up plus the most recent activity entries.
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.optimizer.Summary(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("activity_limit", "20"))
	activity, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"summary": summary, "recent_activity": activity})
}

// Activity returns the raw activity log, newest first.
func (h *DashboardHandler) Activity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	activity, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"activity": activity, "count": len(activity)})
}
