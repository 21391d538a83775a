package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/autosem/autosem-backend/internal/services"
)

type AutomationHandler struct {
	automation services.AutomationService
	optimizer  services.OptimizerService
	perfSync   services.PerformanceSyncService
}

func NewAutomationHandler(
	automation services.AutomationService,
	optimizer services.OptimizerService,
	perfSync services.PerformanceSyncService,
) *AutomationHandler {
	return &AutomationHandler{
		automation: automation,
		optimizer:  optimizer,
		perfSync:   perfSync,
	}
}

func (h *AutomationHandler) Status(c *gin.Context) {
	RespondOK(c, h.automation.Status())
}

func (h *AutomationHandler) Start(c *gin.Context) {
	RespondOK(c, h.automation.Start(c.Request.Context()))
}

func (h *AutomationHandler) Stop(c *gin.Context) {
	RespondOK(c, h.automation.Stop(c.Request.Context()))
}

func (h *AutomationHandler) RunCycle(c *gin.Context) {
	RespondOK(c, h.automation.RunCycle(c.Request.Context()))
}

// Optimize triggers a single optimization pass outside the schedule.
func (h *AutomationHandler) Optimize(c *gin.Context) {
	res, err := h.optimizer.OptimizeAll(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, res)
}

// SyncPerformance triggers a single performance sync outside the schedule.
func (h *AutomationHandler) SyncPerformance(c *gin.Context) {
	res, err := h.perfSync.SyncAll(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, res)
}
