package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/autosem/autosem-backend/internal/services"
)

type CampaignHandler struct {
	campaigns services.CampaignService
}

func NewCampaignHandler(campaigns services.CampaignService) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns}
}

func (h *CampaignHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	campaigns, err := h.campaigns.List(c.Request.Context(), offset, limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"campaigns": campaigns, "count": len(campaigns)})
}

func (h *CampaignHandler) ListActive(c *gin.Context) {
	campaigns, err := h.campaigns.ListActive(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"campaigns": campaigns, "count": len(campaigns)})
}

func (h *CampaignHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	campaign, err := h.campaigns.Get(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"campaign": campaign})
}

func (h *CampaignHandler) Create(c *gin.Context) {
	var req services.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	campaign, err := h.campaigns.Create(c.Request.Context(), req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"campaign": campaign})
}

func (h *CampaignHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	campaign, err := h.campaigns.Update(c.Request.Context(), id, req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"campaign": campaign})
}

func (h *CampaignHandler) Pause(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	campaign, err := h.campaigns.Pause(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"campaign": campaign})
}

func (h *CampaignHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.campaigns.Delete(c.Request.Context(), id); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// Cleanup purges campaigns that never produced traffic.
func (h *CampaignHandler) Cleanup(c *gin.Context) {
	deleted, err := h.campaigns.Cleanup(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": deleted})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid campaign id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}
