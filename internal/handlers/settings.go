package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autosem/autosem-backend/internal/services"
)

type SettingsHandler struct {
	settings services.SettingsService
}

func NewSettingsHandler(settings services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	values, err := h.settings.All(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"settings": values})
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.settings.Update(c.Request.Context(), values); err != nil {
		RespondServiceError(c, err)
		return
	}
	updated, err := h.settings.All(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"settings": updated})
}
