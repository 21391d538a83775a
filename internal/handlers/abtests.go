package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/autosem/autosem-backend/internal/services"
)

type ABTestHandler struct {
	abtests services.ABTestService
}

func NewABTestHandler(abtests services.ABTestService) *ABTestHandler {
	return &ABTestHandler{abtests: abtests}
}

func (h *ABTestHandler) Create(c *gin.Context) {
	var req services.CreateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	test, err := h.abtests.CreateTest(c.Request.Context(), req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"test": test})
}

// Results evaluates every running test, or a single one when ?test_id= is given.
func (h *ABTestHandler) Results(c *gin.Context) {
	var testID *uuid.UUID
	if raw := c.Query("test_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid test_id: %w", err))
			return
		}
		testID = &id
	}
	results, err := h.abtests.Evaluate(c.Request.Context(), testID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": results, "count": len(results)})
}

// AutoOptimize concludes every test with a statistically decisive winner.
func (h *ABTestHandler) AutoOptimize(c *gin.Context) {
	res, err := h.abtests.AutoOptimize(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, res)
}
