package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/academy-hq/academy-api/internal/service"
	"github.com/academy-hq/academy-api/pkg/response"
)

// DashboardHandler exposes the aggregated daily summary.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Summary godoc
// @Summary Daily operational summary
// @Description Aggregated counters for today: active students, marks, collected amounts and outstanding debt. Cached per civil date.
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.dashboard.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
