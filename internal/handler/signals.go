package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signaldrop/internal/auth"
	"signaldrop/internal/models"
	"signaldrop/internal/service"
)

type SignalsHandler struct {
	Query  *service.SignalQueryService
	Auth   *auth.Middleware
	Logger *zap.Logger
}

func (h *SignalsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/signals", h.Auth.RequireUser())
	group.GET("/active", h.listActive)
	group.GET("/history", h.listHistory)
	group.POST("/:id/viewed", h.markViewed)
	group.POST("/:id/clicked", h.markClicked)

	admin := r.Group("/api/v1/signals", h.Auth.RequireAdmin())
	admin.POST("/:id/outcome", h.resolveOutcome)
}

// @Summary Active signals for the calling user
// @Tags signals
// @Param limit query int false "max rows"
// @Success 200 {object} map[string]any
// @Router /api/v1/signals/active [get]
func (h *SignalsHandler) listActive(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	user := auth.UserFromContext(c.Request.Context())
	limit := intQuery(c, "limit", 0)
	items, err := h.Query.ActiveSignals(c.Request.Context(), user.ID, limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Delivered signals from the trailing window, resolved included
// @Tags signals
// @Param limit query int false "max rows"
// @Success 200 {object} map[string]any
// @Router /api/v1/signals/history [get]
func (h *SignalsHandler) listHistory(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	user := auth.UserFromContext(c.Request.Context())
	limit := intQuery(c, "limit", 0)
	items, err := h.Query.SignalHistory(c.Request.Context(), user.ID, limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *SignalsHandler) markViewed(c *gin.Context) {
	h.mark(c, "viewed", h.Query.MarkViewed)
}

func (h *SignalsHandler) markClicked(c *gin.Context) {
	h.mark(c, "clicked", h.Query.MarkClicked)
}

func (h *SignalsHandler) mark(c *gin.Context, flag string, set func(context.Context, string, uint64) error) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	user := auth.UserFromContext(c.Request.Context())
	if err := set(c.Request.Context(), user.ID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(c, http.StatusNotFound, "signal not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"id": id, flag: true}, nil)
}

type resolveOutcomeRequest struct {
	Outcome string `json:"outcome"`
}

// @Summary Record the outcome of a delivered signal
// @Tags signals
// @Param id path int true "signal row id"
// @Success 200 {object} map[string]any
// @Router /api/v1/signals/{id}/outcome [post]
func (h *SignalsHandler) resolveOutcome(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req resolveOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	outcome := strings.ToUpper(strings.TrimSpace(req.Outcome))
	switch outcome {
	case models.OutcomeWin, models.OutcomeLoss, models.OutcomeTimeout:
	default:
		Error(c, http.StatusBadRequest, "outcome must be WIN, LOSS or TIMEOUT", nil)
		return
	}
	resolved, err := h.Query.ResolveOutcome(c.Request.Context(), id, outcome)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !resolved {
		Error(c, http.StatusNotFound, "signal not found or already resolved", nil)
		return
	}
	Ok(c, gin.H{"id": id, "outcome": outcome}, nil)
}
