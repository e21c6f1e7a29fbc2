package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signaldrop/internal/auth"
	"signaldrop/internal/dropper"
	"signaldrop/internal/models"
	"signaldrop/internal/pool"
	"signaldrop/internal/repository"
	"signaldrop/internal/signal"
	"signaldrop/internal/tier"
)

type PipelineHandler struct {
	Intake  *signal.Hub
	Pool    *pool.Pool
	Dropper *dropper.Dropper
	Repo    repository.Repository
	Auth    *auth.Middleware
	Logger  *zap.Logger
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	candidates := r.Group("/api/v1/candidates", h.Auth.RequireAdmin())
	candidates.POST("", h.submitCandidate)

	group := r.Group("/api/v1/pipeline", h.Auth.RequireAdmin())
	group.GET("/status", h.status)
	group.GET("/stats", h.stats)
	group.GET("/pool", h.poolView)
	group.GET("/pool/:tier", h.poolTierView)
	group.POST("/drop/:tier", h.forceDrop)
}

// @Summary Submit a candidate into the ranking pool
// @Tags pipeline
// @Success 200 {object} map[string]any
// @Router /api/v1/candidates [post]
func (h *PipelineHandler) submitCandidate(c *gin.Context) {
	if h.Intake == nil {
		Error(c, http.StatusInternalServerError, "intake unavailable", nil)
		return
	}
	var req signal.CandidateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	cand := req.Candidate()
	if err := h.Intake.Submit(cand); err != nil {
		if errors.Is(err, signal.ErrInvalid) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if errors.Is(err, pool.ErrBelowMinQuality) || errors.Is(err, pool.ErrExpired) {
			Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"symbol": cand.Symbol, "accepted": true}, nil)
}

// @Summary Pipeline runtime status
// @Tags pipeline
// @Success 200 {object} map[string]any
// @Router /api/v1/pipeline/status [get]
func (h *PipelineHandler) status(c *gin.Context) {
	depths := map[string]int{}
	if h.Pool != nil {
		for _, t := range tier.All() {
			depths[t.String()] = h.Pool.Depth(t)
		}
	}
	resp := gin.H{
		"pool": gin.H{
			"size":   poolSize(h.Pool),
			"depths": depths,
		},
	}
	if h.Dropper != nil {
		resp["droppers"] = h.Dropper.Status()
	}
	if h.Intake != nil {
		resp["intake"] = h.Intake.Stats()
		resp["sources"] = h.Intake.Sources()
	}
	Ok(c, resp, nil)
}

func poolSize(p *pool.Pool) int {
	if p == nil {
		return 0
	}
	return p.Size()
}

// @Summary Distribution counters over a trailing window
// @Tags pipeline
// @Param window query string false "trailing window, e.g. 24h"
// @Success 200 {object} map[string]any
// @Router /api/v1/pipeline/stats [get]
func (h *PipelineHandler) stats(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	window := durationQuery(c, "window")
	if window <= 0 {
		window = 24 * time.Hour
	}
	ctx := c.Request.Context()
	now := time.Now().UTC()
	since := now.Add(-window)

	byTier, err := h.Repo.CountDistributedByTier(ctx, since)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	outcomes, err := h.Repo.CountOutcomes(ctx, since)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	quotaUsed, err := h.Repo.SumQuotaUsed(ctx, repository.UTCDay(now))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	wins := outcomes[models.OutcomeWin]
	losses := outcomes[models.OutcomeLoss]
	var winRate *float64
	if wins+losses > 0 {
		r := float64(wins) / float64(wins+losses)
		winRate = &r
	}
	Ok(c, gin.H{
		"window":              window.String(),
		"distributed_by_tier": byTier,
		"outcomes":            outcomes,
		"win_rate":            winRate,
		"quota_used_today":    quotaUsed,
	}, nil)
}

type rankedView struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Direction   string    `json:"direction"`
	Confidence  float64   `json:"confidence"`
	Quality     float64   `json:"quality"`
	Entry       string    `json:"entry"`
	StopLoss    string    `json:"stop_loss"`
	TakeProfits []string  `json:"take_profits"`
	Strategy    string    `json:"strategy"`
	Score       float64   `json:"score"`
	Rank        int       `json:"rank"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func rankedViewFrom(s signal.Ranked) rankedView {
	tps := make([]string, 0, len(s.TakeProfits))
	for _, tp := range s.TakeProfits {
		tps = append(tps, tp.String())
	}
	return rankedView{
		ID:          s.ID,
		Symbol:      s.Symbol,
		Direction:   string(s.Direction),
		Confidence:  s.Confidence,
		Quality:     s.Quality,
		Entry:       s.Entry.String(),
		StopLoss:    s.StopLoss.String(),
		TakeProfits: tps,
		Strategy:    s.Strategy,
		Score:       s.Score,
		Rank:        s.Rank,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

// @Summary Ranked pool contents as each tier sees them
// @Tags pipeline
// @Param tier query string false "single tier view"
// @Param limit query int false "max rows per tier"
// @Success 200 {object} map[string]any
// @Router /api/v1/pipeline/pool [get]
func (h *PipelineHandler) poolView(c *gin.Context) {
	if h.Pool == nil {
		Error(c, http.StatusInternalServerError, "pool unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 20)
	if name := strings.TrimSpace(c.Query("tier")); name != "" {
		t, err := tier.Parse(name)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Ok(c, viewsFor(h.Pool, t, limit), nil)
		return
	}
	out := map[string][]rankedView{}
	for _, t := range tier.All() {
		out[t.String()] = viewsFor(h.Pool, t, limit)
	}
	Ok(c, out, nil)
}

// @Summary Ranked pool contents for one tier's view
// @Tags pipeline
// @Param tier path string true "FREE, PRO or MAX"
// @Param limit query int false "max rows"
// @Success 200 {object} map[string]any
// @Router /api/v1/pipeline/pool/{tier} [get]
func (h *PipelineHandler) poolTierView(c *gin.Context) {
	if h.Pool == nil {
		Error(c, http.StatusInternalServerError, "pool unavailable", nil)
		return
	}
	t, err := tier.Parse(c.Param("tier"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, viewsFor(h.Pool, t, intQuery(c, "limit", 20)), nil)
}

func viewsFor(p *pool.Pool, t tier.Tier, limit int) []rankedView {
	ranked := p.TopN(t, limit)
	views := make([]rankedView, 0, len(ranked))
	for _, s := range ranked {
		views = append(views, rankedViewFrom(s))
	}
	return views
}

// @Summary Release the best visible candidate for a tier immediately
// @Tags pipeline
// @Param tier path string true "FREE, PRO or MAX"
// @Success 200 {object} map[string]any
// @Router /api/v1/pipeline/drop/{tier} [post]
func (h *PipelineHandler) forceDrop(c *gin.Context) {
	if h.Dropper == nil {
		Error(c, http.StatusInternalServerError, "dropper unavailable", nil)
		return
	}
	t, err := tier.Parse(c.Param("tier"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sig, err := h.Dropper.ForceDrop(c.Request.Context(), t)
	if err != nil {
		if errors.Is(err, dropper.ErrNothingToDrop) {
			Error(c, http.StatusNotFound, "nothing to drop", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, rankedViewFrom(sig), nil)
}
