package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signaldrop/internal/auth"
	"signaldrop/internal/config"
	"signaldrop/internal/models"
	"signaldrop/internal/repository"
	"signaldrop/internal/tier"
)

type UsersHandler struct {
	Repo   repository.Repository
	Tiers  config.TiersConfig
	Auth   *auth.Middleware
	Logger *zap.Logger
}

func (h *UsersHandler) Register(r *gin.Engine) {
	admin := r.Group("/api/v1/users", h.Auth.RequireAdmin())
	admin.POST("", h.create)
	admin.GET("", h.list)
	admin.PATCH("/:id", h.update)

	me := r.Group("/api/v1/me", h.Auth.RequireUser())
	me.GET("", h.me)
}

type createUserRequest struct {
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

// @Summary Create a subscriber account
// @Tags users
// @Success 200 {object} map[string]any
// @Router /api/v1/users [post]
func (h *UsersHandler) create(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		Error(c, http.StatusBadRequest, "invalid email", nil)
		return
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	user := &models.User{
		ID:     uuid.NewString(),
		Email:  email,
		Tier:   t.String(),
		Active: true,
		APIKey: mintAPIKey(),
	}
	if err := h.Repo.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Error(c, http.StatusConflict, "email already registered", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, user, nil)
}

// @Summary List subscriber accounts
// @Tags users
// @Param tier query string false "FREE, PRO or MAX"
// @Param active query bool false "active filter"
// @Success 200 {object} map[string]any
// @Router /api/v1/users [get]
func (h *UsersHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListUsersParams{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
		Tier:   strQueryPtr(c, "tier"),
		Active: boolQueryPtr(c, "active"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"created_at": "created_at",
			"email":      "email",
			"tier":       "tier",
		}),
		Asc: boolQueryPtr(c, "asc"),
	}
	ctx := c.Request.Context()
	items, err := h.Repo.ListUsers(ctx, params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountUsers(ctx, params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

type updateUserRequest struct {
	Tier   *string `json:"tier"`
	Active *bool   `json:"active"`
}

// @Summary Update a subscriber's tier or active flag
// @Tags users
// @Param id path string true "user id"
// @Success 200 {object} map[string]any
// @Router /api/v1/users/{id} [patch]
func (h *UsersHandler) update(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	upd := repository.UserUpdate{Active: req.Active}
	if req.Tier != nil {
		t, err := tier.Parse(*req.Tier)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		name := t.String()
		upd.Tier = &name
	}
	if upd.Tier == nil && upd.Active == nil {
		Error(c, http.StatusBadRequest, "nothing to update", nil)
		return
	}
	if err := h.Repo.UpdateUser(c.Request.Context(), id, upd); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(c, http.StatusNotFound, "user not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"id": id}, nil)
}

// @Summary The calling user's account and today's quota usage
// @Tags users
// @Success 200 {object} map[string]any
// @Router /api/v1/me [get]
func (h *UsersHandler) me(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	user := auth.UserFromContext(c.Request.Context())
	day := repository.UTCDay(time.Now())
	used := 0
	if q, err := h.Repo.GetQuota(c.Request.Context(), user.ID, day); err == nil && q != nil {
		used = q.Count
	}
	limit := 0
	if tc, ok := h.Tiers.For(user.Tier); ok {
		limit = tc.DailyQuota
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	Ok(c, gin.H{
		"user": user,
		"quota": gin.H{
			"date":      day,
			"used":      used,
			"limit":     limit,
			"remaining": remaining,
		},
	}, nil)
}

func mintAPIKey() string {
	return "sd_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
