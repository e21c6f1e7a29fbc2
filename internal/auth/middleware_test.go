package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"signaldrop/internal/config"
	"signaldrop/internal/models"
	"signaldrop/internal/repository"
)

type stubUserRepo struct {
	repository.UserRepository
	users map[string]*models.User
	byKey map[string]*models.User
}

func (s *stubUserRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return s.users[id], nil
}

func (s *stubUserRepo) GetUserByAPIKey(_ context.Context, key string) (*models.User, error) {
	return s.byKey[key], nil
}

func newAuthRouter(t *testing.T, cfg config.AuthConfig) (*gin.Engine, *Middleware) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &stubUserRepo{
		users: map[string]*models.User{
			"u1": {ID: "u1", Tier: "PRO", Active: true},
		},
		byKey: map[string]*models.User{
			"key-live": {ID: "u2", Tier: "MAX", Active: true},
			"key-dead": {ID: "u3", Tier: "FREE", Active: false},
		},
	}
	mw := &Middleware{Repo: repo, Cfg: cfg}

	r := gin.New()
	r.GET("/whoami", mw.RequireUser(), func(c *gin.Context) {
		u := UserFromContext(c.Request.Context())
		c.String(http.StatusOK, u.ID)
	})
	r.POST("/admin", mw.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, mw
}

func do(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireUserDisabledUsesHeader(t *testing.T) {
	r, _ := newAuthRouter(t, config.AuthConfig{Enabled: false})

	w := do(r, http.MethodGet, "/whoami", map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Fatalf("got %d %q, want 200 u1", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/whoami?user_id=u1", nil)
	if w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Fatalf("query fallback: got %d %q, want 200 u1", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/whoami", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: got %d, want 401", w.Code)
	}
}

func TestRequireUserEnabledChecksAPIKey(t *testing.T) {
	r, _ := newAuthRouter(t, config.AuthConfig{Enabled: true})

	w := do(r, http.MethodGet, "/whoami", map[string]string{"X-API-Key": "key-live"})
	if w.Code != http.StatusOK || w.Body.String() != "u2" {
		t.Fatalf("api key header: got %d %q, want 200 u2", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/whoami", map[string]string{"Authorization": "Bearer key-live"})
	if w.Code != http.StatusOK {
		t.Fatalf("bearer: got %d, want 200", w.Code)
	}

	w = do(r, http.MethodGet, "/whoami", map[string]string{"X-API-Key": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad key: got %d, want 401", w.Code)
	}

	w = do(r, http.MethodGet, "/whoami", map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("dev header must not work with auth enabled: got %d", w.Code)
	}
}

func TestRequireUserRejectsInactive(t *testing.T) {
	r, _ := newAuthRouter(t, config.AuthConfig{Enabled: true})

	w := do(r, http.MethodGet, "/whoami", map[string]string{"X-API-Key": "key-dead"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", w.Code)
	}
}

func TestRequireAdminToken(t *testing.T) {
	r, _ := newAuthRouter(t, config.AuthConfig{Enabled: true, AdminToken: "s3cret"})

	w := do(r, http.MethodPost, "/admin", map[string]string{"X-Admin-Token": "s3cret"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("valid token: got %d, want 204", w.Code)
	}

	w = do(r, http.MethodPost, "/admin", map[string]string{"X-Admin-Token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d, want 401", w.Code)
	}

	w = do(r, http.MethodPost, "/admin", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", w.Code)
	}
}

func TestRequireAdminOpenWhenAuthDisabled(t *testing.T) {
	r, _ := newAuthRouter(t, config.AuthConfig{Enabled: false})

	w := do(r, http.MethodPost, "/admin", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", w.Code)
	}
}
