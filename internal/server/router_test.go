package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/chat"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/config"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/db"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/presence"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/ws"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Port: "0", DatabaseDSN: "", JWTSecret: "secret", Env: "dev", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7}
	gdb, err := db.Connect("host=localhost user=postgres password=postgres dbname=forum port=5432 sslmode=disable TimeZone=UTC")
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	hub := ws.NewHub(chat.NewStore(gdb), presence.NewRegistry())
	return SetupRouter(cfg, gdb, hub)
}

func TestHealthz(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	engine := newTestRouter(t)

	paths := []string{
		"/api/v1/check-user",
		"/api/v1/questions",
		"/api/v1/chat/history/public_lobby",
	}
	for _, p := range paths {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without token, got %d", p, w.Code)
		}
	}
}
