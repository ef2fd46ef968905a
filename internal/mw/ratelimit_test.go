package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func newLimitedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(rate.Every(time.Hour), 2))
	r.GET("/a", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, path, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BurstExhaustion(t *testing.T) {
	r := newLimitedRouter()

	for i := 0; i < 2; i++ {
		if code := get(r, "/a", "10.0.0.1:1000"); code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, code)
		}
	}
	if code := get(r, "/a", "10.0.0.1:1000"); code != http.StatusTooManyRequests {
		t.Errorf("over-burst request: got %d, want 429", code)
	}
}

func TestRateLimit_KeyedByIPAndPath(t *testing.T) {
	r := newLimitedRouter()

	for i := 0; i < 2; i++ {
		get(r, "/a", "10.0.0.1:1000")
	}

	// A different path from the same IP has its own bucket.
	if code := get(r, "/b", "10.0.0.1:1000"); code != http.StatusOK {
		t.Errorf("other path: got %d, want 200", code)
	}
	// The exhausted path from another IP is unaffected.
	if code := get(r, "/a", "10.0.0.2:1000"); code != http.StatusOK {
		t.Errorf("other ip: got %d, want 200", code)
	}
}
