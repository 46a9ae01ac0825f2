package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "prod", "", "shop.example.com", true},
		{"dev allows any", "dev", "http://evil.example", "shop.example.com", true},
		{"same origin", "prod", "https://shop.example.com", "shop.example.com", true},
		{"cross origin", "prod", "https://evil.example", "shop.example.com", false},
		{"host as substring", "prod", "https://shop.example.com.evil.io", "shop.example.com", false},
		{"garbage", "prod", "://", "shop.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OriginAllowed(tt.env, tt.origin, tt.host); got != tt.want {
				t.Errorf("OriginAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("dev"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(rate.Every(time.Hour), 2, time.Minute)
	r := gin.New()
	r.Use(RateLimit(rl))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("second client status = %d, want 200", w.Code)
	}
}

func TestRL_Sweep(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, time.Minute)
	rl.Allow("a")
	rl.Allow("b")
	rl.sweep(time.Now().Add(2 * time.Minute))
	if n := rl.size(); n != 0 {
		t.Errorf("size after sweep = %d, want 0", n)
	}
	rl.Stop()
	rl.Stop()
}
