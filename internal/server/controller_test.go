package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"tbot/internal/api/middleware"
	"tbot/internal/initdata"
	"tbot/internal/ledger"
	"tbot/internal/rewards"
	"tbot/internal/store"
)

func testApp(t *testing.T) *rewards.App {
	t.Helper()
	v, err := initdata.NewVerifier("5:router")
	if err != nil {
		t.Fatal(err)
	}
	return &rewards.App{Service: rewards.NewService(v, ledger.Default(), store.NewMemoryStore())}
}

func TestRouterHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(testApp(t), Config{AllowOrigins: []string{"https://web.telegram.org"}})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("%d %v", w.Code, w.Header())
	}
}

func TestRouterMountsBothPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(testApp(t), Config{AllowOrigins: []string{"*"}})
	payload := initdata.Sign("5:router", "user="+url.QueryEscape(`{"id":9}`))
	for _, path := range []string{"/tbot_handler", "/.netlify/functions/tbot_handler"} {
		raw, _ := json.Marshal(gin.H{"action": "request_initial_data", "init_data": payload})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", path, w.Code, w.Body.String())
		}
	}
}

func TestRouterRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(testApp(t), Config{AllowOrigins: []string{"*"}, RateLimit: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/tbot_handler", bytes.NewBufferString(`{"action":"request_initial_data"}`))
		req.RemoteAddr = "10.1.1.1:5000"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}
