package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gunvolt24/sb_relay/internal/ports/mocks"
	rest "github.com/Gunvolt24/sb_relay/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
)

type noopLogger struct{}

func (noopLogger) Infof(context.Context, string, ...any)  {}
func (noopLogger) Warnf(context.Context, string, ...any)  {}
func (noopLogger) Errorf(context.Context, string, ...any) {}

type fixedLeases int

func (f fixedLeases) Active() int { return int(f) }

type fixedConn bool

func (f fixedConn) Connected() bool { return bool(f) }

type health struct {
	Status       string `json:"status"`
	Consuming    bool   `json:"consuming"`
	Connected    bool   `json:"connected"`
	ActiveLeases int    `json:"active_leases"`
}

func newRouter(t *testing.T, healthy bool, leases int, connected bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	consumer := mocks.NewMockMessageConsumer(ctrl)
	consumer.EXPECT().Healthy().Return(healthy).AnyTimes()

	h := rest.NewHandler(consumer, fixedLeases(leases), fixedConn(connected), noopLogger{})
	return rest.NewRouter(h, "")
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz_Running_200(t *testing.T) {
	r := newRouter(t, true, 3, true)

	w := serve(r, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var got health
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Status != "ok" || !got.Consuming || !got.Connected || got.ActiveLeases != 3 {
		t.Fatalf("unexpected health: %+v", got)
	}
}

func TestHealthz_Stopped_503(t *testing.T) {
	r := newRouter(t, false, 0, false)

	w := serve(r, http.MethodGet, "/healthz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d, body=%s", w.Code, w.Body.String())
	}

	var got health
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Status != "unavailable" || got.Consuming {
		t.Fatalf("unexpected health: %+v", got)
	}
}

// Подключение восстанавливается само, пока цикл жив - сервис здоров.
func TestHealthz_Disconnected_StillHealthy(t *testing.T) {
	r := newRouter(t, true, 0, false)

	w := serve(r, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestHealthz_RequestIDEchoed(t *testing.T) {
	r := newRouter(t, true, 0, true)

	w := serve(r, http.MethodGet, "/healthz")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header must be set")
	}
}

func TestNoRoute_404(t *testing.T) {
	r := newRouter(t, true, 0, true)

	w := serve(r, http.MethodGet, "/no-such-route")
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestMethodNotAllowed_405(t *testing.T) {
	r := newRouter(t, true, 0, true)

	w := serve(r, http.MethodPost, "/healthz")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d, body=%s", w.Code, w.Body.String())
	}
	if allow := w.Header().Get("Allow"); allow != "GET" {
		t.Fatalf("want Allow: GET, got %q", allow)
	}
}

func TestPing_200(t *testing.T) {
	r := newRouter(t, true, 0, true)

	w := serve(r, http.MethodGet, "/ping")
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Fatalf("want 200 pong, got %d %q", w.Code, w.Body.String())
	}
}

func TestMetrics_200(t *testing.T) {
	r := newRouter(t, true, 0, true)

	w := serve(r, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	// Содержимое может меняться - достаточно проверить, что не пусто.
	if w.Body.Len() == 0 {
		t.Fatal("metrics body is empty")
	}
}

func TestRouter_WithTracing_ServesRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	consumer := mocks.NewMockMessageConsumer(ctrl)
	consumer.EXPECT().Healthy().Return(true)

	h := rest.NewHandler(consumer, fixedLeases(0), fixedConn(true), noopLogger{})
	r := rest.NewRouter(h, "sb-relay-test")

	w := serve(r, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
}
