package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Gunvolt24/sb_relay/pkg/ctxmeta"
	"github.com/Gunvolt24/sb_relay/pkg/httpx"
)

// healthRouter - /healthz за RequestIDMiddleware; возвращает id из контекста запроса.
func healthRouter(gotID *string, hasMessageID *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpx.RequestIDMiddleware())
	r.GET("/healthz", func(c *gin.Context) {
		*gotID, _ = ctxmeta.RequestIDFromContext(c.Request.Context())
		_, *hasMessageID = ctxmeta.MessageIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestIDMiddleware_Healthz(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		wantKeep bool // true - в ответе тот же id, false - сгенерирован UUID
	}{
		{name: "kubelet without header", header: "", wantKeep: false},
		{name: "ingress trace id", header: "lb-7f3a9c", wantKeep: true},
		{name: "max length", header: strings.Repeat("a", 128), wantKeep: true},
		{name: "overlong", header: strings.Repeat("a", 129), wantKeep: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotID string
			var hasMessageID bool
			r := healthRouter(&gotID, &hasMessageID)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			if tc.header != "" {
				req.Header.Set(httpx.HeaderRequestID, tc.header)
			}
			r.ServeHTTP(w, req)

			rid := w.Header().Get(httpx.HeaderRequestID)
			if tc.wantKeep {
				require.Equal(t, tc.header, rid)
			} else {
				_, err := uuid.Parse(rid)
				require.NoError(t, err, "generated id must be a UUID, got %q", rid)
			}
			// логгер берёт request_id из контекста - он должен совпадать с заголовком ответа
			require.Equal(t, rid, gotID)
			// HTTP-запрос не относится к сообщению брокера
			require.False(t, hasMessageID)
		})
	}
}

// Каждый запрос без заголовка получает свой id.
func TestRequestIDMiddleware_GeneratedIDsDiffer(t *testing.T) {
	var gotID string
	var hasMessageID bool
	r := healthRouter(&gotID, &hasMessageID)

	seen := map[string]struct{}{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
		seen[w.Header().Get(httpx.HeaderRequestID)] = struct{}{}
	}
	require.Len(t, seen, 3)
}
