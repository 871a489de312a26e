package httpx

import (
	"net/http"
	"time"

	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/gin-gonic/gin"
)

// defaultSkip - служебные пути, которые опрашиваются слишком часто для логов.
var defaultSkip = []string{"/metrics", "/ping"}

// RequestLogger - middleware для логирования HTTP-запросов.
// Ответы 5xx пишутся как warning. request_id и trace добавляет сам логгер из контекста.
func RequestLogger(log ports.Logger, skipPaths ...string) gin.HandlerFunc {
	if len(skipPaths) == 0 {
		skipPaths = defaultSkip
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if _, ok := skip[path]; ok {
			return
		}
		if path == "" {
			path = c.Request.URL.Path
		}

		logf := log.Infof
		if c.Writer.Status() >= http.StatusInternalServerError {
			logf = log.Warnf
		}
		logf(
			c.Request.Context(),
			"http request method=%s path=%s status=%d ip=%s duration=%s size=%d",
			c.Request.Method,
			path,
			c.Writer.Status(),
			c.ClientIP(),
			time.Since(start),
			c.Writer.Size(),
		)
	}
}
