package rest

import (
	"net/http"

	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/Gunvolt24/sb_relay/pkg/httpx"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// LeaseCounter - число активных продлений блокировок.
type LeaseCounter interface {
	Active() int
}

// ConnectionState - есть ли живое подключение к брокеру.
type ConnectionState interface {
	Connected() bool
}

type Handler struct {
	consumer ports.MessageConsumer
	leases   LeaseCounter
	conn     ConnectionState
	log      ports.Logger
}

func NewHandler(consumer ports.MessageConsumer, leases LeaseCounter, conn ConnectionState, log ports.Logger) *Handler {
	return &Handler{consumer: consumer, leases: leases, conn: conn, log: log}
}

// healthResponse - тело ответа /healthz.
type healthResponse struct {
	Status       string `json:"status"`
	Consuming    bool   `json:"consuming"`
	Connected    bool   `json:"connected"`
	ActiveLeases int    `json:"active_leases"`
}

// NewRouter - пустой serviceName отключает otelgin.
func NewRouter(h *Handler, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpx.RequestIDMiddleware())
	if serviceName != "" {
		r.Use(otelgin.Middleware(serviceName))
	}
	r.Use(httpx.RequestLogger(h.log))
	r.HandleMethodNotAllowed = true

	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	return r
}

// healthz - 200, пока цикл получения работает; иначе 503.
// Потеря подключения сама по себе не делает сервис нездоровым: его восстанавливает invoker.
func (h *Handler) healthz(c *gin.Context) {
	resp := healthResponse{
		Consuming: h.consumer.Healthy(),
	}
	if h.conn != nil {
		resp.Connected = h.conn.Connected()
	}
	if h.leases != nil {
		resp.ActiveLeases = h.leases.Active()
	}

	if !resp.Consuming {
		resp.Status = "unavailable"
		h.log.Warnf(c.Request.Context(), "health check failed consuming=%t connected=%t", resp.Consuming, resp.Connected)
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp.Status = "ok"
	c.JSON(http.StatusOK, resp)
}
