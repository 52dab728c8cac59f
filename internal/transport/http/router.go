package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"msgrelay/backend/internal/config"
	"msgrelay/backend/internal/dispatch"
	"msgrelay/backend/internal/health"
	"msgrelay/backend/internal/middleware"
	"msgrelay/backend/internal/monitoring"
)

// EventHandler 处理网关形态的事件
type EventHandler interface {
	Handle(ctx context.Context, event dispatch.Event) dispatch.Response
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config  *config.Config
	Events  EventHandler
	Metrics *monitoring.Metrics
	Health  *health.HealthChecker
	Logger  *zap.Logger
}

// Handler 把 HTTP 请求转换为事件交给分派器
type Handler struct {
	events EventHandler
	log    *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	var bodyLimit int64
	if deps.Config != nil {
		bodyLimit = deps.Config.Server.BodyLimit
	}

	var panics middleware.PanicRecorder
	if deps.Metrics != nil {
		panics = deps.Metrics
	}

	router.Use(middleware.RecoveryHandler(log, panics))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(bodyLimit))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	handler := &Handler{events: deps.Events, log: log}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		results := deps.Health.CheckHealth()
		status := http.StatusOK
		if !health.Healthy(results) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, results)
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// 消息接口
	router.POST("/", handler.Dispatch)
	router.POST("/messages", handler.Dispatch)
	router.POST("/inbound", handler.Dispatch)
	router.GET("/messages/:email", handler.Dispatch)

	// 网关事件透传
	router.POST("/events", handler.Event)

	// 其余请求（OPTIONS、未知方法与路径）同样交给分派器决定
	router.NoRoute(handler.Dispatch)

	return router
}

// Dispatch 把当前请求转换为事件并写回分派器的响应
func (h *Handler) Dispatch(c *gin.Context) {
	body, err := readBody(c.Request)
	if err != nil {
		h.writeBodyError(c, err)
		return
	}

	event := dispatch.Event{
		HTTPMethod: c.Request.Method,
		Path:       c.Request.URL.Path,
		Body:       body,
	}
	if len(c.Params) > 0 {
		event.PathParameters = make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			event.PathParameters[p.Key] = p.Value
		}
	}

	writeResponse(c, h.events.Handle(c.Request.Context(), event))
}

// Event 接收完整的网关事件 JSON，返回网关响应 JSON
func (h *Handler) Event(c *gin.Context) {
	body, err := readBody(c.Request)
	if err != nil {
		h.writeBodyError(c, err)
		return
	}

	var event dispatch.Event
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		writeResponse(c, dispatch.JSON(http.StatusBadRequest, dispatch.ErrorBody{
			Error:   "Invalid event",
			Details: err.Error(),
		}))
		return
	}

	resp := h.events.Handle(c.Request.Context(), event)
	for k, v := range dispatch.Headers() {
		c.Header(k, v)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) writeBodyError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeResponse(c, dispatch.JSON(http.StatusRequestEntityTooLarge, dispatch.ErrorBody{
			Error:   "Request body too large",
			Details: err.Error(),
		}))
		return
	}

	h.log.Warn("failed to read request body", zap.Error(err))
	writeResponse(c, dispatch.JSON(http.StatusBadRequest, dispatch.ErrorBody{
		Error:   "Invalid request body",
		Details: err.Error(),
	}))
}

func readBody(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeResponse(c *gin.Context, resp dispatch.Response) {
	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	contentType := resp.Headers["Content-Type"]
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, []byte(resp.Body))
}
