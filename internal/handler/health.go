package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	httputil "chatrelay/internal/pkg/http"
)

// Pinger 依赖的健康探测
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	deps Pinger
}

// NewHealthHandler 创建健康检查处理器，deps 为空时 Ready 总是就绪
func NewHealthHandler(deps Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Health 存活检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready 就绪检查，持久化后端不可用时返回 503
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.deps != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, httputil.NewErrorResponse(httputil.CodeNotReady, "Store unavailable", err.Error()))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}
