package handler

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"chatrelay/internal/model"
	httputil "chatrelay/internal/pkg/http"
	"chatrelay/internal/pkg/line"
)

// EventHandler 处理单条入站事件
type EventHandler interface {
	HandleEvent(ctx context.Context, ev model.InboundEvent) error
}

// WebhookHandler LINE webhook 处理器
type WebhookHandler struct {
	channelSecret string
	events        EventHandler
	maxInFlight   int
}

// NewWebhookHandler 创建 webhook 处理器，maxInFlight <= 0 表示不限制并发
func NewWebhookHandler(channelSecret string, events EventHandler, maxInFlight int) *WebhookHandler {
	return &WebhookHandler{
		channelSecret: channelSecret,
		events:        events,
		maxInFlight:   maxInFlight,
	}
}

// Callback 接收 LINE 推送的事件
// @Summary LINE webhook
// @Tags webhook
// @Accept json
// @Produce json
// @Param X-Line-Signature header string true "请求签名"
// @Success 200 {object} model.WebhookResponse
// @Failure 400 {object} httputil.ErrorResponse
// @Router /webhook [post]
func (h *WebhookHandler) Callback(c *gin.Context) {
	events, err := line.ParseEvents(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidSignature, "Invalid signature"))
			return
		}
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, "Invalid request body", err.Error()))
		return
	}

	// 每条事件独立处理，单条失败不影响其它事件
	ctx := c.Request.Context()
	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	if h.maxInFlight > 0 {
		g.SetLimit(h.maxInFlight)
	}
	for _, ev := range events {
		g.Go(func() error {
			if err := h.events.HandleEvent(ctx, ev); err != nil {
				failed.Add(1)
				log.Error().Err(err).
					Str("request_id", c.GetString("request_id")).
					Str("message_kind", string(ev.Message.Kind)).
					Msg("failed to handle event")
			}
			return nil
		})
	}
	_ = g.Wait()

	c.JSON(http.StatusOK, model.WebhookResponse{
		Code:   0,
		Events: len(events),
		Failed: int(failed.Load()),
	})
}
