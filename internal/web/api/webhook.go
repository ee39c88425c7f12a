package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gowvp/tams/internal/core/event"
	"github.com/ixugo/goddd/pkg/web"
)

// WebhookAPI 为 http 提供业务方法
type WebhookAPI struct {
	core *event.Core
}

func NewWebhookAPI(core *event.Core) WebhookAPI {
	return WebhookAPI{core: core}
}

func RegisterWebhook(g gin.IRouter, api WebhookAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/service/webhooks", handler...)
	group.GET("", web.WrapH(api.findWebhooks))
	group.POST("", web.WrapH(api.addWebhook))
	group.DELETE("", web.WrapH(api.delWebhook))
}

func (a WebhookAPI) findWebhooks(c *gin.Context, _ *struct{}) (any, error) {
	items, err := a.core.FindWebhooks(c.Request.Context())
	return gin.H{"items": items}, err
}

func (a WebhookAPI) addWebhook(c *gin.Context, in *event.AddWebhookInput) (*event.Webhook, error) {
	return a.core.AddWebhook(c.Request.Context(), in)
}

type delWebhookInput struct {
	URL string `form:"url" binding:"required"`
}

func (a WebhookAPI) delWebhook(c *gin.Context, in *delWebhookInput) (*event.Webhook, error) {
	return a.core.DelWebhook(c.Request.Context(), in.URL)
}
