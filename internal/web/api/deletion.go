package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gowvp/tams/internal/core/deletion"
	"github.com/ixugo/goddd/pkg/web"
)

// DeletionAPI 为 http 提供业务方法
type DeletionAPI struct {
	core *deletion.Core
}

func NewDeletionAPI(core *deletion.Core) DeletionAPI {
	return DeletionAPI{core: core}
}

func RegisterDeletion(g gin.IRouter, api DeletionAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/flow-delete-requests", handler...)
	group.GET("", web.WrapH(api.findRequests))
	group.POST("", web.WrapH(api.addRequest))
	group.GET("/:id", web.WrapH(api.getRequest))
	group.POST("/:id/cancel", web.WrapH(api.cancelRequest))
}

func (a DeletionAPI) findRequests(c *gin.Context, in *deletion.FindRequestInput) (any, error) {
	items, total, err := a.core.FindRequests(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

func (a DeletionAPI) getRequest(c *gin.Context, _ *struct{}) (*deletion.Request, error) {
	return a.core.GetRequest(c.Request.Context(), c.Param("id"))
}

func (a DeletionAPI) addRequest(c *gin.Context, in *deletion.AddRequestInput) (*deletion.Request, error) {
	return a.core.AddRequest(c.Request.Context(), in)
}

func (a DeletionAPI) cancelRequest(c *gin.Context, in *deletion.CancelRequestInput) (*deletion.Request, error) {
	return a.core.CancelRequest(c.Request.Context(), c.Param("id"), in)
}
