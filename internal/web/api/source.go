package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gowvp/tams/internal/core/source"
	"github.com/ixugo/goddd/pkg/web"
)

// SourceAPI 为 http 提供业务方法
type SourceAPI struct {
	core source.Core
}

func NewSourceAPI(core source.Core) SourceAPI {
	return SourceAPI{core: core}
}

func RegisterSource(g gin.IRouter, api SourceAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/sources", handler...)
	group.GET("", web.WrapH(api.findSources))
	group.POST("", web.WrapH(api.addSource))
	group.GET("/:id", web.WrapH(api.getSource))
	group.PUT("/:id", web.WrapH(api.editSource))
	group.DELETE("/:id", web.WrapH(api.delSource))
}

func (a SourceAPI) findSources(c *gin.Context, in *source.FindSourceInput) (any, error) {
	items, total, err := a.core.FindSources(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

func (a SourceAPI) getSource(c *gin.Context, _ *struct{}) (*source.Source, error) {
	return a.core.GetSource(c.Request.Context(), c.Param("id"))
}

func (a SourceAPI) addSource(c *gin.Context, in *source.AddSourceInput) (*source.Source, error) {
	return a.core.AddSource(c.Request.Context(), in)
}

func (a SourceAPI) editSource(c *gin.Context, in *source.EditSourceInput) (*source.Source, error) {
	return a.core.EditSource(c.Request.Context(), in, c.Param("id"))
}

func (a SourceAPI) delSource(c *gin.Context, _ *struct{}) (*source.Source, error) {
	return a.core.DelSource(c.Request.Context(), c.Param("id"))
}
