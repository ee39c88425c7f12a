package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gowvp/tams/internal/core/deletion"
	"github.com/gowvp/tams/internal/core/flow"
	"github.com/gowvp/tams/internal/mstore"
	"github.com/gowvp/tams/pkg/timerange"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// FlowAPI 为 http 提供业务方法
type FlowAPI struct {
	core     flow.Core
	deletion *deletion.Core
	objects  *mstore.Store
}

func NewFlowAPI(core flow.Core, del *deletion.Core, objects *mstore.Store) FlowAPI {
	return FlowAPI{core: core, deletion: del, objects: objects}
}

func RegisterFlow(g gin.IRouter, api FlowAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/flows", handler...)
	group.GET("", web.WrapH(api.findFlows))
	group.POST("", web.WrapH(api.addFlow))
	group.GET("/:id", web.WrapH(api.getFlow))
	group.PUT("/:id", web.WrapH(api.editFlow))
	group.DELETE("/:id", web.WrapH(api.delFlow))

	group.GET("/:id/segments", web.WrapH(api.findSegments))
	group.POST("/:id/segments", web.WrapH(api.addSegments))
	group.DELETE("/:id/segments", web.WrapH(api.delSegments))

	group.POST("/:id/storage", web.WrapH(api.allocateStorage))
}

func (a FlowAPI) findFlows(c *gin.Context, in *flow.FindFlowInput) (any, error) {
	items, total, err := a.core.FindFlows(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

func (a FlowAPI) getFlow(c *gin.Context, _ *struct{}) (*flow.Flow, error) {
	return a.core.GetFlow(c.Request.Context(), c.Param("id"))
}

func (a FlowAPI) addFlow(c *gin.Context, in *flow.AddFlowInput) (*flow.Flow, error) {
	return a.core.AddFlow(c.Request.Context(), in)
}

func (a FlowAPI) editFlow(c *gin.Context, in *flow.EditFlowInput) (*flow.Flow, error) {
	return a.core.EditFlow(c.Request.Context(), in, c.Param("id"))
}

type delFlowInput struct {
	Timerange string `form:"timerange"`
}

// delFlow 删除媒体流。
// 带 timerange 时登记异步删除请求只清片段；不带时间范围且已无片段的流
// 直接删除，否则登记覆盖全时间轴的删除请求，清空后连流一起删除。
func (a FlowAPI) delFlow(c *gin.Context, in *delFlowInput) (any, error) {
	ctx := c.Request.Context()
	flowID := c.Param("id")

	if in.Timerange != "" {
		req, err := a.deletion.AddRequest(ctx, &deletion.AddRequestInput{
			FlowID:    flowID,
			Timerange: in.Timerange,
		})
		return req, err
	}

	f, err := a.core.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if f.AvailableTimerange == "" {
		return a.core.DelFlow(ctx, flowID)
	}
	return a.deletion.AddRequest(ctx, &deletion.AddRequestInput{FlowID: flowID})
}

func (a FlowAPI) findSegments(c *gin.Context, in *flow.FindSegmentInput) (any, error) {
	items, err := a.core.FindSegments(c.Request.Context(), c.Param("id"), in)
	return gin.H{"items": items}, err
}

func (a FlowAPI) addSegments(c *gin.Context, in *flow.AddSegmentsInput) (any, error) {
	items, err := a.core.AddSegments(c.Request.Context(), c.Param("id"), in)
	return gin.H{"items": items}, err
}

// delSegments 同步区间删除，小范围即时清理用
func (a FlowAPI) delSegments(c *gin.Context, in *flow.DeleteSegmentsInput) (any, error) {
	tr := timerange.Eternity()
	if in.Timerange != "" {
		var err error
		if tr, err = timerange.Parse(in.Timerange); err != nil {
			return nil, reason.ErrBadRequest.Withf("timerange [%s]: %s", in.Timerange, err.Error())
		}
	}
	deleted, modified, err := a.core.DeleteSegments(c.Request.Context(), c.Param("id"), tr)
	return gin.H{"deleted": deleted, "modified": modified}, err
}

type allocateStorageInput struct {
	Limit     int      `json:"limit"`
	ObjectIDs []string `json:"object_ids"`
}

// allocateStorage 预分配上传位，返回可 PUT 的地址集合
func (a FlowAPI) allocateStorage(c *gin.Context, in *allocateStorageInput) (any, error) {
	if _, err := a.core.GetFlow(c.Request.Context(), c.Param("id")); err != nil {
		return nil, err
	}
	tickets, err := a.objects.AllocateUploads(in.Limit, in.ObjectIDs)
	if err != nil {
		return nil, reason.ErrBadRequest.Withf("allocate storage: %s", err.Error())
	}
	return gin.H{"objects": tickets}, nil
}
